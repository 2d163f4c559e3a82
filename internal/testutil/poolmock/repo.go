package poolmock

import (
	"context"

	domain "github.com/nurcahyapriantoro/agrilends/internal/domain/pool"
)

// Repo is a function-backed mock that satisfies domain.Repository.
type Repo struct {
	GetFn          func(ctx context.Context) (*domain.Pool, error)
	GetForUpdateFn func(ctx context.Context) (*domain.Pool, error)
	SaveFn         func(ctx context.Context, p *domain.Pool) error
}

var _ domain.Repository = (*Repo)(nil)

func (m *Repo) Get(ctx context.Context) (*domain.Pool, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx)
	}
	return nil, context.Canceled
}

func (m *Repo) GetForUpdate(ctx context.Context) (*domain.Pool, error) {
	if m.GetForUpdateFn != nil {
		return m.GetForUpdateFn(ctx)
	}
	return nil, context.Canceled
}

func (m *Repo) Save(ctx context.Context, p *domain.Pool) error {
	if m.SaveFn != nil {
		return m.SaveFn(ctx, p)
	}
	return nil
}

// Investors is a function-backed mock for domain.InvestorRepository.
type Investors struct {
	GetFn                  func(ctx context.Context, investorID string) (*domain.InvestorBalance, error)
	GetForUpdateFn         func(ctx context.Context, investorID string) (*domain.InvestorBalance, error)
	GetOrCreateForUpdateFn func(ctx context.Context, investorID string) (*domain.InvestorBalance, error)
	SaveFn                 func(ctx context.Context, b *domain.InvestorBalance) error
	AppendEntryFn          func(ctx context.Context, e *domain.LedgerEntry) error
	ListEntriesFn          func(ctx context.Context, investorID string) ([]*domain.LedgerEntry, error)
}

var _ domain.InvestorRepository = (*Investors)(nil)

func (m *Investors) Get(ctx context.Context, investorID string) (*domain.InvestorBalance, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, investorID)
	}
	return nil, domain.ErrNotFound
}

func (m *Investors) GetForUpdate(ctx context.Context, investorID string) (*domain.InvestorBalance, error) {
	if m.GetForUpdateFn != nil {
		return m.GetForUpdateFn(ctx, investorID)
	}
	return nil, domain.ErrNotFound
}

func (m *Investors) GetOrCreateForUpdate(ctx context.Context, investorID string) (*domain.InvestorBalance, error) {
	if m.GetOrCreateForUpdateFn != nil {
		return m.GetOrCreateForUpdateFn(ctx, investorID)
	}
	return &domain.InvestorBalance{InvestorID: investorID}, nil
}

func (m *Investors) Save(ctx context.Context, b *domain.InvestorBalance) error {
	if m.SaveFn != nil {
		return m.SaveFn(ctx, b)
	}
	return nil
}

func (m *Investors) AppendEntry(ctx context.Context, e *domain.LedgerEntry) error {
	if m.AppendEntryFn != nil {
		return m.AppendEntryFn(ctx, e)
	}
	return nil
}

func (m *Investors) ListEntries(ctx context.Context, investorID string) ([]*domain.LedgerEntry, error) {
	if m.ListEntriesFn != nil {
		return m.ListEntriesFn(ctx, investorID)
	}
	return nil, nil
}

// Ops is a function-backed mock for domain.OperationRepository. The default
// Begin succeeds, so flows that merely pass through the guard need no setup.
type Ops struct {
	GetFn     func(ctx context.Context, opID string) (*domain.ProcessedOperation, error)
	BeginFn   func(ctx context.Context, op *domain.ProcessedOperation) error
	FinishFn  func(ctx context.Context, opID string) error
	AbandonFn func(ctx context.Context, opID string) error
}

var _ domain.OperationRepository = (*Ops)(nil)

func (m *Ops) Get(ctx context.Context, opID string) (*domain.ProcessedOperation, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, opID)
	}
	return nil, domain.ErrNotFound
}

func (m *Ops) Begin(ctx context.Context, op *domain.ProcessedOperation) error {
	if m.BeginFn != nil {
		return m.BeginFn(ctx, op)
	}
	return nil
}

func (m *Ops) Finish(ctx context.Context, opID string) error {
	if m.FinishFn != nil {
		return m.FinishFn(ctx, opID)
	}
	return nil
}

func (m *Ops) Abandon(ctx context.Context, opID string) error {
	if m.AbandonFn != nil {
		return m.AbandonFn(ctx, opID)
	}
	return nil
}
