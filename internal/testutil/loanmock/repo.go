package loanmock

import (
	"context"
	"time"

	domain "github.com/nurcahyapriantoro/agrilends/internal/domain/loan"
)

// Repo is a function-backed mock that satisfies domain.Repository.
// Only methods you need are included; add more as tests require.
type Repo struct {
	CreateFn                       func(ctx context.Context, l *domain.Loan) error
	GetByLoanIDFn                  func(ctx context.Context, loanID string) (*domain.Loan, error)
	GetByLoanIDForUpdateFn         func(ctx context.Context, loanID string) (*domain.Loan, error)
	GetUnresolvedByCollateralRefFn func(ctx context.Context, collateralRef string) (*domain.Loan, error)
	ListActiveDueBeforeFn          func(ctx context.Context, cutoff time.Time) ([]*domain.Loan, error)
	SaveFn                         func(ctx context.Context, l *domain.Loan) error
}

var _ domain.Repository = (*Repo)(nil)

func (m *Repo) Create(ctx context.Context, l *domain.Loan) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, l)
	}
	return nil
}

func (m *Repo) GetByLoanID(ctx context.Context, loanID string) (*domain.Loan, error) {
	if m.GetByLoanIDFn != nil {
		return m.GetByLoanIDFn(ctx, loanID)
	}
	return nil, context.Canceled // or errors.New("not implemented")
}

func (m *Repo) GetByLoanIDForUpdate(ctx context.Context, loanID string) (*domain.Loan, error) {
	if m.GetByLoanIDForUpdateFn != nil {
		return m.GetByLoanIDForUpdateFn(ctx, loanID)
	}
	return nil, context.Canceled
}

func (m *Repo) GetUnresolvedByCollateralRef(ctx context.Context, collateralRef string) (*domain.Loan, error) {
	if m.GetUnresolvedByCollateralRefFn != nil {
		return m.GetUnresolvedByCollateralRefFn(ctx, collateralRef)
	}
	return nil, domain.ErrNotFound
}

func (m *Repo) ListActiveDueBefore(ctx context.Context, cutoff time.Time) ([]*domain.Loan, error) {
	if m.ListActiveDueBeforeFn != nil {
		return m.ListActiveDueBeforeFn(ctx, cutoff)
	}
	return nil, nil
}

func (m *Repo) Save(ctx context.Context, l *domain.Loan) error {
	if m.SaveFn != nil {
		return m.SaveFn(ctx, l)
	}
	return nil
}

// Payments is a function-backed mock for domain.PaymentRepository.
type Payments struct {
	CreateFn       func(ctx context.Context, p *domain.Payment) error
	ListByLoanIDFn func(ctx context.Context, loanID string) ([]*domain.Payment, error)
}

var _ domain.PaymentRepository = (*Payments)(nil)

func (m *Payments) Create(ctx context.Context, p *domain.Payment) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, p)
	}
	return nil
}

func (m *Payments) ListByLoanID(ctx context.Context, loanID string) ([]*domain.Payment, error) {
	if m.ListByLoanIDFn != nil {
		return m.ListByLoanIDFn(ctx, loanID)
	}
	return nil, nil
}

// Liquidations is a function-backed mock for domain.LiquidationRepository.
type Liquidations struct {
	CreateFn      func(ctx context.Context, rec *domain.LiquidationRecord) error
	GetByLoanIDFn func(ctx context.Context, loanID string) (*domain.LiquidationRecord, error)
}

var _ domain.LiquidationRepository = (*Liquidations)(nil)

func (m *Liquidations) Create(ctx context.Context, rec *domain.LiquidationRecord) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, rec)
	}
	return nil
}

func (m *Liquidations) GetByLoanID(ctx context.Context, loanID string) (*domain.LiquidationRecord, error) {
	if m.GetByLoanIDFn != nil {
		return m.GetByLoanIDFn(ctx, loanID)
	}
	return nil, domain.ErrNotFound
}
