package pool

import "context"

type Repository interface {
	// Get returns the singleton pool row, creating it when absent.
	Get(ctx context.Context) (*Pool, error)
	// GetForUpdate locks the pool row for the duration of the transaction.
	GetForUpdate(ctx context.Context) (*Pool, error)
	Save(ctx context.Context, p *Pool) error
}

type InvestorRepository interface {
	Get(ctx context.Context, investorID string) (*InvestorBalance, error)
	GetForUpdate(ctx context.Context, investorID string) (*InvestorBalance, error)
	// GetOrCreateForUpdate locks the investor row, creating a zero balance
	// on first deposit.
	GetOrCreateForUpdate(ctx context.Context, investorID string) (*InvestorBalance, error)
	Save(ctx context.Context, b *InvestorBalance) error
	AppendEntry(ctx context.Context, e *LedgerEntry) error
	ListEntries(ctx context.Context, investorID string) ([]*LedgerEntry, error)
}

type OperationRepository interface {
	Get(ctx context.Context, opID string) (*ProcessedOperation, error)
	// Begin inserts an in-flight record; a primary-key conflict surfaces as
	// ErrDuplicateOperation.
	Begin(ctx context.Context, op *ProcessedOperation) error
	Finish(ctx context.Context, opID string) error
	// Abandon removes an in-flight record after the external transfer
	// failed without side effects, keeping retries safe.
	Abandon(ctx context.Context, opID string) error
}
