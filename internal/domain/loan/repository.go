package loan

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, l *Loan) error
	GetByLoanID(ctx context.Context, loanID string) (*Loan, error)
	GetByLoanIDForUpdate(ctx context.Context, loanID string) (*Loan, error)
	// GetUnresolvedByCollateralRef returns the non-terminal loan bound to
	// the collateral token, if any.
	GetUnresolvedByCollateralRef(ctx context.Context, collateralRef string) (*Loan, error)
	// ListActiveDueBefore returns active loans whose due date is strictly
	// before the cutoff. Used by the overdue scanner.
	ListActiveDueBefore(ctx context.Context, cutoff time.Time) ([]*Loan, error)
	Save(ctx context.Context, l *Loan) error
}

type PaymentRepository interface {
	Create(ctx context.Context, p *Payment) error
	ListByLoanID(ctx context.Context, loanID string) ([]*Payment, error)
}

type LiquidationRepository interface {
	// Create fails with ErrLiquidationRecordConflict when a record for the
	// loan already exists.
	Create(ctx context.Context, rec *LiquidationRecord) error
	GetByLoanID(ctx context.Context, loanID string) (*LiquidationRecord, error)
}
