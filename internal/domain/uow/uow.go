package uow

import (
	"context"

	"github.com/nurcahyapriantoro/agrilends/internal/domain/loan"
	"github.com/nurcahyapriantoro/agrilends/internal/domain/pool"
)

type Repos struct {
	Loans        loan.Repository
	Payments     loan.PaymentRepository
	Liquidations loan.LiquidationRepository
	Pool         pool.Repository
	Investors    pool.InvestorRepository
	Operations   pool.OperationRepository
}

type UnitOfWork interface {
	// WithinTx runs fn inside one database transaction.
	WithinTx(ctx context.Context, fn func(r Repos) error) error
	// WithinLoanTx locks the loan row first, then passes it in. Used by
	// every state-machine transition so concurrent mutators serialize on
	// the loan.
	WithinLoanTx(ctx context.Context, loanID string, fn func(r Repos, l *loan.Loan) error) error
}
