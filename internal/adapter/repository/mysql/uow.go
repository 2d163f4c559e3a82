package mysql

import (
	"context"

	"gorm.io/gorm"

	"github.com/nurcahyapriantoro/agrilends/internal/domain/loan"
	"github.com/nurcahyapriantoro/agrilends/internal/domain/params"
	"github.com/nurcahyapriantoro/agrilends/internal/domain/pool"
	"github.com/nurcahyapriantoro/agrilends/internal/domain/uow"
)

type GormUoW struct{ db *gorm.DB }

func NewGormUoW(db *gorm.DB) *GormUoW { return &GormUoW{db: db} }

func reposFor(tx *gorm.DB) uow.Repos {
	return uow.Repos{
		Loans:        &LoanRepository{db: tx},
		Payments:     &PaymentRepository{db: tx},
		Liquidations: &LiquidationRepository{db: tx},
		Pool:         &PoolRepository{db: tx},
		Investors:    &InvestorRepository{db: tx},
		Operations:   &OperationRepository{db: tx},
	}
}

func (u *GormUoW) WithinTx(ctx context.Context, fn func(r uow.Repos) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(reposFor(tx))
	})
}

func (u *GormUoW) WithinLoanTx(ctx context.Context, loanID string, fn func(r uow.Repos, l *loan.Loan) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r := reposFor(tx)
		// lock the loan row up-front to prevent races
		l, err := r.Loans.GetByLoanIDForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		return fn(r, l)
	})
}

// AutoMigrate creates the accounting schema. Called once at boot.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&loan.Loan{},
		&loan.Payment{},
		&loan.LiquidationRecord{},
		&pool.Pool{},
		&pool.InvestorBalance{},
		&pool.LedgerEntry{},
		&pool.ProcessedOperation{},
		&params.Params{},
	)
}
