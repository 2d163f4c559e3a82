package mysql

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	loanDomain "github.com/nurcahyapriantoro/agrilends/internal/domain/loan"
)

type LoanRepository struct{ db *gorm.DB }

func NewLoanRepository(db *gorm.DB) *LoanRepository { return &LoanRepository{db: db} }

func (r *LoanRepository) Create(ctx context.Context, l *loanDomain.Loan) error {
	return r.db.WithContext(ctx).Create(l).Error
}

func (r *LoanRepository) Save(ctx context.Context, l *loanDomain.Loan) error {
	return r.db.WithContext(ctx).Save(l).Error
}

func (r *LoanRepository) GetByLoanID(ctx context.Context, loanID string) (*loanDomain.Loan, error) {
	var out loanDomain.Loan
	res := r.db.WithContext(ctx).Where("loan_id = ?", loanID).First(&out)
	return &out, res.Error
}

func (r *LoanRepository) GetByLoanIDForUpdate(ctx context.Context, loanID string) (*loanDomain.Loan, error) {
	var out loanDomain.Loan
	res := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("loan_id = ?", loanID).
		First(&out)
	return &out, res.Error
}

func (r *LoanRepository) GetUnresolvedByCollateralRef(ctx context.Context, collateralRef string) (*loanDomain.Loan, error) {
	var out loanDomain.Loan
	res := r.db.WithContext(ctx).
		Where("collateral_ref = ? AND state IN ?", collateralRef,
			[]loanDomain.State{loanDomain.StateOffered, loanDomain.StateActive}).
		Order("id DESC").
		First(&out)
	return &out, res.Error
}

func (r *LoanRepository) ListActiveDueBefore(ctx context.Context, cutoff time.Time) ([]*loanDomain.Loan, error) {
	var out []*loanDomain.Loan
	res := r.db.WithContext(ctx).
		Where("state = ? AND due_date IS NOT NULL AND due_date < ?", loanDomain.StateActive, cutoff).
		Order("due_date ASC").
		Find(&out)
	return out, res.Error
}

type PaymentRepository struct{ db *gorm.DB }

func NewPaymentRepository(db *gorm.DB) *PaymentRepository { return &PaymentRepository{db: db} }

func (r *PaymentRepository) Create(ctx context.Context, p *loanDomain.Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *PaymentRepository) ListByLoanID(ctx context.Context, loanID string) ([]*loanDomain.Payment, error) {
	var out []*loanDomain.Payment
	res := r.db.WithContext(ctx).
		Where("loan_public_id = ?", loanID).
		Order("id ASC").
		Find(&out)
	return out, res.Error
}

type LiquidationRepository struct{ db *gorm.DB }

func NewLiquidationRepository(db *gorm.DB) *LiquidationRepository {
	return &LiquidationRepository{db: db}
}

func (r *LiquidationRepository) Create(ctx context.Context, rec *loanDomain.LiquidationRecord) error {
	err := r.db.WithContext(ctx).Create(rec).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return loanDomain.ErrLiquidationRecordConflict
	}
	return err
}

func (r *LiquidationRepository) GetByLoanID(ctx context.Context, loanID string) (*loanDomain.LiquidationRecord, error) {
	var out loanDomain.LiquidationRecord
	res := r.db.WithContext(ctx).Where("loan_public_id = ?", loanID).First(&out)
	return &out, res.Error
}
