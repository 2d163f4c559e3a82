package mysql

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	poolDomain "github.com/nurcahyapriantoro/agrilends/internal/domain/pool"
)

// poolRowID pins the singleton liquidity pool row.
const poolRowID = 1

type PoolRepository struct{ db *gorm.DB }

func NewPoolRepository(db *gorm.DB) *PoolRepository { return &PoolRepository{db: db} }

func (r *PoolRepository) Get(ctx context.Context) (*poolDomain.Pool, error) {
	out := poolDomain.Pool{ID: poolRowID}
	res := r.db.WithContext(ctx).Where("id = ?", poolRowID).FirstOrCreate(&out)
	return &out, res.Error
}

func (r *PoolRepository) GetForUpdate(ctx context.Context) (*poolDomain.Pool, error) {
	var out poolDomain.Pool
	res := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", poolRowID).
		First(&out)
	if res.Error == gorm.ErrRecordNotFound {
		out = poolDomain.Pool{ID: poolRowID}
		if err := r.db.WithContext(ctx).Create(&out).Error; err != nil {
			return nil, err
		}
		return &out, nil
	}
	return &out, res.Error
}

func (r *PoolRepository) Save(ctx context.Context, p *poolDomain.Pool) error {
	return r.db.WithContext(ctx).Save(p).Error
}

type InvestorRepository struct{ db *gorm.DB }

func NewInvestorRepository(db *gorm.DB) *InvestorRepository { return &InvestorRepository{db: db} }

func (r *InvestorRepository) Get(ctx context.Context, investorID string) (*poolDomain.InvestorBalance, error) {
	var out poolDomain.InvestorBalance
	res := r.db.WithContext(ctx).Where("investor_id = ?", investorID).First(&out)
	if res.Error == gorm.ErrRecordNotFound {
		return nil, poolDomain.ErrNotFound
	}
	return &out, res.Error
}

func (r *InvestorRepository) GetForUpdate(ctx context.Context, investorID string) (*poolDomain.InvestorBalance, error) {
	var out poolDomain.InvestorBalance
	res := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("investor_id = ?", investorID).
		First(&out)
	if res.Error == gorm.ErrRecordNotFound {
		return nil, poolDomain.ErrNotFound
	}
	return &out, res.Error
}

func (r *InvestorRepository) GetOrCreateForUpdate(ctx context.Context, investorID string) (*poolDomain.InvestorBalance, error) {
	out, err := r.GetForUpdate(ctx, investorID)
	if err == nil {
		return out, nil
	}
	if err != poolDomain.ErrNotFound {
		return nil, err
	}
	created := &poolDomain.InvestorBalance{InvestorID: investorID}
	if err := r.db.WithContext(ctx).Create(created).Error; err != nil {
		return nil, err
	}
	return created, nil
}

func (r *InvestorRepository) Save(ctx context.Context, b *poolDomain.InvestorBalance) error {
	return r.db.WithContext(ctx).Save(b).Error
}

func (r *InvestorRepository) AppendEntry(ctx context.Context, e *poolDomain.LedgerEntry) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *InvestorRepository) ListEntries(ctx context.Context, investorID string) ([]*poolDomain.LedgerEntry, error) {
	var out []*poolDomain.LedgerEntry
	res := r.db.WithContext(ctx).
		Where("investor_id = ?", investorID).
		Order("id ASC").
		Find(&out)
	return out, res.Error
}
