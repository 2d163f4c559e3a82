package params

import (
	"context"
	"time"
)

// Params is the governance-controlled protocol parameter set, read by every
// component. Stored as a singleton row so admin updates take effect without
// a restart.
type Params struct {
	ID uint64 `gorm:"primaryKey;column:id" json:"-"`
	// LTVBps is the loan-to-value ratio in basis points.
	LTVBps int64 `gorm:"column:ltv_bps" json:"ltv_bps"`
	// AprBps is the base annual rate in basis points, applied as simple
	// non-compounding interest.
	AprBps              int64 `gorm:"column:apr_bps" json:"apr_bps"`
	GracePeriodDays     int64 `gorm:"column:grace_period_days" json:"grace_period_days"`
	MaxLoanDurationDays int64 `gorm:"column:max_loan_duration_days" json:"max_loan_duration_days"`
	MinDeposit          int64 `gorm:"column:min_deposit" json:"min_deposit"`
	// ProtocolFeeBps is charged on the interest portion of each repayment.
	ProtocolFeeBps int64 `gorm:"column:protocol_fee_bps" json:"protocol_fee_bps"`
	// MaxLoanFractionBps caps a single disbursement relative to total pool
	// liquidity (concentration risk).
	MaxLoanFractionBps int64 `gorm:"column:max_loan_fraction_bps" json:"max_loan_fraction_bps"`
	// PriceMaxAgeSecs is the oracle staleness window; older prices are
	// treated as unavailable.
	PriceMaxAgeSecs int64     `gorm:"column:price_max_age_secs" json:"price_max_age_secs"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Params) TableName() string { return "protocol_params" }

func (p *Params) GracePeriod() time.Duration {
	return time.Duration(p.GracePeriodDays) * 24 * time.Hour
}

func (p *Params) MaxLoanDuration() time.Duration {
	return time.Duration(p.MaxLoanDurationDays) * 24 * time.Hour
}

func (p *Params) PriceMaxAge() time.Duration {
	return time.Duration(p.PriceMaxAgeSecs) * time.Second
}

// Default returns the parameter set seeded on first boot.
func Default() *Params {
	return &Params{
		LTVBps:              6000,
		AprBps:              1000,
		GracePeriodDays:     30,
		MaxLoanDurationDays: 365,
		MinDeposit:          10_000,
		ProtocolFeeBps:      1000,
		MaxLoanFractionBps:  8000,
		PriceMaxAgeSecs:     3600,
	}
}

type Store interface {
	Get(ctx context.Context) (*Params, error)
	Put(ctx context.Context, p *Params) error
}
