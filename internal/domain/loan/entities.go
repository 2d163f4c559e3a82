package loan

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

type State string

const (
	// StateOffered covers the pre-activation stage: the offer has been
	// computed from the collateral valuation and is awaiting borrower
	// acceptance.
	StateOffered   State = "offered"
	StateActive    State = "active"
	StateRepaid    State = "repaid"
	StateDefaulted State = "defaulted"
)

// Terminal reports whether the loan can no longer be mutated.
func (s State) Terminal() bool { return s == StateRepaid || s == StateDefaulted }

var (
	ErrNotFound                  = errors.New("loan not found")
	ErrUnauthorized              = errors.New("caller lacks required relationship")
	ErrInvalidTransition         = errors.New("operation not valid for current loan state")
	ErrCollateralNotOwned        = errors.New("caller is not the owner of the collateral")
	ErrCollateralBusy            = errors.New("collateral is bound to an unresolved loan")
	ErrValuationUnavailable      = errors.New("collateral valuation unavailable")
	ErrInvalidAmount             = errors.New("payment amount must be positive")
	ErrOverpayment               = errors.New("payment exceeds outstanding debt")
	ErrReconciliationRequired    = errors.New("partial failure requires reconciliation")
	ErrCollateralReleasePending  = errors.New("loan settled but collateral release pending")
	ErrLiquidationNotEligible    = errors.New("loan not eligible for liquidation")
	ErrLiquidationRecordConflict = errors.New("liquidation record already exists")
)

type Loan struct {
	ID            uint64 `gorm:"primaryKey;column:id" json:"-"`
	LoanID        string `gorm:"size:32;uniqueIndex:ux_loans_loan_id" json:"loan_id"`
	BorrowerID    string `gorm:"size:32;index:idx_loans_borrower" json:"borrower_id"`
	CollateralRef string `gorm:"size:64;index:idx_loans_collateral" json:"collateral_ref"`

	// Amounts are denominated in the settlement asset's smallest unit.
	RequestedAmount int64 `gorm:"column:requested_amount" json:"requested_amount"`
	ApprovedAmount  int64 `gorm:"column:approved_amount" json:"approved_amount"`
	// ValuationAtApplication is the oracle valuation the LTV cap was
	// computed against; approved_amount never exceeds valuation * LTV.
	ValuationAtApplication int64 `gorm:"column:valuation_at_application" json:"valuation_at_application"`

	AprBps int64 `gorm:"column:apr_bps" json:"apr_bps"`
	State  State `gorm:"type:enum('offered','active','repaid','defaulted');default:'offered'" json:"state"`

	ActivatedAt *time.Time `gorm:"column:activated_at" json:"activated_at,omitempty"`
	DueDate     *time.Time `gorm:"column:due_date" json:"due_date,omitempty"`

	TotalRepaid        int64          `gorm:"column:total_repaid" json:"total_repaid"`
	PrincipalRepaid    int64          `gorm:"column:principal_repaid" json:"principal_repaid"`
	InterestRepaid     int64          `gorm:"column:interest_repaid" json:"interest_repaid"`
	CollateralReleased bool           `gorm:"column:collateral_released" json:"collateral_released"`
	StateUpdatedAt     time.Time      `gorm:"column:state_updated_at" json:"state_updated_at"`
	CreatedAt          time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Loan) TableName() string { return "loans" }

// OutstandingPrincipal is the principal still owed; never negative.
func (l *Loan) OutstandingPrincipal() int64 {
	out := l.ApprovedAmount - l.PrincipalRepaid
	if out < 0 {
		return 0
	}
	return out
}

// Payment is an immutable append-only repayment entry. Rows are never
// mutated after creation; outstanding debt can be recomputed from them.
type Payment struct {
	ID               uint64    `gorm:"primaryKey;column:id" json:"-"`
	PaymentID        string    `gorm:"size:32;uniqueIndex:ux_payments_payment_id" json:"payment_id"`
	LoanNumericID    uint64    `gorm:"column:loan_id;index:idx_payments_loan" json:"-"`
	LoanID           string    `gorm:"size:32;column:loan_public_id" json:"loan_id"`
	Amount           int64     `gorm:"column:amount" json:"amount"`
	InterestPortion  int64     `gorm:"column:interest_portion" json:"interest_portion"`
	PrincipalPortion int64     `gorm:"column:principal_portion" json:"principal_portion"`
	FeePortion       int64     `gorm:"column:fee_portion" json:"fee_portion"`
	RailTxRef        string    `gorm:"size:64;column:rail_tx_ref" json:"rail_tx_ref"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Payment) TableName() string { return "payments" }

type LiquidationReason string

const (
	ReasonOverdue     LiquidationReason = "overdue"
	ReasonHealthRatio LiquidationReason = "health_ratio"
	ReasonAdminForced LiquidationReason = "admin_forced"
)

// LiquidationRecord is written exactly once per defaulted loan and is
// immutable thereafter.
type LiquidationRecord struct {
	ID              uint64            `gorm:"primaryKey;column:id" json:"-"`
	LoanNumericID   uint64            `gorm:"column:loan_id;uniqueIndex:ux_liquidations_loan" json:"-"`
	LoanID          string            `gorm:"size:32;column:loan_public_id" json:"loan_id"`
	Reason          LiquidationReason `gorm:"size:16" json:"reason"`
	TriggeredAt     time.Time         `gorm:"column:triggered_at" json:"triggered_at"`
	OutstandingDebt int64             `gorm:"column:outstanding_debt" json:"outstanding_debt"`
	CollateralValue int64             `gorm:"column:collateral_value" json:"collateral_value"`
	CustodyIdentity string            `gorm:"size:64;column:custody_identity" json:"custody_identity"`
	Signature       []byte            `gorm:"column:signature" json:"-"`
	CreatedAt       time.Time         `gorm:"autoCreateTime" json:"created_at"`
}

func (LiquidationRecord) TableName() string { return "liquidation_records" }
