package pool

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound                  = errors.New("investor not found")
	ErrUnauthorized              = errors.New("caller lacks required role")
	ErrInvalidAmount             = errors.New("amount must be positive")
	ErrBelowMinimumDeposit       = errors.New("amount below minimum deposit")
	ErrInsufficientBalance       = errors.New("insufficient investor balance")
	ErrInsufficientPoolLiquidity = errors.New("insufficient pool liquidity")
	ErrConcentrationLimit        = errors.New("disbursement exceeds concentration cap")
	ErrDuplicateOperation        = errors.New("operation id already in flight")
	ErrReconciliationRequired    = errors.New("partial failure requires reconciliation")
	ErrPoolInvariantViolated     = errors.New("pool solvency invariant violated")
)

// Pool is the singleton liquidity aggregate. All amounts are in the
// settlement asset's smallest unit. Available liquidity is derived, never
// stored:
//
//	available = total_liquidity - total_borrowed + total_repaid - total_liquidated_loss
//
// and must stay within [0, total_liquidity] across every mutation.
type Pool struct {
	ID                  uint64    `gorm:"primaryKey;column:id" json:"-"`
	TotalLiquidity      int64     `gorm:"column:total_liquidity" json:"total_liquidity"`
	TotalBorrowed       int64     `gorm:"column:total_borrowed" json:"total_borrowed"`
	TotalRepaid         int64     `gorm:"column:total_repaid" json:"total_repaid"`
	TotalLiquidatedLoss int64     `gorm:"column:total_liquidated_loss" json:"total_liquidated_loss"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Pool) TableName() string { return "liquidity_pool" }

func (p *Pool) Available() int64 {
	return p.TotalLiquidity - p.TotalBorrowed + p.TotalRepaid - p.TotalLiquidatedLoss
}

func (p *Pool) checkInvariant() error {
	a := p.Available()
	if a < 0 || a > p.TotalLiquidity {
		return ErrPoolInvariantViolated
	}
	return nil
}

// Deposit credits fresh liquidity supplied by an investor.
func (p *Pool) Deposit(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	p.TotalLiquidity += amount
	return p.checkInvariant()
}

// WithdrawLiquidity removes supplied liquidity when an investor exits.
func (p *Pool) WithdrawLiquidity(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if amount > p.Available() {
		return ErrInsufficientPoolLiquidity
	}
	p.TotalLiquidity -= amount
	return p.checkInvariant()
}

// Disburse reserves capacity for a loan payout. The mutation happens before
// the external payout call is issued so that a concurrent disbursement
// observes the reduced availability. maxFractionBps is the concentration
// cap: no single loan may draw more than that fraction of total liquidity.
func (p *Pool) Disburse(amount, maxFractionBps int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if amount > p.Available() {
		return ErrInsufficientPoolLiquidity
	}
	if maxFractionBps > 0 {
		cap := decimal.NewFromInt(p.TotalLiquidity).
			Mul(decimal.NewFromInt(maxFractionBps)).
			Div(decimal.NewFromInt(10_000)).
			Floor().IntPart()
		if amount > cap {
			return ErrConcentrationLimit
		}
	}
	p.TotalBorrowed += amount
	return p.checkInvariant()
}

// UndoDisburse releases a reservation after a failed payout, before any
// dependent state was committed.
func (p *Pool) UndoDisburse(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	p.TotalBorrowed -= amount
	return p.checkInvariant()
}

// CreditRepayment returns a repayment to the pool. The principal portion
// counts against the borrowed reservation; the net interest (protocol fee
// already carved out for the treasury) is capitalized into total liquidity
// as investor yield.
func (p *Pool) CreditRepayment(principal, netInterest int64) error {
	if principal < 0 || netInterest < 0 || principal+netInterest == 0 {
		return ErrInvalidAmount
	}
	p.TotalRepaid += principal
	p.TotalLiquidity += netInterest
	return p.checkInvariant()
}

// RecognizeLoss books a liquidation write-off: the defaulted principal will
// never be repaid, so its reservation moves from borrowed to liquidated
// loss. Available liquidity is unchanged (the funds already left the pool);
// investor-facing yield absorbs the loss. Called only by the liquidation
// engine.
func (p *Pool) RecognizeLoss(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if amount > p.TotalBorrowed-p.TotalRepaid {
		return ErrInvalidAmount
	}
	p.TotalBorrowed -= amount
	p.TotalLiquidatedLoss += amount
	return p.checkInvariant()
}

type EntryType string

const (
	EntryDeposit  EntryType = "deposit"
	EntryWithdraw EntryType = "withdraw"
	EntryYield    EntryType = "yield"
)

// InvestorBalance is created on first deposit and never deleted; a zero
// balance persists as history.
type InvestorBalance struct {
	ID                   uint64    `gorm:"primaryKey;column:id" json:"-"`
	InvestorID           string    `gorm:"size:32;uniqueIndex:ux_investors_investor_id" json:"investor_id"`
	PrincipalContributed int64     `gorm:"column:principal_contributed" json:"principal_contributed"`
	Balance              int64     `gorm:"column:balance" json:"balance"`
	CreatedAt            time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (InvestorBalance) TableName() string { return "investor_balances" }

// LedgerEntry is the append-only transaction history per investor.
type LedgerEntry struct {
	ID               uint64    `gorm:"primaryKey;column:id" json:"-"`
	InvestorID       string    `gorm:"size:32;index:idx_ledger_investor" json:"investor_id"`
	Type             EntryType `gorm:"size:16" json:"type"`
	Amount           int64     `gorm:"column:amount" json:"amount"`
	ResultingBalance int64     `gorm:"column:resulting_balance" json:"resulting_balance"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (LedgerEntry) TableName() string { return "investor_ledger_entries" }

type OperationStatus string

const (
	OpInFlight OperationStatus = "in_flight"
	OpDone     OperationStatus = "done"
)

// ProcessedOperation deduplicates client-supplied operation ids for
// asset-moving operations. The row is created the moment the operation
// begins an external transfer and finalized once the flow commits; it is
// never removed during normal operation.
type ProcessedOperation struct {
	OpID      string          `gorm:"primaryKey;size:64;column:op_id" json:"op_id"`
	Kind      string          `gorm:"size:32" json:"kind"`
	Status    OperationStatus `gorm:"size:16" json:"status"`
	Amount    int64           `gorm:"column:amount" json:"amount"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ProcessedOperation) TableName() string { return "processed_operations" }
