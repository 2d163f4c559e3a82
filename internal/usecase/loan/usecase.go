package loan

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nurcahyapriantoro/agrilends/internal/domain/gateway"
	domain "github.com/nurcahyapriantoro/agrilends/internal/domain/loan"
	"github.com/nurcahyapriantoro/agrilends/internal/domain/params"
	domainPool "github.com/nurcahyapriantoro/agrilends/internal/domain/pool"
	"github.com/nurcahyapriantoro/agrilends/internal/domain/uow"
	"github.com/nurcahyapriantoro/agrilends/pkg/id"
)

// Usecase drives the loan lifecycle: offer computation, acceptance with
// collateral lock + disbursement, repayment and collateral release. Every
// multi-step flow reserves pool capacity before the suspending external call
// and re-validates loan state after it returns.
type Usecase struct {
	loans    domain.Repository
	payments domain.PaymentRepository
	ops      domainPool.OperationRepository
	uow      uow.UnitOfWork
	params   params.Store
	registry gateway.CollateralRegistry
	oracle   gateway.PriceOracle
	rail     gateway.AssetRail
	identity gateway.Identity
	treasury gateway.Treasury
	audit    gateway.AuditSink

	// escrowID is the protocol custody identity collateral is locked to.
	escrowID string

	now func() time.Time
}

type Deps struct {
	Loans    domain.Repository
	Payments domain.PaymentRepository
	Ops      domainPool.OperationRepository
	UoW      uow.UnitOfWork
	Params   params.Store
	Registry gateway.CollateralRegistry
	Oracle   gateway.PriceOracle
	Rail     gateway.AssetRail
	Identity gateway.Identity
	Treasury gateway.Treasury
	Audit    gateway.AuditSink
	EscrowID string
}

func NewUsecase(d Deps) *Usecase {
	return &Usecase{
		loans:    d.Loans,
		payments: d.Payments,
		ops:      d.Ops,
		uow:      d.UoW,
		params:   d.Params,
		registry: d.Registry,
		oracle:   d.Oracle,
		rail:     d.Rail,
		identity: d.Identity,
		treasury: d.Treasury,
		audit:    d.Audit,
		escrowID: d.EscrowID,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source, for tests.
func (u *Usecase) SetClock(now func() time.Time) { u.now = now }

type SubmitApplicationInput struct {
	BorrowerID      string `json:"borrower_id"`
	CollateralRef   string `json:"collateral_ref"`
	RequestedAmount int64  `json:"requested_amount"`
}

type LoanDTO struct {
	LoanID                 string     `json:"loan_id"`
	BorrowerID             string     `json:"borrower_id"`
	CollateralRef          string     `json:"collateral_ref"`
	RequestedAmount        int64      `json:"requested_amount"`
	ApprovedAmount         int64      `json:"approved_amount"`
	ValuationAtApplication int64      `json:"valuation_at_application"`
	AprBps                 int64      `json:"apr_bps"`
	State                  string     `json:"state"`
	ActivatedAt            *time.Time `json:"activated_at,omitempty"`
	DueDate                *time.Time `json:"due_date,omitempty"`
	TotalRepaid            int64      `json:"total_repaid"`
	OutstandingPrincipal   int64      `json:"outstanding_principal"`
	AccruedInterest        int64      `json:"accrued_interest"`
	CollateralReleased     bool       `json:"collateral_released"`
	CreatedAt              time.Time  `json:"created_at"`
}

func (u *Usecase) toDTO(l *domain.Loan) *LoanDTO {
	dto := &LoanDTO{
		LoanID:                 l.LoanID,
		BorrowerID:             l.BorrowerID,
		CollateralRef:          l.CollateralRef,
		RequestedAmount:        l.RequestedAmount,
		ApprovedAmount:         l.ApprovedAmount,
		ValuationAtApplication: l.ValuationAtApplication,
		AprBps:                 l.AprBps,
		State:                  string(l.State),
		ActivatedAt:            l.ActivatedAt,
		DueDate:                l.DueDate,
		TotalRepaid:            l.TotalRepaid,
		OutstandingPrincipal:   l.OutstandingPrincipal(),
		CollateralReleased:     l.CollateralReleased,
		CreatedAt:              l.CreatedAt,
	}
	if l.State == domain.StateActive && l.ActivatedAt != nil {
		accrued := domain.AccruedInterest(l.ApprovedAmount, l.AprBps, *l.ActivatedAt, u.now())
		if unpaid := accrued - l.InterestRepaid; unpaid > 0 {
			dto.AccruedInterest = unpaid
		}
	}
	return dto
}

// SubmitApplication computes a loan offer against the collateral valuation.
// No asset moves and no collateral is locked at this stage. A requested
// amount above the LTV-derived maximum is capped silently rather than
// rejected; the approved amount on the returned offer makes the cap
// visible.
func (u *Usecase) SubmitApplication(ctx context.Context, in SubmitApplicationInput) (*LoanDTO, error) {
	if in.BorrowerID == "" || in.CollateralRef == "" || in.RequestedAmount <= 0 {
		return nil, fmt.Errorf("%w: borrower, collateral and a positive amount are required", domain.ErrInvalidTransition)
	}

	role, err := u.identity.VerifyRegistered(ctx, in.BorrowerID)
	if err != nil {
		return nil, fmt.Errorf("identity lookup: %w", err)
	}
	if role != gateway.RoleFarmer {
		return nil, fmt.Errorf("%w: borrower must be a registered farmer", domain.ErrUnauthorized)
	}

	owner, err := u.registry.OwnerOf(ctx, in.CollateralRef)
	if err != nil {
		return nil, fmt.Errorf("registry owner lookup: %w", err)
	}
	if owner != in.BorrowerID {
		return nil, domain.ErrCollateralNotOwned
	}

	if existing, err := u.loans.GetUnresolvedByCollateralRef(ctx, in.CollateralRef); err == nil {
		return nil, fmt.Errorf("%w: loan %s", domain.ErrCollateralBusy, existing.LoanID)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	p, err := u.params.Get(ctx)
	if err != nil {
		return nil, err
	}

	valuation, err := u.collateralValuation(ctx, in.CollateralRef, p)
	if err != nil {
		return nil, err
	}

	maxLoan := decimal.NewFromInt(valuation).
		Mul(decimal.NewFromInt(p.LTVBps)).
		Div(decimal.NewFromInt(10_000)).
		Floor().IntPart()
	if maxLoan <= 0 {
		return nil, domain.ErrValuationUnavailable
	}

	approved := in.RequestedAmount
	if approved > maxLoan {
		approved = maxLoan
	}

	l := &domain.Loan{
		LoanID:                 id.NewID32(),
		BorrowerID:             in.BorrowerID,
		CollateralRef:          in.CollateralRef,
		RequestedAmount:        in.RequestedAmount,
		ApprovedAmount:         approved,
		ValuationAtApplication: valuation,
		AprBps:                 p.AprBps,
		State:                  domain.StateOffered,
		StateUpdatedAt:         u.now(),
	}
	if err := u.loans.Create(ctx, l); err != nil {
		return nil, err
	}

	u.audit.Record("loan.offered", map[string]any{
		"loan_id":    l.LoanID,
		"borrower":   l.BorrowerID,
		"collateral": l.CollateralRef,
		"requested":  l.RequestedAmount,
		"approved":   l.ApprovedAmount,
		"valuation":  valuation,
	})
	return u.toDTO(l), nil
}

// collateralValuation prefers the registry's own valuation of the receipt
// and falls back to the latest oracle price, rejected when older than the
// configured staleness window.
func (u *Usecase) collateralValuation(ctx context.Context, tokenID string, p *params.Params) (int64, error) {
	if v, err := u.registry.Valuation(ctx, tokenID); err == nil && v > 0 {
		return v, nil
	}
	price, err := u.oracle.LatestPrice(ctx, tokenID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrValuationUnavailable, err)
	}
	if u.now().Sub(price.At) > p.PriceMaxAge() {
		return 0, fmt.Errorf("%w: price observed at %s is stale", domain.ErrValuationUnavailable, price.At.Format(time.RFC3339))
	}
	if price.Value <= 0 {
		return 0, domain.ErrValuationUnavailable
	}
	return price.Value, nil
}

// AcceptOffer runs the activation sequence: lock collateral, reserve pool
// capacity, pay out, then flip the loan to active. Each step that fails
// after an earlier external mutation triggers the compensating action; a
// failed compensation is surfaced as a reconciliation-required condition,
// never swallowed.
func (u *Usecase) AcceptOffer(ctx context.Context, loanID, caller string) (*LoanDTO, error) {
	l, err := u.getLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if l.BorrowerID != caller {
		return nil, fmt.Errorf("%w: only the borrower may accept the offer", domain.ErrUnauthorized)
	}
	if l.State != domain.StateOffered {
		return nil, fmt.Errorf("%w: loan is %s", domain.ErrInvalidTransition, l.State)
	}

	p, err := u.params.Get(ctx)
	if err != nil {
		return nil, err
	}

	// The acceptance op doubles as the cross-step concurrency guard: a
	// second acceptance of the same loan, or a retry over an unresolved
	// one, is rejected before any custody changes.
	opKey := "accept:" + l.LoanID
	if err := u.ops.Begin(ctx, &domainPool.ProcessedOperation{
		OpID: opKey, Kind: "accept", Status: domainPool.OpInFlight, Amount: l.ApprovedAmount,
	}); err != nil {
		return nil, err
	}

	// Step 1: collateral custody moves to the protocol escrow.
	if err := u.registry.Lock(ctx, l.CollateralRef, l.BorrowerID, u.escrowID); err != nil {
		_ = u.ops.Abandon(ctx, opKey)
		return nil, fmt.Errorf("collateral lock: %w", err)
	}

	// Step 2a: reserve pool capacity before the payout suspension so a
	// concurrent disbursement already sees the reduced availability.
	reserveErr := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		pl, err := r.Pool.GetForUpdate(ctx)
		if err != nil {
			return err
		}
		if err := pl.Disburse(l.ApprovedAmount, p.MaxLoanFractionBps); err != nil {
			return err
		}
		return r.Pool.Save(ctx, pl)
	})
	if reserveErr != nil {
		if err := u.registry.Unlock(ctx, l.CollateralRef); err != nil {
			return nil, u.reconcile("accept.unlock_failed", l, map[string]any{
				"stage": "reserve", "cause": reserveErr.Error(), "unlock_error": err.Error(),
			})
		}
		_ = u.ops.Abandon(ctx, opKey)
		return nil, reserveErr
	}

	// Step 2b: external payout. The reservation is already committed.
	if _, err := u.rail.Push(ctx, l.BorrowerID, l.ApprovedAmount); err != nil {
		undoErr := u.uow.WithinTx(ctx, func(r uow.Repos) error {
			pl, perr := r.Pool.GetForUpdate(ctx)
			if perr != nil {
				return perr
			}
			if perr := pl.UndoDisburse(l.ApprovedAmount); perr != nil {
				return perr
			}
			return r.Pool.Save(ctx, pl)
		})
		unlockErr := u.registry.Unlock(ctx, l.CollateralRef)
		if undoErr != nil || unlockErr != nil {
			return nil, u.reconcile("accept.compensation_failed", l, map[string]any{
				"stage": "payout", "cause": err.Error(),
				"undo_error":   errString(undoErr),
				"unlock_error": errString(unlockErr),
			})
		}
		_ = u.ops.Abandon(ctx, opKey)
		return nil, fmt.Errorf("disbursement payout: %w", err)
	}

	// Step 3: both external calls succeeded; activate.
	var out *domain.Loan
	actErr := u.uow.WithinLoanTx(ctx, l.LoanID, func(r uow.Repos, locked *domain.Loan) error {
		if locked.State != domain.StateOffered {
			return fmt.Errorf("%w: loan is %s", domain.ErrInvalidTransition, locked.State)
		}
		now := u.now()
		due := now.Add(p.MaxLoanDuration())
		locked.State = domain.StateActive
		locked.ActivatedAt = &now
		locked.DueDate = &due
		locked.StateUpdatedAt = now
		if err := r.Loans.Save(ctx, locked); err != nil {
			return err
		}
		if err := r.Operations.Finish(ctx, opKey); err != nil {
			return err
		}
		out = locked
		return nil
	})
	if actErr != nil {
		// Funds are out and collateral is held, but the activation did
		// not commit. Only an operator can replay this safely.
		return nil, u.reconcile("accept.activation_failed", l, map[string]any{
			"stage": "activate", "cause": actErr.Error(),
		})
	}

	u.audit.Record("loan.activated", map[string]any{
		"loan_id": out.LoanID, "amount": out.ApprovedAmount, "due_date": out.DueDate,
	})
	return u.toDTO(out), nil
}

// ReleaseCollateral retries the collateral unlock for a loan that settled
// while the registry was unavailable.
func (u *Usecase) ReleaseCollateral(ctx context.Context, loanID, caller string) (*LoanDTO, error) {
	l, err := u.getLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if caller != l.BorrowerID {
		role, rerr := u.identity.VerifyRegistered(ctx, caller)
		if rerr != nil || role != gateway.RoleAdmin {
			return nil, domain.ErrUnauthorized
		}
	}
	if l.State != domain.StateRepaid || l.CollateralReleased {
		return nil, fmt.Errorf("%w: no pending release", domain.ErrInvalidTransition)
	}
	if err := u.registry.Unlock(ctx, l.CollateralRef); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCollateralReleasePending, err)
	}
	var out *domain.Loan
	err = u.uow.WithinLoanTx(ctx, l.LoanID, func(r uow.Repos, locked *domain.Loan) error {
		locked.CollateralReleased = true
		out = locked
		return r.Loans.Save(ctx, locked)
	})
	if err != nil {
		return nil, err
	}
	u.audit.Record("loan.collateral_released", map[string]any{"loan_id": l.LoanID})
	return u.toDTO(out), nil
}

// GetStatus is a pure read.
func (u *Usecase) GetStatus(ctx context.Context, loanID string) (*LoanDTO, error) {
	l, err := u.getLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	return u.toDTO(l), nil
}

type PaymentDTO struct {
	PaymentID        string    `json:"payment_id"`
	Amount           int64     `json:"amount"`
	InterestPortion  int64     `json:"interest_portion"`
	PrincipalPortion int64     `json:"principal_portion"`
	FeePortion       int64     `json:"fee_portion"`
	RailTxRef        string    `json:"rail_tx_ref"`
	CreatedAt        time.Time `json:"created_at"`
}

// History lists the loan's immutable payment records.
func (u *Usecase) History(ctx context.Context, loanID string) ([]*PaymentDTO, error) {
	if _, err := u.getLoan(ctx, loanID); err != nil {
		return nil, err
	}
	rows, err := u.payments.ListByLoanID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	out := make([]*PaymentDTO, 0, len(rows))
	for _, r := range rows {
		out = append(out, &PaymentDTO{
			PaymentID:        r.PaymentID,
			Amount:           r.Amount,
			InterestPortion:  r.InterestPortion,
			PrincipalPortion: r.PrincipalPortion,
			FeePortion:       r.FeePortion,
			RailTxRef:        r.RailTxRef,
			CreatedAt:        r.CreatedAt,
		})
	}
	return out, nil
}

func (u *Usecase) getLoan(ctx context.Context, loanID string) (*domain.Loan, error) {
	l, err := u.loans.GetByLoanID(ctx, loanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return l, nil
}

// reconcile logs and audits a partial-failure state and returns the
// reconciliation-required error with enough context to replay or
// compensate manually.
func (u *Usecase) reconcile(event string, l *domain.Loan, fields map[string]any) error {
	fields["loan_id"] = l.LoanID
	fields["collateral"] = l.CollateralRef
	fields["amount"] = l.ApprovedAmount
	log.Printf("reconciliation required: %s loan=%s fields=%v", event, l.LoanID, fields)
	u.audit.Record(event, fields)
	return fmt.Errorf("%w: %s (loan %s)", domain.ErrReconciliationRequired, event, l.LoanID)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
