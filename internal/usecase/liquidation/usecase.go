package liquidation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/nurcahyapriantoro/agrilends/internal/domain/gateway"
	domain "github.com/nurcahyapriantoro/agrilends/internal/domain/loan"
	"github.com/nurcahyapriantoro/agrilends/internal/domain/params"
	"github.com/nurcahyapriantoro/agrilends/internal/domain/uow"
)

// Usecase evaluates default eligibility and drives the seizure/write-off
// sequence. Only the configured scheduler identity or a registered admin
// may trigger it.
type Usecase struct {
	loans    domain.Repository
	uow      uow.UnitOfWork
	params   params.Store
	registry gateway.CollateralRegistry
	signer   gateway.Signer
	identity gateway.Identity
	audit    gateway.AuditSink

	// custodyID receives seized collateral tokens.
	custodyID string
	// schedulerID is the identity the external scheduler calls with.
	schedulerID string

	now func() time.Time
}

type Deps struct {
	Loans       domain.Repository
	UoW         uow.UnitOfWork
	Params      params.Store
	Registry    gateway.CollateralRegistry
	Signer      gateway.Signer
	Identity    gateway.Identity
	Audit       gateway.AuditSink
	CustodyID   string
	SchedulerID string
}

func NewUsecase(d Deps) *Usecase {
	return &Usecase{
		loans:       d.Loans,
		uow:         d.UoW,
		params:      d.Params,
		registry:    d.Registry,
		signer:      d.Signer,
		identity:    d.Identity,
		audit:       d.Audit,
		custodyID:   d.CustodyID,
		schedulerID: d.SchedulerID,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (u *Usecase) SetClock(now func() time.Time) { u.now = now }

// Eligible reports whether a loan can be liquidated for being overdue:
// status Active and now past due date plus the grace period.
func Eligible(l *domain.Loan, now time.Time, grace time.Duration) bool {
	return l.State == domain.StateActive && l.DueDate != nil && now.After(l.DueDate.Add(grace))
}

func (u *Usecase) authorize(ctx context.Context, caller string) error {
	if caller == u.schedulerID && caller != "" {
		return nil
	}
	role, err := u.identity.VerifyRegistered(ctx, caller)
	if err != nil {
		return fmt.Errorf("identity lookup: %w", err)
	}
	if role != gateway.RoleAdmin {
		return fmt.Errorf("%w: liquidation authority required", domain.ErrUnauthorized)
	}
	return nil
}

type ResultDTO struct {
	LoanID          string    `json:"loan_id"`
	Reason          string    `json:"reason"`
	TriggeredAt     time.Time `json:"triggered_at"`
	OutstandingDebt int64     `json:"outstanding_debt"`
	CollateralValue int64     `json:"collateral_value"`
	CustodyIdentity string    `json:"custody_identity"`
	Signed          bool      `json:"signed"`
}

// Trigger re-checks eligibility at execution time (a repayment may have
// raced in since the eligibility snapshot), flips the loan to Defaulted,
// recognizes the pool loss, seizes the collateral, obtains the signed
// attestation and writes the immutable liquidation record.
func (u *Usecase) Trigger(ctx context.Context, loanID, caller string, reason domain.LiquidationReason) (*ResultDTO, error) {
	if err := u.authorize(ctx, caller); err != nil {
		return nil, err
	}

	p, err := u.params.Get(ctx)
	if err != nil {
		return nil, err
	}

	var (
		outstandingDebt      int64
		outstandingPrincipal int64
		collateralRef        string
		triggeredAt          time.Time
		numericID            uint64
	)
	err = u.uow.WithinLoanTx(ctx, loanID, func(r uow.Repos, l *domain.Loan) error {
		now := u.now()
		if err := u.checkEligibility(ctx, l, now, p, reason); err != nil {
			return err
		}

		outstandingPrincipal = l.OutstandingPrincipal()
		outstandingDebt = outstandingPrincipal
		if l.ActivatedAt != nil {
			if unpaid := domain.AccruedInterest(l.ApprovedAmount, l.AprBps, *l.ActivatedAt, now) - l.InterestRepaid; unpaid > 0 {
				outstandingDebt += unpaid
			}
		}
		collateralRef = l.CollateralRef
		triggeredAt = now
		numericID = l.ID

		l.State = domain.StateDefaulted
		l.StateUpdatedAt = now
		if err := r.Loans.Save(ctx, l); err != nil {
			return err
		}

		pl, err := r.Pool.GetForUpdate(ctx)
		if err != nil {
			return err
		}
		if err := pl.RecognizeLoss(outstandingPrincipal); err != nil {
			return err
		}
		return r.Pool.Save(ctx, pl)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	// The default and the loss are durable from here on; failures below
	// must not unwind them, only surface for reconciliation.
	if err := u.registry.Transfer(ctx, collateralRef, u.custodyID); err != nil {
		return nil, u.reconcile("liquidation.seizure_failed", loanID, map[string]any{
			"collateral": collateralRef, "custody": u.custodyID, "cause": err.Error(),
		})
	}

	collateralValue, err := u.registry.Valuation(ctx, collateralRef)
	if err != nil {
		// Valuation is informational on the record; the seizure already
		// happened.
		collateralValue = 0
	}

	claim := fmt.Sprintf("liquidation:%s:%d:%d:%s", loanID, outstandingDebt, triggeredAt.Unix(), u.custodyID)
	signature, err := u.signer.Sign(ctx, []byte(claim))
	if err != nil {
		return nil, u.reconcile("liquidation.attestation_failed", loanID, map[string]any{
			"claim": claim, "cause": err.Error(),
		})
	}

	rec := &domain.LiquidationRecord{
		LoanNumericID:   numericID,
		LoanID:          loanID,
		Reason:          reason,
		TriggeredAt:     triggeredAt,
		OutstandingDebt: outstandingDebt,
		CollateralValue: collateralValue,
		CustodyIdentity: u.custodyID,
		Signature:       signature,
	}
	recErr := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		return r.Liquidations.Create(ctx, rec)
	})
	if recErr != nil {
		return nil, u.reconcile("liquidation.record_failed", loanID, map[string]any{"cause": recErr.Error()})
	}

	u.audit.Record("loan.liquidated", map[string]any{
		"loan_id": loanID, "reason": string(reason),
		"outstanding_debt": outstandingDebt, "loss": outstandingPrincipal,
	})
	return &ResultDTO{
		LoanID:          loanID,
		Reason:          string(reason),
		TriggeredAt:     triggeredAt,
		OutstandingDebt: outstandingDebt,
		CollateralValue: collateralValue,
		CustodyIdentity: u.custodyID,
		Signed:          len(signature) > 0,
	}, nil
}

// checkEligibility enforces the per-reason predicate. All reasons require
// an active loan; the overdue reason additionally requires the grace period
// to have elapsed, and the health-ratio reason requires debt to exceed the
// current collateral valuation.
func (u *Usecase) checkEligibility(ctx context.Context, l *domain.Loan, now time.Time, p *params.Params, reason domain.LiquidationReason) error {
	if l.State != domain.StateActive {
		return fmt.Errorf("%w: loan is %s", domain.ErrInvalidTransition, l.State)
	}
	switch reason {
	case domain.ReasonOverdue:
		if !Eligible(l, now, p.GracePeriod()) {
			return fmt.Errorf("%w: grace period has not elapsed", domain.ErrLiquidationNotEligible)
		}
	case domain.ReasonHealthRatio:
		value, err := u.registry.Valuation(ctx, l.CollateralRef)
		if err != nil {
			return fmt.Errorf("collateral valuation: %w", err)
		}
		debt := l.OutstandingPrincipal()
		if l.ActivatedAt != nil {
			if unpaid := domain.AccruedInterest(l.ApprovedAmount, l.AprBps, *l.ActivatedAt, now) - l.InterestRepaid; unpaid > 0 {
				debt += unpaid
			}
		}
		if debt <= value {
			return fmt.Errorf("%w: position is healthy (debt %d, collateral %d)", domain.ErrLiquidationNotEligible, debt, value)
		}
	case domain.ReasonAdminForced:
		// Active is enough; the admin takes responsibility.
	default:
		return fmt.Errorf("%w: unknown liquidation reason %q", domain.ErrLiquidationNotEligible, reason)
	}
	return nil
}

type BulkItem struct {
	Result *ResultDTO `json:"result,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// TriggerBulk liquidates each loan with per-item isolation: one failure
// never aborts or corrupts another item's outcome.
func (u *Usecase) TriggerBulk(ctx context.Context, loanIDs []string, caller string, reason domain.LiquidationReason) (map[string]BulkItem, error) {
	if err := u.authorize(ctx, caller); err != nil {
		return nil, err
	}
	out := make(map[string]BulkItem, len(loanIDs))
	for _, loanID := range loanIDs {
		res, err := u.Trigger(ctx, loanID, caller, reason)
		if err != nil {
			out[loanID] = BulkItem{Error: err.Error()}
			continue
		}
		out[loanID] = BulkItem{Result: res}
	}
	return out, nil
}

// ScanOverdue surfaces the loans currently eligible for liquidation. The
// external scheduler invokes it periodically; triggering remains a separate,
// authorized action.
func (u *Usecase) ScanOverdue(ctx context.Context) ([]string, error) {
	p, err := u.params.Get(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := u.now().Add(-p.GracePeriod())
	loans, err := u.loans.ListActiveDueBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(loans))
	for _, l := range loans {
		ids = append(ids, l.LoanID)
	}
	if len(ids) > 0 {
		u.audit.Record("scanner.overdue", map[string]any{"count": len(ids), "loan_ids": ids})
	}
	return ids, nil
}

func (u *Usecase) reconcile(event, loanID string, fields map[string]any) error {
	fields["loan_id"] = loanID
	log.Printf("reconciliation required: %s loan=%s fields=%v", event, loanID, fields)
	u.audit.Record(event, fields)
	return fmt.Errorf("%w: %s (loan %s)", domain.ErrReconciliationRequired, event, loanID)
}
