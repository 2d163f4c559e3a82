package loan

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nurcahyapriantoro/agrilends/internal/domain/gateway"
	domain "github.com/nurcahyapriantoro/agrilends/internal/domain/loan"
	domainPool "github.com/nurcahyapriantoro/agrilends/internal/domain/pool"
	"github.com/nurcahyapriantoro/agrilends/internal/domain/uow"
	"github.com/nurcahyapriantoro/agrilends/pkg/id"
)

type RepayInput struct {
	LoanID string
	Caller string
	Amount int64
	// OpID is the client-supplied idempotency key for the asset pull.
	OpID string
}

type RepayResult struct {
	Payment  *PaymentDTO `json:"payment,omitempty"`
	Loan     *LoanDTO    `json:"loan"`
	Settled  bool        `json:"settled"`
	Replayed bool        `json:"replayed,omitempty"`
}

// outstanding is the debt snapshot used both for the pre-transfer check and
// for the post-suspension re-validation.
type outstanding struct {
	principal int64
	interest  int64
}

func (o outstanding) total() int64 { return o.principal + o.interest }

func (u *Usecase) outstandingAt(l *domain.Loan, at time.Time) outstanding {
	o := outstanding{principal: l.OutstandingPrincipal()}
	if l.ActivatedAt != nil {
		accrued := domain.AccruedInterest(l.ApprovedAmount, l.AprBps, *l.ActivatedAt, at)
		if unpaid := accrued - l.InterestRepaid; unpaid > 0 {
			o.interest = unpaid
		}
	}
	return o
}

// Repay pulls the payment through the asset rail, allocates it interest
// first, credits the pool and settles the loan when the debt is cleared.
// The debt snapshot taken before the rail suspension is re-validated after
// it returns; the allocation is always computed against the re-validated
// figures. A repeated call with a finalized op id is a no-op success; a
// concurrent duplicate is rejected.
func (u *Usecase) Repay(ctx context.Context, in RepayInput) (*RepayResult, error) {
	if in.Amount <= 0 || in.OpID == "" {
		return nil, fmt.Errorf("%w: positive amount and op id required", domain.ErrInvalidTransition)
	}

	l, err := u.getLoan(ctx, in.LoanID)
	if err != nil {
		return nil, err
	}
	if l.BorrowerID != in.Caller {
		return nil, fmt.Errorf("%w: only the borrower may repay", domain.ErrUnauthorized)
	}
	if l.State != domain.StateActive {
		return nil, fmt.Errorf("%w: loan is %s", domain.ErrInvalidTransition, l.State)
	}

	// Pre-transfer snapshot: an overpayment is rejected before any asset
	// moves, forcing explicit client intent instead of silent capping.
	snap := u.outstandingAt(l, u.now())
	if in.Amount > snap.total() {
		return nil, fmt.Errorf("%w: outstanding debt is %d", domain.ErrOverpayment, snap.total())
	}

	if err := u.ops.Begin(ctx, &domainPool.ProcessedOperation{
		OpID: in.OpID, Kind: "repay", Status: domainPool.OpInFlight, Amount: in.Amount,
	}); err != nil {
		if errors.Is(err, domainPool.ErrDuplicateOperation) {
			if prior, perr := u.ops.Get(ctx, in.OpID); perr == nil && prior.Status == domainPool.OpDone {
				dto := u.toDTO(l)
				return &RepayResult{Loan: dto, Settled: l.State == domain.StateRepaid, Replayed: true}, nil
			}
		}
		return nil, err
	}

	// Suspension point: the pull runs to completion or failure, no
	// mid-flight abort.
	txRef, err := u.rail.Pull(ctx, l.BorrowerID, in.Amount, in.OpID)
	if err != nil {
		// No state changed; leaving the op unrecorded keeps the retry
		// safe.
		_ = u.ops.Abandon(ctx, in.OpID)
		return nil, fmt.Errorf("asset pull: %w", err)
	}

	var (
		payment *domain.Payment
		settled bool
		fee     int64
		out     *domain.Loan
	)
	commitErr := u.uow.WithinLoanTx(ctx, in.LoanID, func(r uow.Repos, locked *domain.Loan) error {
		// Re-validate after the suspension: status and debt may have
		// changed while the pull was in flight.
		if locked.State != domain.StateActive {
			return fmt.Errorf("%w: loan is %s", domain.ErrInvalidTransition, locked.State)
		}
		p, err := u.params.Get(ctx)
		if err != nil {
			return err
		}
		now := u.now()
		cur := u.outstandingAt(locked, now)
		breakdown, err := domain.Allocate(cur.principal, cur.interest, in.Amount, p.ProtocolFeeBps)
		if err != nil {
			return err
		}

		locked.TotalRepaid += in.Amount
		locked.PrincipalRepaid += breakdown.PrincipalPortion
		locked.InterestRepaid += breakdown.InterestPortion
		if breakdown.SettlesDebt {
			locked.State = domain.StateRepaid
			locked.StateUpdatedAt = now
		}
		if err := r.Loans.Save(ctx, locked); err != nil {
			return err
		}

		payment = &domain.Payment{
			PaymentID:        id.NewID32(),
			LoanNumericID:    locked.ID,
			LoanID:           locked.LoanID,
			Amount:           in.Amount,
			InterestPortion:  breakdown.InterestPortion,
			PrincipalPortion: breakdown.PrincipalPortion,
			FeePortion:       breakdown.Fee,
			RailTxRef:        txRef,
		}
		if err := r.Payments.Create(ctx, payment); err != nil {
			return err
		}

		pl, err := r.Pool.GetForUpdate(ctx)
		if err != nil {
			return err
		}
		netInterest := breakdown.InterestPortion - breakdown.Fee
		if err := pl.CreditRepayment(breakdown.PrincipalPortion, netInterest); err != nil {
			return err
		}
		if err := r.Pool.Save(ctx, pl); err != nil {
			return err
		}

		if err := r.Operations.Finish(ctx, in.OpID); err != nil {
			return err
		}
		settled = breakdown.SettlesDebt
		fee = breakdown.Fee
		out = locked
		return nil
	})
	if commitErr != nil {
		// Funds were pulled but the ledger update did not commit. This
		// includes the race where a concurrent repayment shrank the debt
		// below the pulled amount.
		return nil, u.reconcile("repay.commit_failed", l, map[string]any{
			"op_id": in.OpID, "rail_tx": txRef, "pulled": in.Amount, "cause": commitErr.Error(),
		})
	}

	if fee > 0 {
		// The fee is owed to the treasury, not the pool; forwarding it is
		// retryable from the payment record, so a failure does not undo
		// the settled repayment.
		if err := u.treasury.CollectFee(ctx, out.LoanID, fee, gateway.FeeInterest); err != nil {
			log.Printf("treasury fee forward failed: loan=%s fee=%d err=%v", out.LoanID, fee, err)
			u.audit.Record("repay.fee_forward_failed", map[string]any{
				"loan_id": out.LoanID, "fee": fee, "payment_id": payment.PaymentID, "cause": err.Error(),
			})
		}
	}

	u.audit.Record("loan.repayment", map[string]any{
		"loan_id": out.LoanID, "amount": in.Amount,
		"interest": payment.InterestPortion, "principal": payment.PrincipalPortion, "settled": settled,
	})

	result := &RepayResult{
		Payment: &PaymentDTO{
			PaymentID:        payment.PaymentID,
			Amount:           payment.Amount,
			InterestPortion:  payment.InterestPortion,
			PrincipalPortion: payment.PrincipalPortion,
			FeePortion:       payment.FeePortion,
			RailTxRef:        payment.RailTxRef,
			CreatedAt:        payment.CreatedAt,
		},
		Settled: settled,
	}

	if settled {
		// The debt is genuinely cleared, so a failed unlock never rolls
		// back the Repaid transition; it trails as a retryable pending
		// release instead.
		if err := u.registry.Unlock(ctx, out.CollateralRef); err != nil {
			u.audit.Record("repay.release_pending", map[string]any{
				"loan_id": out.LoanID, "collateral": out.CollateralRef, "cause": err.Error(),
			})
			result.Loan = u.toDTO(out)
			return result, fmt.Errorf("%w: %v", domain.ErrCollateralReleasePending, err)
		}
		relErr := u.uow.WithinLoanTx(ctx, out.LoanID, func(r uow.Repos, locked *domain.Loan) error {
			locked.CollateralReleased = true
			out = locked
			return r.Loans.Save(ctx, locked)
		})
		if relErr != nil {
			return nil, u.reconcile("repay.release_flag_failed", out, map[string]any{"cause": relErr.Error()})
		}
		u.audit.Record("loan.settled", map[string]any{"loan_id": out.LoanID})
	}

	result.Loan = u.toDTO(out)
	return result, nil
}
