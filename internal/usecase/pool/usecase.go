package pool

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nurcahyapriantoro/agrilends/internal/domain/gateway"
	"github.com/nurcahyapriantoro/agrilends/internal/domain/params"
	domain "github.com/nurcahyapriantoro/agrilends/internal/domain/pool"
	"github.com/nurcahyapriantoro/agrilends/internal/domain/uow"
)

// Usecase owns the investor-facing liquidity flows. Disbursement to loans
// is not exposed here: the loan usecase performs it through the pool entity
// inside its own transaction, so end users have no path to it.
type Usecase struct {
	pool      domain.Repository
	investors domain.InvestorRepository
	ops       domain.OperationRepository
	uow       uow.UnitOfWork
	params    params.Store
	rail      gateway.AssetRail
	identity  gateway.Identity
	audit     gateway.AuditSink
}

type Deps struct {
	Pool      domain.Repository
	Investors domain.InvestorRepository
	Ops       domain.OperationRepository
	UoW       uow.UnitOfWork
	Params    params.Store
	Rail      gateway.AssetRail
	Identity  gateway.Identity
	Audit     gateway.AuditSink
}

func NewUsecase(d Deps) *Usecase {
	return &Usecase{
		pool:      d.Pool,
		investors: d.Investors,
		ops:       d.Ops,
		uow:       d.UoW,
		params:    d.Params,
		rail:      d.Rail,
		identity:  d.Identity,
		audit:     d.Audit,
	}
}

type PoolDTO struct {
	TotalLiquidity      int64 `json:"total_liquidity"`
	AvailableLiquidity  int64 `json:"available_liquidity"`
	TotalBorrowed       int64 `json:"total_borrowed"`
	TotalRepaid         int64 `json:"total_repaid"`
	TotalLiquidatedLoss int64 `json:"total_liquidated_loss"`
}

func toPoolDTO(p *domain.Pool) *PoolDTO {
	return &PoolDTO{
		TotalLiquidity:      p.TotalLiquidity,
		AvailableLiquidity:  p.Available(),
		TotalBorrowed:       p.TotalBorrowed,
		TotalRepaid:         p.TotalRepaid,
		TotalLiquidatedLoss: p.TotalLiquidatedLoss,
	}
}

type DepositResult struct {
	Pool     *PoolDTO     `json:"pool"`
	Investor *InvestorDTO `json:"investor"`
	Replayed bool         `json:"replayed,omitempty"`
}

type InvestorDTO struct {
	InvestorID           string      `json:"investor_id"`
	PrincipalContributed int64       `json:"principal_contributed"`
	Balance              int64       `json:"balance"`
	Entries              []*EntryDTO `json:"entries,omitempty"`
}

type EntryDTO struct {
	Type             string    `json:"type"`
	Amount           int64     `json:"amount"`
	ResultingBalance int64     `json:"resulting_balance"`
	CreatedAt        time.Time `json:"created_at"`
}

// Deposit pulls funds from the investor through the asset rail and credits
// the pool. Idempotent on opID: a finalized duplicate replays the success
// without moving funds again; an in-flight duplicate is rejected to avoid
// double settlement.
func (u *Usecase) Deposit(ctx context.Context, investorID string, amount int64, opID string) (*DepositResult, error) {
	if opID == "" {
		return nil, domain.ErrDuplicateOperation
	}
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	role, err := u.identity.VerifyRegistered(ctx, investorID)
	if err != nil {
		return nil, fmt.Errorf("identity lookup: %w", err)
	}
	if role != gateway.RoleInvestor {
		return nil, fmt.Errorf("%w: depositor must be a registered investor", domain.ErrUnauthorized)
	}

	p, err := u.params.Get(ctx)
	if err != nil {
		return nil, err
	}
	if amount < p.MinDeposit {
		return nil, fmt.Errorf("%w: minimum is %d", domain.ErrBelowMinimumDeposit, p.MinDeposit)
	}

	if err := u.ops.Begin(ctx, &domain.ProcessedOperation{
		OpID: opID, Kind: "deposit", Status: domain.OpInFlight, Amount: amount,
	}); err != nil {
		if errors.Is(err, domain.ErrDuplicateOperation) {
			if prior, perr := u.ops.Get(ctx, opID); perr == nil && prior.Status == domain.OpDone {
				return u.replaySnapshot(ctx, investorID)
			}
		}
		return nil, err
	}

	// Suspension point. On failure nothing has changed and the op record
	// is removed, so the same opID can be retried.
	if _, err := u.rail.Pull(ctx, investorID, amount, opID); err != nil {
		_ = u.ops.Abandon(ctx, opID)
		return nil, fmt.Errorf("asset pull: %w", err)
	}

	var (
		poolDTO     *PoolDTO
		investorDTO *InvestorDTO
	)
	commitErr := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		pl, err := r.Pool.GetForUpdate(ctx)
		if err != nil {
			return err
		}
		if err := pl.Deposit(amount); err != nil {
			return err
		}
		if err := r.Pool.Save(ctx, pl); err != nil {
			return err
		}

		inv, err := r.Investors.GetOrCreateForUpdate(ctx, investorID)
		if err != nil {
			return err
		}
		inv.Balance += amount
		inv.PrincipalContributed += amount
		if err := r.Investors.Save(ctx, inv); err != nil {
			return err
		}
		if err := r.Investors.AppendEntry(ctx, &domain.LedgerEntry{
			InvestorID: investorID, Type: domain.EntryDeposit,
			Amount: amount, ResultingBalance: inv.Balance,
		}); err != nil {
			return err
		}

		if err := r.Operations.Finish(ctx, opID); err != nil {
			return err
		}
		poolDTO = toPoolDTO(pl)
		investorDTO = &InvestorDTO{
			InvestorID:           inv.InvestorID,
			PrincipalContributed: inv.PrincipalContributed,
			Balance:              inv.Balance,
		}
		return nil
	})
	if commitErr != nil {
		// The pull settled but the credit did not commit: the funds sit in
		// the pool custody account with no ledger trace until an operator
		// replays the op.
		return nil, u.reconcile("deposit.commit_failed", investorID, map[string]any{
			"op_id": opID, "amount": amount, "cause": commitErr.Error(),
		})
	}

	u.audit.Record("pool.deposit", map[string]any{"investor": investorID, "amount": amount, "op_id": opID})
	return &DepositResult{Pool: poolDTO, Investor: investorDTO}, nil
}

func (u *Usecase) replaySnapshot(ctx context.Context, investorID string) (*DepositResult, error) {
	pl, err := u.pool.Get(ctx)
	if err != nil {
		return nil, err
	}
	inv, err := u.investors.Get(ctx, investorID)
	if err != nil {
		return nil, err
	}
	return &DepositResult{
		Pool: toPoolDTO(pl),
		Investor: &InvestorDTO{
			InvestorID:           inv.InvestorID,
			PrincipalContributed: inv.PrincipalContributed,
			Balance:              inv.Balance,
		},
		Replayed: true,
	}, nil
}

// Withdraw debits the investor and the pool before issuing the payout, so
// a concurrent withdrawal observes the reduced availability during the rail
// suspension. A failed payout is compensated by re-crediting; a failed
// compensation is surfaced for reconciliation, never dropped.
func (u *Usecase) Withdraw(ctx context.Context, investorID string, amount int64) (*DepositResult, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	var (
		poolDTO     *PoolDTO
		investorDTO *InvestorDTO
	)
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		inv, err := r.Investors.GetForUpdate(ctx, investorID)
		if err != nil {
			return err
		}
		if inv.Balance < amount {
			return fmt.Errorf("%w: balance is %d", domain.ErrInsufficientBalance, inv.Balance)
		}
		pl, err := r.Pool.GetForUpdate(ctx)
		if err != nil {
			return err
		}
		if err := pl.WithdrawLiquidity(amount); err != nil {
			return err
		}
		if err := r.Pool.Save(ctx, pl); err != nil {
			return err
		}
		inv.Balance -= amount
		if err := r.Investors.Save(ctx, inv); err != nil {
			return err
		}
		if err := r.Investors.AppendEntry(ctx, &domain.LedgerEntry{
			InvestorID: investorID, Type: domain.EntryWithdraw,
			Amount: amount, ResultingBalance: inv.Balance,
		}); err != nil {
			return err
		}
		poolDTO = toPoolDTO(pl)
		investorDTO = &InvestorDTO{
			InvestorID:           inv.InvestorID,
			PrincipalContributed: inv.PrincipalContributed,
			Balance:              inv.Balance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if _, err := u.rail.Push(ctx, investorID, amount); err != nil {
		compErr := u.uow.WithinTx(ctx, func(r uow.Repos) error {
			pl, perr := r.Pool.GetForUpdate(ctx)
			if perr != nil {
				return perr
			}
			if perr := pl.Deposit(amount); perr != nil {
				return perr
			}
			if perr := r.Pool.Save(ctx, pl); perr != nil {
				return perr
			}
			inv, perr := r.Investors.GetForUpdate(ctx, investorID)
			if perr != nil {
				return perr
			}
			inv.Balance += amount
			if perr := r.Investors.Save(ctx, inv); perr != nil {
				return perr
			}
			return r.Investors.AppendEntry(ctx, &domain.LedgerEntry{
				InvestorID: investorID, Type: domain.EntryDeposit,
				Amount: amount, ResultingBalance: inv.Balance,
			})
		})
		if compErr != nil {
			return nil, u.reconcile("withdraw.compensation_failed", investorID, map[string]any{
				"amount":       amount,
				"payout_error": err.Error(), "compensation_error": compErr.Error(),
			})
		}
		return nil, fmt.Errorf("withdraw payout: %w", err)
	}

	u.audit.Record("pool.withdraw", map[string]any{"investor": investorID, "amount": amount})
	return &DepositResult{Pool: poolDTO, Investor: investorDTO}, nil
}

// reconcile logs and audits a partial-failure state and returns the
// reconciliation-required error with enough context to replay or
// compensate manually.
func (u *Usecase) reconcile(event, investorID string, fields map[string]any) error {
	fields["investor"] = investorID
	log.Printf("reconciliation required: %s investor=%s fields=%v", event, investorID, fields)
	u.audit.Record(event, fields)
	return fmt.Errorf("%w: %s (investor %s)", domain.ErrReconciliationRequired, event, investorID)
}

// Snapshot is a pure read of the pool aggregates.
func (u *Usecase) Snapshot(ctx context.Context) (*PoolDTO, error) {
	pl, err := u.pool.Get(ctx)
	if err != nil {
		return nil, err
	}
	return toPoolDTO(pl), nil
}

// Investor returns the balance and full ledger for one investor.
func (u *Usecase) Investor(ctx context.Context, investorID string) (*InvestorDTO, error) {
	inv, err := u.investors.Get(ctx, investorID)
	if err != nil {
		return nil, err
	}
	entries, err := u.investors.ListEntries(ctx, investorID)
	if err != nil {
		return nil, err
	}
	dto := &InvestorDTO{
		InvestorID:           inv.InvestorID,
		PrincipalContributed: inv.PrincipalContributed,
		Balance:              inv.Balance,
	}
	for _, e := range entries {
		dto.Entries = append(dto.Entries, &EntryDTO{
			Type:             string(e.Type),
			Amount:           e.Amount,
			ResultingBalance: e.ResultingBalance,
			CreatedAt:        e.CreatedAt,
		})
	}
	return dto, nil
}
