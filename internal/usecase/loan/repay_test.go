package loan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nurcahyapriantoro/agrilends/internal/domain/gateway"
	domain "github.com/nurcahyapriantoro/agrilends/internal/domain/loan"
	domainPool "github.com/nurcahyapriantoro/agrilends/internal/domain/pool"
)

const repayOpID = "11111111111111111111111111111111"

// activeLoan is one 365-day year into a 600_000 loan at 10% APR, so the
// outstanding debt at the fixture clock is exactly 660_000.
func activeLoan(f *fixture) *domain.Loan {
	l := offeredLoan()
	l.State = domain.StateActive
	activated := f.now.Add(-365 * 24 * time.Hour)
	due := f.now.Add(24 * time.Hour)
	l.ActivatedAt = &activated
	l.DueDate = &due
	return l
}

func newRepayFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t, nil)
	f.loan = activeLoan(f)
	// the payout already happened at activation
	f.pool.TotalBorrowed = 600_000
	return f
}

func TestRepay_FullSettlement(t *testing.T) {
	f := newRepayFixture(t)

	var pulled int64
	f.rail.PullFn = func(ctx context.Context, from string, amount int64, opID string) (string, error) {
		pulled = amount
		return "tx-77", nil
	}
	var feeCollected int64
	f.treasury.CollectFeeFn = func(ctx context.Context, sourceLoanID string, amount int64, kind gateway.FeeKind) error {
		feeCollected = amount
		return nil
	}
	unlocked := false
	f.registry.UnlockFn = func(ctx context.Context, tokenID string) error {
		unlocked = true
		return nil
	}

	res, err := f.uc.Repay(context.Background(), RepayInput{
		LoanID: f.loan.LoanID, Caller: borrowerID, Amount: 660_000, OpID: repayOpID,
	})
	if err != nil {
		t.Fatalf("Repay: %v", err)
	}
	if !res.Settled {
		t.Fatalf("full payment must settle")
	}
	if pulled != 660_000 {
		t.Fatalf("pulled: want 660000, got %d", pulled)
	}
	if res.Payment.InterestPortion != 60_000 || res.Payment.PrincipalPortion != 600_000 {
		t.Fatalf("allocation: %d/%d", res.Payment.InterestPortion, res.Payment.PrincipalPortion)
	}
	if res.Payment.FeePortion != 6_000 || feeCollected != 6_000 {
		t.Fatalf("fee: portion=%d collected=%d", res.Payment.FeePortion, feeCollected)
	}
	if res.Payment.RailTxRef != "tx-77" {
		t.Fatalf("rail ref not recorded: %q", res.Payment.RailTxRef)
	}
	if f.loan.State != domain.StateRepaid {
		t.Fatalf("state: want repaid, got %s", f.loan.State)
	}
	if !unlocked || !f.loan.CollateralReleased {
		t.Fatalf("collateral not released: unlocked=%v flag=%v", unlocked, f.loan.CollateralReleased)
	}
	// principal restored and 54_000 net interest capitalized
	if f.pool.TotalRepaid != 600_000 || f.pool.TotalLiquidity != 1_054_000 {
		t.Fatalf("pool credit: repaid=%d liquidity=%d", f.pool.TotalRepaid, f.pool.TotalLiquidity)
	}
	if f.pool.Available() != 1_054_000 {
		t.Fatalf("pool availability: want 1054000, got %d", f.pool.Available())
	}
	if !f.audit.Has("loan.settled") {
		t.Fatalf("settlement not audited")
	}
}

func TestRepay_PartialPaymentInterestFirst(t *testing.T) {
	f := newRepayFixture(t)

	res, err := f.uc.Repay(context.Background(), RepayInput{
		LoanID: f.loan.LoanID, Caller: borrowerID, Amount: 100_000, OpID: repayOpID,
	})
	if err != nil {
		t.Fatalf("Repay: %v", err)
	}
	if res.Settled {
		t.Fatalf("partial payment must not settle")
	}
	if res.Payment.InterestPortion != 60_000 || res.Payment.PrincipalPortion != 40_000 {
		t.Fatalf("allocation: %d/%d", res.Payment.InterestPortion, res.Payment.PrincipalPortion)
	}
	if f.loan.State != domain.StateActive {
		t.Fatalf("state: want active, got %s", f.loan.State)
	}
	if f.loan.PrincipalRepaid != 40_000 || f.loan.InterestRepaid != 60_000 {
		t.Fatalf("loan totals: principal=%d interest=%d", f.loan.PrincipalRepaid, f.loan.InterestRepaid)
	}
	if res.Loan.OutstandingPrincipal != 560_000 {
		t.Fatalf("outstanding: want 560000, got %d", res.Loan.OutstandingPrincipal)
	}
}

func TestRepay_RejectsOverpaymentBeforeTransfer(t *testing.T) {
	f := newRepayFixture(t)

	pullCalled := false
	f.rail.PullFn = func(ctx context.Context, from string, amount int64, opID string) (string, error) {
		pullCalled = true
		return "tx", nil
	}

	_, err := f.uc.Repay(context.Background(), RepayInput{
		LoanID: f.loan.LoanID, Caller: borrowerID, Amount: 660_001, OpID: repayOpID,
	})
	if !errors.Is(err, domain.ErrOverpayment) {
		t.Fatalf("overpayment: want ErrOverpayment, got %v", err)
	}
	if pullCalled {
		t.Fatalf("no asset may move on a rejected overpayment")
	}
}

func TestRepay_RejectsForeignCaller(t *testing.T) {
	f := newRepayFixture(t)

	_, err := f.uc.Repay(context.Background(), RepayInput{
		LoanID: f.loan.LoanID, Caller: investorID, Amount: 1_000, OpID: repayOpID,
	})
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("foreign caller: want ErrUnauthorized, got %v", err)
	}
}

func TestRepay_RejectsInactiveLoan(t *testing.T) {
	f := newRepayFixture(t)
	f.loan.State = domain.StateRepaid

	_, err := f.uc.Repay(context.Background(), RepayInput{
		LoanID: f.loan.LoanID, Caller: borrowerID, Amount: 1_000, OpID: repayOpID,
	})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("repaid loan: want ErrInvalidTransition, got %v", err)
	}
}

func TestRepay_FinalizedDuplicateIsNoOp(t *testing.T) {
	f := newRepayFixture(t)

	f.ops.BeginFn = func(ctx context.Context, op *domainPool.ProcessedOperation) error {
		return domainPool.ErrDuplicateOperation
	}
	f.ops.GetFn = func(ctx context.Context, opID string) (*domainPool.ProcessedOperation, error) {
		return &domainPool.ProcessedOperation{OpID: opID, Status: domainPool.OpDone}, nil
	}
	pullCalled := false
	f.rail.PullFn = func(ctx context.Context, from string, amount int64, opID string) (string, error) {
		pullCalled = true
		return "tx", nil
	}

	res, err := f.uc.Repay(context.Background(), RepayInput{
		LoanID: f.loan.LoanID, Caller: borrowerID, Amount: 100_000, OpID: repayOpID,
	})
	if err != nil {
		t.Fatalf("Repay replay: %v", err)
	}
	if !res.Replayed {
		t.Fatalf("finalized duplicate must be flagged as replayed")
	}
	if pullCalled {
		t.Fatalf("a replayed op must not pull funds again")
	}
}

func TestRepay_InFlightDuplicateRejected(t *testing.T) {
	f := newRepayFixture(t)

	f.ops.BeginFn = func(ctx context.Context, op *domainPool.ProcessedOperation) error {
		return domainPool.ErrDuplicateOperation
	}
	f.ops.GetFn = func(ctx context.Context, opID string) (*domainPool.ProcessedOperation, error) {
		return &domainPool.ProcessedOperation{OpID: opID, Status: domainPool.OpInFlight}, nil
	}

	_, err := f.uc.Repay(context.Background(), RepayInput{
		LoanID: f.loan.LoanID, Caller: borrowerID, Amount: 100_000, OpID: repayOpID,
	})
	if !errors.Is(err, domainPool.ErrDuplicateOperation) {
		t.Fatalf("in-flight duplicate: want ErrDuplicateOperation, got %v", err)
	}
}

func TestRepay_PullFailureAbandonsOp(t *testing.T) {
	f := newRepayFixture(t)

	railDown := errors.New("rail down")
	f.rail.PullFn = func(ctx context.Context, from string, amount int64, opID string) (string, error) {
		return "", railDown
	}
	abandoned := ""
	f.ops.AbandonFn = func(ctx context.Context, opID string) error {
		abandoned = opID
		return nil
	}

	_, err := f.uc.Repay(context.Background(), RepayInput{
		LoanID: f.loan.LoanID, Caller: borrowerID, Amount: 100_000, OpID: repayOpID,
	})
	if !errors.Is(err, railDown) {
		t.Fatalf("pull failure: want wrapped rail error, got %v", err)
	}
	if abandoned != repayOpID {
		t.Fatalf("op record must be abandoned for a safe retry, got %q", abandoned)
	}
	if f.loan.TotalRepaid != 0 {
		t.Fatalf("loan must be untouched after a failed pull")
	}
}

func TestRepay_UnlockFailureLeavesLoanSettled(t *testing.T) {
	f := newRepayFixture(t)

	f.registry.UnlockFn = func(ctx context.Context, tokenID string) error {
		return errors.New("registry down")
	}

	res, err := f.uc.Repay(context.Background(), RepayInput{
		LoanID: f.loan.LoanID, Caller: borrowerID, Amount: 660_000, OpID: repayOpID,
	})
	if !errors.Is(err, domain.ErrCollateralReleasePending) {
		t.Fatalf("unlock failure: want ErrCollateralReleasePending, got %v", err)
	}
	// the repayment is durable: the result is returned alongside the error
	if res == nil || !res.Settled {
		t.Fatalf("settled result must accompany the pending-release error, got %+v", res)
	}
	if f.loan.State != domain.StateRepaid {
		t.Fatalf("repaid state must never roll back, got %s", f.loan.State)
	}
	if f.loan.CollateralReleased {
		t.Fatalf("release flag must stay pending")
	}
	if !f.audit.Has("repay.release_pending") {
		t.Fatalf("pending release not audited")
	}
}

func TestRepay_FeeForwardFailureDoesNotFail(t *testing.T) {
	f := newRepayFixture(t)

	f.treasury.CollectFeeFn = func(ctx context.Context, sourceLoanID string, amount int64, kind gateway.FeeKind) error {
		return errors.New("treasury down")
	}

	res, err := f.uc.Repay(context.Background(), RepayInput{
		LoanID: f.loan.LoanID, Caller: borrowerID, Amount: 660_000, OpID: repayOpID,
	})
	if err != nil {
		t.Fatalf("fee forwarding is retryable, repay must succeed: %v", err)
	}
	if !res.Settled {
		t.Fatalf("repay must settle despite the fee failure")
	}
	if !f.audit.Has("repay.fee_forward_failed") {
		t.Fatalf("fee failure not audited")
	}
}

func TestRepay_RequiresOpID(t *testing.T) {
	f := newRepayFixture(t)

	_, err := f.uc.Repay(context.Background(), RepayInput{
		LoanID: f.loan.LoanID, Caller: borrowerID, Amount: 100_000,
	})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("missing op id: want ErrInvalidTransition, got %v", err)
	}
}
