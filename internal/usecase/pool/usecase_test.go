package pool

import (
	"context"
	"errors"
	"testing"

	"github.com/nurcahyapriantoro/agrilends/internal/domain/gateway"
	"github.com/nurcahyapriantoro/agrilends/internal/domain/params"
	domain "github.com/nurcahyapriantoro/agrilends/internal/domain/pool"
	"github.com/nurcahyapriantoro/agrilends/internal/domain/uow"
	"github.com/nurcahyapriantoro/agrilends/internal/testutil/gatewaymock"
	"github.com/nurcahyapriantoro/agrilends/internal/testutil/paramsmock"
	"github.com/nurcahyapriantoro/agrilends/internal/testutil/poolmock"
	"github.com/nurcahyapriantoro/agrilends/internal/testutil/uowmock"
)

const (
	testInvestorID = "aaaabbbbccccddddeeeeffff00001111"
	testFarmerID   = "aaaabbbbccccddddeeeeffff00002222"
	testOpID       = "22222222222222222222222222222222"
)

type fixture struct {
	uc        *Usecase
	pool      *domain.Pool
	investor  *domain.InvestorBalance
	entries   []*domain.LedgerEntry
	ops       *poolmock.Ops
	investors *poolmock.Investors
	rail      *gatewaymock.Rail
	audit     *gatewaymock.Audit
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		pool:     &domain.Pool{},
		investor: &domain.InvestorBalance{InvestorID: testInvestorID},
		ops:      &poolmock.Ops{},
		rail:     &gatewaymock.Rail{},
		audit:    &gatewaymock.Audit{},
	}
	poolRepo := &poolmock.Repo{
		GetFn:          func(ctx context.Context) (*domain.Pool, error) { return f.pool, nil },
		GetForUpdateFn: func(ctx context.Context) (*domain.Pool, error) { return f.pool, nil },
	}
	f.investors = &poolmock.Investors{
		GetFn: func(ctx context.Context, id string) (*domain.InvestorBalance, error) {
			if id != testInvestorID {
				return nil, domain.ErrNotFound
			}
			cp := *f.investor
			return &cp, nil
		},
		GetForUpdateFn: func(ctx context.Context, id string) (*domain.InvestorBalance, error) {
			if id != testInvestorID {
				return nil, domain.ErrNotFound
			}
			return f.investor, nil
		},
		GetOrCreateForUpdateFn: func(ctx context.Context, id string) (*domain.InvestorBalance, error) {
			return f.investor, nil
		},
		AppendEntryFn: func(ctx context.Context, e *domain.LedgerEntry) error {
			f.entries = append(f.entries, e)
			return nil
		},
		ListEntriesFn: func(ctx context.Context, id string) ([]*domain.LedgerEntry, error) {
			return f.entries, nil
		},
	}
	repos := uow.Repos{Pool: poolRepo, Investors: f.investors, Operations: f.ops}
	f.uc = NewUsecase(Deps{
		Pool:      poolRepo,
		Investors: f.investors,
		Ops:       f.ops,
		UoW:       uowmock.Passthrough(repos),
		Params:    paramsmock.New(params.Default()),
		Rail:      f.rail,
		Identity: &gatewaymock.Identity{Roles: map[string]gateway.Role{
			testInvestorID: gateway.RoleInvestor,
			testFarmerID:   gateway.RoleFarmer,
		}},
		Audit: f.audit,
	})
	return f
}

func TestDeposit_CreditsPoolAndLedger(t *testing.T) {
	f := newFixture(t)

	var pulledOpID string
	f.rail.PullFn = func(ctx context.Context, from string, amount int64, opID string) (string, error) {
		pulledOpID = opID
		return "tx-1", nil
	}
	finished := false
	f.ops.FinishFn = func(ctx context.Context, opID string) error {
		finished = true
		return nil
	}

	res, err := f.uc.Deposit(context.Background(), testInvestorID, 1_000_000, testOpID)
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if res.Pool.TotalLiquidity != 1_000_000 || res.Pool.AvailableLiquidity != 1_000_000 {
		t.Fatalf("pool: %+v", res.Pool)
	}
	if res.Investor.Balance != 1_000_000 || res.Investor.PrincipalContributed != 1_000_000 {
		t.Fatalf("investor: %+v", res.Investor)
	}
	if pulledOpID != testOpID {
		t.Fatalf("rail pull must carry the op id, got %q", pulledOpID)
	}
	if !finished {
		t.Fatalf("op record must be finalized")
	}
	if len(f.entries) != 1 || f.entries[0].Type != domain.EntryDeposit || f.entries[0].ResultingBalance != 1_000_000 {
		t.Fatalf("ledger: %+v", f.entries)
	}
	if !f.audit.Has("pool.deposit") {
		t.Fatalf("deposit not audited")
	}
}

func TestDeposit_BelowMinimumRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.uc.Deposit(context.Background(), testInvestorID, 9_999, testOpID)
	if !errors.Is(err, domain.ErrBelowMinimumDeposit) {
		t.Fatalf("want ErrBelowMinimumDeposit, got %v", err)
	}
}

func TestDeposit_NonInvestorRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.uc.Deposit(context.Background(), testFarmerID, 1_000_000, testOpID)
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
}

func TestDeposit_RequiresOpID(t *testing.T) {
	f := newFixture(t)

	_, err := f.uc.Deposit(context.Background(), testInvestorID, 1_000_000, "")
	if !errors.Is(err, domain.ErrDuplicateOperation) {
		t.Fatalf("want ErrDuplicateOperation, got %v", err)
	}
}

func TestDeposit_FinalizedDuplicateReplays(t *testing.T) {
	f := newFixture(t)
	f.pool.TotalLiquidity = 1_000_000
	f.investor.Balance = 1_000_000
	f.investor.PrincipalContributed = 1_000_000

	f.ops.BeginFn = func(ctx context.Context, op *domain.ProcessedOperation) error {
		return domain.ErrDuplicateOperation
	}
	f.ops.GetFn = func(ctx context.Context, opID string) (*domain.ProcessedOperation, error) {
		return &domain.ProcessedOperation{OpID: opID, Status: domain.OpDone}, nil
	}
	pullCalled := false
	f.rail.PullFn = func(ctx context.Context, from string, amount int64, opID string) (string, error) {
		pullCalled = true
		return "tx", nil
	}

	res, err := f.uc.Deposit(context.Background(), testInvestorID, 1_000_000, testOpID)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !res.Replayed {
		t.Fatalf("finalized duplicate must be flagged as replayed")
	}
	if pullCalled {
		t.Fatalf("a replay must not pull funds again")
	}
	if res.Pool.TotalLiquidity != 1_000_000 || res.Investor.Balance != 1_000_000 {
		t.Fatalf("replay must snapshot the committed state: %+v %+v", res.Pool, res.Investor)
	}
}

func TestDeposit_InFlightDuplicateRejected(t *testing.T) {
	f := newFixture(t)

	f.ops.BeginFn = func(ctx context.Context, op *domain.ProcessedOperation) error {
		return domain.ErrDuplicateOperation
	}
	f.ops.GetFn = func(ctx context.Context, opID string) (*domain.ProcessedOperation, error) {
		return &domain.ProcessedOperation{OpID: opID, Status: domain.OpInFlight}, nil
	}

	_, err := f.uc.Deposit(context.Background(), testInvestorID, 1_000_000, testOpID)
	if !errors.Is(err, domain.ErrDuplicateOperation) {
		t.Fatalf("want ErrDuplicateOperation, got %v", err)
	}
}

func TestDeposit_PullFailureAbandonsOp(t *testing.T) {
	f := newFixture(t)

	railDown := errors.New("rail down")
	f.rail.PullFn = func(ctx context.Context, from string, amount int64, opID string) (string, error) {
		return "", railDown
	}
	abandoned := ""
	f.ops.AbandonFn = func(ctx context.Context, opID string) error {
		abandoned = opID
		return nil
	}

	_, err := f.uc.Deposit(context.Background(), testInvestorID, 1_000_000, testOpID)
	if !errors.Is(err, railDown) {
		t.Fatalf("want wrapped rail error, got %v", err)
	}
	if abandoned != testOpID {
		t.Fatalf("op must be abandoned for a safe retry, got %q", abandoned)
	}
	if f.pool.TotalLiquidity != 0 || f.investor.Balance != 0 {
		t.Fatalf("nothing may change on a failed pull")
	}
}

func TestDeposit_CommitFailureRequiresReconciliation(t *testing.T) {
	f := newFixture(t)

	pulled := false
	f.rail.PullFn = func(ctx context.Context, from string, amount int64, opID string) (string, error) {
		pulled = true
		return "tx-1", nil
	}
	// the pull settles, then the ledger write fails
	f.investors.AppendEntryFn = func(ctx context.Context, e *domain.LedgerEntry) error {
		return errors.New("db connection lost")
	}
	abandoned := false
	f.ops.AbandonFn = func(ctx context.Context, opID string) error {
		abandoned = true
		return nil
	}

	_, err := f.uc.Deposit(context.Background(), testInvestorID, 1_000_000, testOpID)
	if !errors.Is(err, domain.ErrReconciliationRequired) {
		t.Fatalf("want ErrReconciliationRequired, got %v", err)
	}
	if !pulled {
		t.Fatalf("failure must happen after the pull to exercise the stranded-funds path")
	}
	if abandoned {
		t.Fatalf("funds already moved, the op record must stay for the operator replay")
	}
	if !f.audit.Has("deposit.commit_failed") {
		t.Fatalf("commit failure not audited")
	}
}

func TestWithdraw_DebitsBeforePayout(t *testing.T) {
	f := newFixture(t)
	f.pool.TotalLiquidity = 1_000_000
	f.investor.Balance = 1_000_000
	f.investor.PrincipalContributed = 1_000_000

	var balanceAtPayout int64 = -1
	f.rail.PushFn = func(ctx context.Context, to string, amount int64) (string, error) {
		balanceAtPayout = f.investor.Balance
		return "tx-out", nil
	}

	res, err := f.uc.Withdraw(context.Background(), testInvestorID, 400_000)
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if balanceAtPayout != 600_000 {
		t.Fatalf("debit must precede the payout, balance at payout was %d", balanceAtPayout)
	}
	if res.Pool.TotalLiquidity != 600_000 || res.Investor.Balance != 600_000 {
		t.Fatalf("post-withdraw state: %+v %+v", res.Pool, res.Investor)
	}
	if len(f.entries) != 1 || f.entries[0].Type != domain.EntryWithdraw {
		t.Fatalf("ledger: %+v", f.entries)
	}
}

func TestWithdraw_InsufficientBalance(t *testing.T) {
	f := newFixture(t)
	f.pool.TotalLiquidity = 1_000_000
	f.investor.Balance = 100_000

	_, err := f.uc.Withdraw(context.Background(), testInvestorID, 200_000)
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("want ErrInsufficientBalance, got %v", err)
	}
}

func TestWithdraw_InsufficientPoolLiquidity(t *testing.T) {
	f := newFixture(t)
	// 600_000 of the 1_000_000 is out on loans
	f.pool.TotalLiquidity = 1_000_000
	f.pool.TotalBorrowed = 600_000
	f.investor.Balance = 1_000_000

	_, err := f.uc.Withdraw(context.Background(), testInvestorID, 500_000)
	if !errors.Is(err, domain.ErrInsufficientPoolLiquidity) {
		t.Fatalf("want ErrInsufficientPoolLiquidity, got %v", err)
	}
	if f.investor.Balance != 1_000_000 {
		t.Fatalf("balance must be untouched, got %d", f.investor.Balance)
	}
}

func TestWithdraw_PayoutFailureCompensates(t *testing.T) {
	f := newFixture(t)
	f.pool.TotalLiquidity = 1_000_000
	f.investor.Balance = 1_000_000

	railDown := errors.New("rail down")
	f.rail.PushFn = func(ctx context.Context, to string, amount int64) (string, error) {
		return "", railDown
	}

	_, err := f.uc.Withdraw(context.Background(), testInvestorID, 400_000)
	if !errors.Is(err, railDown) {
		t.Fatalf("want wrapped payout error, got %v", err)
	}
	if f.pool.TotalLiquidity != 1_000_000 || f.investor.Balance != 1_000_000 {
		t.Fatalf("compensation must restore state: pool=%d balance=%d", f.pool.TotalLiquidity, f.investor.Balance)
	}
	// withdraw entry plus the compensating deposit entry
	if len(f.entries) != 2 || f.entries[1].Type != domain.EntryDeposit {
		t.Fatalf("ledger: %+v", f.entries)
	}
}

func TestWithdraw_CompensationFailureRequiresReconciliation(t *testing.T) {
	f := newFixture(t)
	f.pool.TotalLiquidity = 1_000_000
	f.investor.Balance = 1_000_000

	f.rail.PushFn = func(ctx context.Context, to string, amount int64) (string, error) {
		return "", errors.New("rail down")
	}
	// the withdraw entry commits, the compensating entry fails
	calls := 0
	f.investors.AppendEntryFn = func(ctx context.Context, e *domain.LedgerEntry) error {
		calls++
		if calls > 1 {
			return errors.New("ledger write failed")
		}
		f.entries = append(f.entries, e)
		return nil
	}

	_, err := f.uc.Withdraw(context.Background(), testInvestorID, 400_000)
	if !errors.Is(err, domain.ErrReconciliationRequired) {
		t.Fatalf("want ErrReconciliationRequired, got %v", err)
	}
	if !f.audit.Has("withdraw.compensation_failed") {
		t.Fatalf("compensation failure not audited")
	}
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t)
	f.pool.TotalLiquidity = 1_054_000
	f.pool.TotalBorrowed = 600_000
	f.pool.TotalRepaid = 600_000

	dto, err := f.uc.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if dto.AvailableLiquidity != 1_054_000 {
		t.Fatalf("available: want 1054000, got %d", dto.AvailableLiquidity)
	}
}

func TestInvestor_ReturnsLedger(t *testing.T) {
	f := newFixture(t)
	f.investor.Balance = 500_000
	f.investor.PrincipalContributed = 500_000
	f.entries = []*domain.LedgerEntry{
		{InvestorID: testInvestorID, Type: domain.EntryDeposit, Amount: 500_000, ResultingBalance: 500_000},
	}

	dto, err := f.uc.Investor(context.Background(), testInvestorID)
	if err != nil {
		t.Fatalf("Investor: %v", err)
	}
	if dto.Balance != 500_000 || len(dto.Entries) != 1 || dto.Entries[0].Type != string(domain.EntryDeposit) {
		t.Fatalf("dto: %+v", dto)
	}
}

func TestInvestor_UnknownID(t *testing.T) {
	f := newFixture(t)

	_, err := f.uc.Investor(context.Background(), "ffffffffffffffffffffffffffffffff")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
