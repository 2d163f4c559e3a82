package pool

import (
	"errors"
	"testing"
)

func TestPool_DepositAndWithdraw(t *testing.T) {
	p := &Pool{}

	if err := p.Deposit(1_000_000); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if p.TotalLiquidity != 1_000_000 || p.Available() != 1_000_000 {
		t.Fatalf("after deposit: liquidity=%d available=%d", p.TotalLiquidity, p.Available())
	}

	if err := p.WithdrawLiquidity(400_000); err != nil {
		t.Fatalf("WithdrawLiquidity: %v", err)
	}
	if p.TotalLiquidity != 600_000 || p.Available() != 600_000 {
		t.Fatalf("after withdraw: liquidity=%d available=%d", p.TotalLiquidity, p.Available())
	}

	if err := p.WithdrawLiquidity(600_001); !errors.Is(err, ErrInsufficientPoolLiquidity) {
		t.Fatalf("over-withdraw: want ErrInsufficientPoolLiquidity, got %v", err)
	}
	if err := p.Deposit(0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero deposit: want ErrInvalidAmount, got %v", err)
	}
	if err := p.WithdrawLiquidity(-5); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("negative withdraw: want ErrInvalidAmount, got %v", err)
	}
}

func TestPool_DisburseReservesCapacity(t *testing.T) {
	p := &Pool{TotalLiquidity: 1_000_000}

	if err := p.Disburse(600_000, 8000); err != nil {
		t.Fatalf("Disburse: %v", err)
	}
	if p.TotalBorrowed != 600_000 {
		t.Fatalf("borrowed: want 600000, got %d", p.TotalBorrowed)
	}
	if p.Available() != 400_000 {
		t.Fatalf("available after disburse: want 400000, got %d", p.Available())
	}

	// A second disbursement sees the reduced availability.
	if err := p.Disburse(500_000, 8000); !errors.Is(err, ErrInsufficientPoolLiquidity) {
		t.Fatalf("second disburse: want ErrInsufficientPoolLiquidity, got %v", err)
	}
}

func TestPool_DisburseConcentrationCap(t *testing.T) {
	p := &Pool{TotalLiquidity: 1_000_000}

	// cap is 80% of total liquidity = 800_000
	if err := p.Disburse(850_000, 8000); !errors.Is(err, ErrConcentrationLimit) {
		t.Fatalf("over cap: want ErrConcentrationLimit, got %v", err)
	}
	if err := p.Disburse(800_000, 8000); err != nil {
		t.Fatalf("at cap: %v", err)
	}
	// no cap when maxFractionBps is zero
	p2 := &Pool{TotalLiquidity: 1_000_000}
	if err := p2.Disburse(1_000_000, 0); err != nil {
		t.Fatalf("uncapped disburse: %v", err)
	}
}

func TestPool_UndoDisburse(t *testing.T) {
	p := &Pool{TotalLiquidity: 1_000_000}
	if err := p.Disburse(600_000, 0); err != nil {
		t.Fatalf("Disburse: %v", err)
	}
	if err := p.UndoDisburse(600_000); err != nil {
		t.Fatalf("UndoDisburse: %v", err)
	}
	if p.TotalBorrowed != 0 || p.Available() != 1_000_000 {
		t.Fatalf("after undo: borrowed=%d available=%d", p.TotalBorrowed, p.Available())
	}
}

func TestPool_RepaymentLifecycle(t *testing.T) {
	// deposit 1_000_000, disburse 600_000, repay in full with 54_000 of net
	// interest (60_000 accrued minus the 10% protocol fee)
	p := &Pool{}
	if err := p.Deposit(1_000_000); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if err := p.Disburse(600_000, 8000); err != nil {
		t.Fatalf("Disburse: %v", err)
	}
	if p.Available() != 400_000 {
		t.Fatalf("available mid-loan: want 400000, got %d", p.Available())
	}

	if err := p.CreditRepayment(600_000, 54_000); err != nil {
		t.Fatalf("CreditRepayment: %v", err)
	}
	// principal restored plus capitalized yield
	if p.Available() != 1_054_000 {
		t.Fatalf("available after repay: want 1054000, got %d", p.Available())
	}
	if p.TotalLiquidity != 1_054_000 {
		t.Fatalf("total liquidity after repay: want 1054000, got %d", p.TotalLiquidity)
	}
	if p.Available() > p.TotalLiquidity {
		t.Fatalf("solvency invariant broken: available=%d > liquidity=%d", p.Available(), p.TotalLiquidity)
	}
}

func TestPool_RecognizeLoss(t *testing.T) {
	p := &Pool{}
	if err := p.Deposit(1_000_000); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if err := p.Disburse(600_000, 8000); err != nil {
		t.Fatalf("Disburse: %v", err)
	}

	if err := p.RecognizeLoss(600_000); err != nil {
		t.Fatalf("RecognizeLoss: %v", err)
	}
	// the funds already left the pool: availability must not change
	if p.Available() != 400_000 {
		t.Fatalf("available after loss: want 400000, got %d", p.Available())
	}
	if p.TotalBorrowed != 0 || p.TotalLiquidatedLoss != 600_000 {
		t.Fatalf("loss booking: borrowed=%d loss=%d", p.TotalBorrowed, p.TotalLiquidatedLoss)
	}

	// cannot write off more than is outstanding
	if err := p.RecognizeLoss(1); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("over write-off: want ErrInvalidAmount, got %v", err)
	}
}

func TestPool_CreditRepaymentValidation(t *testing.T) {
	p := &Pool{TotalLiquidity: 1_000_000, TotalBorrowed: 600_000}

	if err := p.CreditRepayment(-1, 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("negative principal: want ErrInvalidAmount, got %v", err)
	}
	if err := p.CreditRepayment(0, 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero repayment: want ErrInvalidAmount, got %v", err)
	}
	// interest-only repayment is legal: capitalizes yield
	if err := p.CreditRepayment(0, 10_000); err != nil {
		t.Fatalf("interest-only: %v", err)
	}
	if p.TotalLiquidity != 1_010_000 {
		t.Fatalf("capitalized yield: want 1010000, got %d", p.TotalLiquidity)
	}
}
