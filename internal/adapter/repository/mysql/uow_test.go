package mysql

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	loanDomain "github.com/nurcahyapriantoro/agrilends/internal/domain/loan"
	poolDomain "github.com/nurcahyapriantoro/agrilends/internal/domain/pool"
	"github.com/nurcahyapriantoro/agrilends/internal/domain/uow"
	"github.com/nurcahyapriantoro/agrilends/pkg/id"
)

func openUowTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&loanSQLite{}, &loanDomain.Payment{}, &poolDomain.Pool{}); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	return db
}

func TestGormUoW_WithinTx_Commit(t *testing.T) {
	db := openUowTestDB(t)
	u := NewGormUoW(db)
	ctx := context.Background()

	err := u.WithinTx(ctx, func(r uow.Repos) error {
		p, err := r.Pool.GetForUpdate(ctx)
		if err != nil {
			return err
		}
		if err := p.Deposit(1_000_000); err != nil {
			return err
		}
		return r.Pool.Save(ctx, p)
	})
	if err != nil {
		t.Fatalf("WithinTx: %v", err)
	}

	got, err := NewPoolRepository(db).Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.TotalLiquidity != 1_000_000 {
		t.Errorf("deposit not committed: %+v", got)
	}
}

func TestGormUoW_WithinTx_Rollback(t *testing.T) {
	db := openUowTestDB(t)
	u := NewGormUoW(db)
	ctx := context.Background()

	boom := errors.New("boom")
	err := u.WithinTx(ctx, func(r uow.Repos) error {
		p, err := r.Pool.GetForUpdate(ctx)
		if err != nil {
			return err
		}
		if err := p.Deposit(1_000_000); err != nil {
			return err
		}
		if err := r.Pool.Save(ctx, p); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want the body error, got %v", err)
	}

	got, err := NewPoolRepository(db).Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.TotalLiquidity != 0 {
		t.Errorf("deposit must be rolled back: %+v", got)
	}
}

func TestGormUoW_WithinLoanTx_Commit(t *testing.T) {
	db := openUowTestDB(t)
	u := NewGormUoW(db)
	ctx := context.Background()

	loanID := id.NewID32()
	l := makeLoan(loanID, id.NewID32(), "receipt-uow")
	if err := NewLoanRepository(db).Create(ctx, l); err != nil {
		t.Fatalf("Create: %v", err)
	}

	err := u.WithinLoanTx(ctx, loanID, func(r uow.Repos, locked *loanDomain.Loan) error {
		now := time.Now().UTC()
		locked.State = loanDomain.StateActive
		locked.ActivatedAt = &now
		locked.StateUpdatedAt = now
		return r.Loans.Save(ctx, locked)
	})
	if err != nil {
		t.Fatalf("WithinLoanTx: %v", err)
	}

	got, err := NewLoanRepository(db).GetByLoanID(ctx, loanID)
	if err != nil {
		t.Fatalf("GetByLoanID: %v", err)
	}
	if got.State != loanDomain.StateActive {
		t.Errorf("activation not committed: %+v", got)
	}
}

func TestGormUoW_WithinLoanTx_Rollback(t *testing.T) {
	db := openUowTestDB(t)
	u := NewGormUoW(db)
	ctx := context.Background()

	loanID := id.NewID32()
	l := makeLoan(loanID, id.NewID32(), "receipt-uow")
	if err := NewLoanRepository(db).Create(ctx, l); err != nil {
		t.Fatalf("Create: %v", err)
	}

	boom := errors.New("boom")
	err := u.WithinLoanTx(ctx, loanID, func(r uow.Repos, locked *loanDomain.Loan) error {
		locked.State = loanDomain.StateActive
		if err := r.Loans.Save(ctx, locked); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want the body error, got %v", err)
	}

	got, err := NewLoanRepository(db).GetByLoanID(ctx, loanID)
	if err != nil {
		t.Fatalf("GetByLoanID: %v", err)
	}
	if got.State != loanDomain.StateOffered {
		t.Errorf("state change must be rolled back: %+v", got)
	}
}

func TestGormUoW_WithinLoanTx_LoanNotFound(t *testing.T) {
	db := openUowTestDB(t)
	u := NewGormUoW(db)
	ctx := context.Background()

	called := false
	err := u.WithinLoanTx(ctx, id.NewID32(), func(r uow.Repos, locked *loanDomain.Loan) error {
		called = true
		return nil
	})
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("want ErrRecordNotFound, got %v", err)
	}
	if called {
		t.Fatalf("body must not run for a missing loan")
	}
}
