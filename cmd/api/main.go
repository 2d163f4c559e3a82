package main

import (
	"context"
	"log"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	gatewayhttp "github.com/nurcahyapriantoro/agrilends/internal/adapter/gateway"
	httpadp "github.com/nurcahyapriantoro/agrilends/internal/adapter/http"
	"github.com/nurcahyapriantoro/agrilends/internal/adapter/middleware"
	"github.com/nurcahyapriantoro/agrilends/internal/adapter/repository/mysql"
	"github.com/nurcahyapriantoro/agrilends/internal/config"
	"github.com/nurcahyapriantoro/agrilends/internal/infrastructure/cache"
	"github.com/nurcahyapriantoro/agrilends/internal/infrastructure/db"
	liquidationuc "github.com/nurcahyapriantoro/agrilends/internal/usecase/liquidation"
	loanuc "github.com/nurcahyapriantoro/agrilends/internal/usecase/loan"
	pooluc "github.com/nurcahyapriantoro/agrilends/internal/usecase/pool"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	gdb, err := db.OpenGorm(cfg.MySQLDSN())
	if err != nil {
		log.Fatalf("mysql: %v", err)
	}
	if err := mysql.AutoMigrate(gdb); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	rdb, err := cache.OpenRedis(cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}

	// repositories
	loans := mysql.NewLoanRepository(gdb)
	payments := mysql.NewPaymentRepository(gdb)
	poolRepo := mysql.NewPoolRepository(gdb)
	investors := mysql.NewInvestorRepository(gdb)
	ops := mysql.NewOperationRepository(gdb)
	paramsStore := mysql.NewParamsStore(gdb)
	unit := mysql.NewGormUoW(gdb)

	// The cache serves quotes only as long as the governance staleness
	// window allows, so it is sized from the same parameter the valuation
	// check uses.
	bootParams, err := paramsStore.Get(context.Background())
	if err != nil {
		log.Fatalf("params: %v", err)
	}

	// collaborators
	registry := gatewayhttp.NewRegistryClient(cfg.RegistryURL)
	oracle := gatewayhttp.NewOracleClient(cfg.OracleURL, rdb, bootParams.PriceMaxAge())
	rail := gatewayhttp.NewRailClient(cfg.RailURL, cfg.PoolAccountID)
	identity := gatewayhttp.NewIdentityClient(cfg.IdentityURL)
	treasury := gatewayhttp.NewTreasuryClient(cfg.TreasuryURL)
	signer := gatewayhttp.NewSignerClient(cfg.SignerURL)
	audit := gatewayhttp.LogAuditSink{}

	// usecases
	loanUC := loanuc.NewUsecase(loanuc.Deps{
		Loans:    loans,
		Payments: payments,
		Ops:      ops,
		UoW:      unit,
		Params:   paramsStore,
		Registry: registry,
		Oracle:   oracle,
		Rail:     rail,
		Identity: identity,
		Treasury: treasury,
		Audit:    audit,
		EscrowID: cfg.EscrowID,
	})
	poolUC := pooluc.NewUsecase(pooluc.Deps{
		Pool:      poolRepo,
		Investors: investors,
		Ops:       ops,
		UoW:       unit,
		Params:    paramsStore,
		Rail:      rail,
		Identity:  identity,
		Audit:     audit,
	})
	liqUC := liquidationuc.NewUsecase(liquidationuc.Deps{
		Loans:       loans,
		UoW:         unit,
		Params:      paramsStore,
		Registry:    registry,
		Signer:      signer,
		Identity:    identity,
		Audit:       audit,
		CustodyID:   cfg.CustodyID,
		SchedulerID: cfg.SchedulerID,
	})

	// handlers
	cv := httpadp.NewValidator()
	h := httpadp.NewHandler()
	loanH := httpadp.NewLoanHandler(loanUC, cv)
	poolH := httpadp.NewPoolHandler(poolUC, cv)
	liqH := httpadp.NewLiquidationHandler(liqUC, oracle)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Logger(), echomw.Recover())

	idemp := middleware.IdempotencyMiddleware(rdb, time.Duration(cfg.IdempTTLSecs)*time.Second)

	// routes
	e.GET("/health", h.Health)

	e.POST("/loans", loanH.SubmitApplication)
	e.POST("/loans/:loan_id/accept", loanH.AcceptOffer, idemp)
	e.POST("/loans/:loan_id/repay", loanH.Repay, idemp)
	e.POST("/loans/:loan_id/release-collateral", loanH.ReleaseCollateral)
	e.GET("/loans/:loan_id", loanH.GetLoan)
	e.GET("/loans/:loan_id/payments", loanH.ListPayments)

	e.POST("/pool/deposits", poolH.Deposit, idemp)
	e.POST("/pool/withdrawals", poolH.Withdraw, idemp)
	e.GET("/pool", poolH.GetPool)
	e.GET("/investors/:investor_id", poolH.GetInvestor)

	e.POST("/liquidations/:loan_id", liqH.Trigger)
	e.POST("/liquidations/bulk", liqH.TriggerBulk)
	e.POST("/internal/scan-overdue", liqH.ScanOverdue)
	e.POST("/internal/refresh-prices", liqH.RefreshPrices)

	addr := ":" + cfg.AppPort
	log.Printf("listening on %s", addr)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
