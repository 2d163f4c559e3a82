package http

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	loanDomain "github.com/nurcahyapriantoro/agrilends/internal/domain/loan"
	"github.com/nurcahyapriantoro/agrilends/internal/usecase/liquidation"
)

// PriceRefresher is the scheduler-facing side of the price cache.
type PriceRefresher interface {
	RefreshStalePrices(ctx context.Context) error
}

type LiquidationHandler struct {
	uc      *liquidation.Usecase
	refresh PriceRefresher
}

func NewLiquidationHandler(uc *liquidation.Usecase, refresh PriceRefresher) *LiquidationHandler {
	return &LiquidationHandler{uc: uc, refresh: refresh}
}

type triggerReq struct {
	Reason string `json:"reason"`
}

func parseReason(raw string) loanDomain.LiquidationReason {
	switch loanDomain.LiquidationReason(raw) {
	case loanDomain.ReasonHealthRatio:
		return loanDomain.ReasonHealthRatio
	case loanDomain.ReasonAdminForced:
		return loanDomain.ReasonAdminForced
	default:
		return loanDomain.ReasonOverdue
	}
}

func (h *LiquidationHandler) Trigger(c echo.Context) error {
	caller := callerID(c)
	if caller == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing X-Caller-Id"})
	}
	var req triggerReq
	_ = c.Bind(&req)
	res, err := h.uc.Trigger(c.Request().Context(), c.Param("loan_id"), caller, parseReason(req.Reason))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

type bulkTriggerReq struct {
	LoanIDs []string `json:"loan_ids"`
	Reason  string   `json:"reason"`
}

func (h *LiquidationHandler) TriggerBulk(c echo.Context) error {
	caller := callerID(c)
	if caller == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing X-Caller-Id"})
	}
	var req bulkTriggerReq
	if err := c.Bind(&req); err != nil || len(req.LoanIDs) == 0 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "loan_ids is required"})
	}
	res, err := h.uc.TriggerBulk(c.Request().Context(), req.LoanIDs, caller, parseReason(req.Reason))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// ScanOverdue is the scheduler's periodic sweep hook.
func (h *LiquidationHandler) ScanOverdue(c echo.Context) error {
	ids, err := h.uc.ScanOverdue(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"eligible": ids})
}

// RefreshPrices is the scheduler's price-refresh hook.
func (h *LiquidationHandler) RefreshPrices(c echo.Context) error {
	if h.refresh == nil {
		return c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "price cache not configured"})
	}
	if err := h.refresh.RefreshStalePrices(c.Request().Context()); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "refreshed"})
}
