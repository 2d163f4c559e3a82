package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nurcahyapriantoro/agrilends/internal/usecase/pool"
)

type PoolHandler struct {
	uc *pool.Usecase
	cv *CustomValidator
}

func NewPoolHandler(uc *pool.Usecase, cv *CustomValidator) *PoolHandler {
	return &PoolHandler{uc: uc, cv: cv}
}

type depositReq struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

func (h *PoolHandler) Deposit(c echo.Context) error {
	caller := callerID(c)
	if !reHex32.MatchString(caller) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing or invalid X-Caller-Id"})
	}
	op := opID(c)
	if op == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing X-Op-Id"})
	}
	var req depositReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := h.cv.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation failed", Details: ToFieldErrors(err)})
	}
	res, err := h.uc.Deposit(c.Request().Context(), caller, req.Amount, op)
	if err != nil {
		return fail(c, err)
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	return c.JSON(status, res)
}

type withdrawReq struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

func (h *PoolHandler) Withdraw(c echo.Context) error {
	caller := callerID(c)
	if !reHex32.MatchString(caller) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing or invalid X-Caller-Id"})
	}
	var req withdrawReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := h.cv.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation failed", Details: ToFieldErrors(err)})
	}
	res, err := h.uc.Withdraw(c.Request().Context(), caller, req.Amount)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *PoolHandler) GetPool(c echo.Context) error {
	dto, err := h.uc.Snapshot(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *PoolHandler) GetInvestor(c echo.Context) error {
	dto, err := h.uc.Investor(c.Request().Context(), c.Param("investor_id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}
