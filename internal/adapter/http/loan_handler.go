package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	loanDomain "github.com/nurcahyapriantoro/agrilends/internal/domain/loan"
	"github.com/nurcahyapriantoro/agrilends/internal/usecase/loan"
)

type LoanHandler struct {
	uc *loan.Usecase
	cv *CustomValidator
}

func NewLoanHandler(uc *loan.Usecase, cv *CustomValidator) *LoanHandler {
	return &LoanHandler{uc: uc, cv: cv}
}

type submitApplicationReq struct {
	CollateralRef   string `json:"collateral_ref" validate:"required"`
	RequestedAmount int64  `json:"requested_amount" validate:"required,gt=0"`
}

func (h *LoanHandler) SubmitApplication(c echo.Context) error {
	caller := callerID(c)
	if !reHex32.MatchString(caller) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing or invalid X-Caller-Id"})
	}
	var req submitApplicationReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := h.cv.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation failed", Details: ToFieldErrors(err)})
	}
	dto, err := h.uc.SubmitApplication(c.Request().Context(), loan.SubmitApplicationInput{
		BorrowerID:      caller,
		CollateralRef:   req.CollateralRef,
		RequestedAmount: req.RequestedAmount,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, dto)
}

func (h *LoanHandler) AcceptOffer(c echo.Context) error {
	caller := callerID(c)
	if !reHex32.MatchString(caller) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing or invalid X-Caller-Id"})
	}
	dto, err := h.uc.AcceptOffer(c.Request().Context(), c.Param("loan_id"), caller)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

type repayReq struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

func (h *LoanHandler) Repay(c echo.Context) error {
	caller := callerID(c)
	if !reHex32.MatchString(caller) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing or invalid X-Caller-Id"})
	}
	op := opID(c)
	if op == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing X-Op-Id"})
	}
	var req repayReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := h.cv.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation failed", Details: ToFieldErrors(err)})
	}
	res, err := h.uc.Repay(c.Request().Context(), loan.RepayInput{
		LoanID: c.Param("loan_id"),
		Caller: caller,
		Amount: req.Amount,
		OpID:   op,
	})
	if err != nil {
		// The repayment itself settled; only the collateral hand-back is
		// pending. The payload carries the settled loan so the client can
		// retry the release without re-paying.
		if errors.Is(err, loanDomain.ErrCollateralReleasePending) && res != nil {
			return c.JSON(http.StatusAccepted, map[string]any{
				"result": res,
				"error":  err.Error(),
			})
		}
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *LoanHandler) ReleaseCollateral(c echo.Context) error {
	caller := callerID(c)
	if !reHex32.MatchString(caller) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing or invalid X-Caller-Id"})
	}
	dto, err := h.uc.ReleaseCollateral(c.Request().Context(), c.Param("loan_id"), caller)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *LoanHandler) GetLoan(c echo.Context) error {
	dto, err := h.uc.GetStatus(c.Request().Context(), c.Param("loan_id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *LoanHandler) ListPayments(c echo.Context) error {
	rows, err := h.uc.History(c.Request().Context(), c.Param("loan_id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, rows)
}
