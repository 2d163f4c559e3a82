package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/nurcahyapriantoro/agrilends/internal/domain/gateway"
	loanDomain "github.com/nurcahyapriantoro/agrilends/internal/domain/loan"
	poolDomain "github.com/nurcahyapriantoro/agrilends/internal/domain/pool"
)

// statusFor maps domain error kinds to HTTP statuses. Validation errors are
// mapped by the handlers directly; everything crossing the usecase boundary
// lands here.
func statusFor(err error) int {
	switch {
	case errors.Is(err, loanDomain.ErrNotFound),
		errors.Is(err, poolDomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, loanDomain.ErrUnauthorized),
		errors.Is(err, poolDomain.ErrUnauthorized),
		errors.Is(err, loanDomain.ErrCollateralNotOwned):
		return http.StatusForbidden
	case errors.Is(err, loanDomain.ErrInvalidTransition),
		errors.Is(err, loanDomain.ErrLiquidationNotEligible),
		errors.Is(err, loanDomain.ErrCollateralBusy),
		errors.Is(err, loanDomain.ErrLiquidationRecordConflict),
		errors.Is(err, poolDomain.ErrDuplicateOperation):
		return http.StatusConflict
	case errors.Is(err, loanDomain.ErrOverpayment),
		errors.Is(err, loanDomain.ErrInvalidAmount),
		errors.Is(err, poolDomain.ErrInvalidAmount),
		errors.Is(err, poolDomain.ErrBelowMinimumDeposit),
		errors.Is(err, poolDomain.ErrInsufficientBalance),
		errors.Is(err, poolDomain.ErrInsufficientPoolLiquidity),
		errors.Is(err, poolDomain.ErrConcentrationLimit):
		return http.StatusUnprocessableEntity
	case errors.Is(err, loanDomain.ErrValuationUnavailable),
		errors.Is(err, gateway.ErrExternalCall):
		return http.StatusServiceUnavailable
	case errors.Is(err, loanDomain.ErrReconciliationRequired),
		errors.Is(err, poolDomain.ErrReconciliationRequired):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func fail(c echo.Context, err error) error {
	return c.JSON(statusFor(err), ErrorResponse{Error: err.Error()})
}

func callerID(c echo.Context) string {
	return c.Request().Header.Get("X-Caller-Id")
}

func opID(c echo.Context) string {
	return c.Request().Header.Get("X-Op-Id")
}
