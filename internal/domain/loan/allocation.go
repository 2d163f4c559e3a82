package loan

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	basisPoints = decimal.NewFromInt(10_000)
	daysPerYear = decimal.NewFromInt(365)
)

// AccruedInterest computes the simple, non-compounding interest owed on a
// loan principal at aprBps from activatedAt until now:
//
//	principal * apr_bps/10000 * elapsed_days/365
//
// The result is floored to the smallest unit. Negative elapsed time yields
// zero.
func AccruedInterest(principal, aprBps int64, activatedAt, now time.Time) int64 {
	if principal <= 0 || aprBps <= 0 || !now.After(activatedAt) {
		return 0
	}
	elapsedDays := decimal.NewFromFloat(now.Sub(activatedAt).Hours() / 24)
	interest := decimal.NewFromInt(principal).
		Mul(decimal.NewFromInt(aprBps)).
		Div(basisPoints).
		Mul(elapsedDays).
		Div(daysPerYear)
	return interest.Floor().IntPart()
}

// Breakdown is the result of allocating a payment across a loan's
// outstanding debt. Fee is charged on the interest actually collected and is
// forwarded to the treasury; it is not retained in the pool.
type Breakdown struct {
	InterestPortion  int64
	PrincipalPortion int64
	Fee              int64
	// SettlesDebt is true when the payment clears both outstanding
	// interest and principal.
	SettlesDebt bool
}

// Allocate splits a payment across outstanding interest and principal,
// interest first. A non-positive payment is rejected with ErrInvalidAmount;
// a payment exceeding the total outstanding debt is rejected with
// ErrOverpayment rather than capped, so the client must state its intent
// explicitly.
func Allocate(outstandingPrincipal, outstandingInterest, payment, feeBps int64) (Breakdown, error) {
	if payment <= 0 {
		return Breakdown{}, ErrInvalidAmount
	}
	if outstandingPrincipal < 0 {
		outstandingPrincipal = 0
	}
	if outstandingInterest < 0 {
		outstandingInterest = 0
	}
	total := outstandingPrincipal + outstandingInterest
	if payment > total {
		return Breakdown{}, ErrOverpayment
	}

	b := Breakdown{}
	remainder := payment
	if remainder >= outstandingInterest {
		b.InterestPortion = outstandingInterest
		remainder -= outstandingInterest
	} else {
		b.InterestPortion = remainder
		remainder = 0
	}
	b.PrincipalPortion = remainder

	if b.InterestPortion > 0 && feeBps > 0 {
		fee := decimal.NewFromInt(b.InterestPortion).
			Mul(decimal.NewFromInt(feeBps)).
			Div(basisPoints)
		b.Fee = fee.Floor().IntPart()
	}

	b.SettlesDebt = payment == total
	return b, nil
}
