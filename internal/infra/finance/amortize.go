// Package finance holds the pure payment math. Every function is stateless
// and total for valid inputs: money goes in and out as decimal rounded to
// cents, while the transcendental steps (Pow, Log) run in float64.
package finance

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

// ErrNonAmortizing signals a payment that does not cover monthly interest,
// so no finite term can retire the balance.
var ErrNonAmortizing = errors.New("payment does not cover monthly interest")

// twoPlaces rounds a float64 amount into a cent-precision decimal.
func twoPlaces(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

// StandardPayment returns the fixed monthly payment that fully amortizes
// principal over termMonths at annualRate:
//
//	M = P·r(1+r)^n / ((1+r)^n − 1),  r = annualRate/12
//
// A zero rate degenerates to straight division.
func StandardPayment(principal decimal.Decimal, annualRate float64, termMonths int) decimal.Decimal {
	if termMonths <= 0 || principal.Sign() <= 0 {
		return decimal.Zero
	}
	r := annualRate / 12
	if r == 0 {
		return principal.DivRound(decimal.NewFromInt(int64(termMonths)), 2)
	}
	p, _ := principal.Float64()
	pow := math.Pow(1+r, float64(termMonths))
	return twoPlaces(p * r * pow / (pow - 1))
}

// LeasePayment returns the monthly lease payment that amortizes principal
// down to the residual value over termMonths:
//
//	M = (P − FV/(1+r)^n)·r(1+r)^n / ((1+r)^n − 1)
//
// Floored at zero: a residual above the financed amount means nothing is
// left to amortize, only the balloon remains.
func LeasePayment(principal decimal.Decimal, annualRate float64, termMonths int, residual decimal.Decimal) decimal.Decimal {
	if termMonths <= 0 || principal.Sign() <= 0 {
		return decimal.Zero
	}
	r := annualRate / 12
	p, _ := principal.Float64()
	fv, _ := residual.Float64()

	var m float64
	if r == 0 {
		m = (p - fv) / float64(termMonths)
	} else {
		pow := math.Pow(1+r, float64(termMonths))
		m = (p - fv/pow) * r * pow / (pow - 1)
	}
	if m < 0 {
		m = 0
	}
	return twoPlaces(m)
}

// MinimumPayment returns the interest-only floor for one month on the given
// balance. This doubles as the monthly interest accrual: a deal paying
// exactly the minimum holds its balance constant.
func MinimumPayment(balance decimal.Decimal, annualRate float64) decimal.Decimal {
	if balance.Sign() <= 0 {
		return decimal.Zero
	}
	return balance.Mul(decimal.NewFromFloat(annualRate / 12)).Round(2)
}

// RemainingTerm returns how many whole months of the given payment retire
// the balance at annualRate:
//
//	n = −log(1 − P·r/M) / log(1+r)
//
// rounded up. When P·r/M ≥ 1 the payment never amortizes and
// ErrNonAmortizing is returned.
func RemainingTerm(balance decimal.Decimal, annualRate float64, payment decimal.Decimal) (int, error) {
	if balance.Sign() <= 0 {
		return 0, nil
	}
	if payment.Sign() <= 0 {
		return 0, ErrNonAmortizing
	}
	b, _ := balance.Float64()
	m, _ := payment.Float64()
	r := annualRate / 12
	if r == 0 {
		return int(math.Ceil(b/m - 1e-9)), nil
	}
	ratio := b * r / m
	if ratio >= 1 {
		return 0, ErrNonAmortizing
	}
	n := -math.Log(1-ratio) / math.Log(1+r)
	return int(math.Ceil(n - 1e-9)), nil
}
