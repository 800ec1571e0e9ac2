// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of the engine: everything else depends on it,
// while it depends only on value libraries (uuid, decimal).
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ─── Deal Types ─────────────────────────────────────────────────────────────

// DealKind distinguishes the three financing products.
type DealKind string

const (
	KindFinance DealKind = "finance" // amortizing purchase finance
	KindLease   DealKind = "lease"   // amortizes to a residual balloon
	KindLoan    DealKind = "loan"    // cash loan, proceeds credited on funding
)

// Valid reports whether k is a known deal kind.
func (k DealKind) Valid() bool {
	switch k {
	case KindFinance, KindLease, KindLoan:
		return true
	}
	return false
}

// DealStatus is the lifecycle state of a deal.
// Pending → Active → {PaidOff, Defaulted, Repossessed}. Terminal states never
// transition again.
type DealStatus string

const (
	DealPending     DealStatus = "pending"
	DealActive      DealStatus = "active"
	DealPaidOff     DealStatus = "paid_off"
	DealDefaulted   DealStatus = "defaulted"
	DealRepossessed DealStatus = "repossessed"
)

// Terminal reports whether the status admits no further transitions.
func (s DealStatus) Terminal() bool {
	switch s {
	case DealPaidOff, DealDefaulted, DealRepossessed:
		return true
	}
	return false
}

// PaymentMode selects how the monthly due amount is derived.
type PaymentMode string

const (
	PayMinimum  PaymentMode = "minimum"    // interest-only floor
	PayStandard PaymentMode = "standard"   // originally-quoted amortizing payment
	PayExtra15  PaymentMode = "extra_1_5x" // 1.5 × standard
	PayExtra2   PaymentMode = "extra_2x"   // 2.0 × standard
	PayCustom   PaymentMode = "custom"     // caller-supplied amount
)

// Valid reports whether m is a known payment mode.
func (m PaymentMode) Valid() bool {
	switch m {
	case PayMinimum, PayStandard, PayExtra15, PayExtra2, PayCustom:
		return true
	}
	return false
}

// Deal is one financing agreement on one account.
type Deal struct {
	ID            uuid.UUID       `json:"id"`
	AccountID     string          `json:"account_id"`
	Kind          DealKind        `json:"kind"`
	Status        DealStatus      `json:"status"`
	Principal     decimal.Decimal `json:"principal"` // financed amount after down payment and trade-in
	Balance       decimal.Decimal `json:"balance"`
	AnnualRate    float64         `json:"annual_rate"`
	TermMonths    int             `json:"term_months"`
	MonthsElapsed int             `json:"months_elapsed"`
	QuotedPayment decimal.Decimal `json:"quoted_payment"`
	Mode          PaymentMode     `json:"payment_mode"`
	CustomAmount  decimal.Decimal `json:"custom_amount"`
	Residual      decimal.Decimal `json:"residual"` // lease balloon, zero otherwise
	MissedStreak  int             `json:"missed_streak"`
	Collateral    []string        `json:"collateral,omitempty"` // asset refs held against a loan
	CreatedAt     Timestamp       `json:"created_at"`
	ClosedAt      Timestamp       `json:"closed_at,omitempty"`
	LastServiced  int             `json:"last_serviced"` // month index, -1 before first service
	Seq           uint64          `json:"seq"`
}

// Terminal reports whether the deal reached a final state.
func (d *Deal) Terminal() bool { return d.Status.Terminal() }

// Overrun reports whether the deal ran past its term with balance remaining,
// which happens under negative amortization or a lease balloon.
func (d *Deal) Overrun() bool {
	return d.MonthsElapsed >= d.TermMonths && d.Balance.IsPositive()
}

// Secured reports whether the deal holds collateral.
func (d *Deal) Secured() bool { return len(d.Collateral) > 0 }

// ─── Account Types ──────────────────────────────────────────────────────────

// Account identifies one simulated farm/operator. The engine keys everything
// by AccountID; the API layer owns names and passphrase hashes.
type Account struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	PassHash  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Asset is one registered piece of equipment owned by an account.
type Asset struct {
	Ref    string          `json:"ref"`
	Kind   string          `json:"kind,omitempty"`
	Brand  string          `json:"brand,omitempty"`
	Value  decimal.Decimal `json:"value"`
	Damage float64         `json:"damage,omitempty"` // condition fractions, zero = factory fresh
	Wear   float64         `json:"wear,omitempty"`
	Held   bool            `json:"held"` // pledged as deal collateral
}
