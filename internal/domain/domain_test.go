package domain

import (
	"testing"
)

// ─── Deal Type Tests ────────────────────────────────────────────────────────

func TestDealKind_Valid(t *testing.T) {
	tests := []struct {
		name string
		kind DealKind
		want bool
	}{
		{"finance", KindFinance, true},
		{"lease", KindLease, true},
		{"loan", KindLoan, true},
		{"empty", DealKind(""), false},
		{"unknown", DealKind("mortgage"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.kind.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDealStatus_Terminal(t *testing.T) {
	tests := []struct {
		status DealStatus
		want   bool
	}{
		{DealPending, false},
		{DealActive, false},
		{DealPaidOff, true},
		{DealDefaulted, true},
		{DealRepossessed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Terminal(); got != tt.want {
				t.Errorf("Terminal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPaymentMode_Valid(t *testing.T) {
	valid := []PaymentMode{PayMinimum, PayStandard, PayExtra15, PayExtra2, PayCustom}
	for _, m := range valid {
		if !m.Valid() {
			t.Errorf("mode %q should be valid", m)
		}
	}
	if PaymentMode("double").Valid() {
		t.Error("unknown mode should not be valid")
	}
	if PaymentMode("").Valid() {
		t.Error("empty mode should not be valid")
	}
}

// ─── Timestamp Tests ────────────────────────────────────────────────────────

func TestTimestamp_Month(t *testing.T) {
	tests := []struct {
		name          string
		ts            Timestamp
		hoursPerMonth int
		want          int
	}{
		{"hour zero", 0, 720, 0},
		{"last hour of month zero", 719, 720, 0},
		{"first hour of month one", 720, 720, 1},
		{"month five", 3600, 720, 5},
		{"zero hpm falls back to default", 1440, 0, 2},
		{"short months", 10, 5, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ts.Month(tt.hoursPerMonth); got != tt.want {
				t.Errorf("Month(%d) = %d, want %d", tt.hoursPerMonth, got, tt.want)
			}
		})
	}
}

func TestTimestamp_IsMonthStart(t *testing.T) {
	if !Timestamp(0).IsMonthStart(720) {
		t.Error("hour 0 should start month 0")
	}
	if Timestamp(1).IsMonthStart(720) {
		t.Error("hour 1 is inside month 0")
	}
	if !Timestamp(1440).IsMonthStart(720) {
		t.Error("hour 1440 should start month 2")
	}
}

// ─── Credit Type Tests ──────────────────────────────────────────────────────

func TestCreditReason_Delta(t *testing.T) {
	tests := []struct {
		reason CreditReason
		want   int
	}{
		{ReasonOnTimePayment, 5},
		{ReasonMissedPayment, -25},
		{ReasonEarlyPayoff, 50},
		{ReasonRepossession, -75},
		{CreditReason("unknown"), 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			if got := tt.reason.Delta(); got != tt.want {
				t.Errorf("Delta() = %d, want %d", got, tt.want)
			}
		})
	}
}

// ─── Market Type Tests ──────────────────────────────────────────────────────

func TestTier_Valid(t *testing.T) {
	if !SearchNational.Valid() || SearchTier("galactic").Valid() {
		t.Error("SearchTier.Valid misclassified")
	}
	if !AgentPrivate.Valid() || AgentTier("").Valid() {
		t.Error("AgentTier.Valid misclassified")
	}
	if !PriceQuick.Valid() || PriceTier("fire_sale").Valid() {
		t.Error("PriceTier.Valid misclassified")
	}
}

func TestPendingOffer_Expired(t *testing.T) {
	offer := &PendingOffer{IssuedAt: 100, ExpiresAt: 148}
	if offer.Expired(147) {
		t.Error("offer should still be live one hour before expiry")
	}
	if !offer.Expired(148) {
		t.Error("offer should expire exactly at ExpiresAt")
	}
	var nilOffer *PendingOffer
	if nilOffer.Expired(1000) {
		t.Error("nil offer never expires")
	}
}

func TestListingStatus_Terminal(t *testing.T) {
	terminal := []ListingStatus{ListingSold, ListingExpired, ListingCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	if ListingOpen.Terminal() || ListingOfferPending.Terminal() {
		t.Error("open states must not be terminal")
	}
}

// ─── Error Tests ────────────────────────────────────────────────────────────

func TestSentinelErrors(t *testing.T) {
	errs := []struct {
		name string
		err  error
	}{
		{"ErrBelowMinimumAmount", ErrBelowMinimumAmount},
		{"ErrInvalidMode", ErrInvalidMode},
		{"ErrIneligible", ErrIneligible},
		{"ErrInsufficientCredit", ErrInsufficientCredit},
		{"ErrDealNotFound", ErrDealNotFound},
		{"ErrAlreadyPaidOff", ErrAlreadyPaidOff},
		{"ErrAlreadyListed", ErrAlreadyListed},
		{"ErrNoOffer", ErrNoOffer},
		{"ErrOfferExpired", ErrOfferExpired},
		{"ErrInsufficientFunds", ErrInsufficientFunds},
		{"ErrTransient", ErrTransient},
	}

	for _, tt := range errs {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err == nil {
				t.Errorf("%s is nil", tt.name)
			}
			if tt.err.Error() == "" {
				t.Errorf("%s.Error() is empty", tt.name)
			}
		})
	}
}
