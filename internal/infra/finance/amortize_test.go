package finance

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// ─── StandardPayment ────────────────────────────────────────────────────────

func TestStandardPayment(t *testing.T) {
	tests := []struct {
		name      string
		principal string
		rate      float64
		term      int
		want      string
	}{
		{"reference deal", "200000", 0.06, 60, "3866.56"},
		{"textbook mortgage", "300000", 0.045, 360, "1520.06"},
		{"zero rate divides evenly", "12000", 0, 12, "1000"},
		{"zero rate with remainder", "100000", 0, 12, "8333.33"},
		{"zero principal", "0", 0.06, 60, "0"},
		{"zero term", "50000", 0.06, 0, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StandardPayment(dec(tt.principal), tt.rate, tt.term)
			if !got.Equal(dec(tt.want)) {
				t.Errorf("StandardPayment(%s, %v, %d) = %s, want %s",
					tt.principal, tt.rate, tt.term, got, tt.want)
			}
		})
	}
}

func TestStandardPayment_CoversPrincipal(t *testing.T) {
	// Total of all payments must be at least the principal; the surplus is
	// interest plus at most one payment of rounding slack.
	tests := []struct {
		principal string
		rate      float64
		term      int
	}{
		{"200000", 0.06, 60},
		{"75000", 0.085, 48},
		{"9999.99", 0.12, 24},
		{"500", 0.03, 6},
	}

	for _, tt := range tests {
		p := dec(tt.principal)
		m := StandardPayment(p, tt.rate, tt.term)
		total := m.Mul(decimal.NewFromInt(int64(tt.term)))
		if total.LessThan(p) {
			t.Errorf("payments %s × %d = %s fall short of principal %s",
				m, tt.term, total, tt.principal)
		}
	}
}

// ─── LeasePayment ───────────────────────────────────────────────────────────

func TestLeasePayment(t *testing.T) {
	t.Run("zero rate nets out residual", func(t *testing.T) {
		got := LeasePayment(dec("60000"), 0, 36, dec("18000"))
		if !got.Equal(dec("1166.67")) {
			t.Errorf("LeasePayment = %s, want 1166.67", got)
		}
	})

	t.Run("residual lowers the payment", func(t *testing.T) {
		std := StandardPayment(dec("50000"), 0.06, 36)
		lease := LeasePayment(dec("50000"), 0.06, 36, dec("20000"))
		if !lease.LessThan(std) {
			t.Errorf("lease payment %s should be below standard %s", lease, std)
		}
		if lease.Sign() <= 0 {
			t.Errorf("lease payment should be positive, got %s", lease)
		}
	})

	t.Run("zero residual matches standard", func(t *testing.T) {
		std := StandardPayment(dec("50000"), 0.06, 36)
		lease := LeasePayment(dec("50000"), 0.06, 36, decimal.Zero)
		if !lease.Equal(std) {
			t.Errorf("lease with zero residual = %s, want standard %s", lease, std)
		}
	})
}

// ─── MinimumPayment ─────────────────────────────────────────────────────────

func TestMinimumPayment(t *testing.T) {
	tests := []struct {
		name    string
		balance string
		rate    float64
		want    string
	}{
		{"one month of interest", "200000", 0.06, "1000"},
		{"cents rounded", "12345.67", 0.07, "72.02"},
		{"zero rate", "50000", 0, "0"},
		{"zero balance", "0", 0.06, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MinimumPayment(dec(tt.balance), tt.rate)
			if !got.Equal(dec(tt.want)) {
				t.Errorf("MinimumPayment(%s, %v) = %s, want %s",
					tt.balance, tt.rate, got, tt.want)
			}
		})
	}
}

// ─── RemainingTerm ──────────────────────────────────────────────────────────

func TestRemainingTerm(t *testing.T) {
	tests := []struct {
		name    string
		balance string
		rate    float64
		payment string
		want    int
		wantErr error
	}{
		{"quarter interest ratio", "100000", 0.06, "2000", 58, nil},
		{"zero rate exact", "12000", 0, "1000", 12, nil},
		{"zero rate rounds up", "12500", 0, "1000", 13, nil},
		{"zero balance", "0", 0.06, "500", 0, nil},
		{"payment equals interest", "100000", 0.06, "500", 0, ErrNonAmortizing},
		{"payment below interest", "100000", 0.06, "499", 0, ErrNonAmortizing},
		{"zero payment", "100000", 0.06, "0", 0, ErrNonAmortizing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RemainingTerm(dec(tt.balance), tt.rate, dec(tt.payment))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("RemainingTerm error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("RemainingTerm = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRemainingTerm_InvertsStandardPayment(t *testing.T) {
	// The quoted payment retires the quoted term, give or take the one
	// month that cent rounding can add.
	tests := []struct {
		principal string
		rate      float64
		term      int
	}{
		{"200000", 0.06, 60},
		{"300000", 0.045, 360},
		{"75000", 0.085, 48},
	}

	for _, tt := range tests {
		p := dec(tt.principal)
		m := StandardPayment(p, tt.rate, tt.term)
		n, err := RemainingTerm(p, tt.rate, m)
		if err != nil {
			t.Fatalf("RemainingTerm(%s, %v, %s): %v", tt.principal, tt.rate, m, err)
		}
		if n < tt.term || n > tt.term+1 {
			t.Errorf("RemainingTerm = %d, want %d or %d", n, tt.term, tt.term+1)
		}
	}
}
