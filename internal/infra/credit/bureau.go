// Package credit implements the event-driven credit bureau.
//
// Each account has an append-only history of scoring events. The score is
// never stored; it is derived on demand from a debt-to-asset base plus the
// sum of history deltas:
//
//	score = clamp(350 + 300×(1 − ratio) + Σ deltas, 300, 850)
//
// where ratio is debt/assets clamped into [0,1]. A debt-free account with
// no history therefore starts at 650 (Good) and earns or loses ground from
// there. Ratings gate deal origination: each tier carries an interest-rate
// adjustment and a loan-size multiplier.
package credit

import (
	"math"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/XelaNull/UsedPlus-sub003/internal/domain"
)

// ─── Constants ──────────────────────────────────────────────────────────────

const (
	// BaseFloor is the debt-to-asset base contribution at ratio 1 (fully
	// leveraged). BaseSpan is added back as the ratio falls toward 0.
	BaseFloor = 350
	BaseSpan  = 300

	// Rating tier lower bounds.
	minExcellent = 750
	minGood      = 650
	minFair      = 550
	minPoor      = 450
)

// ─── Configuration ──────────────────────────────────────────────────────────

// Config configures the bureau.
type Config struct {
	// TrendWindow is how many trailing events Trend inspects.
	// 0 derives the window from history size: min(10, max(3, len/3)).
	TrendWindow int
}

// DefaultConfig returns the standard bureau settings.
func DefaultConfig() Config {
	return Config{TrendWindow: 0}
}

// ─── Bureau ─────────────────────────────────────────────────────────────────

// Bureau manages credit profiles for all accounts.
// Thread-safe via RWMutex.
type Bureau struct {
	mu       sync.RWMutex
	config   Config
	profiles map[string]*domain.CreditProfile // accountID → profile
}

// NewBureau creates a credit bureau.
func NewBureau(cfg Config) *Bureau {
	return &Bureau{
		config:   cfg,
		profiles: make(map[string]*domain.CreditProfile),
	}
}

// getOrCreate returns the live profile, creating an empty one on first use.
// Callers must hold mu.
func (b *Bureau) getOrCreate(accountID string) *domain.CreditProfile {
	p, ok := b.profiles[accountID]
	if !ok {
		p = &domain.CreditProfile{AccountID: accountID}
		b.profiles[accountID] = p
	}
	return p
}

// Record appends one event to the account's history and returns it.
// Unknown accounts get a fresh profile; recording never fails.
func (b *Bureau) Record(accountID string, reason domain.CreditReason, at domain.Timestamp) domain.CreditEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := b.getOrCreate(accountID)
	ev := domain.CreditEvent{At: at, Reason: reason, Delta: reason.Delta()}
	p.Events = append(p.Events, ev)
	p.Seq++
	return ev
}

// Profile returns a copy of the account's profile. The copy's event slice is
// detached; mutating it cannot corrupt the history.
func (b *Bureau) Profile(accountID string) domain.CreditProfile {
	b.mu.RLock()
	defer b.mu.RUnlock()

	p, ok := b.profiles[accountID]
	if !ok {
		return domain.CreditProfile{AccountID: accountID}
	}
	cp := *p
	cp.Events = append([]domain.CreditEvent(nil), p.Events...)
	return cp
}

// Profiles returns copies of every profile, for persistence sweeps.
func (b *Bureau) Profiles() []domain.CreditProfile {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]domain.CreditProfile, 0, len(b.profiles))
	for _, p := range b.profiles {
		cp := *p
		cp.Events = append([]domain.CreditEvent(nil), p.Events...)
		out = append(out, cp)
	}
	return out
}

// Load restores a persisted profile, keeping whichever version has the
// higher Seq. Stale replays are ignored.
func (b *Bureau) Load(p domain.CreditProfile) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.profiles[p.AccountID]; ok && existing.Seq >= p.Seq {
		return
	}
	cp := p
	cp.Events = append([]domain.CreditEvent(nil), p.Events...)
	b.profiles[p.AccountID] = &cp
}

// ─── Scoring ────────────────────────────────────────────────────────────────

// Score derives the account's clamped score from its debt-to-asset position
// and history. assets and debt come from the registry and the deal book.
func (b *Bureau) Score(accountID string, assets, debt decimal.Decimal) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	sum := 0
	if p, ok := b.profiles[accountID]; ok {
		for _, ev := range p.Events {
			sum += ev.Delta
		}
	}
	score := baseContribution(assets, debt) + sum
	if score < domain.ScoreFloor {
		return domain.ScoreFloor
	}
	if score > domain.ScoreCeiling {
		return domain.ScoreCeiling
	}
	return score
}

// baseContribution maps the debt-to-asset ratio onto [BaseFloor,
// BaseFloor+BaseSpan]. Lower leverage contributes more. An account with no
// assets counts as fully leveraged only if it actually carries debt.
func baseContribution(assets, debt decimal.Decimal) int {
	ratio := 0.0
	switch {
	case debt.Sign() <= 0:
		ratio = 0
	case assets.Sign() <= 0:
		ratio = 1
	default:
		ratio = debt.InexactFloat64() / assets.InexactFloat64()
		if ratio > 1 {
			ratio = 1
		}
	}
	return BaseFloor + int(math.Round(float64(BaseSpan)*(1-ratio)))
}

// RatingFor maps a score onto its tier.
func RatingFor(score int) domain.Rating {
	switch {
	case score >= minExcellent:
		return domain.RatingExcellent
	case score >= minGood:
		return domain.RatingGood
	case score >= minFair:
		return domain.RatingFair
	case score >= minPoor:
		return domain.RatingPoor
	default:
		return domain.RatingSubprime
	}
}

// InterestAdjustment returns the percentage-point adder for a rating.
// Monotone: better ratings never pay more.
func InterestAdjustment(r domain.Rating) float64 {
	switch r {
	case domain.RatingExcellent:
		return -0.5
	case domain.RatingGood:
		return 0
	case domain.RatingFair:
		return 1.0
	case domain.RatingPoor:
		return 2.5
	default:
		return 4.0
	}
}

// LoanSizeMultiplier returns how much financed principal a rating supports
// relative to the account's total asset value.
func LoanSizeMultiplier(r domain.Rating) float64 {
	switch r {
	case domain.RatingExcellent:
		return 1.5
	case domain.RatingGood:
		return 1.25
	case domain.RatingFair:
		return 1.0
	case domain.RatingPoor:
		return 0.75
	default:
		return 0.5
	}
}

// ─── Trend ──────────────────────────────────────────────────────────────────

// Trend reports the direction of the trailing history window.
func (b *Bureau) Trend(accountID string) domain.Trend {
	b.mu.RLock()
	defer b.mu.RUnlock()

	p, ok := b.profiles[accountID]
	if !ok || len(p.Events) == 0 {
		return domain.TrendSteady
	}

	n := b.config.TrendWindow
	if n <= 0 {
		n = len(p.Events) / 3
		if n < 3 {
			n = 3
		}
		if n > 10 {
			n = 10
		}
	}
	if n > len(p.Events) {
		n = len(p.Events)
	}

	sum := 0
	for _, ev := range p.Events[len(p.Events)-n:] {
		sum += ev.Delta
	}
	switch {
	case sum > 0:
		return domain.TrendImproving
	case sum < 0:
		return domain.TrendDeclining
	default:
		return domain.TrendSteady
	}
}

// ─── Reports ────────────────────────────────────────────────────────────────

// Report assembles the full credit answer for one account. tail limits how
// much history is included; 0 means all of it.
func (b *Bureau) Report(accountID string, assets, debt decimal.Decimal, tail int) domain.CreditReport {
	score := b.Score(accountID, assets, debt)
	trend := b.Trend(accountID)

	p := b.Profile(accountID)
	history := p.Events
	if tail > 0 && len(history) > tail {
		history = history[len(history)-tail:]
	}

	return domain.CreditReport{
		AccountID: accountID,
		Score:     score,
		Rating:    RatingFor(score),
		Trend:     trend,
		History:   history,
	}
}
