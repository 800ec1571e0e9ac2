package finance

import (
	"math/rand"

	"github.com/shopspring/decimal"
)

// Trade-in valuation factors. The base fraction band is deliberately below
// resale value: trade-ins are the convenience channel, not the market.
const (
	tradeInBaseLo = 0.50
	tradeInBaseHi = 0.65
	brandBonus    = 1.05
	damageWeight  = 0.3
	wearWeight    = 0.2
)

// TradeInValue quotes a trade-in against the item's base price. The random
// base fraction is drawn from r, so callers choose between a seeded stream
// (engine-internal, reproducible) and an interactive one (immediate quotes).
// Damage and wear are clamped into [0,1]; the result is never negative.
func TradeInValue(r *rand.Rand, basePrice decimal.Decimal, sameBrand bool, damage, wear float64) decimal.Decimal {
	if basePrice.Sign() <= 0 {
		return decimal.Zero
	}
	base, _ := basePrice.Float64()

	v := base * (tradeInBaseLo + r.Float64()*(tradeInBaseHi-tradeInBaseLo))
	if sameBrand {
		v *= brandBonus
	}
	v *= 1 - clamp01(damage)*damageWeight
	v *= 1 - clamp01(wear)*wearWeight
	if v < 0 {
		v = 0
	}
	return twoPlaces(v)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
