package market

import "github.com/XelaNull/UsedPlus-sub003/internal/domain"

// ─── Tier Tables ────────────────────────────────────────────────────────────
// Both marketplace queues run off the same parameter shape: a fee fraction
// charged up front, a delay range in months, a base success rate, and an
// outcome range for the draw that follows a successful resolution. Wider
// reach costs more, takes longer, and succeeds more often.

// searchParams drives a buy-side agent search.
type searchParams struct {
	feeFrac    float64 // fraction of base price, charged on creation
	delayLo    int     // months until forced resolution
	delayHi    int
	success    float64 // success rate at forced resolution
	discountLo float64 // discount off base price on a successful find
	discountHi float64
}

var searchTable = map[domain.SearchTier]searchParams{
	domain.SearchLocal:    {feeFrac: 0.015, delayLo: 1, delayHi: 2, success: 0.85, discountLo: 0.25, discountHi: 0.40},
	domain.SearchRegional: {feeFrac: 0.030, delayLo: 2, delayHi: 4, success: 0.90, discountLo: 0.30, discountHi: 0.50},
	domain.SearchNational: {feeFrac: 0.050, delayLo: 3, delayHi: 6, success: 0.95, discountLo: 0.35, discountHi: 0.60},
}

// agentParams drives a sell-side listing. The private tier charges no
// commission but waits longest and closes least often.
type agentParams struct {
	feeFrac float64 // fraction of asking price, charged on creation
	delayLo int     // months until the next resolution roll
	delayHi int
	success float64
}

var agentTable = map[domain.AgentTier]agentParams{
	domain.AgentPrivate:  {feeFrac: 0, delayLo: 2, delayHi: 5, success: 0.75},
	domain.AgentLocal:    {feeFrac: 0.01, delayLo: 1, delayHi: 3, success: 0.85},
	domain.AgentRegional: {feeFrac: 0.02, delayLo: 1, delayHi: 2, success: 0.90},
	domain.AgentNational: {feeFrac: 0.03, delayLo: 1, delayHi: 2, success: 0.95},
}

// priceParams sets the offer range as a multiple of the asking price and
// nudges the close rate. Pricing to sell closes faster; holding out for a
// premium costs success probability.
type priceParams struct {
	offerLo float64 // offer amount as a fraction of asking price
	offerHi float64
	nudge   float64 // added to the agent tier's success rate
}

var priceTable = map[domain.PriceTier]priceParams{
	domain.PriceQuick:   {offerLo: 0.60, offerHi: 0.75, nudge: 0.05},
	domain.PriceMarket:  {offerLo: 0.75, offerHi: 0.95, nudge: 0},
	domain.PricePremium: {offerLo: 0.90, offerHi: 1.10, nudge: -0.10},
}

// Nudged close rates clamp into [successFloor, successCeiling]: no listing
// is a sure thing, none is hopeless.
const (
	successFloor   = 0.05
	successCeiling = 0.99
)

// closeRate returns the clamped probability that a listing resolution roll
// produces an offer.
func closeRate(agent domain.AgentTier, price domain.PriceTier) float64 {
	p := agentTable[agent].success + priceTable[price].nudge
	if p < successFloor {
		p = successFloor
	}
	if p > successCeiling {
		p = successCeiling
	}
	return p
}
