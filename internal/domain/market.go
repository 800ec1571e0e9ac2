package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ─── Marketplace Types ──────────────────────────────────────────────────────
// Buy-side SearchRequests and sell-side SaleListings share the same shape:
// a fee charged up front, a seeded delay measured in months, and a single
// probabilistic resolution. Fees are never refunded, including on cancel.

// SearchTier selects the reach of a buy-side agent search.
type SearchTier string

const (
	SearchLocal    SearchTier = "local"
	SearchRegional SearchTier = "regional"
	SearchNational SearchTier = "national"
)

// Valid reports whether t is a known search tier.
func (t SearchTier) Valid() bool {
	switch t {
	case SearchLocal, SearchRegional, SearchNational:
		return true
	}
	return false
}

// AgentTier selects the sell-side agent. The private tier is fee-exempt.
type AgentTier string

const (
	AgentPrivate  AgentTier = "private"
	AgentLocal    AgentTier = "local"
	AgentRegional AgentTier = "regional"
	AgentNational AgentTier = "national"
)

// Valid reports whether t is a known agent tier.
func (t AgentTier) Valid() bool {
	switch t {
	case AgentPrivate, AgentLocal, AgentRegional, AgentNational:
		return true
	}
	return false
}

// PriceTier selects the asking strategy for a sale listing.
type PriceTier string

const (
	PriceQuick   PriceTier = "quick"   // fast, 60–75% of base
	PriceMarket  PriceTier = "market"  // 75–95% of base
	PricePremium PriceTier = "premium" // patient, 90–110% of base
)

// Valid reports whether t is a known price tier.
func (t PriceTier) Valid() bool {
	switch t {
	case PriceQuick, PriceMarket, PricePremium:
		return true
	}
	return false
}

// ─── Search Requests (buy side) ─────────────────────────────────────────────

// SearchStatus is the lifecycle state of a search request.
type SearchStatus string

const (
	SearchOpen      SearchStatus = "searching"
	SearchSucceeded SearchStatus = "succeeded"
	SearchFailed    SearchStatus = "failed"
	SearchCancelled SearchStatus = "cancelled"
)

// Terminal reports whether the search admits no further transitions.
func (s SearchStatus) Terminal() bool { return s != SearchOpen }

// DesiredSpec narrows what the agent is searching for.
type DesiredSpec struct {
	Category     string  `json:"category,omitempty"`
	Make         string  `json:"make,omitempty"`
	Model        string  `json:"model,omitempty"`
	MaxAgeMonths int     `json:"max_age_months,omitempty"`
	MaxWear      float64 `json:"max_wear,omitempty"`
}

// FoundItem is the synthesized result of a successful search.
type FoundItem struct {
	Price     decimal.Decimal `json:"price"`
	AgeMonths int             `json:"age_months"`
	Damage    float64         `json:"damage"`
	Wear      float64         `json:"wear"`
}

// SearchRequest is one queued buy-side search.
type SearchRequest struct {
	ID         uuid.UUID       `json:"id"`
	AccountID  string          `json:"account_id"`
	Tier       SearchTier      `json:"tier"`
	Spec       DesiredSpec     `json:"spec"`
	BasePrice  decimal.Decimal `json:"base_price"`
	Fee        decimal.Decimal `json:"fee"`
	Status     SearchStatus    `json:"status"`
	TTLMonths  int             `json:"ttl_months"`
	Found      *FoundItem      `json:"found,omitempty"`
	CreatedAt  Timestamp       `json:"created_at"`
	ResolvedAt Timestamp       `json:"resolved_at,omitempty"`
	Seq        uint64          `json:"seq"`
}

// ─── Sale Listings (sell side) ──────────────────────────────────────────────

// ListingStatus is the lifecycle state of a sale listing.
type ListingStatus string

const (
	ListingOpen         ListingStatus = "listed"
	ListingOfferPending ListingStatus = "offer_pending"
	ListingSold         ListingStatus = "sold"
	ListingExpired      ListingStatus = "expired"
	ListingCancelled    ListingStatus = "cancelled"
)

// Terminal reports whether the listing admits no further transitions.
func (s ListingStatus) Terminal() bool {
	switch s {
	case ListingSold, ListingExpired, ListingCancelled:
		return true
	}
	return false
}

// PendingOffer is a synthesized buyer offer awaiting a response.
type PendingOffer struct {
	Amount    decimal.Decimal `json:"amount"`
	IssuedAt  Timestamp       `json:"issued_at"`
	ExpiresAt Timestamp       `json:"expires_at"`
}

// Expired reports whether the offer lapsed at the given time.
func (o *PendingOffer) Expired(now Timestamp) bool {
	return o != nil && now >= o.ExpiresAt
}

// SaleListing is one queued sell-side listing.
type SaleListing struct {
	ID          uuid.UUID       `json:"id"`
	AccountID   string          `json:"account_id"`
	AssetRef    string          `json:"asset_ref"`
	AgentTier   AgentTier       `json:"agent_tier"`
	PriceTier   PriceTier       `json:"price_tier"`
	AskPrice    decimal.Decimal `json:"ask_price"` // base price offers are drawn against
	Fee         decimal.Decimal `json:"fee"`
	Status      ListingStatus   `json:"status"`
	DelayMonths int             `json:"delay_months"` // months until the next resolution roll
	Retries     int             `json:"retries"`      // failed rolls + declined/expired offers
	Offer       *PendingOffer   `json:"offer,omitempty"`
	CreatedAt   Timestamp       `json:"created_at"`
	ResolvedAt  Timestamp       `json:"resolved_at,omitempty"`
	Seq         uint64          `json:"seq"`
}
