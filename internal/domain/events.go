package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ─── Tick Events ────────────────────────────────────────────────────────────
// AdvanceTick returns the ordered list of everything that happened during the
// tick. Events are facts, not commands: consumers (metrics, notifiers, the
// API) must never feed them back into the engine.

// EventType names one kind of engine fact.
type EventType string

const (
	EventDealActivated   EventType = "deal_activated"
	EventPaymentApplied  EventType = "payment_applied"
	EventPaymentMissed   EventType = "payment_missed"
	EventDealPaidOff     EventType = "deal_paid_off"
	EventDealDefaulted   EventType = "deal_defaulted"
	EventDealRepossessed EventType = "deal_repossessed"
	EventSearchResolved  EventType = "search_resolved"
	EventOfferGenerated  EventType = "offer_generated"
	EventOfferExpired    EventType = "offer_expired"
	EventListingSold     EventType = "listing_sold"
	EventListingExpired  EventType = "listing_expired"
	EventCreditChanged   EventType = "credit_changed"
)

// Event is one engine fact, stamped with the simulated time it occurred.
type Event struct {
	Type      EventType       `json:"type"`
	At        Timestamp       `json:"at"`
	AccountID string          `json:"account_id"`
	Ref       uuid.UUID       `json:"ref,omitempty"`    // deal, search, or listing id
	Amount    decimal.Decimal `json:"amount"`           // payment, offer, or found price
	Detail    string          `json:"detail,omitempty"` // human-readable qualifier
	NegAm     bool            `json:"negative_amortization,omitempty"`
}
