package domain

// ─── Credit Types ───────────────────────────────────────────────────────────
// Credit history is append-only. The score is always derived from the history
// plus the account's current debt-to-asset ratio; it is never stored.

// Score bounds. Every derived score is clamped into this range.
const (
	ScoreFloor   = 300
	ScoreCeiling = 850
)

// CreditReason is the business reason for a credit history event.
type CreditReason string

const (
	ReasonOnTimePayment CreditReason = "on_time_payment"
	ReasonMissedPayment CreditReason = "missed_payment"
	ReasonEarlyPayoff   CreditReason = "early_payoff"
	ReasonRepossession  CreditReason = "repossession"
)

// Delta returns the fixed score contribution of one event with this reason.
func (r CreditReason) Delta() int {
	switch r {
	case ReasonOnTimePayment:
		return 5
	case ReasonMissedPayment:
		return -25
	case ReasonEarlyPayoff:
		return 50
	case ReasonRepossession:
		return -75
	}
	return 0
}

// CreditEvent is a single row in an account's credit history.
type CreditEvent struct {
	At     Timestamp    `json:"at"`
	Reason CreditReason `json:"reason"`
	Delta  int          `json:"delta"`
}

// CreditProfile holds one account's credit history.
type CreditProfile struct {
	AccountID string        `json:"account_id"`
	Events    []CreditEvent `json:"events"`
	Seq       uint64        `json:"seq"`
}

// ─── Rating Tiers ───────────────────────────────────────────────────────────

// Rating is the tier a score falls into.
type Rating string

const (
	RatingExcellent Rating = "excellent" // ≥ 750
	RatingGood      Rating = "good"      // 650–749
	RatingFair      Rating = "fair"      // 550–649
	RatingPoor      Rating = "poor"      // 450–549
	RatingSubprime  Rating = "subprime"  // < 450
)

// Trend is the direction of recent credit history.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendSteady    Trend = "steady"
	TrendDeclining Trend = "declining"
)

// CreditReport is the query answer for one account.
type CreditReport struct {
	AccountID string        `json:"account_id"`
	Score     int           `json:"score"`
	Rating    Rating        `json:"rating"`
	Trend     Trend         `json:"trend"`
	History   []CreditEvent `json:"history,omitempty"` // most recent last
}
