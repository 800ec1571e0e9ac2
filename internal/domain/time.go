package domain

import "fmt"

// ─── Simulated Time ─────────────────────────────────────────────────────────
// The engine runs on simulated hours, not wall time. A Timestamp is a whole
// number of hours since the start of the simulation; month boundaries fall
// every hoursPerMonth hours. Ticks are identified by their Timestamp, which
// is what makes replays detectable.

// DefaultHoursPerMonth is one 30-day month at hour granularity.
const DefaultHoursPerMonth = 720

// Timestamp is a simulated clock reading in whole hours since hour zero.
type Timestamp int64

// Add returns the timestamp advanced by the given number of hours.
func (t Timestamp) Add(hours int64) Timestamp { return t + Timestamp(hours) }

// Month returns the zero-based month index containing t.
func (t Timestamp) Month(hoursPerMonth int) int {
	if hoursPerMonth <= 0 {
		hoursPerMonth = DefaultHoursPerMonth
	}
	return int(int64(t) / int64(hoursPerMonth))
}

// IsMonthStart reports whether t is the first hour of its month.
func (t Timestamp) IsMonthStart(hoursPerMonth int) bool {
	if hoursPerMonth <= 0 {
		hoursPerMonth = DefaultHoursPerMonth
	}
	return int64(t)%int64(hoursPerMonth) == 0
}

// String formats the timestamp as "m<month>h<hour-in-month>" using the
// default month length, for logs only.
func (t Timestamp) String() string {
	return fmt.Sprintf("m%dh%d", t.Month(DefaultHoursPerMonth), int64(t)%DefaultHoursPerMonth)
}
