// Package observability provides engine metrics and lightweight tracing.
//
// Metrics are package-level promauto vars scraped from /metrics; RecordEvent
// mirrors tick events onto them so the engine never touches counters
// directly. The tracer keeps recent operation spans in a ring buffer for
// the admin status endpoint, without an external tracing SDK.
package observability

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/XelaNull/UsedPlus-sub003/internal/domain"
)

// ═══════════════════════════════════════════════════════════════════════════
// Trace Spans — in-memory operation tracking, no external SDK
// ═══════════════════════════════════════════════════════════════════════════

// SpanStatus indicates success/failure.
type SpanStatus int

const (
	SpanOK SpanStatus = iota
	SpanError
)

// Span represents one traced engine or API operation.
type Span struct {
	TraceID   string            `json:"trace_id"`
	SpanID    string            `json:"span_id"`
	ParentID  string            `json:"parent_id,omitempty"`
	Operation string            `json:"operation"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time,omitempty"`
	Duration  time.Duration     `json:"duration,omitempty"`
	Status    SpanStatus        `json:"status"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// ─── Tracer ─────────────────────────────────────────────────────────────────

// Tracer records operation spans into a bounded ring buffer.
type Tracer struct {
	mu       sync.Mutex
	spans    []Span
	maxSpans int
	enabled  bool
}

// TracerConfig configures the tracer.
type TracerConfig struct {
	Enabled  bool
	MaxSpans int // ring buffer size (default 10_000)
}

// DefaultTracerConfig returns production defaults.
func DefaultTracerConfig() TracerConfig {
	return TracerConfig{
		Enabled:  true,
		MaxSpans: 10_000,
	}
}

// NewTracer creates a tracer.
func NewTracer(cfg TracerConfig) *Tracer {
	if cfg.MaxSpans <= 0 {
		cfg.MaxSpans = 10_000
	}
	return &Tracer{
		spans:    make([]Span, 0, cfg.MaxSpans),
		maxSpans: cfg.MaxSpans,
		enabled:  cfg.Enabled,
	}
}

// StartSpan begins a span for the named operation. The caller must pass the
// span to EndSpan when the operation finishes.
func (t *Tracer) StartSpan(ctx context.Context, operation string, attrs map[string]string) *Span {
	if !t.enabled {
		return &Span{Operation: operation}
	}
	return &Span{
		TraceID:   traceIDFromContext(ctx),
		SpanID:    generateID(),
		ParentID:  spanIDFromContext(ctx),
		Operation: operation,
		StartTime: time.Now(),
		Status:    SpanOK,
		Attrs:     attrs,
	}
}

// EndSpan completes a span and records it.
func (t *Tracer) EndSpan(span *Span, err error) {
	if !t.enabled || span == nil {
		return
	}

	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)
	if err != nil {
		span.Status = SpanError
		if span.Attrs == nil {
			span.Attrs = make(map[string]string)
		}
		span.Attrs["error"] = err.Error()
		TraceErrors.Inc()
	}
	TracesRecorded.Inc()

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.spans) >= t.maxSpans {
		t.spans = t.spans[1:]
	}
	t.spans = append(t.spans, *span)
}

// Spans returns a copy of the most recent spans, newest last.
func (t *Tracer) Spans(limit int) []Span {
	t.mu.Lock()
	defer t.mu.Unlock()

	if limit <= 0 || limit > len(t.spans) {
		limit = len(t.spans)
	}
	start := len(t.spans) - limit
	out := make([]Span, limit)
	copy(out, t.spans[start:])
	return out
}

// SpanCount returns the number of recorded spans.
func (t *Tracer) SpanCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.spans)
}

// Reset clears all recorded spans.
func (t *Tracer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spans = t.spans[:0]
}

// ─── Context Helpers ────────────────────────────────────────────────────────

type contextKey string

const (
	traceIDKey contextKey = "usedplus-trace-id"
	spanIDKey  contextKey = "usedplus-span-id"
)

// WithTraceID returns a context carrying the given trace ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// WithSpanID returns a context carrying the given span ID.
func WithSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, spanIDKey, spanID)
}

func traceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return generateID()
}

func spanIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(spanIDKey).(string); ok {
		return v
	}
	return ""
}

// generateID creates a short unique ID (not cryptographically secure — fine
// for tracing).
var spanCounter atomic.Int64

func generateID() string {
	n := spanCounter.Add(1)
	return fmt.Sprintf("%s-%d", time.Now().Format("20060102150405"), n)
}

// ═══════════════════════════════════════════════════════════════════════════
// Prometheus Metrics
// ═══════════════════════════════════════════════════════════════════════════

// ─── Deal Metrics ───────────────────────────────────────────────────────────

// PaymentsApplied counts collected monthly payments.
var PaymentsApplied = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "usedplus",
	Subsystem: "deals",
	Name:      "payments_applied_total",
	Help:      "Total monthly payments collected and applied.",
})

// PaymentsNegAm counts applied payments below accrued interest.
var PaymentsNegAm = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "usedplus",
	Subsystem: "deals",
	Name:      "payments_negative_amortization_total",
	Help:      "Total applied payments that grew the balance (under accrued interest).",
})

// PaymentsMissed counts missed monthly payments.
var PaymentsMissed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "usedplus",
	Subsystem: "deals",
	Name:      "payments_missed_total",
	Help:      "Total missed monthly payments (capitalized into balances).",
})

// DealsActivated counts deals that reached Active.
var DealsActivated = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "usedplus",
	Subsystem: "deals",
	Name:      "activated_total",
	Help:      "Total deals funded and activated.",
})

// DealsPaidOff counts deals settled in full.
var DealsPaidOff = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "usedplus",
	Subsystem: "deals",
	Name:      "paid_off_total",
	Help:      "Total deals paid off (final payment or early payoff).",
})

// DealsDefaulted counts deals that hit the missed-payment threshold.
var DealsDefaulted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "usedplus",
	Subsystem: "deals",
	Name:      "defaulted_total",
	Help:      "Total deals defaulted on consecutive missed payments.",
})

// DealsRepossessed counts secured defaults that seized collateral.
var DealsRepossessed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "usedplus",
	Subsystem: "deals",
	Name:      "repossessed_total",
	Help:      "Total defaulted deals whose collateral was repossessed.",
})

// DealsPending gauges deals awaiting funding.
var DealsPending = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "usedplus",
	Subsystem: "deals",
	Name:      "pending",
	Help:      "Deals created but not yet funded.",
})

// DealsActive gauges live serviced deals.
var DealsActive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "usedplus",
	Subsystem: "deals",
	Name:      "active",
	Help:      "Deals currently being serviced.",
})

// ─── Market Metrics ─────────────────────────────────────────────────────────

// SearchesResolved counts resolved searches by outcome (succeeded/failed).
var SearchesResolved = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "usedplus",
	Subsystem: "market",
	Name:      "searches_resolved_total",
	Help:      "Total buy-side searches resolved, by outcome.",
}, []string{"outcome"})

// OffersGenerated counts offers produced by listing resolutions.
var OffersGenerated = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "usedplus",
	Subsystem: "market",
	Name:      "offers_generated_total",
	Help:      "Total purchase offers generated on sale listings.",
})

// OffersExpired counts offers that lapsed unanswered or were answered late.
var OffersExpired = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "usedplus",
	Subsystem: "market",
	Name:      "offers_expired_total",
	Help:      "Total purchase offers expired before acceptance.",
})

// OffersAccepted counts accepted offers.
var OffersAccepted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "usedplus",
	Subsystem: "market",
	Name:      "offers_accepted_total",
	Help:      "Total purchase offers accepted by sellers.",
})

// OffersDeclined counts declined offers.
var OffersDeclined = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "usedplus",
	Subsystem: "market",
	Name:      "offers_declined_total",
	Help:      "Total purchase offers declined by sellers.",
})

// ListingsSold counts listings settled by an accepted offer.
var ListingsSold = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "usedplus",
	Subsystem: "market",
	Name:      "listings_sold_total",
	Help:      "Total sale listings settled.",
})

// ListingsExpired counts listings that exhausted their retry budget.
var ListingsExpired = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "usedplus",
	Subsystem: "market",
	Name:      "listings_expired_total",
	Help:      "Total sale listings expired after the retry budget ran out.",
})

// SearchesOpen gauges unresolved buy-side searches.
var SearchesOpen = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "usedplus",
	Subsystem: "market",
	Name:      "searches_open",
	Help:      "Buy-side searches still counting down.",
})

// ListingsOpen gauges live sale listings.
var ListingsOpen = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "usedplus",
	Subsystem: "market",
	Name:      "listings_open",
	Help:      "Sale listings open or holding a pending offer.",
})

// ─── Credit Metrics ─────────────────────────────────────────────────────────

// RatingChanges counts credit rating tier transitions.
var RatingChanges = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "usedplus",
	Subsystem: "credit",
	Name:      "rating_changes_total",
	Help:      "Total credit rating tier transitions observed at month boundaries.",
})

// ─── Engine Metrics ─────────────────────────────────────────────────────────

// TickDuration observes wall time spent per AdvanceTick call.
var TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "usedplus",
	Subsystem: "engine",
	Name:      "tick_duration_seconds",
	Help:      "Wall-clock duration of AdvanceTick calls.",
	Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
})

// HoursProcessed counts simulated hours the engine has advanced through.
var HoursProcessed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "usedplus",
	Subsystem: "engine",
	Name:      "hours_processed_total",
	Help:      "Total simulated hours processed.",
})

// AccountsRegistered gauges the registered account population.
var AccountsRegistered = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "usedplus",
	Subsystem: "engine",
	Name:      "accounts",
	Help:      "Registered accounts.",
})

// ─── Trace Metrics ──────────────────────────────────────────────────────────

// TracesRecorded counts total spans recorded.
var TracesRecorded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "usedplus",
	Subsystem: "traces",
	Name:      "spans_recorded_total",
	Help:      "Total trace spans recorded.",
})

// TraceErrors counts error spans.
var TraceErrors = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "usedplus",
	Subsystem: "traces",
	Name:      "error_spans_total",
	Help:      "Total trace spans with error status.",
})

// ─── Event Mirror ───────────────────────────────────────────────────────────

// RecordEvent bumps the counter matching one tick event. Unknown types are
// ignored so new event kinds never break scraping.
func RecordEvent(ev domain.Event) {
	switch ev.Type {
	case domain.EventDealActivated:
		DealsActivated.Inc()
	case domain.EventPaymentApplied:
		PaymentsApplied.Inc()
		if ev.NegAm {
			PaymentsNegAm.Inc()
		}
	case domain.EventPaymentMissed:
		PaymentsMissed.Inc()
	case domain.EventDealPaidOff:
		DealsPaidOff.Inc()
	case domain.EventDealDefaulted:
		DealsDefaulted.Inc()
	case domain.EventDealRepossessed:
		DealsRepossessed.Inc()
	case domain.EventSearchResolved:
		SearchesResolved.WithLabelValues(ev.Detail).Inc()
	case domain.EventOfferGenerated:
		OffersGenerated.Inc()
	case domain.EventOfferExpired:
		OffersExpired.Inc()
	case domain.EventListingSold:
		ListingsSold.Inc()
	case domain.EventListingExpired:
		ListingsExpired.Inc()
	case domain.EventCreditChanged:
		RatingChanges.Inc()
	}
}

// SetQueueGauges refreshes the population gauges after a tick.
func SetQueueGauges(pendingDeals, activeDeals, openSearches, openListings, accounts int) {
	DealsPending.Set(float64(pendingDeals))
	DealsActive.Set(float64(activeDeals))
	SearchesOpen.Set(float64(openSearches))
	ListingsOpen.Set(float64(openListings))
	AccountsRegistered.Set(float64(accounts))
}
