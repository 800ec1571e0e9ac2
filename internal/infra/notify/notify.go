// Package notify delivers engine events out of band: a logrus sink that is
// always on, plus optional SMTP email and Telegram sinks enabled by config.
// Delivery is best-effort by contract: sink failures are logged and absorbed,
// never propagated back into the engine.
package notify

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/XelaNull/UsedPlus-sub003/internal/domain"
)

// Sink delivers one event over one transport.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev domain.Event) error
}

// Fanout implements domain.Notifier over a set of sinks.
type Fanout struct {
	log   *logrus.Logger
	sinks []Sink
}

// NewFanout builds a notifier that delivers through every given sink.
func NewFanout(log *logrus.Logger, sinks ...Sink) *Fanout {
	if log == nil {
		log = logrus.New()
	}
	return &Fanout{log: log, sinks: sinks}
}

// Notify delivers the event to every sink, absorbing failures.
func (f *Fanout) Notify(ctx context.Context, ev domain.Event) {
	for _, s := range f.sinks {
		if err := s.Deliver(ctx, ev); err != nil {
			f.log.WithFields(logrus.Fields{
				"sink":    s.Name(),
				"type":    ev.Type,
				"account": ev.AccountID,
			}).WithError(err).Warn("notification delivery failed")
		}
	}
}

// ─── Log Sink ───────────────────────────────────────────────────────────────

// LogSink writes every event to the structured log. It never fails.
type LogSink struct {
	log *logrus.Logger
}

// NewLogSink builds the always-on log sink.
func NewLogSink(log *logrus.Logger) *LogSink {
	if log == nil {
		log = logrus.New()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(_ context.Context, ev domain.Event) error {
	s.log.WithFields(logrus.Fields{
		"type":    ev.Type,
		"at":      ev.At.String(),
		"account": ev.AccountID,
		"ref":     ev.Ref,
		"amount":  ev.Amount.StringFixed(2),
		"detail":  ev.Detail,
	}).Info("engine event")
	return nil
}

// ─── Rendering ──────────────────────────────────────────────────────────────

// Headline renders one event as a short human sentence for email and chat
// transports.
func Headline(ev domain.Event) string {
	amount := ev.Amount.StringFixed(2)
	switch ev.Type {
	case domain.EventDealActivated:
		return fmt.Sprintf("deal %s activated, financed amount %s", ev.Ref, amount)
	case domain.EventPaymentApplied:
		if ev.NegAm {
			return fmt.Sprintf("payment of %s applied to deal %s, below accrued interest: balance grew", amount, ev.Ref)
		}
		return fmt.Sprintf("payment of %s applied to deal %s", amount, ev.Ref)
	case domain.EventPaymentMissed:
		return fmt.Sprintf("payment missed on deal %s, interest %s capitalized (%s)", ev.Ref, amount, ev.Detail)
	case domain.EventDealPaidOff:
		return fmt.Sprintf("deal %s paid off (%s)", ev.Ref, ev.Detail)
	case domain.EventDealDefaulted:
		return fmt.Sprintf("deal %s defaulted with balance %s", ev.Ref, amount)
	case domain.EventDealRepossessed:
		return fmt.Sprintf("deal %s repossessed, collateral seized: %s", ev.Ref, ev.Detail)
	case domain.EventSearchResolved:
		if ev.Detail == "succeeded" {
			return fmt.Sprintf("search %s succeeded: item found at %s", ev.Ref, amount)
		}
		return fmt.Sprintf("search %s came up empty", ev.Ref)
	case domain.EventOfferGenerated:
		return fmt.Sprintf("offer of %s received on listing %s", amount, ev.Ref)
	case domain.EventOfferExpired:
		return fmt.Sprintf("offer on listing %s expired (%s)", ev.Ref, ev.Detail)
	case domain.EventListingSold:
		return fmt.Sprintf("listing %s sold for %s", ev.Ref, amount)
	case domain.EventListingExpired:
		return fmt.Sprintf("listing %s expired (%s)", ev.Ref, ev.Detail)
	case domain.EventCreditChanged:
		return fmt.Sprintf("credit rating changed: %s", ev.Detail)
	default:
		return string(ev.Type)
	}
}
