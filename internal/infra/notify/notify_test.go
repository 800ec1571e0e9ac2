package notify

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/jordan-wright/email"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/XelaNull/UsedPlus-sub003/internal/domain"
)

func sampleEvent(t domain.EventType) domain.Event {
	return domain.Event{
		Type:      t,
		At:        1440,
		AccountID: "acct-1",
		Ref:       uuid.MustParse("00000000-0000-4000-8000-000000000042"),
		Amount:    decimal.NewFromFloat(3866.56),
		Detail:    "streak 1",
	}
}

// recordingSink captures delivered events and can be told to fail.
type recordingSink struct {
	name      string
	delivered []domain.Event
	err       error
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Deliver(_ context.Context, ev domain.Event) error {
	s.delivered = append(s.delivered, ev)
	return s.err
}

// ─── Fanout ─────────────────────────────────────────────────────────────────

func TestFanout_DeliversToEverySink(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	a := &recordingSink{name: "a"}
	b := &recordingSink{name: "b"}
	f := NewFanout(logger, a, b)

	f.Notify(context.Background(), sampleEvent(domain.EventPaymentApplied))

	if len(a.delivered) != 1 || len(b.delivered) != 1 {
		t.Errorf("deliveries = %d/%d, want 1/1", len(a.delivered), len(b.delivered))
	}
}

func TestFanout_AbsorbsSinkFailures(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	broken := &recordingSink{name: "broken", err: errors.New("smtp timeout")}
	healthy := &recordingSink{name: "healthy"}
	f := NewFanout(logger, broken, healthy)

	f.Notify(context.Background(), sampleEvent(domain.EventPaymentMissed))

	// The failure is logged, and delivery continues to the next sink.
	if len(healthy.delivered) != 1 {
		t.Error("failure in one sink must not stop the others")
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.WarnLevel {
		t.Fatalf("expected a warn entry, got %+v", entry)
	}
	if entry.Data["sink"] != "broken" {
		t.Errorf("sink field = %v, want broken", entry.Data["sink"])
	}
}

func TestLogSink_RecordsEventFields(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	s := NewLogSink(logger)

	if err := s.Deliver(context.Background(), sampleEvent(domain.EventListingSold)); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("nothing logged")
	}
	if entry.Data["type"] != domain.EventListingSold {
		t.Errorf("type field = %v", entry.Data["type"])
	}
	if entry.Data["amount"] != "3866.56" {
		t.Errorf("amount field = %v, want 3866.56", entry.Data["amount"])
	}
}

// ─── Headline ───────────────────────────────────────────────────────────────

func TestHeadline(t *testing.T) {
	tests := []struct {
		name string
		ev   domain.Event
		want string // substring
	}{
		{"applied", sampleEvent(domain.EventPaymentApplied), "payment of 3866.56 applied"},
		{"missed", sampleEvent(domain.EventPaymentMissed), "payment missed"},
		{"defaulted", sampleEvent(domain.EventDealDefaulted), "defaulted with balance"},
		{"repossessed", sampleEvent(domain.EventDealRepossessed), "collateral seized"},
		{"sold", sampleEvent(domain.EventListingSold), "sold for 3866.56"},
		{"offer", sampleEvent(domain.EventOfferGenerated), "offer of 3866.56 received"},
		{"rating", sampleEvent(domain.EventCreditChanged), "credit rating changed"},
		{"unknown type falls back", domain.Event{Type: "mystery"}, "mystery"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Headline(tt.ev); !strings.Contains(got, tt.want) {
				t.Errorf("Headline = %q, want substring %q", got, tt.want)
			}
		})
	}

	// Search outcome changes the sentence entirely.
	ok := sampleEvent(domain.EventSearchResolved)
	ok.Detail = "succeeded"
	if got := Headline(ok); !strings.Contains(got, "item found at") {
		t.Errorf("succeeded headline = %q", got)
	}
	fail := sampleEvent(domain.EventSearchResolved)
	fail.Detail = "failed"
	if got := Headline(fail); !strings.Contains(got, "came up empty") {
		t.Errorf("failed headline = %q", got)
	}

	negam := sampleEvent(domain.EventPaymentApplied)
	negam.NegAm = true
	if got := Headline(negam); !strings.Contains(got, "balance grew") {
		t.Errorf("negam headline = %q", got)
	}
}

// ─── Email Sink ─────────────────────────────────────────────────────────────

func newTestEmailSink(lookup Directory) (*EmailSink, *[]*email.Email) {
	var sent []*email.Email
	s := NewEmailSink(EmailConfig{
		Host: "smtp.example.com",
		Port: 587,
		From: "noreply@usedplus.example",
	}, lookup)
	s.send = func(e *email.Email, addr string, auth smtp.Auth) error {
		sent = append(sent, e)
		return nil
	}
	return s, &sent
}

func TestEmailSink_DeliversMappedEvents(t *testing.T) {
	s, sent := newTestEmailSink(func(accountID string) (string, bool) {
		return "farmer@example.com", true
	})

	if err := s.Deliver(context.Background(), sampleEvent(domain.EventPaymentMissed)); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(*sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(*sent))
	}
	e := (*sent)[0]
	if e.To[0] != "farmer@example.com" {
		t.Errorf("To = %v", e.To)
	}
	if e.From != "noreply@usedplus.example" {
		t.Errorf("From = %q", e.From)
	}
	if e.Subject != "Missed payment on your deal" {
		t.Errorf("Subject = %q", e.Subject)
	}
	if !strings.Contains(string(e.Text), "payment missed") {
		t.Errorf("body = %q, want headline inside", e.Text)
	}
}

func TestEmailSink_SkipsUnmappedAndUnaddressed(t *testing.T) {
	t.Run("unmapped event type", func(t *testing.T) {
		s, sent := newTestEmailSink(func(string) (string, bool) { return "x@example.com", true })
		if err := s.Deliver(context.Background(), sampleEvent(domain.EventDealActivated)); err != nil {
			t.Fatalf("Deliver: %v", err)
		}
		if len(*sent) != 0 {
			t.Errorf("sent %d emails for an unmapped type", len(*sent))
		}
	})

	t.Run("no address on file", func(t *testing.T) {
		s, sent := newTestEmailSink(func(string) (string, bool) { return "", false })
		if err := s.Deliver(context.Background(), sampleEvent(domain.EventPaymentMissed)); err != nil {
			t.Fatalf("Deliver: %v", err)
		}
		if len(*sent) != 0 {
			t.Errorf("sent %d emails without an address", len(*sent))
		}
	})
}

func TestEmailSink_PropagatesTransportError(t *testing.T) {
	s, _ := newTestEmailSink(func(string) (string, bool) { return "x@example.com", true })
	s.send = func(*email.Email, string, smtp.Auth) error { return errors.New("connection refused") }

	err := s.Deliver(context.Background(), sampleEvent(domain.EventDealDefaulted))
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("err = %v, want wrapped transport error", err)
	}
}

// ─── Telegram Sink ──────────────────────────────────────────────────────────

type fakeBot struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, f.err
}

func TestTelegramSink_SendsToOpsChat(t *testing.T) {
	bot := &fakeBot{}
	s := &TelegramSink{bot: bot, chatID: 4242}

	if err := s.Deliver(context.Background(), sampleEvent(domain.EventListingSold)); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(bot.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(bot.sent))
	}
	msg, ok := bot.sent[0].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("sent %T, want MessageConfig", bot.sent[0])
	}
	if msg.ChatID != 4242 {
		t.Errorf("ChatID = %d, want 4242", msg.ChatID)
	}
	if !strings.Contains(msg.Text, "sold for 3866.56") {
		t.Errorf("text = %q, want headline inside", msg.Text)
	}
	if !strings.HasPrefix(msg.Text, "✅") {
		t.Errorf("text = %q, want good-news marker first", msg.Text)
	}
}

func TestTelegramSink_PropagatesSendError(t *testing.T) {
	s := &TelegramSink{bot: &fakeBot{err: errors.New("bot blocked")}, chatID: 1}

	err := s.Deliver(context.Background(), sampleEvent(domain.EventPaymentMissed))
	if err == nil || !strings.Contains(err.Error(), "bot blocked") {
		t.Errorf("err = %v, want wrapped send error", err)
	}
}
