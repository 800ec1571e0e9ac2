package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"

	"github.com/XelaNull/UsedPlus-sub003/internal/domain"
)

// emailSubjects maps the event types worth an email to their subject line.
// Everything else is skipped silently.
var emailSubjects = map[domain.EventType]string{
	domain.EventPaymentMissed:   "Missed payment on your deal",
	domain.EventDealDefaulted:   "Your deal has defaulted",
	domain.EventDealRepossessed: "Collateral repossessed",
	domain.EventDealPaidOff:     "Deal paid off",
	domain.EventSearchResolved:  "Your equipment search has resolved",
	domain.EventOfferGenerated:  "Offer received on your listing",
}

// Directory resolves an account to its notification email address. A false
// return means no address on file, which is not a delivery failure.
type Directory func(accountID string) (string, bool)

// EmailConfig configures the SMTP sink.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// EmailSink mails account-facing events over SMTP.
type EmailSink struct {
	cfg    EmailConfig
	lookup Directory

	// send is swappable in tests; the default posts over SMTP.
	send func(e *email.Email, addr string, auth smtp.Auth) error
}

// NewEmailSink builds the SMTP sink. lookup maps account IDs to addresses.
func NewEmailSink(cfg EmailConfig, lookup Directory) *EmailSink {
	return &EmailSink{
		cfg:    cfg,
		lookup: lookup,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}
}

func (s *EmailSink) Name() string { return "email" }

// Deliver mails the event if its type is account-facing and the account has
// an address on file.
func (s *EmailSink) Deliver(_ context.Context, ev domain.Event) error {
	subject, ok := emailSubjects[ev.Type]
	if !ok {
		return nil
	}
	to, ok := s.lookup(ev.AccountID)
	if !ok || to == "" {
		return nil
	}

	e := email.NewEmail()
	e.From = s.cfg.From
	e.To = []string{to}
	e.Subject = subject
	e.Text = []byte(fmt.Sprintf(
		"At simulated time %s:\n\n%s\n\nUsedPlus Marketplace\n",
		ev.At, Headline(ev),
	))

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	if err := s.send(e, addr, auth); err != nil {
		return fmt.Errorf("send email to %s: %w", to, err)
	}
	return nil
}
