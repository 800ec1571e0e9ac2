package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/XelaNull/UsedPlus-sub003/internal/domain"
)

// sender is the slice of the bot API the sink uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSink posts every event to a fixed ops chat.
type TelegramSink struct {
	bot    sender
	chatID int64
}

// NewTelegramSink builds the Telegram sink around a connected bot.
func NewTelegramSink(bot *tgbotapi.BotAPI, chatID int64) *TelegramSink {
	return &TelegramSink{bot: bot, chatID: chatID}
}

func (s *TelegramSink) Name() string { return "telegram" }

func (s *TelegramSink) Deliver(_ context.Context, ev domain.Event) error {
	text := fmt.Sprintf("%s [%s] %s", marker(ev.Type), ev.At, Headline(ev))
	msg := tgbotapi.NewMessage(s.chatID, text)
	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// marker picks a chat prefix by how good the news is.
func marker(t domain.EventType) string {
	switch t {
	case domain.EventPaymentMissed, domain.EventDealDefaulted, domain.EventDealRepossessed,
		domain.EventOfferExpired, domain.EventListingExpired:
		return "❌"
	case domain.EventDealPaidOff, domain.EventListingSold, domain.EventOfferGenerated:
		return "✅"
	default:
		return "ℹ️"
	}
}
