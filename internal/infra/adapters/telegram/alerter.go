package telegram

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"cycle-rental-payments/internal/domain/ports/adapter"
)

var _ adapter.OperatorAlerter = (*Alerter)(nil)

// sender is the part of *tgbotapi.BotAPI the alerter needs.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Alerter posts operator alerts into one Telegram chat.
type Alerter struct {
	bot    sender
	chatID int64
}

func NewAlerter(token string, chatID int64) (*Alerter, error) {
	if token == "" || chatID == 0 {
		return nil, errors.New("telegram alerter needs a token and a chat id")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Alerter{bot: bot, chatID: chatID}, nil
}

// maxMessage is Telegram's text limit.
const maxMessage = 4096

func (a *Alerter) Alert(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r := []rune(text); len(r) > maxMessage {
		text = string(r[:maxMessage-1]) + "…"
	}
	msg := tgbotapi.NewMessage(a.chatID, text)
	msg.DisableWebPagePreview = true
	_, err := a.bot.Send(msg)
	return err
}
