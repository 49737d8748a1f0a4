package notifier

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/semmidev/snapkeep/internal/config"
	"github.com/semmidev/snapkeep/internal/domain"
)

type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegram(cfg *config.TelegramConfig) (*Telegram, error) {
	return newTelegram(cfg, tgbotapi.APIEndpoint)
}

func newTelegram(cfg *config.TelegramConfig, endpoint string) (*Telegram, error) {
	chatID, err := strconv.ParseInt(cfg.ChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat id %q: %w", cfg.ChatID, err)
	}

	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(cfg.BotToken, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &Telegram{
		bot:    bot,
		chatID: chatID,
	}, nil
}

func (t *Telegram) Notify(ctx context.Context, event domain.Event) error {
	icon := "✅"
	if event.Outcome != domain.StatusSuccess {
		icon = "❌"
	}

	msg := tgbotapi.NewMessage(t.chatID, fmt.Sprintf("%s %s\n\n%s", icon, subject(event), body(event)))
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram notification: %w", err)
	}
	return nil
}
