package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// telegramMessageLimit is the Bot API maximum text length.
const telegramMessageLimit = 4096

// TelegramConfig configures a TelegramNotifier.
type TelegramConfig struct {
	Token  string
	ChatID int64
	// Endpoint overrides tgbotapi.APIEndpoint, e.g. for a local Bot API server.
	Endpoint string
	Timeout  time.Duration
	Logger   zerolog.Logger
}

// TelegramNotifier sends messages to one Telegram chat.
type TelegramNotifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger zerolog.Logger
}

// NewTelegramNotifier authenticates the bot token and returns a notifier.
func NewTelegramNotifier(cfg TelegramConfig) (*TelegramNotifier, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	if cfg.ChatID == 0 {
		return nil, fmt.Errorf("chat id is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	n := &TelegramNotifier{
		api:    api,
		chatID: cfg.ChatID,
		logger: cfg.Logger.With().Str("component", "notify").Logger(),
	}

	n.logger.Info().
		Str("username", api.Self.UserName).
		Int64("chat_id", cfg.ChatID).
		Msg("Telegram notifier authenticated")

	return n, nil
}

// Send delivers the message, truncated to the Bot API limit.
func (n *TelegramNotifier) Send(ctx context.Context, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	runes := []rune(message)
	if len(runes) > telegramMessageLimit {
		message = string(runes[:telegramMessageLimit-3]) + "..."
	}

	if _, err := n.api.Send(tgbotapi.NewMessage(n.chatID, message)); err != nil {
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) {
			return &Error{StatusCode: apiErr.Code, Body: apiErr.Message}
		}
		return &Error{Body: err.Error()}
	}

	n.logger.Debug().Int64("chat_id", n.chatID).Msg("Notification delivered")
	return nil
}
