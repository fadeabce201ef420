package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/barnabee/barnabee/internal/domain/nlu"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// TelegramSink delivers safety alerts to a guardian's Telegram chat.
type TelegramSink struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *zap.Logger
}

var _ nlu.NotificationSink = (*TelegramSink)(nil)

// NewTelegramSink creates a sink from a bot token and a target chat id.
func NewTelegramSink(token string, chatID int64, logger *zap.Logger) (*TelegramSink, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	logger.Info("Telegram notification sink ready",
		zap.String("bot", bot.Self.UserName),
		zap.Int64("chat_id", chatID),
	)
	return &TelegramSink{bot: bot, chatID: chatID, logger: logger}, nil
}

// Notify sends one alert message. The channel becomes a tag line in the
// message; payload keys are rendered sorted for stable output.
func (s *TelegramSink) Notify(_ context.Context, channel string, payload map[string]any) error {
	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ [%s]\n", channel)

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\n", k, payload[k])
	}

	msg := tgbotapi.NewMessage(s.chatID, b.String())
	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram alert: %w", err)
	}
	return nil
}
