// Package notify implements the outbound event notifier spec §6 calls for:
// trade opened, trade closed, and equity alert, fanned out to a single
// admin Telegram chat. The interface is abstract enough for an SSE fan-out
// to sit alongside this implementation without touching any caller.
package notify

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kieranvance/pulsetrader/internal/adapters/config"
	"github.com/kieranvance/pulsetrader/pkg/logger"
	"github.com/kieranvance/pulsetrader/pkg/models"
)

// TelegramNotifier sends trade and equity events to a single admin chat,
// satisfying internal/agent.Notifier.
type TelegramNotifier struct {
	api    *tgbotapi.BotAPI
	cfg    *config.TelegramConfig
	chatID int64
}

// NewTelegramNotifier dials the bot API with botToken. A notifier can be
// constructed with an empty token for environments with no chat configured
// (every Send* call then becomes a no-op).
func NewTelegramNotifier(cfg *config.TelegramConfig) (*TelegramNotifier, error) {
	if cfg.BotToken == "" {
		return &TelegramNotifier{cfg: cfg}, nil
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot API: %w", err)
	}
	bot.Debug = false

	logger.Info("telegram notifier initialized", zap.String("bot_username", bot.Self.UserName))
	return &TelegramNotifier{api: bot, cfg: cfg, chatID: cfg.AdminChatID}, nil
}

// SendTradeOpened reports a new position to the admin chat.
func (n *TelegramNotifier) SendTradeOpened(ctx context.Context, agentName, symbol, direction string, size, price decimal.Decimal) error {
	if !n.cfg.AlertOnTrades {
		return nil
	}
	emoji := "📈"
	if direction == string(models.PositionShort) {
		emoji = "📉"
	}
	msg := fmt.Sprintf("%s *%s* opened %s %s\nSize: %s  Price: %s\n_%s_",
		emoji, agentName, direction, symbol, size.StringFixed(2), price.StringFixed(2), time.Now().Format("15:04:05"))
	return n.send(msg)
}

// SendTradeClosed reports a closed position's PnL to the admin chat.
func (n *TelegramNotifier) SendTradeClosed(ctx context.Context, agentName, symbol string, pnl decimal.Decimal, reason models.ExitReason) error {
	if !n.cfg.AlertOnTrades {
		return nil
	}
	emoji := "💚"
	if pnl.IsNegative() {
		emoji = "❤️"
	}
	sign := ""
	if pnl.IsPositive() {
		sign = "+"
	}
	msg := fmt.Sprintf("%s *%s* closed %s\nPnL: %s%s  Reason: %s",
		emoji, agentName, symbol, sign, pnl.StringFixed(2), reason)
	return n.send(msg)
}

// SendEquityAlert warns the admin chat about drawdown beyond the
// circuit-breaker threshold.
func (n *TelegramNotifier) SendEquityAlert(ctx context.Context, agentName string, drawdownPct float64) error {
	if !n.cfg.AlertOnErrors {
		return nil
	}
	msg := fmt.Sprintf("⚠️ *%s* drawdown alert: %.1f%% below peak equity", agentName, drawdownPct)
	return n.send(msg)
}

func (n *TelegramNotifier) send(text string) error {
	if n.api == nil || n.chatID == 0 {
		return nil
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := n.api.Send(msg); err != nil {
		logger.Error("failed to send telegram message", zap.Int64("chat_id", n.chatID), zap.Error(err))
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}
