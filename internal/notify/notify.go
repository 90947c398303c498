// Package notify delivers license issuance notices to administrators.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/BryanChi/SuperGPT-Website/internal/license"
)

// LogNotifier writes issuance notices to the structured log.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "notifier")}
}

func (n *LogNotifier) LicenseIssued(ctx context.Context, lic license.License, p license.Payment) error {
	n.logger.InfoContext(ctx, "license issued for payment",
		slog.String("license_key_masked", license.MaskKey(lic.Key)),
		slog.String("transaction_id", p.TransactionID),
		slog.String("amount", p.Amount),
		slog.String("currency", p.Currency))
	return nil
}

// TelegramNotifier posts issuance notices to an admin chat.
type TelegramNotifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramNotifier connects to the Bot API with token.
func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	return NewTelegramNotifierWithAPI(api, chatID), nil
}

func NewTelegramNotifierWithAPI(api *tgbotapi.BotAPI, chatID int64) *TelegramNotifier {
	api.Debug = false
	return &TelegramNotifier{api: api, chatID: chatID}
}

func (n *TelegramNotifier) LicenseIssued(_ context.Context, lic license.License, p license.Payment) error {
	msg := tgbotapi.NewMessage(n.chatID, FormatIssued(lic, p))
	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// FormatIssued renders the admin notice for a paid license.
func FormatIssued(lic license.License, p license.Payment) string {
	var b strings.Builder
	b.WriteString("New license issued\n")
	fmt.Fprintf(&b, "Key: %s\n", lic.Key)
	fmt.Fprintf(&b, "Email: %s\n", lic.Email)
	if p.PayerName != "" {
		fmt.Fprintf(&b, "Payer: %s\n", p.PayerName)
	}
	fmt.Fprintf(&b, "Transaction: %s\n", p.TransactionID)
	if p.Amount != "" {
		fmt.Fprintf(&b, "Amount: %s %s\n", p.Amount, p.Currency)
	}
	if lic.ExpiresAt != nil {
		fmt.Fprintf(&b, "Expires: %s\n", lic.ExpiresAt.Format("2006-01-02"))
	}
	return strings.TrimRight(b.String(), "\n")
}
