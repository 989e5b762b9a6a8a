package notification

import (
	"context"
	"log/slog"
)

// LoggerNotifier writes wallet updates to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Notify logs a summary of the update.
func (n *LoggerNotifier) Notify(_ context.Context, u Update) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("wallet updated",
		slog.Int64("balance", u.Wallet.Balance),
		slog.String("formatted_balance", u.Wallet.FormattedBalance),
		slog.Int("accounts", len(u.Wallet.Accounts)),
		slog.Int("broker_accounts", len(u.Wallet.BrokerAccounts)),
	)
	return nil
}
