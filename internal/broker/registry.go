// Package broker tracks databroker accounts and their escrow balances.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/argon-desk/argon_desk/internal/profile"
)

// ErrInvalidEntry is returned when a broker entry lacks a host or user identity.
var ErrInvalidEntry = errors.New("broker host and user identity are required")

// Account is a stored databroker entry together with its live balance.
type Account struct {
	profile.BrokerEntry
	Balance int64 `json:"balance"`
}

// Registry coordinates broker entries in the profile with live escrow lookups.
type Registry struct {
	profiles *profile.Service
	escrow   EscrowSource
	logger   *slog.Logger
}

// NewRegistry prepares a registry. A nil escrow source uses HTTPEscrowSource.
func NewRegistry(profiles *profile.Service, escrow EscrowSource, logger *slog.Logger) (*Registry, error) {
	if profiles == nil {
		return nil, fmt.Errorf("profile service is required")
	}
	if escrow == nil {
		escrow = HTTPEscrowSource{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{profiles: profiles, escrow: escrow, logger: logger}, nil
}

// Upsert validates the entry against the broker and stores it. Nothing is
// persisted when the broker cannot report a balance.
func (r *Registry) Upsert(ctx context.Context, entry profile.BrokerEntry) (Account, error) {
	entry.Host = strings.TrimRight(strings.TrimSpace(entry.Host), "/")
	entry.UserIdentity = strings.TrimSpace(entry.UserIdentity)
	entry.Name = strings.TrimSpace(entry.Name)
	if entry.Host == "" || entry.UserIdentity == "" {
		return Account{}, ErrInvalidEntry
	}

	balance, err := r.escrow.Balance(ctx, entry.Host, entry.UserIdentity)
	if err != nil {
		return Account{}, fmt.Errorf("fetch broker balance: %w", err)
	}
	if err := r.profiles.UpsertDatabroker(ctx, entry); err != nil {
		if errors.Is(err, profile.ErrInvalidBroker) {
			return Account{}, ErrInvalidEntry
		}
		return Account{}, fmt.Errorf("save broker: %w", err)
	}
	return Account{BrokerEntry: entry, Balance: balance}, nil
}

// List returns every stored broker with a fresh balance. Lookups that fail
// report a zero balance; List itself never fails.
func (r *Registry) List(ctx context.Context) []Account {
	entries, err := r.profiles.Databrokers(ctx)
	if err != nil {
		r.logger.Error("load databrokers", slog.Any("error", err))
		return []Account{}
	}

	accounts := make([]Account, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	for i, entry := range entries {
		accounts[i] = Account{BrokerEntry: entry}
		g.Go(func() error {
			balance, err := r.escrow.Balance(gctx, entry.Host, entry.UserIdentity)
			if err != nil {
				r.logger.Warn("broker balance unavailable",
					slog.String("host", entry.Host),
					slog.Any("error", err),
				)
				return nil
			}
			accounts[i].Balance = balance
			return nil
		})
	}
	_ = g.Wait()
	return accounts
}
