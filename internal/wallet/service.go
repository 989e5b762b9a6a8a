// Package wallet aggregates localchain and broker balances into a single
// wallet view.
package wallet

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/argon-desk/argon_desk/internal/argons"
	"github.com/argon-desk/argon_desk/internal/broker"
	"github.com/argon-desk/argon_desk/internal/ledger"
	"github.com/argon-desk/argon_desk/internal/localchain"
	"github.com/argon-desk/argon_desk/internal/logging"
)

// BrokerLister lists broker accounts with live balances.
type BrokerLister interface {
	List(ctx context.Context) []broker.Account
}

// Publisher delivers wallet updates to subscribers.
type Publisher interface {
	Publish(ctx context.Context, w Wallet) error
}

// Aggregator builds wallet views.
type Aggregator struct {
	handles   *localchain.Registry
	brokers   BrokerLister
	publisher Publisher
	logger    *slog.Logger
}

// NewAggregator builds a wallet aggregator. brokers and publisher may be nil.
func NewAggregator(handles *localchain.Registry, brokers BrokerLister, publisher Publisher, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Aggregator{handles: handles, brokers: brokers, publisher: publisher, logger: logger}
}

// Build reads every localchain overview concurrently, keeping registration
// order, and adds broker balances.
func (a *Aggregator) Build(ctx context.Context) (Wallet, error) {
	handles := a.handles.All()
	overviews := make([]ledger.Overview, len(handles))

	g, gctx := errgroup.WithContext(ctx)
	for i, h := range handles {
		g.Go(func() error {
			o, err := h.Store.Overview(gctx)
			if err != nil {
				return fmt.Errorf("overview %s: %w", h.Path, err)
			}
			overviews[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Wallet{}, err
	}

	brokers := []broker.Account{}
	if a.brokers != nil {
		brokers = a.brokers.List(ctx)
	}

	total := Total(overviews, brokers)
	return Wallet{
		Accounts:         overviews,
		BrokerAccounts:   brokers,
		Credits:          []Credit{},
		Balance:          total,
		FormattedBalance: argons.Format(total),
	}, nil
}

// Emit builds the wallet and publishes it. Failures are logged.
func (a *Aggregator) Emit(ctx context.Context) {
	w, err := a.Build(ctx)
	if err != nil {
		a.logger.Error("build wallet", slog.Any("error", err))
		return
	}
	if a.publisher == nil {
		return
	}
	if err := a.publisher.Publish(ctx, w); err != nil {
		a.logger.Warn("publish wallet update", slog.Any("error", err))
	}
}
