// Package manager is the wallet core: it owns the loaded localchains, the
// mutation queue, the sync scheduler and the mainchain connection, and
// exposes every wallet operation behind one facade.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/argon-desk/argon_desk/internal/argonfile"
	"github.com/argon-desk/argon_desk/internal/broker"
	"github.com/argon-desk/argon_desk/internal/ledger"
	"github.com/argon-desk/argon_desk/internal/localchain"
	"github.com/argon-desk/argon_desk/internal/logging"
	"github.com/argon-desk/argon_desk/internal/mainchain"
	"github.com/argon-desk/argon_desk/internal/notification"
	"github.com/argon-desk/argon_desk/internal/payments"
	"github.com/argon-desk/argon_desk/internal/profile"
	"github.com/argon-desk/argon_desk/internal/queue"
	"github.com/argon-desk/argon_desk/internal/syncer"
	"github.com/argon-desk/argon_desk/internal/wallet"
)

const (
	defaultLocalchainFile = "primary.db"
	localchainExt         = ".db"
)

// ErrClosed is returned by operations attempted after Close.
var ErrClosed = errors.New("account manager is closed")

// Options configures a Manager.
type Options struct {
	Chain            ledger.ChainConfig
	LocalchainDir    string
	Password         []byte
	MainchainURL     string
	MainchainTimeout time.Duration

	Profiles *profile.Service
	Escrow   broker.EscrowSource
	Sinks    []notification.Notifier

	Open          ledger.Opener
	Dial          mainchain.Dialer
	QueueObserver queue.Observer
	Logger        *slog.Logger
}

// AccountConfig describes a localchain to add.
type AccountConfig struct {
	Path         string
	Password     []byte
	CryptoScheme ledger.CryptoScheme
	Suri         string
}

// Manager coordinates every localchain of the user.
type Manager struct {
	opts   Options
	logger *slog.Logger

	handles   *localchain.Registry
	queue     *queue.Queue
	scheduler *syncer.Scheduler
	router    *payments.Router
	brokers   *broker.Registry
	wallets   *wallet.Aggregator
	hub       *notification.Hub

	addMu sync.Mutex

	mu      sync.Mutex
	client  mainchain.Client
	closed  bool
	started bool
	cancel  context.CancelFunc
	bg      sync.WaitGroup
}

// New wires a manager. Nothing is loaded until Start.
func New(opts Options) (*Manager, error) {
	if opts.Profiles == nil {
		return nil, fmt.Errorf("profile service is required")
	}
	if opts.Open == nil {
		opts.Open = ledger.Open
	}
	if opts.Dial == nil {
		opts.Dial = mainchain.Dial
	}
	if opts.MainchainTimeout <= 0 {
		opts.MainchainTimeout = mainchain.DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	m := &Manager{opts: opts, logger: opts.Logger, handles: localchain.NewRegistry()}

	qopts := []queue.Option{queue.WithLogger(opts.Logger)}
	if opts.QueueObserver != nil {
		qopts = append(qopts, queue.WithObserver(opts.QueueObserver))
	}
	m.queue = queue.New(qopts...)

	brokers, err := broker.NewRegistry(opts.Profiles, opts.Escrow, opts.Logger)
	if err != nil {
		return nil, err
	}
	m.brokers = brokers
	m.hub = notification.NewHub(opts.Logger, opts.Sinks...)
	m.wallets = wallet.NewAggregator(m.handles, brokers, m.hub, opts.Logger)
	m.router = payments.NewRouter(m.handles, m.queue, opts.Logger)
	m.scheduler = syncer.New(syncer.Config{
		Handles:  m.handles.All,
		Queue:    m.queue,
		Fallback: ledger.NewTicker(opts.Chain),
		OnChange: m.onSync,
		Logger:   opts.Logger,
	})
	return m, nil
}

// Start loads the profile's localchains, creating a default one when the
// profile lists none, arms the sync scheduler and connects to the mainchain
// in the background.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	bgCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel
	m.mu.Unlock()

	paths, err := m.opts.Profiles.LocalchainPaths(ctx)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	if len(paths) == 0 {
		if _, err := m.AddAccount(ctx, AccountConfig{}); err != nil {
			return err
		}
	} else if err := m.loadAll(ctx, paths); err != nil {
		return err
	}

	m.scheduler.Start(bgCtx)

	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		if err := m.LoadMainchainClient(bgCtx, "", 0); err != nil {
			return
		}
		m.wallets.Emit(bgCtx)
	}()
	return nil
}

// loadAll opens every path concurrently and registers them in profile order.
func (m *Manager) loadAll(ctx context.Context, paths []string) error {
	loaded := make([]*localchain.Handle, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			h, err := localchain.Load(gctx, m.opts.Open, path, m.opts.Chain, m.opts.Password)
			if err != nil {
				return err
			}
			loaded[i] = h
			return nil
		})
	}
	err := g.Wait()
	for _, h := range loaded {
		if h == nil {
			continue
		}
		if err != nil {
			_ = h.Store.Close()
			continue
		}
		if addErr := m.handles.Add(h); addErr != nil {
			_ = h.Store.Close()
			m.logger.Warn("skip localchain", slog.String("path", h.Path), slog.Any("error", addErr))
		}
	}
	return err
}

// LoadMainchainClient connects to url, or the configured mainchain URL when
// url is empty, and attaches every localchain to it. With no URL at all the
// manager stays local-only and nil is returned.
func (m *Manager) LoadMainchainClient(ctx context.Context, url string, timeout time.Duration) error {
	if url == "" {
		url = m.opts.MainchainURL
	}
	if url == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = m.opts.MainchainTimeout
	}

	client, err := m.opts.Dial(ctx, url, timeout)
	if err != nil {
		m.logger.Error("Could not connect to mainchain", slog.String("url", url), slog.Any("error", err))
		return err
	}

	// Held through the attach loop so a concurrent AddAccount either sees the
	// new client or is already registered when the loop runs.
	m.addMu.Lock()
	defer m.addMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		client.Close()
		return ErrClosed
	}
	previous := m.client
	m.client = client
	m.mu.Unlock()
	if previous != nil {
		previous.Close()
	}

	for _, h := range m.handles.All() {
		if err := h.AttachMainchain(ctx, client); err != nil {
			m.logger.Error("Could not connect to mainchain", slog.String("url", url), slog.Any("error", err))
			return fmt.Errorf("attach %s: %w", h.Path, err)
		}
	}
	m.logger.Info("mainchain attached", slog.String("url", url), slog.Int("localchains", m.handles.Len()))
	return nil
}

func (m *Manager) attached() mainchain.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client
}

// AddAccount loads or creates the localchain at cfg.Path. A path that is not a
// .db file is treated as a directory holding primary.db. Key material is
// installed before the localchain is registered, so a crypto failure leaves
// nothing behind.
func (m *Manager) AddAccount(ctx context.Context, cfg AccountConfig) (*localchain.Handle, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}
	path := cfg.Path
	if path == "" {
		path = m.opts.LocalchainDir
	}
	if !strings.HasSuffix(path, localchainExt) {
		path = filepath.Join(path, defaultLocalchainFile)
	}
	password := cfg.Password
	if password == nil {
		password = m.opts.Password
	}

	m.addMu.Lock()
	defer m.addMu.Unlock()
	if h := m.handles.ByPath(path); h != nil {
		return h, nil
	}

	m.logger.Info("Adding localchain", slog.String("localchain_path", path))
	h, err := localchain.Load(ctx, m.opts.Open, path, m.opts.Chain, password)
	if err != nil {
		return nil, err
	}
	if err := m.installKey(ctx, h, cfg, password); err != nil {
		_ = h.Store.Close()
		return nil, err
	}
	if client := m.attached(); client != nil {
		if err := h.AttachMainchain(ctx, client); err != nil {
			_ = h.Store.Close()
			return nil, fmt.Errorf("attach mainchain: %w", err)
		}
	}
	if err := m.handles.Add(h); err != nil {
		_ = h.Store.Close()
		return nil, err
	}
	if err := m.opts.Profiles.AddLocalchainPath(ctx, path); err != nil {
		m.logger.Error("save localchain path", slog.String("path", path), slog.Any("error", err))
	}
	return h, nil
}

func (m *Manager) installKey(ctx context.Context, h *localchain.Handle, cfg AccountConfig, password []byte) error {
	accounts, err := h.Store.Accounts(ctx)
	if err != nil {
		return err
	}
	if len(accounts) > 0 {
		return nil
	}
	if cfg.Suri == "" {
		return h.Store.Bootstrap(ctx)
	}
	scheme := cfg.CryptoScheme
	if scheme == "" {
		scheme = ledger.SchemeEd25519
	}
	return h.Store.ImportSuri(ctx, cfg.Suri, scheme, password)
}

// CreateAccount adds <localchain dir>/<name>.db and returns its overview.
func (m *Manager) CreateAccount(ctx context.Context, name, suri string, password []byte) (ledger.Overview, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, `/\`) {
		return ledger.Overview{}, fmt.Errorf("invalid account name %q", name)
	}
	h, err := m.AddAccount(ctx, AccountConfig{
		Path:     filepath.Join(m.opts.LocalchainDir, name+localchainExt),
		Suri:     suri,
		Password: password,
	})
	if err != nil {
		return ledger.Overview{}, err
	}
	return h.Store.Overview(ctx)
}

// Localchains returns the loaded localchains in registration order.
func (m *Manager) Localchains() []*localchain.Handle {
	return m.handles.All()
}

// Address returns the cached address of h.
func (m *Manager) Address(ctx context.Context, h *localchain.Handle) (string, error) {
	return m.handles.Resolve(ctx, h)
}

// Localchain finds the localchain owning address, or nil.
func (m *Manager) Localchain(ctx context.Context, address string) (*localchain.Handle, error) {
	return m.handles.FindByAddress(ctx, address)
}

// Wallet builds the current wallet view.
func (m *Manager) Wallet(ctx context.Context) (wallet.Wallet, error) {
	return m.wallets.Build(ctx)
}

// Subscribe registers fn for wallet updates.
func (m *Manager) Subscribe(fn func(notification.Update)) (unsubscribe func()) {
	return m.hub.Subscribe(fn)
}

// Updates exposes the update hub for streaming endpoints.
func (m *Manager) Updates() *notification.Hub {
	return m.hub
}

// SyncNow runs one sync cycle immediately.
func (m *Manager) SyncNow(ctx context.Context) (ledger.SyncResult, error) {
	if m.isClosed() {
		return ledger.SyncResult{}, ErrClosed
	}
	return m.scheduler.SyncNow(ctx)
}

func (m *Manager) onSync(ctx context.Context, result ledger.SyncResult) {
	m.logger.Info("Account sync result",
		slog.Int("mainchain_transfers", len(result.MainchainTransfers)),
		slog.Int("balance_changes", len(result.BalanceChanges)),
		slog.Int("escrow_notarizations", len(result.EscrowNotarizations)),
		slog.Int("jump_account_consolidations", len(result.JumpAccountConsolidations)),
	)
	m.wallets.Emit(ctx)
}

// TransferMainchainToLocal requests a mainchain transfer onto the localchain owning address.
func (m *Manager) TransferMainchainToLocal(ctx context.Context, address string, milligons int64) (string, error) {
	return m.router.TransferMainchainToLocal(ctx, address, milligons)
}

// TransferLocalToMainchain moves milligons from the localchain owning address to the mainchain.
func (m *Manager) TransferLocalToMainchain(ctx context.Context, address string, milligons int64) (ledger.Notarization, error) {
	return m.router.TransferLocalToMainchain(ctx, address, milligons)
}

func (m *Manager) CreateArgonsToSendFile(ctx context.Context, req payments.SendRequest) (argonfile.Meta, error) {
	return m.router.CreateSendFile(ctx, req)
}

func (m *Manager) CreateArgonsToRequestFile(ctx context.Context, req payments.RequestRequest) (argonfile.Meta, error) {
	return m.router.CreateRequestFile(ctx, req)
}

func (m *Manager) AcceptArgonRequest(ctx context.Context, raw []byte, fulfillFrom string) (ledger.Notarization, error) {
	return m.router.AcceptRequest(ctx, raw, fulfillFrom)
}

func (m *Manager) ImportArgons(ctx context.Context, raw []byte) (ledger.Notarization, error) {
	return m.router.ImportSendFile(ctx, raw)
}

// AddBrokerAccount validates and stores a databroker credential.
func (m *Manager) AddBrokerAccount(ctx context.Context, entry profile.BrokerEntry) (broker.Account, error) {
	return m.brokers.Upsert(ctx, entry)
}

// BrokerAccounts lists databroker accounts with live balances.
func (m *Manager) BrokerAccounts(ctx context.Context) []broker.Account {
	return m.brokers.List(ctx)
}

// Mainchain reports whether a mainchain client is attached.
func (m *Manager) Mainchain() bool {
	return m.attached() != nil
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close stops syncing, drains the queue and releases every localchain. It is
// safe to call more than once.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	cancel := m.cancel
	m.mu.Unlock()

	m.scheduler.Close()
	if cancel != nil {
		cancel()
	}
	var errs []error
	if err := m.queue.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close queue: %w", err))
	}
	m.bg.Wait()
	m.hub.Close()
	if err := m.handles.Close(); err != nil {
		errs = append(errs, err)
	}

	m.mu.Lock()
	client := m.client
	m.client = nil
	m.mu.Unlock()
	if client != nil {
		client.Close()
	}
	return errors.Join(errs...)
}
