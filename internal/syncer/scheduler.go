// Package syncer drives periodic localchain synchronization on chain tick
// boundaries.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set"

	"github.com/argon-desk/argon_desk/internal/ledger"
	"github.com/argon-desk/argon_desk/internal/localchain"
	"github.com/argon-desk/argon_desk/internal/logging"
	"github.com/argon-desk/argon_desk/internal/queue"
)

// State is the scheduler lifecycle state.
type State int32

const (
	Idle State = iota
	Syncing
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Syncing:
		return "syncing"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// defaultInterval is used when neither a localchain nor the fallback ticker
// has a usable tick duration.
const defaultInterval = time.Minute

// Config wires a Scheduler to the manager.
type Config struct {
	Handles  func() []*localchain.Handle
	Queue    *queue.Queue
	Fallback ledger.Ticker
	OnChange func(ctx context.Context, result ledger.SyncResult)
	Logger   *slog.Logger
	Now      func() time.Time
}

// Scheduler arms one timer at a time. Each firing syncs every localchain
// through the mutation queue and re-arms for the next tick, whatever the
// outcome, until Close.
type Scheduler struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	state  State
	timer  *time.Timer
	ctx    context.Context
	cycles atomic.Int64
}

func New(cfg Config) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Handles == nil {
		cfg.Handles = func() []*localchain.Handle { return nil }
	}
	return &Scheduler{cfg: cfg, logger: cfg.Logger, state: Idle, ctx: context.Background()}
}

// Start arms the first timer. Cycles run with a context detached from ctx's
// cancellation.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Stopped {
		return
	}
	s.ctx = context.WithoutCancel(ctx)
	s.armLocked()
}

// NextDelay returns the time until the next tick of the first localchain.
func (s *Scheduler) NextDelay() time.Duration {
	ticker := s.cfg.Fallback
	if handles := s.cfg.Handles(); len(handles) > 0 {
		if t := handles[0].Store.Ticker(); t.Duration > 0 {
			ticker = t
		}
	}
	if ticker.Duration <= 0 {
		return defaultInterval
	}
	return ticker.UntilNextTick(s.cfg.Now())
}

func (s *Scheduler) armLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.state = Idle
	s.timer = time.AfterFunc(s.NextDelay()+time.Millisecond, s.fire)
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.state = Syncing
	ctx := s.ctx
	s.mu.Unlock()

	s.runCycle(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Stopped {
		return
	}
	s.armLocked()
}

func (s *Scheduler) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("localchain sync panicked", slog.Any("panic", r))
		}
	}()
	if _, err := s.SyncNow(ctx); err != nil {
		s.logger.Warn("localchain sync failed", slog.Any("error", err))
	}
}

// SyncNow runs one cycle on the caller's goroutine. Failed localchains are
// skipped; the union of the others is still reported to OnChange.
func (s *Scheduler) SyncNow(ctx context.Context) (ledger.SyncResult, error) {
	s.cycles.Add(1)
	agg := newAggregate()
	var errs []error
	for _, h := range s.cfg.Handles() {
		result, err := queue.Do(ctx, s.cfg.Queue, func(ctx context.Context) (ledger.SyncResult, error) {
			return h.Store.Sync(ctx)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("sync %s: %w", h.Path, err))
			if errors.Is(err, queue.ErrShutdown) {
				break
			}
			continue
		}
		agg.add(result)
	}

	result := agg.result()
	if (len(result.MainchainTransfers) > 0 || len(result.BalanceChanges) > 0) && s.cfg.OnChange != nil {
		s.cfg.OnChange(ctx, result)
	}
	return result, errors.Join(errs...)
}

// Close stops re-arming. A cycle already running is left to finish.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Stopped
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Armed reports whether a timer is pending.
func (s *Scheduler) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Cycles counts sync cycles started so far.
func (s *Scheduler) Cycles() int64 {
	return s.cycles.Load()
}

type union struct {
	seen  mapset.Set
	items []ledger.SyncItem
}

func (u *union) add(items []ledger.SyncItem) {
	for _, item := range items {
		if u.seen.Add(item.ID) {
			u.items = append(u.items, item)
		}
	}
}

type aggregate struct {
	escrow, changes, jumps, transfers *union
}

func newAggregate() *aggregate {
	newUnion := func() *union { return &union{seen: mapset.NewSet()} }
	return &aggregate{escrow: newUnion(), changes: newUnion(), jumps: newUnion(), transfers: newUnion()}
}

func (a *aggregate) add(r ledger.SyncResult) {
	a.escrow.add(r.EscrowNotarizations)
	a.changes.add(r.BalanceChanges)
	a.jumps.add(r.JumpAccountConsolidations)
	a.transfers.add(r.MainchainTransfers)
}

func (a *aggregate) result() ledger.SyncResult {
	return ledger.SyncResult{
		EscrowNotarizations:       a.escrow.items,
		BalanceChanges:            a.changes.items,
		JumpAccountConsolidations: a.jumps.items,
		MainchainTransfers:        a.transfers.items,
	}
}
