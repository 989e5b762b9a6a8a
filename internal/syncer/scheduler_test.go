package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/argon-desk/argon_desk/internal/ledger"
	"github.com/argon-desk/argon_desk/internal/localchain"
	"github.com/argon-desk/argon_desk/internal/queue"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedStore answers Sync from a script of results; a nil entry panics.
type scriptedStore struct {
	ledger.Store
	tick time.Duration

	mu     sync.Mutex
	script []func() (ledger.SyncResult, error)
	calls  int
}

func (s *scriptedStore) Ticker() ledger.Ticker {
	return ledger.Ticker{Duration: s.tick}
}

func (s *scriptedStore) Sync(context.Context) (ledger.SyncResult, error) {
	s.mu.Lock()
	i := s.calls
	s.calls++
	s.mu.Unlock()
	if i >= len(s.script) {
		return ledger.SyncResult{}, nil
	}
	return s.script[i]()
}

func (s *scriptedStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func handlesOf(stores ...ledger.Store) func() []*localchain.Handle {
	handles := make([]*localchain.Handle, len(stores))
	for i, st := range stores {
		handles[i] = &localchain.Handle{ID: string(rune('a' + i)), Path: string(rune('a'+i)) + ".db", Store: st}
	}
	return func() []*localchain.Handle { return handles }
}

func changed(id string) ledger.SyncResult {
	return ledger.SyncResult{BalanceChanges: []ledger.SyncItem{{ID: id, Milligons: 1}}}
}

func TestSchedulerRearmsAfterFailures(t *testing.T) {
	store := &scriptedStore{tick: 10 * time.Millisecond, script: []func() (ledger.SyncResult, error){
		func() (ledger.SyncResult, error) { return ledger.SyncResult{}, errors.New("network down") },
		func() (ledger.SyncResult, error) { panic("storage exploded") },
		func() (ledger.SyncResult, error) { return changed("n1"), nil },
	}}
	q := queue.New()
	defer q.Close(context.Background())

	notified := make(chan ledger.SyncResult, 1)
	s := New(Config{
		Handles: handlesOf(store),
		Queue:   q,
		OnChange: func(_ context.Context, r ledger.SyncResult) {
			select {
			case notified <- r:
			default:
			}
		},
	})
	s.Start(context.Background())

	select {
	case r := <-notified:
		if len(r.BalanceChanges) != 1 || r.BalanceChanges[0].ID != "n1" {
			t.Fatalf("unexpected result %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("scheduler never recovered; sync calls=%d", store.Calls())
	}
	s.Close()

	if store.Calls() < 3 {
		t.Fatalf("expected at least three sync attempts, got %d", store.Calls())
	}
	if s.State() != Stopped || s.Armed() {
		t.Fatalf("expected stopped with no timer, got %s armed=%v", s.State(), s.Armed())
	}
}

func TestSchedulerKeepsSingleTimer(t *testing.T) {
	store := &scriptedStore{tick: time.Hour}
	s := New(Config{Handles: handlesOf(store), Queue: queue.New()})
	defer s.cfg.Queue.Close(context.Background())

	s.Start(context.Background())
	s.Start(context.Background())
	if !s.Armed() || s.State() != Idle {
		t.Fatalf("expected one armed timer in idle state, got %s armed=%v", s.State(), s.Armed())
	}
	s.Close()
	s.Start(context.Background())
	if s.Armed() {
		t.Fatal("a stopped scheduler must not re-arm")
	}
}

func TestSyncNowUnionsResults(t *testing.T) {
	shared := ledger.SyncItem{ID: "t1", Milligons: 500}
	a := &scriptedStore{script: []func() (ledger.SyncResult, error){
		func() (ledger.SyncResult, error) {
			return ledger.SyncResult{MainchainTransfers: []ledger.SyncItem{shared}}, nil
		},
	}}
	b := &scriptedStore{script: []func() (ledger.SyncResult, error){
		func() (ledger.SyncResult, error) {
			return ledger.SyncResult{MainchainTransfers: []ledger.SyncItem{shared, {ID: "t2", Milligons: 1}}}, nil
		},
	}}
	c := &scriptedStore{script: []func() (ledger.SyncResult, error){
		func() (ledger.SyncResult, error) { return ledger.SyncResult{}, errors.New("offline") },
	}}
	q := queue.New()
	defer q.Close(context.Background())

	var calls int
	s := New(Config{
		Handles:  handlesOf(a, c, b),
		Queue:    q,
		OnChange: func(context.Context, ledger.SyncResult) { calls++ },
	})
	result, err := s.SyncNow(context.Background())
	if err == nil {
		t.Fatal("expected the failing localchain to be reported")
	}
	if len(result.MainchainTransfers) != 2 {
		t.Fatalf("expected union of two transfers, got %+v", result.MainchainTransfers)
	}
	if calls != 1 {
		t.Fatalf("expected one change notification, got %d", calls)
	}

	result, err = s.SyncNow(context.Background())
	if err != nil || len(result.MainchainTransfers) != 0 {
		t.Fatalf("expected an empty second cycle, got %+v %v", result, err)
	}
	if calls != 1 {
		t.Fatalf("empty cycles must not notify, got %d notifications", calls)
	}
}

func TestNextDelayUsesFallbackWithoutLocalchains(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 20, 0, time.UTC)
	s := New(Config{
		Fallback: ledger.Ticker{Genesis: now.Truncate(time.Minute), Duration: time.Minute},
		Now:      func() time.Time { return now },
	})
	if got := s.NextDelay(); got != 40*time.Second {
		t.Fatalf("expected 40s, got %s", got)
	}
}
