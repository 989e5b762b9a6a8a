package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

// block occupies the worker until the returned release func is called.
func block(t *testing.T, q *Queue) (release func(), finished chan error) {
	t.Helper()
	gate := make(chan struct{})
	started := make(chan struct{})
	finished = make(chan error, 1)
	go func() {
		finished <- q.Run(context.Background(), func(context.Context) error {
			close(started)
			<-gate
			return nil
		})
	}()
	<-started
	return func() { close(gate) }, finished
}

func TestRunsInSubmissionOrder(t *testing.T) {
	q := New()
	defer q.Close(context.Background())

	release, finished := block(t, q)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q.Run(context.Background(), func(context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}(i)
		waitFor(t, func() bool { return q.Len() == i+1 })
	}

	release()
	wg.Wait()
	if err := <-finished; err != nil {
		t.Fatalf("blocking task: %v", err)
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("tasks ran out of order: %v", order)
		}
	}
}

func TestNeverRunsTwoTasksAtOnce(t *testing.T) {
	q := New()
	defer q.Close(context.Background())

	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Run(context.Background(), func(context.Context) error {
				n := active.Add(1)
				if n > peak.Load() {
					peak.Store(n)
				}
				time.Sleep(time.Millisecond)
				active.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()
	if peak.Load() != 1 {
		t.Fatalf("expected at most one running task, saw %d", peak.Load())
	}
}

func TestDoReturnsValueAndError(t *testing.T) {
	q := New()
	defer q.Close(context.Background())

	v, err := Do(context.Background(), q, func(context.Context) (int, error) { return 42, nil })
	if err != nil || v != 42 {
		t.Fatalf("Do = %d, %v", v, err)
	}
	boom := errors.New("boom")
	if _, err := Do(context.Background(), q, func(context.Context) (string, error) { return "", boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestPanicIsRecovered(t *testing.T) {
	q := New()
	defer q.Close(context.Background())

	err := q.Run(context.Background(), func(context.Context) error { panic("kaboom") })
	if err == nil {
		t.Fatal("expected an error from a panicking task")
	}
	if err := q.Run(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("worker should survive a panic: %v", err)
	}
}

func TestCloseFailsPendingAndWaitsForInFlight(t *testing.T) {
	q := New()
	release, finished := block(t, q)

	pendingErrs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			pendingErrs <- q.Run(context.Background(), func(context.Context) error { return nil })
		}()
		waitFor(t, func() bool { return q.Len() == i+1 })
	}

	closed := make(chan error, 1)
	go func() { closed <- q.Close(context.Background()) }()

	for i := 0; i < 2; i++ {
		if err := <-pendingErrs; !errors.Is(err, ErrShutdown) {
			t.Fatalf("expected ErrShutdown for pending task, got %v", err)
		}
	}
	select {
	case <-closed:
		t.Fatal("Close returned before the in-flight task finished")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	if err := <-finished; err != nil {
		t.Fatalf("in-flight task should complete normally: %v", err)
	}
	if err := <-closed; err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := q.Run(context.Background(), func(context.Context) error { return nil }); !errors.Is(err, ErrShutdown) {
		t.Fatalf("expected ErrShutdown after close, got %v", err)
	}
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) TaskStarted(uint64) {
	r.mu.Lock()
	r.events = append(r.events, "start")
	r.mu.Unlock()
}

func (r *recorder) TaskFinished(uint64, error) {
	r.mu.Lock()
	r.events = append(r.events, "finish")
	r.mu.Unlock()
}

func TestObserverSeesEveryTask(t *testing.T) {
	rec := &recorder{}
	q := New(WithObserver(rec))
	for i := 0; i < 3; i++ {
		q.Run(context.Background(), func(context.Context) error { return nil })
	}
	q.Close(context.Background())

	want := []string{"start", "finish", "start", "finish", "start", "finish"}
	if len(rec.events) != len(want) {
		t.Fatalf("unexpected events %v", rec.events)
	}
	for i := range want {
		if rec.events[i] != want[i] {
			t.Fatalf("unexpected events %v", rec.events)
		}
	}
}
