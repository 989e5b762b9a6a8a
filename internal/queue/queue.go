// Package queue serializes every ledger-mutating task of a manager through a
// single worker, in submission order.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/argon-desk/argon_desk/internal/logging"
)

// ErrShutdown is returned for tasks submitted after Close and for tasks still
// pending when Close is called.
var ErrShutdown = errors.New("mutation queue is shut down")

// Task is a unit of work run by the queue worker.
type Task func(ctx context.Context) error

// Observer is notified around every task the worker runs.
type Observer interface {
	TaskStarted(seq uint64)
	TaskFinished(seq uint64, err error)
}

// Option configures a Queue.
type Option func(*Queue)

// WithObserver installs an Observer.
func WithObserver(o Observer) Option {
	return func(q *Queue) { q.observer = o }
}

// WithLogger sets the logger used to report recovered panics.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

type job struct {
	seq  uint64
	ctx  context.Context
	fn   Task
	done chan error
}

// Queue runs at most one task at a time. Tasks are never cancelled by the
// queue; a slow task delays everything behind it.
type Queue struct {
	mu       sync.Mutex
	pending  []*job
	closed   bool
	seq      uint64
	wake     chan struct{}
	quit     chan struct{}
	stopped  chan struct{}
	quitOnce sync.Once
	observer Observer
	logger   *slog.Logger
}

// New starts the worker goroutine.
func New(opts ...Option) *Queue {
	q := &Queue{
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
		logger:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(q)
	}
	go q.work()
	return q
}

// Run submits fn and blocks until it has run. The caller's ctx is handed to
// fn but does not cancel the wait.
func (q *Queue) Run(ctx context.Context, fn Task) error {
	j := &job{ctx: ctx, fn: fn, done: make(chan error, 1)}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrShutdown
	}
	q.seq++
	j.seq = q.seq
	q.pending = append(q.pending, j)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return <-j.done
}

// Do runs fn on q and returns its value.
func Do[T any](ctx context.Context, q *Queue, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := q.Run(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Len reports the number of tasks waiting to start.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close rejects new submissions, fails pending tasks with ErrShutdown and
// waits for the in-flight task, if any, to finish or for ctx to expire.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, j := range pending {
		j.done <- ErrShutdown
	}
	q.quitOnce.Do(func() { close(q.quit) })

	select {
	case <-q.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) work() {
	defer close(q.stopped)
	for {
		j := q.next()
		if j == nil {
			select {
			case <-q.wake:
				continue
			case <-q.quit:
				return
			}
		}
		q.execute(j)
	}
}

func (q *Queue) next() *job {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	j := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	return j
}

func (q *Queue) execute(j *job) {
	if q.observer != nil {
		q.observer.TaskStarted(j.seq)
	}
	err := q.call(j)
	if q.observer != nil {
		q.observer.TaskFinished(j.seq, err)
	}
	j.done <- err
}

func (q *Queue) call(j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queued task panicked: %v", r)
			q.logger.Error("mutation queue task panicked", slog.Uint64("seq", j.seq), slog.Any("panic", r))
		}
	}()
	return j.fn(j.ctx)
}
