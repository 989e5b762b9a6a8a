// Package notification fans wallet updates out to in-process subscribers and
// external sinks.
package notification

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/olebedev/emitter"

	"github.com/argon-desk/argon_desk/internal/logging"
	"github.com/argon-desk/argon_desk/internal/wallet"
)

// TopicUpdate is the event name wallet updates are published under.
const TopicUpdate = "update"

// Update is the payload delivered to subscribers.
type Update struct {
	Wallet wallet.Wallet `json:"wallet"`
}

// Notifier forwards updates outside the process.
type Notifier interface {
	Notify(ctx context.Context, update Update) error
}

const listenerCapacity = 16

// Hub keeps the subscriber list. Each subscriber receives updates in
// publication order on its own goroutine.
type Hub struct {
	em     *emitter.Emitter
	sinks  []Notifier
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewHub creates a hub that also forwards every update to sinks.
func NewHub(logger *slog.Logger, sinks ...Notifier) *Hub {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Hub{
		em:     emitter.New(listenerCapacity),
		sinks:  sinks,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Subscribe registers fn and returns a function that removes it. After Close
// Subscribe registers nothing.
func (h *Hub) Subscribe(fn func(Update)) (unsubscribe func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return func() {}
	}

	ch := h.em.On(TopicUpdate)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for ev := range ch {
			if len(ev.Args) == 0 {
				continue
			}
			if u, ok := ev.Args[0].(Update); ok {
				fn(u)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { h.em.Off(TopicUpdate, ch) })
	}
}

// Publish delivers w to every subscriber and sink. Sink failures are joined
// into the returned error; subscribers are always served.
func (h *Hub) Publish(ctx context.Context, w wallet.Wallet) error {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return nil
	}

	u := Update{Wallet: w}
	<-h.em.Emit(TopicUpdate, u)

	var errs []error
	for _, sink := range h.sinks {
		if err := sink.Notify(ctx, u); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscribers reports the number of registered subscribers.
func (h *Hub) Subscribers() int {
	return len(h.em.Listeners(TopicUpdate))
}

// Done is closed once the hub is closed.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Close unsubscribes everyone and waits for in-flight deliveries.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	close(h.done)
	h.mu.Unlock()

	h.em.Off("*")
	h.wg.Wait()
}
