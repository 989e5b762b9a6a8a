// Package localchain tracks the opened localchains of a manager and resolves
// them by address.
package localchain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/argon-desk/argon_desk/internal/ledger"
	"github.com/argon-desk/argon_desk/internal/mainchain"
)

// ErrDuplicatePath is returned when a localchain path is registered twice.
var ErrDuplicatePath = errors.New("localchain already loaded")

// Handle is one opened localchain. ID is assigned at load and never reused.
type Handle struct {
	ID    string
	Path  string
	Store ledger.Store
}

// Load opens the localchain at path.
func Load(ctx context.Context, open ledger.Opener, path string, cfg ledger.ChainConfig, password []byte) (*Handle, error) {
	store, err := open(ctx, path, cfg, password)
	if err != nil {
		return nil, fmt.Errorf("load localchain %s: %w", path, err)
	}
	return &Handle{ID: uuid.NewString(), Path: path, Store: store}, nil
}

// AttachMainchain replaces the handle's mainchain client and refreshes its ticker.
func (h *Handle) AttachMainchain(ctx context.Context, client mainchain.Client) error {
	return h.Store.AttachMainchain(ctx, client)
}

// Registry holds handles in registration order and memoizes their addresses.
type Registry struct {
	mu        sync.RWMutex
	handles   []*Handle
	addresses *cache.Cache
	lookups   atomic.Int64
}

func NewRegistry() *Registry {
	return &Registry{addresses: cache.New(cache.NoExpiration, cache.NoExpiration)}
}

// Add registers h after every existing handle.
func (r *Registry) Add(h *Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.handles {
		if existing.Path == h.Path {
			return fmt.Errorf("%w: %s", ErrDuplicatePath, h.Path)
		}
	}
	r.handles = append(r.handles, h)
	return nil
}

// ByPath returns the handle loaded from path, or nil.
func (r *Registry) ByPath(path string) *Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, h := range r.handles {
		if h.Path == path {
			return h
		}
	}
	return nil
}

// All returns the handles in registration order.
func (r *Registry) All() []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Handle, len(r.handles))
	copy(out, r.handles)
	return out
}

// First returns the default handle, or nil when none is registered.
func (r *Registry) First() *Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.handles) == 0 {
		return nil
	}
	return r.handles[0]
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// Resolve returns the address of h. The store is queried at most once per
// handle; later calls are served from the cache.
func (r *Registry) Resolve(ctx context.Context, h *Handle) (string, error) {
	if v, ok := r.addresses.Get(h.ID); ok {
		return v.(string), nil
	}
	r.lookups.Add(1)
	address, err := h.Store.Address(ctx)
	if err != nil {
		return "", err
	}
	r.addresses.Set(h.ID, address, cache.NoExpiration)
	return address, nil
}

// Lookups counts store queries made by Resolve.
func (r *Registry) Lookups() int64 {
	return r.lookups.Load()
}

// FindByAddress scans handles in registration order. An empty or unknown
// address yields nil without an error; callers fall back to First.
func (r *Registry) FindByAddress(ctx context.Context, address string) (*Handle, error) {
	if address == "" {
		return nil, nil
	}
	for _, h := range r.All() {
		resolved, err := r.Resolve(ctx, h)
		if errors.Is(err, ledger.ErrNoAccount) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if resolved == address {
			return h, nil
		}
	}
	return nil, nil
}

// Close closes every store.
func (r *Registry) Close() error {
	var errs []error
	for _, h := range r.All() {
		if err := h.Store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
