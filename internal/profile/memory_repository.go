package profile

import (
	"context"
	"sync"
)

type memoryRepository struct {
	mu      sync.RWMutex
	profile Profile
}

// NewMemoryRepository builds an in-memory profile store for testing.
func NewMemoryRepository(initial Profile) Repository {
	return &memoryRepository{profile: initial.clone()}
}

func (r *memoryRepository) Load(_ context.Context) (Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.profile.clone(), nil
}

func (r *memoryRepository) Save(_ context.Context, p Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profile = p.clone()
	return nil
}
