package profile

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
)

// ErrInvalidBroker is returned for databroker entries missing a host or identity.
var ErrInvalidBroker = errors.New("databroker host and user identity are required")

// Service serializes read-modify-write access to the profile.
type Service struct {
	mu   sync.Mutex
	repo Repository
}

// NewService creates a new profile service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Profile returns a copy of the stored profile.
func (s *Service) Profile(ctx context.Context) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.Load(ctx)
}

// LocalchainPaths lists the localchains to load at startup, in order.
func (s *Service) LocalchainPaths(ctx context.Context) ([]string, error) {
	p, err := s.Profile(ctx)
	if err != nil {
		return nil, err
	}
	return p.LocalchainPaths, nil
}

// AddLocalchainPath appends path unless it is already listed.
func (s *Service) AddLocalchainPath(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.repo.Load(ctx)
	if err != nil {
		return err
	}
	if slices.Contains(p.LocalchainPaths, path) {
		return nil
	}
	p.LocalchainPaths = append(p.LocalchainPaths, path)
	return s.repo.Save(ctx, p)
}

// Databrokers lists the stored databroker credentials.
func (s *Service) Databrokers(ctx context.Context) ([]BrokerEntry, error) {
	p, err := s.Profile(ctx)
	if err != nil {
		return nil, err
	}
	return p.Databrokers, nil
}

// UpsertDatabroker replaces the entry with the same host or appends a new one.
func (s *Service) UpsertDatabroker(ctx context.Context, entry BrokerEntry) error {
	entry.Host = strings.TrimRight(strings.TrimSpace(entry.Host), "/")
	entry.UserIdentity = strings.TrimSpace(entry.UserIdentity)
	if entry.Host == "" || entry.UserIdentity == "" {
		return ErrInvalidBroker
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.repo.Load(ctx)
	if err != nil {
		return err
	}
	i := slices.IndexFunc(p.Databrokers, func(b BrokerEntry) bool { return b.Host == entry.Host })
	if i >= 0 {
		p.Databrokers[i] = entry
	} else {
		p.Databrokers = append(p.Databrokers, entry)
	}
	return s.repo.Save(ctx, p)
}
