package broker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/argon-desk/argon_desk/internal/logging"
	"github.com/argon-desk/argon_desk/internal/profile"
)

func newTestRegistry(t *testing.T, initial profile.Profile, escrow EscrowSource) (*Registry, *profile.Service) {
	t.Helper()
	profiles := profile.NewService(profile.NewMemoryRepository(initial))
	reg, err := NewRegistry(profiles, escrow, logging.Discard())
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return reg, profiles
}

func TestListDefaultsFailingBrokerToZero(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t, profile.Profile{Databrokers: []profile.BrokerEntry{
		{Host: "https://up", UserIdentity: "u1", Name: "up"},
		{Host: "https://down", UserIdentity: "u2", Name: "down"},
	}}, StaticEscrowSource{"https://up": 7_000})

	accounts := reg.List(ctx)
	if len(accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(accounts))
	}
	if accounts[0].Host != "https://up" || accounts[0].Balance != 7_000 {
		t.Fatalf("unexpected first account %+v", accounts[0])
	}
	if accounts[1].Host != "https://down" || accounts[1].Balance != 0 {
		t.Fatalf("failing broker should report zero, got %+v", accounts[1])
	}
}

func TestUpsertInsertsThenUpdatesByHost(t *testing.T) {
	ctx := context.Background()
	reg, profiles := newTestRegistry(t, profile.Profile{}, StaticEscrowSource{"https://b": 42})

	acct, err := reg.Upsert(ctx, profile.BrokerEntry{Host: "https://b/", UserIdentity: "id-1", Name: "first"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if acct.Balance != 42 || acct.Host != "https://b" {
		t.Fatalf("unexpected account %+v", acct)
	}
	if _, err := reg.Upsert(ctx, profile.BrokerEntry{Host: "https://b", UserIdentity: "id-2", Name: "second"}); err != nil {
		t.Fatalf("update: %v", err)
	}

	stored, err := profiles.Databrokers(ctx)
	if err != nil {
		t.Fatalf("databrokers: %v", err)
	}
	if len(stored) != 1 || stored[0].UserIdentity != "id-2" {
		t.Fatalf("expected one updated entry, got %+v", stored)
	}
}

func TestUpsertUnreachableBrokerPersistsNothing(t *testing.T) {
	ctx := context.Background()
	reg, profiles := newTestRegistry(t, profile.Profile{}, StaticEscrowSource{})

	if _, err := reg.Upsert(ctx, profile.BrokerEntry{Host: "https://gone", UserIdentity: "u"}); err == nil {
		t.Fatal("expected unreachable broker error")
	}
	stored, _ := profiles.Databrokers(ctx)
	if len(stored) != 0 {
		t.Fatalf("nothing should be stored, got %+v", stored)
	}
}

func TestUpsertRejectsIncompleteEntry(t *testing.T) {
	reg, _ := newTestRegistry(t, profile.Profile{}, StaticEscrowSource{})
	if _, err := reg.Upsert(context.Background(), profile.BrokerEntry{Host: "https://b"}); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("expected ErrInvalidEntry, got %v", err)
	}
}

func TestHTTPEscrowSourceBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/escrow/balance" {
			http.NotFound(w, r)
			return
		}
		switch r.URL.Query().Get("identity") {
		case "known":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"balance":1234}`))
		default:
			http.Error(w, "unknown identity", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	src := HTTPEscrowSource{}
	balance, err := src.Balance(context.Background(), srv.URL+"/", "known")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 1234 {
		t.Fatalf("expected 1234, got %d", balance)
	}

	if _, err := src.Balance(context.Background(), srv.URL, "stranger"); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
