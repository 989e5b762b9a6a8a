package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/argon-desk/argon_desk/internal/broker"
	"github.com/argon-desk/argon_desk/internal/config"
	"github.com/argon-desk/argon_desk/internal/ledger"
	"github.com/argon-desk/argon_desk/internal/logging"
	"github.com/argon-desk/argon_desk/internal/manager"
	"github.com/argon-desk/argon_desk/internal/profile"
	"github.com/argon-desk/argon_desk/internal/wallet"
)

const testToken = "secret"

func newApp(t *testing.T) *fiber.App {
	t.Helper()
	m, err := manager.New(manager.Options{
		Chain:         ledger.ChainConfig{GenesisUTCTime: time.Unix(0, 0), TickDuration: time.Minute},
		LocalchainDir: "/wallet/localchain",
		Profiles:      profile.NewService(profile.NewMemoryRepository(profile.Profile{})),
		Escrow:        broker.StaticEscrowSource{},
		Open:          ledger.OpenMemory,
		Logger:        logging.Discard(),
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start manager: %v", err)
	}

	app := fiber.New()
	cfg := config.Config{AppEnv: "development", APIToken: testToken}
	if err := Setup(app, Deps{Cfg: cfg, Manager: m, Logger: logging.Discard()}); err != nil {
		t.Fatalf("setup: %v", err)
	}
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+testToken)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func TestSetupRequiresTokenOutsideDev(t *testing.T) {
	m, err := manager.New(manager.Options{
		Profiles: profile.NewService(profile.NewMemoryRepository(profile.Profile{})),
		Open:     ledger.OpenMemory,
		Logger:   logging.Discard(),
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	defer m.Close(context.Background())

	err = Setup(fiber.New(), Deps{Cfg: config.Config{AppEnv: "production"}, Manager: m, Logger: logging.Discard()})
	if err == nil {
		t.Fatal("expected setup to refuse an unauthenticated production API")
	}
}

func TestHealthz(t *testing.T) {
	app := newApp(t)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil), -1)
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	app := newApp(t)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil), -1)
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestWalletRoute(t *testing.T) {
	app := newApp(t)
	resp := do(t, app, http.MethodGet, "/api/v1/wallet", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var w wallet.Wallet
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		t.Fatalf("decode wallet: %v", err)
	}
	if len(w.Accounts) != 1 || w.Balance != 0 {
		t.Fatalf("expected one empty account, got %+v", w)
	}
}

func TestSendFileRejectsMissingAmount(t *testing.T) {
	app := newApp(t)
	resp := do(t, app, http.MethodPost, "/api/v1/argons/send", `{"toAddress":"anyone"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestZeroArgonAmountIsBadRequest(t *testing.T) {
	app := newApp(t)
	for _, path := range []string{"/api/v1/argons/send", "/api/v1/argons/request"} {
		resp := do(t, app, http.MethodPost, path, `{"argons":"0"}`)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", path, resp.StatusCode)
		}
	}
}

func TestUnknownAccountIsNotFound(t *testing.T) {
	app := newApp(t)
	resp := do(t, app, http.MethodGet, "/api/v1/accounts/nobody", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestCreateAccountRoute(t *testing.T) {
	app := newApp(t)
	resp := do(t, app, http.MethodPost, "/api/v1/accounts/create", `{"name":"savings"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var overview ledger.Overview
	if err := json.NewDecoder(resp.Body).Decode(&overview); err != nil {
		t.Fatalf("decode overview: %v", err)
	}

	resp = do(t, app, http.MethodGet, "/api/v1/accounts/"+overview.Address, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected the new account to resolve, got %d", resp.StatusCode)
	}
}
