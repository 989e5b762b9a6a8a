package broker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// DefaultTimeout bounds a single escrow balance lookup.
const DefaultTimeout = 5 * time.Second

// EscrowSource reports the escrow balance a databroker holds for a user identity.
type EscrowSource interface {
	Balance(ctx context.Context, host, identity string) (int64, error)
}

// HTTPEscrowSource queries the broker's escrow balance endpoint.
type HTTPEscrowSource struct {
	Timeout time.Duration
}

type balanceResponse struct {
	Balance int64 `json:"balance"`
}

// Balance calls GET <host>/escrow/balance?identity=<identity>.
func (s HTTPEscrowSource) Balance(ctx context.Context, host, identity string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	endpoint := strings.TrimRight(host, "/") + "/escrow/balance"
	agent := fiber.Get(endpoint).
		Timeout(timeout).
		QueryString(url.Values{"identity": {identity}}.Encode())

	var out balanceResponse
	code, body, errs := agent.Struct(&out)
	if code != 0 && code != http.StatusOK {
		return 0, fmt.Errorf("broker %s: status %d: %s", host, code, strings.TrimSpace(string(body)))
	}
	if len(errs) > 0 {
		return 0, fmt.Errorf("broker %s: %w", host, errs[0])
	}
	return out.Balance, nil
}

// StaticEscrowSource answers every lookup from a fixed table keyed by host.
// Unknown hosts fail.
type StaticEscrowSource map[string]int64

// Balance returns the configured balance for host.
func (s StaticEscrowSource) Balance(_ context.Context, host, _ string) (int64, error) {
	balance, ok := s[host]
	if !ok {
		return 0, fmt.Errorf("broker %s: unreachable", host)
	}
	return balance, nil
}
