// Package mainchain talks to the remote settlement chain over JSON-RPC.
package mainchain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
)

// Namespace prefixes every mainchain RPC method, e.g. argon_accountBalance.
const Namespace = "argon"

// DefaultTimeout bounds a single RPC round trip when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// ErrConnection is returned when the mainchain cannot be reached.
var ErrConnection = errors.New("mainchain connection failed")

// TickerConfig describes the chain's tick schedule. Times are unix milliseconds.
type TickerConfig struct {
	GenesisUTCTime        int64  `json:"genesisUtcTime"`
	TickDurationMillis    int64  `json:"tickDurationMillis"`
	EscrowExpirationTicks uint32 `json:"escrowExpirationTicks"`
}

// TickDuration converts the tick length to a time.Duration.
func (c TickerConfig) TickDuration() time.Duration {
	return time.Duration(c.TickDurationMillis) * time.Millisecond
}

// Transfer is a mainchain to localchain transfer waiting to be claimed.
type Transfer struct {
	ID        string `json:"id"`
	Address   string `json:"address"`
	Milligons int64  `json:"milligons"`
}

// Client is the settlement chain capability consumed by localchains.
type Client interface {
	TickerConfig(ctx context.Context) (TickerConfig, error)
	AccountBalance(ctx context.Context, address string) (int64, error)
	TransferToLocalchain(ctx context.Context, address string, milligons int64) (string, error)
	TransferToMainchain(ctx context.Context, address string, milligons int64) (string, error)
	LocalchainTransfers(ctx context.Context, address string) ([]Transfer, error)
	Close()
}

// Dialer opens a Client for a URL.
type Dialer func(ctx context.Context, url string, timeout time.Duration) (Client, error)

// RPCClient implements Client on top of a go-ethereum rpc.Client.
type RPCClient struct {
	rpc     *rpc.Client
	url     string
	timeout time.Duration
	server  *rpc.Server
}

// Connect dials url (ws, http or ipc) and verifies the endpoint by reading its
// ticker configuration.
func Connect(ctx context.Context, url string, timeout time.Duration) (*RPCClient, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c, err := rpc.DialContext(dialCtx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnection, url, err)
	}
	client := &RPCClient{rpc: c, url: url, timeout: timeout}
	if _, err := client.TickerConfig(dialCtx); err != nil {
		c.Close()
		return nil, err
	}
	return client, nil
}

// Dial adapts Connect to the Dialer signature.
func Dial(ctx context.Context, url string, timeout time.Duration) (Client, error) {
	return Connect(ctx, url, timeout)
}

// URL returns the endpoint the client is connected to.
func (c *RPCClient) URL() string { return c.url }

func (c *RPCClient) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.rpc.CallContext(ctx, result, Namespace+"_"+method, args...); err != nil {
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) {
			return fmt.Errorf("mainchain %s: %w", method, err)
		}
		return fmt.Errorf("%w: %s: %v", ErrConnection, method, err)
	}
	return nil
}

func (c *RPCClient) TickerConfig(ctx context.Context) (TickerConfig, error) {
	var cfg TickerConfig
	err := c.call(ctx, &cfg, "tickerConfig")
	return cfg, err
}

func (c *RPCClient) AccountBalance(ctx context.Context, address string) (int64, error) {
	var balance int64
	err := c.call(ctx, &balance, "accountBalance", address)
	return balance, err
}

func (c *RPCClient) TransferToLocalchain(ctx context.Context, address string, milligons int64) (string, error) {
	var id string
	err := c.call(ctx, &id, "transferToLocalchain", address, milligons)
	return id, err
}

func (c *RPCClient) TransferToMainchain(ctx context.Context, address string, milligons int64) (string, error) {
	var id string
	err := c.call(ctx, &id, "transferToMainchain", address, milligons)
	return id, err
}

func (c *RPCClient) LocalchainTransfers(ctx context.Context, address string) ([]Transfer, error) {
	var transfers []Transfer
	err := c.call(ctx, &transfers, "localchainTransfers", address)
	return transfers, err
}

// Close releases the connection and, for in-process clients, the server.
func (c *RPCClient) Close() {
	c.rpc.Close()
	if c.server != nil {
		c.server.Stop()
	}
}
