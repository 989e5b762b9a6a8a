package mainchain

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/google/uuid"
)

// ErrInsufficientBalance is returned by DevChain when a mainchain account
// cannot cover a transfer.
var ErrInsufficientBalance = errors.New("insufficient mainchain balance")

// DevChain is an in-memory settlement chain served over JSON-RPC. It backs
// the daemon's dev mode and the package tests.
type DevChain struct {
	mu        sync.Mutex
	ticker    TickerConfig
	balances  map[string]int64
	transfers map[string][]Transfer
}

// NewDevChain creates a chain whose genesis is genesis and ticks every tick.
func NewDevChain(genesis time.Time, tick time.Duration) *DevChain {
	return &DevChain{
		ticker: TickerConfig{
			GenesisUTCTime:        genesis.UnixMilli(),
			TickDurationMillis:    tick.Milliseconds(),
			EscrowExpirationTicks: 60,
		},
		balances:  make(map[string]int64),
		transfers: make(map[string][]Transfer),
	}
}

func (d *DevChain) TickerConfig() TickerConfig {
	return d.ticker
}

func (d *DevChain) AccountBalance(address string) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.balances[address]
}

// Fund credits a mainchain account.
func (d *DevChain) Fund(address string, milligons int64) (int64, error) {
	if milligons <= 0 {
		return 0, fmt.Errorf("fund amount must be positive")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.balances[address] += milligons
	return d.balances[address], nil
}

func (d *DevChain) TransferToLocalchain(address string, milligons int64) (string, error) {
	if milligons <= 0 {
		return "", fmt.Errorf("transfer amount must be positive")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.balances[address] < milligons {
		return "", ErrInsufficientBalance
	}
	d.balances[address] -= milligons
	t := Transfer{ID: uuid.NewString(), Address: address, Milligons: milligons}
	d.transfers[address] = append(d.transfers[address], t)
	return t.ID, nil
}

func (d *DevChain) TransferToMainchain(address string, milligons int64) (string, error) {
	if milligons <= 0 {
		return "", fmt.Errorf("transfer amount must be positive")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.balances[address] += milligons
	return uuid.NewString(), nil
}

// LocalchainTransfers lists every transfer ever sent to address. Claiming is
// tracked by the localchain, so the list is never pruned.
func (d *DevChain) LocalchainTransfers(address string) []Transfer {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Transfer, len(d.transfers[address]))
	copy(out, d.transfers[address])
	return out
}

// Server exposes the chain under the argon namespace.
func (d *DevChain) Server() (*rpc.Server, error) {
	server := rpc.NewServer()
	if err := server.RegisterName(Namespace, d); err != nil {
		return nil, fmt.Errorf("register devchain: %w", err)
	}
	return server, nil
}

// InProcClient returns a Client wired to the chain without a network hop.
func (d *DevChain) InProcClient(timeout time.Duration) (*RPCClient, error) {
	server, err := d.Server()
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &RPCClient{rpc: rpc.DialInProc(server), url: "inproc", timeout: timeout, server: server}, nil
}
