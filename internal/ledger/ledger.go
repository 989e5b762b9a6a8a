package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/argon-desk/argon_desk/internal/mainchain"
)

var (
	// ErrStorage wraps failures opening or writing localchain storage.
	ErrStorage = errors.New("localchain storage error")

	// ErrCrypto wraps key import, derivation and decryption failures.
	ErrCrypto = errors.New("localchain crypto error")

	// ErrInsufficientFunds occurs when the localchain balance cannot cover a
	// requested debit.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateFile indicates an argon file was already applied to this localchain.
	ErrDuplicateFile = errors.New("argon file already applied")

	// ErrNothingToClaim is returned when a send file holds no notes this
	// localchain may claim.
	ErrNothingToClaim = errors.New("argon file has nothing to claim")

	// ErrNoMainchain is returned by operations that need an attached mainchain client.
	ErrNoMainchain = errors.New("no mainchain attached")

	// ErrChangeSetClosed is returned when a notarized change set is reused.
	ErrChangeSetClosed = errors.New("change set already notarized")
)

// AccountTypeDeposit is the type of the account every localchain holds.
const AccountTypeDeposit = "deposit"

// OrphanedTransferError is returned by Notarize when the mainchain accepted a
// transfer but the notarization recording it was not stored. The transfer
// cannot be recalled, so callers must surface TransferID.
type OrphanedTransferError struct {
	TransferID string
	Err        error
}

func (e *OrphanedTransferError) Error() string {
	return fmt.Sprintf("mainchain transfer %s not recorded: %v", e.TransferID, e.Err)
}

func (e *OrphanedTransferError) Unwrap() error { return e.Err }

// CryptoScheme selects the key algorithm for imported key material.
type CryptoScheme string

const (
	SchemeEd25519 CryptoScheme = "ed25519"
	SchemeSr25519 CryptoScheme = "sr25519"
)

// ChainConfig holds the tick schedule used until a mainchain supplies its own.
type ChainConfig struct {
	GenesisUTCTime        time.Time
	TickDuration          time.Duration
	EscrowExpirationTicks uint32
}

// Account is one keyed account on a localchain.
type Account struct {
	Address          string `json:"address"`
	Type             string `json:"accountType"`
	Balance          int64  `json:"balance"`
	MainchainBalance int64  `json:"mainchainBalance"`
}

// Overview summarizes a localchain for wallet views.
type Overview struct {
	Name             string    `json:"name"`
	Address          string    `json:"address"`
	Balance          int64     `json:"balance"`
	PendingBalance   int64     `json:"pendingBalance"`
	MainchainBalance int64     `json:"mainchainBalance"`
	Accounts         []Account `json:"accounts"`
}

// Notarization records a finalized change set.
type Notarization struct {
	ID          string    `json:"id"`
	Tick        int64     `json:"tick"`
	Delta       int64     `json:"delta"`
	Balance     int64     `json:"balance"`
	Operations  []string  `json:"operations"`
	Signature   string    `json:"signature"`
	NotarizedAt time.Time `json:"notarizedAt"`
}

// SyncItem is one change reported by a sync. Items are unique by ID.
type SyncItem struct {
	ID        string `json:"id"`
	Milligons int64  `json:"milligons"`
}

// SyncResult reports what a sync applied.
type SyncResult struct {
	EscrowNotarizations       []SyncItem `json:"escrowNotarizations"`
	BalanceChanges            []SyncItem `json:"balanceChanges"`
	JumpAccountConsolidations []SyncItem `json:"jumpAccountConsolidations"`
	MainchainTransfers        []SyncItem `json:"mainchainTransfers"`
}

// Store is a single localchain: a keystore, a balance and its notarization log.
type Store interface {
	Path() string
	Name() string
	Address(ctx context.Context) (string, error)
	Accounts(ctx context.Context) ([]Account, error)
	ImportSuri(ctx context.Context, suri string, scheme CryptoScheme, password []byte) error
	Bootstrap(ctx context.Context) error
	AttachMainchain(ctx context.Context, client mainchain.Client) error
	UpdateTicker(ctx context.Context) error
	Ticker() Ticker
	Overview(ctx context.Context) (Overview, error)
	BeginChange() ChangeSet
	Sync(ctx context.Context) (SyncResult, error)
	SendFile(ctx context.Context, milligons int64, recipients []string) (string, error)
	RequestFile(ctx context.Context, milligons int64) (string, error)
	SendToLocalchain(ctx context.Context, milligons int64) (string, error)
	Close() error
}

// ChangeSet batches balance changes that take effect together on Notarize.
type ChangeSet interface {
	SendToMainchain(ctx context.Context, milligons int64) error
	AcceptArgonRequest(ctx context.Context, raw string) error
	ImportArgonFile(ctx context.Context, raw string) error
	Notarize(ctx context.Context) (Notarization, error)
}

// Opener opens or creates the localchain stored at path.
type Opener func(ctx context.Context, path string, cfg ChainConfig, password []byte) (Store, error)
