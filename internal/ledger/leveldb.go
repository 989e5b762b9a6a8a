package ledger

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/argon-desk/argon_desk/internal/argonfile"
	"github.com/argon-desk/argon_desk/internal/argons"
	"github.com/argon-desk/argon_desk/internal/mainchain"
)

// ErrNoAccount is returned when a localchain has no key yet.
var ErrNoAccount = errors.New("localchain has no account")

var (
	keyKeystore = []byte("keystore")
	keyState    = []byte("state")
)

const (
	prefixFile         = "file:"
	prefixNotarization = "notarization:"
	prefixUnsynced     = "unsynced:"
	prefixClaimed      = "mainchain-transfer:"
)

type chainState struct {
	Balance          int64 `json:"balance"`
	MainchainBalance int64 `json:"mainchainBalance"`
}

// LevelStore is a localchain persisted in a goleveldb database.
type LevelStore struct {
	mu       sync.RWMutex
	db       *leveldb.DB
	path     string
	name     string
	password []byte
	ticker   Ticker
	client   mainchain.Client
	key      ed25519.PrivateKey
	address  string
	state    chainState
	now      func() time.Time
}

// Open opens or creates the localchain database at path.
func Open(_ context.Context, path string, cfg ChainConfig, password []byte) (Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty localchain path", ErrStorage)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("%w: create localchain dir: %v", ErrStorage, err)
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStorage, path, err)
	}
	s, err := newLevelStore(db, path, cfg, password)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// OpenMemory opens a localchain backed by in-memory storage. path only names it.
func OpenMemory(_ context.Context, path string, cfg ChainConfig, password []byte) (Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: open memory storage: %v", ErrStorage, err)
	}
	s, err := newLevelStore(db, path, cfg, password)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func newLevelStore(db *leveldb.DB, path string, cfg ChainConfig, password []byte) (*LevelStore, error) {
	s := &LevelStore{
		db:       db,
		path:     path,
		name:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		password: append([]byte(nil), password...),
		ticker:   NewTicker(cfg),
		now:      time.Now,
	}

	raw, err := db.Get(keyKeystore, nil)
	switch {
	case err == nil:
		var rec keystoreRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: decode keystore: %v", ErrStorage, err)
		}
		key, err := openKey(rec, s.password)
		if err != nil {
			db.Close()
			return nil, err
		}
		s.key = key
		s.address = rec.Address
	case !errors.Is(err, leveldb.ErrNotFound):
		db.Close()
		return nil, fmt.Errorf("%w: read keystore: %v", ErrStorage, err)
	}

	if err := s.getJSON(keyState, &s.state); err != nil && !errors.Is(err, leveldb.ErrNotFound) {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *LevelStore) Path() string { return s.path }

func (s *LevelStore) Name() string { return s.name }

func (s *LevelStore) Address(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.address == "" {
		return "", ErrNoAccount
	}
	return s.address, nil
}

func (s *LevelStore) Accounts(context.Context) ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.address == "" {
		return nil, nil
	}
	return []Account{{
		Address:          s.address,
		Type:             AccountTypeDeposit,
		Balance:          s.state.Balance,
		MainchainBalance: s.state.MainchainBalance,
	}}, nil
}

// ImportSuri installs a key derived from a mnemonic or hex seed.
func (s *LevelStore) ImportSuri(_ context.Context, suri string, scheme CryptoScheme, password []byte) error {
	if err := checkScheme(scheme); err != nil {
		return err
	}
	seed, err := seedFromSuri(suri)
	if err != nil {
		return err
	}
	defer clear(seed)

	s.mu.Lock()
	defer s.mu.Unlock()
	if password != nil {
		s.password = append(s.password[:0], password...)
	}
	return s.installKeyLocked(seed)
}

// Bootstrap generates a fresh key when the localchain has none.
func (s *LevelStore) Bootstrap(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.address != "" {
		return nil
	}
	seed, err := randomSeed()
	if err != nil {
		return err
	}
	defer clear(seed)
	return s.installKeyLocked(seed)
}

func (s *LevelStore) installKeyLocked(seed []byte) error {
	if s.address != "" {
		return fmt.Errorf("%w: localchain already has an account", ErrCrypto)
	}
	rec, key, err := sealKey(seed, s.password)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: encode keystore: %v", ErrStorage, err)
	}
	if err := s.db.Put(keyKeystore, raw, nil); err != nil {
		return fmt.Errorf("%w: write keystore: %v", ErrStorage, err)
	}
	s.key = key
	s.address = rec.Address
	return nil
}

// AttachMainchain replaces the mainchain client and refreshes the ticker.
func (s *LevelStore) AttachMainchain(ctx context.Context, client mainchain.Client) error {
	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
	return s.UpdateTicker(ctx)
}

// UpdateTicker reloads the tick schedule from the mainchain, if attached.
func (s *LevelStore) UpdateTicker(ctx context.Context) error {
	client := s.attached()
	if client == nil {
		return nil
	}
	cfg, err := client.TickerConfig(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ticker = Ticker{
		Genesis:               time.UnixMilli(cfg.GenesisUTCTime).UTC(),
		Duration:              cfg.TickDuration(),
		EscrowExpirationTicks: cfg.EscrowExpirationTicks,
	}
	s.mu.Unlock()
	return nil
}

func (s *LevelStore) Ticker() Ticker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ticker
}

func (s *LevelStore) attached() mainchain.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

// Overview reports balances. Mainchain figures are read live when a client is
// attached and fall back to the last synced values otherwise.
func (s *LevelStore) Overview(ctx context.Context) (Overview, error) {
	s.mu.RLock()
	o := Overview{
		Name:             s.name,
		Address:          s.address,
		Balance:          s.state.Balance,
		MainchainBalance: s.state.MainchainBalance,
	}
	client := s.client
	s.mu.RUnlock()

	if o.Address != "" && client != nil {
		if balance, err := client.AccountBalance(ctx, o.Address); err == nil {
			o.MainchainBalance = balance
		}
		if transfers, err := client.LocalchainTransfers(ctx, o.Address); err == nil {
			for _, t := range transfers {
				claimed, err := s.db.Has([]byte(prefixClaimed+t.ID), nil)
				if err == nil && !claimed {
					o.PendingBalance += t.Milligons
				}
			}
		}
	}

	if o.Address != "" {
		o.Accounts = []Account{{
			Address:          o.Address,
			Type:             AccountTypeDeposit,
			Balance:          o.Balance,
			MainchainBalance: o.MainchainBalance,
		}}
	}
	return o, nil
}

// BeginChange starts a change set against the current balance.
func (s *LevelStore) BeginChange() ChangeSet {
	return &changeSet{store: s}
}

// Sync claims pending mainchain transfers and reports balance changes
// notarized since the previous sync.
func (s *LevelStore) Sync(ctx context.Context) (SyncResult, error) {
	var result SyncResult
	address, err := s.Address(ctx)
	if err != nil {
		return result, err
	}

	if client := s.attached(); client != nil {
		balance, err := client.AccountBalance(ctx, address)
		if err != nil {
			return result, err
		}
		transfers, err := client.LocalchainTransfers(ctx, address)
		if err != nil {
			return result, err
		}
		claimed, err := s.claimTransfers(balance, transfers)
		if err != nil {
			return result, err
		}
		result.MainchainTransfers = claimed
	}

	changes, err := s.drainUnsynced()
	if err != nil {
		return result, err
	}
	result.BalanceChanges = changes
	return result, nil
}

func (s *LevelStore) claimTransfers(mainchainBalance int64, transfers []mainchain.Transfer) ([]SyncItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state
	next.MainchainBalance = mainchainBalance
	batch := new(leveldb.Batch)
	var claimed []SyncItem
	for _, t := range transfers {
		key := []byte(prefixClaimed + t.ID)
		done, err := s.db.Has(key, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: read claimed transfer: %v", ErrStorage, err)
		}
		if done || t.Milligons <= 0 {
			continue
		}
		next.Balance += t.Milligons
		batch.Put(key, []byte(t.ID))
		claimed = append(claimed, SyncItem{ID: t.ID, Milligons: t.Milligons})
	}
	if err := s.putJSONBatch(batch, keyState, next); err != nil {
		return nil, err
	}
	if err := s.db.Write(batch, nil); err != nil {
		return nil, fmt.Errorf("%w: claim transfers: %v", ErrStorage, err)
	}
	s.state = next
	return claimed, nil
}

func (s *LevelStore) drainUnsynced() ([]SyncItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefixUnsynced)), nil)
	batch := new(leveldb.Batch)
	var items []SyncItem
	for iter.Next() {
		var item SyncItem
		if err := json.Unmarshal(iter.Value(), &item); err != nil {
			iter.Release()
			return nil, fmt.Errorf("%w: decode unsynced change: %v", ErrStorage, err)
		}
		items = append(items, item)
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("%w: scan unsynced changes: %v", ErrStorage, err)
	}
	if batch.Len() == 0 {
		return nil, nil
	}
	if err := s.db.Write(batch, nil); err != nil {
		return nil, fmt.Errorf("%w: clear unsynced changes: %v", ErrStorage, err)
	}
	return items, nil
}

// SendFile debits milligons and returns a send file claimable by recipients,
// or by anyone when recipients is empty.
func (s *LevelStore) SendFile(ctx context.Context, milligons int64, recipients []string) (string, error) {
	if milligons <= 0 {
		return "", fmt.Errorf("%w: send amount must be positive", argons.ErrInvalidAmount)
	}
	address, err := s.Address(ctx)
	if err != nil {
		return "", err
	}
	file := argonfile.File{Send: []argonfile.BalanceChange{{
		AccountID:   address,
		AccountType: argonfile.AccountTypeDeposit,
		Notes: []argonfile.Note{{
			NoteType:  argonfile.NoteType{Action: argonfile.ActionSend, To: recipients},
			Milligons: milligons,
		}},
	}}}
	raw, err := argonfile.Marshal(file)
	if err != nil {
		return "", err
	}

	cs := &changeSet{store: s}
	if err := cs.debit(milligons, "send"); err != nil {
		return "", err
	}
	cs.fileKeys = append(cs.fileKeys, fileKey(raw))
	if _, err := cs.Notarize(ctx); err != nil {
		return "", err
	}
	return string(raw), nil
}

// RequestFile builds a request for milligons payable to this localchain.
func (s *LevelStore) RequestFile(ctx context.Context, milligons int64) (string, error) {
	if milligons <= 0 {
		return "", fmt.Errorf("%w: request amount must be positive", argons.ErrInvalidAmount)
	}
	address, err := s.Address(ctx)
	if err != nil {
		return "", err
	}
	file := argonfile.File{Request: []argonfile.BalanceChange{{
		AccountID:   address,
		AccountType: argonfile.AccountTypeDeposit,
		Notes: []argonfile.Note{{
			NoteType:  argonfile.NoteType{Action: argonfile.ActionClaim},
			Milligons: milligons,
		}},
	}}}
	raw, err := argonfile.Marshal(file)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// SendToLocalchain asks the mainchain to move milligons onto this localchain.
// The funds arrive with the next Sync.
func (s *LevelStore) SendToLocalchain(ctx context.Context, milligons int64) (string, error) {
	if milligons <= 0 {
		return "", fmt.Errorf("%w: transfer amount must be positive", argons.ErrInvalidAmount)
	}
	client := s.attached()
	if client == nil {
		return "", ErrNoMainchain
	}
	address, err := s.Address(ctx)
	if err != nil {
		return "", err
	}
	return client.TransferToLocalchain(ctx, address, milligons)
}

// Notarizations lists the notarization log in key order.
func (s *LevelStore) Notarizations(context.Context) ([]Notarization, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefixNotarization)), nil)
	defer iter.Release()
	var out []Notarization
	for iter.Next() {
		var n Notarization
		if err := json.Unmarshal(iter.Value(), &n); err != nil {
			return nil, fmt.Errorf("%w: decode notarization: %v", ErrStorage, err)
		}
		out = append(out, n)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("%w: scan notarizations: %v", ErrStorage, err)
	}
	return out, nil
}

func (s *LevelStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.password)
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrStorage, s.path, err)
	}
	return nil
}

func (s *LevelStore) getJSON(key []byte, v any) error {
	raw, err := s.db.Get(key, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return err
		}
		return fmt.Errorf("%w: read %s: %v", ErrStorage, key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrStorage, key, err)
	}
	return nil
}

func (s *LevelStore) putJSONBatch(batch *leveldb.Batch, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrStorage, key, err)
	}
	batch.Put(key, raw)
	return nil
}
