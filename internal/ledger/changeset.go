package ledger

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"slices"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/argon-desk/argon_desk/internal/argonfile"
	"github.com/argon-desk/argon_desk/internal/argons"
)

type changeSet struct {
	store       *LevelStore
	delta       int64
	toMainchain int64
	fileKeys    [][]byte
	ops         []string
	notarized   bool
}

func fileKey(canonical []byte) []byte {
	sum := sha256.Sum256(canonical)
	return []byte(prefixFile + hex.EncodeToString(sum[:]))
}

func (cs *changeSet) available() int64 {
	cs.store.mu.RLock()
	defer cs.store.mu.RUnlock()
	return cs.store.state.Balance + cs.delta
}

func (cs *changeSet) debit(milligons int64, op string) error {
	if cs.notarized {
		return ErrChangeSetClosed
	}
	if have := cs.available(); have < milligons {
		return fmt.Errorf("%w: need %d, have %d", ErrInsufficientFunds, milligons, have)
	}
	cs.delta -= milligons
	cs.ops = append(cs.ops, op)
	return nil
}

func (cs *changeSet) checkFile(key []byte) error {
	for _, k := range cs.fileKeys {
		if bytes.Equal(k, key) {
			return ErrDuplicateFile
		}
	}
	applied, err := cs.store.db.Has(key, nil)
	if err != nil {
		return fmt.Errorf("%w: check applied files: %v", ErrStorage, err)
	}
	if applied {
		return ErrDuplicateFile
	}
	return nil
}

// SendToMainchain moves milligons from the localchain to the owner's
// mainchain account when the change set is notarized.
func (cs *changeSet) SendToMainchain(_ context.Context, milligons int64) error {
	if milligons <= 0 {
		return fmt.Errorf("%w: transfer amount must be positive", argons.ErrInvalidAmount)
	}
	if cs.store.attached() == nil {
		return ErrNoMainchain
	}
	if err := cs.debit(milligons, "send-to-mainchain"); err != nil {
		return err
	}
	cs.toMainchain += milligons
	return nil
}

// AcceptArgonRequest funds every deposit claim of a request file. Identical
// requests are legitimate, so accepted requests are not deduplicated.
func (cs *changeSet) AcceptArgonRequest(_ context.Context, raw string) error {
	if cs.notarized {
		return ErrChangeSetClosed
	}
	f, err := argonfile.Parse([]byte(raw))
	if err != nil {
		return err
	}
	if !f.IsRequest() {
		return fmt.Errorf("%w: expected a request file", argonfile.ErrInvalidFileType)
	}
	required := argonfile.RequiredFunding(f)
	if required <= 0 {
		return fmt.Errorf("%w: request has no deposit claims", argonfile.ErrInvalidFile)
	}
	return cs.debit(required, "accept-request")
}

// ImportArgonFile claims the send notes of a file that are unrestricted or
// addressed to this localchain.
func (cs *changeSet) ImportArgonFile(ctx context.Context, raw string) error {
	if cs.notarized {
		return ErrChangeSetClosed
	}
	f, err := argonfile.Parse([]byte(raw))
	if err != nil {
		return err
	}
	if !f.IsSend() {
		return fmt.Errorf("%w: expected a send file", argonfile.ErrInvalidFileType)
	}
	address, err := cs.store.Address(ctx)
	if err != nil {
		return err
	}

	var claim int64
	for _, change := range f.Send {
		if change.AccountType != argonfile.AccountTypeDeposit {
			continue
		}
		for _, note := range change.Notes {
			if note.NoteType.Action != argonfile.ActionSend {
				continue
			}
			if len(note.NoteType.To) == 0 || slices.Contains(note.NoteType.To, address) {
				claim += note.Milligons
			}
		}
	}
	if claim == 0 {
		return ErrNothingToClaim
	}
	if claim > math.MaxInt64-cs.available() {
		return fmt.Errorf("%w: claim exceeds the balance range", argonfile.ErrInvalidFile)
	}

	canonical, err := argonfile.Marshal(f)
	if err != nil {
		return err
	}
	key := fileKey(canonical)
	if err := cs.checkFile(key); err != nil {
		return err
	}
	cs.delta += claim
	cs.ops = append(cs.ops, "import-file")
	cs.fileKeys = append(cs.fileKeys, key)
	return nil
}

// Notarize commits the change set atomically and signs the result.
func (cs *changeSet) Notarize(ctx context.Context) (Notarization, error) {
	if cs.notarized {
		return Notarization{}, ErrChangeSetClosed
	}
	if len(cs.ops) == 0 {
		return Notarization{}, fmt.Errorf("change set is empty")
	}
	s := cs.store
	if cs.available() < 0 {
		return Notarization{}, ErrInsufficientFunds
	}

	ops := slices.Clone(cs.ops)
	if cs.toMainchain > 0 {
		client := s.attached()
		if client == nil {
			return Notarization{}, ErrNoMainchain
		}
		address, err := s.Address(ctx)
		if err != nil {
			return Notarization{}, err
		}
		transferID, err := client.TransferToMainchain(ctx, address, cs.toMainchain)
		if err != nil {
			return Notarization{}, err
		}
		ops = append(ops, "mainchain-transfer:"+transferID)
		n, err := cs.commit(ops)
		if err != nil {
			return Notarization{}, &OrphanedTransferError{TransferID: transferID, Err: err}
		}
		return n, nil
	}
	return cs.commit(ops)
}

// commit signs and stores the notarization for ops in one batch.
func (cs *changeSet) commit(ops []string) (Notarization, error) {
	s := cs.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == nil {
		return Notarization{}, ErrNoAccount
	}
	next := s.state
	next.Balance += cs.delta
	if next.Balance < 0 {
		return Notarization{}, ErrInsufficientFunds
	}

	now := s.now().UTC()
	n := Notarization{
		ID:          uuid.NewString(),
		Tick:        s.ticker.Current(now),
		Delta:       cs.delta,
		Balance:     next.Balance,
		Operations:  ops,
		NotarizedAt: now,
	}
	n.Signature = base58.Encode(ed25519.Sign(s.key, notarizationPayload(n)))

	batch := new(leveldb.Batch)
	if err := s.putJSONBatch(batch, keyState, next); err != nil {
		return Notarization{}, err
	}
	record, err := json.Marshal(n)
	if err != nil {
		return Notarization{}, fmt.Errorf("%w: encode notarization: %v", ErrStorage, err)
	}
	batch.Put([]byte(fmt.Sprintf("%s%020d:%s", prefixNotarization, now.UnixNano(), n.ID)), record)
	if err := s.putJSONBatch(batch, []byte(prefixUnsynced+n.ID), SyncItem{ID: n.ID, Milligons: n.Delta}); err != nil {
		return Notarization{}, err
	}
	for _, key := range cs.fileKeys {
		batch.Put(key, []byte(n.ID))
	}
	if err := s.db.Write(batch, nil); err != nil {
		return Notarization{}, fmt.Errorf("%w: write notarization: %v", ErrStorage, err)
	}

	s.state = next
	cs.notarized = true
	return n, nil
}

// VerifyNotarization checks a notarization signature against a localchain address.
func VerifyNotarization(address string, n Notarization) bool {
	pub, err := base58.Decode(address)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := base58.Decode(n.Signature)
	if err != nil {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), notarizationPayload(n), sig)
}

func notarizationPayload(n Notarization) []byte {
	return []byte(fmt.Sprintf("%s:%d:%d:%d", n.ID, n.Tick, n.Delta, n.Balance))
}
