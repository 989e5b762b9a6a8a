package ledger

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/argon-desk/argon_desk/internal/argonfile"
	"github.com/argon-desk/argon_desk/internal/mainchain"
)

var testChain = ChainConfig{GenesisUTCTime: time.Unix(0, 0), TickDuration: time.Minute}

func openMemory(t *testing.T, name string) Store {
	t.Helper()
	s, err := OpenMemory(context.Background(), name+".db", testChain, nil)
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	if err := s.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenPersistsKeyAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "localchain", "primary.db")

	s, err := Open(ctx, path, testChain, []byte("pw"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if accounts, _ := s.Accounts(ctx); len(accounts) != 0 {
		t.Fatalf("new localchain should have no accounts, got %v", accounts)
	}
	if err := s.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	address, _ := s.Address(ctx)
	if s.Name() != "primary" {
		t.Fatalf("expected name primary, got %q", s.Name())
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := Open(ctx, path, testChain, []byte("nope")); !errors.Is(err, ErrCrypto) {
		t.Fatalf("expected ErrCrypto for wrong password, got %v", err)
	}
	reopened, err := Open(ctx, path, testChain, []byte("pw"))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	again, _ := reopened.Address(ctx)
	if again != address {
		t.Fatalf("address changed across reopen: %s != %s", again, address)
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := Open(context.Background(), " ", testChain, nil); !errors.Is(err, ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
}

func TestImportSuriIsDeterministic(t *testing.T) {
	ctx := context.Background()
	a, _ := OpenMemory(ctx, "a.db", testChain, nil)
	b, _ := OpenMemory(ctx, "b.db", testChain, nil)
	defer a.Close()
	defer b.Close()

	if err := a.ImportSuri(ctx, testMnemonic, SchemeEd25519, nil); err != nil {
		t.Fatalf("import a: %v", err)
	}
	if err := b.ImportSuri(ctx, testMnemonic, "", nil); err != nil {
		t.Fatalf("import b: %v", err)
	}
	addrA, _ := a.Address(ctx)
	addrB, _ := b.Address(ctx)
	if addrA != addrB {
		t.Fatalf("same mnemonic should yield the same address: %s vs %s", addrA, addrB)
	}
	if err := a.ImportSuri(ctx, testMnemonic, "", nil); !errors.Is(err, ErrCrypto) {
		t.Fatalf("second import should fail with ErrCrypto, got %v", err)
	}

	c, _ := OpenMemory(ctx, "c.db", testChain, nil)
	defer c.Close()
	if err := c.ImportSuri(ctx, testMnemonic, SchemeSr25519, nil); !errors.Is(err, ErrCrypto) {
		t.Fatalf("expected ErrCrypto for sr25519, got %v", err)
	}
	if accounts, _ := c.Accounts(ctx); len(accounts) != 0 {
		t.Fatal("failed import must not create an account")
	}
}

func TestSendFileAndImport(t *testing.T) {
	ctx := context.Background()
	sender := openMemory(t, "sender")
	receiver := openMemory(t, "receiver")
	SeedBalance(sender, 5_000)

	to, _ := receiver.Address(ctx)
	raw, err := sender.SendFile(ctx, 1_200, []string{to})
	if err != nil {
		t.Fatalf("send file: %v", err)
	}
	if o, _ := sender.Overview(ctx); o.Balance != 3_800 {
		t.Fatalf("expected sender balance 3800, got %d", o.Balance)
	}

	cs := receiver.BeginChange()
	if err := cs.ImportArgonFile(ctx, raw); err != nil {
		t.Fatalf("import: %v", err)
	}
	n, err := cs.Notarize(ctx)
	if err != nil {
		t.Fatalf("notarize: %v", err)
	}
	if n.Delta != 1_200 || n.Balance != 1_200 {
		t.Fatalf("unexpected notarization %+v", n)
	}
	if !VerifyNotarization(to, n) {
		t.Fatal("notarization signature does not verify")
	}
	if _, err := cs.Notarize(ctx); !errors.Is(err, ErrChangeSetClosed) {
		t.Fatalf("expected ErrChangeSetClosed, got %v", err)
	}

	if err := receiver.BeginChange().ImportArgonFile(ctx, raw); !errors.Is(err, ErrDuplicateFile) {
		t.Fatalf("expected ErrDuplicateFile, got %v", err)
	}
	if err := sender.BeginChange().ImportArgonFile(ctx, raw); !errors.Is(err, ErrNothingToClaim) {
		t.Fatalf("sender should not claim a file addressed to receiver, got %v", err)
	}
}

func TestSendFileRequiresFunds(t *testing.T) {
	s := openMemory(t, "poor")
	if _, err := s.SendFile(context.Background(), 10, nil); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestAcceptArgonRequest(t *testing.T) {
	ctx := context.Background()
	requester := openMemory(t, "requester")
	payer := openMemory(t, "payer")
	SeedBalance(payer, 1_000)

	raw, err := requester.RequestFile(ctx, 700)
	if err != nil {
		t.Fatalf("request file: %v", err)
	}
	f, err := argonfile.Parse([]byte(raw))
	if err != nil || !f.IsRequest() {
		t.Fatalf("expected a request file, got %v %+v", err, f)
	}

	cs := payer.BeginChange()
	if err := cs.AcceptArgonRequest(ctx, raw); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := cs.Notarize(ctx); err != nil {
		t.Fatalf("notarize: %v", err)
	}
	if o, _ := payer.Overview(ctx); o.Balance != 300 {
		t.Fatalf("expected payer balance 300, got %d", o.Balance)
	}

	second, _ := requester.RequestFile(ctx, 500)
	if err := payer.BeginChange().AcceptArgonRequest(ctx, second); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	send, _ := payer.SendFile(ctx, 100, nil)
	if err := payer.BeginChange().AcceptArgonRequest(ctx, send); !errors.Is(err, argonfile.ErrInvalidFileType) {
		t.Fatalf("expected ErrInvalidFileType, got %v", err)
	}
}

func TestSyncWithMainchain(t *testing.T) {
	ctx := context.Background()
	chain := mainchain.NewDevChain(time.Unix(0, 0), 30*time.Second)
	client, err := chain.InProcClient(time.Second)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	defer client.Close()

	s := openMemory(t, "synced")
	address, _ := s.Address(ctx)
	if err := s.AttachMainchain(ctx, client); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if s.Ticker().Duration != 30*time.Second {
		t.Fatalf("ticker should come from the mainchain, got %s", s.Ticker().Duration)
	}

	if _, err := chain.Fund(address, 2_000); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if _, err := s.SendToLocalchain(ctx, 1_500); err != nil {
		t.Fatalf("send to localchain: %v", err)
	}
	o, _ := s.Overview(ctx)
	if o.PendingBalance != 1_500 || o.MainchainBalance != 500 {
		t.Fatalf("unexpected overview before sync %+v", o)
	}

	result, err := s.Sync(ctx)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(result.MainchainTransfers) != 1 || result.MainchainTransfers[0].Milligons != 1_500 {
		t.Fatalf("expected one claimed transfer, got %+v", result)
	}
	o, _ = s.Overview(ctx)
	if o.Balance != 1_500 || o.PendingBalance != 0 {
		t.Fatalf("unexpected overview after sync %+v", o)
	}

	cs := s.BeginChange()
	if err := cs.SendToMainchain(ctx, 400); err != nil {
		t.Fatalf("send to mainchain: %v", err)
	}
	if _, err := cs.Notarize(ctx); err != nil {
		t.Fatalf("notarize: %v", err)
	}
	if balance := chain.AccountBalance(address); balance != 900 {
		t.Fatalf("expected mainchain balance 900, got %d", balance)
	}

	result, err = s.Sync(ctx)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if len(result.MainchainTransfers) != 0 {
		t.Fatalf("transfers must be claimed once, got %+v", result.MainchainTransfers)
	}
	if len(result.BalanceChanges) != 1 || result.BalanceChanges[0].Milligons != -400 {
		t.Fatalf("expected the notarized debit as a balance change, got %+v", result.BalanceChanges)
	}
	if result, _ = s.Sync(ctx); len(result.BalanceChanges) != 0 {
		t.Fatalf("balance changes must be reported once, got %+v", result.BalanceChanges)
	}

	ls := s.(*LevelStore)
	log, err := ls.Notarizations(ctx)
	if err != nil || len(log) != 1 {
		t.Fatalf("expected one notarization, got %v %v", log, err)
	}
}

func TestSendToMainchainWithoutClient(t *testing.T) {
	s := openMemory(t, "offline")
	SeedBalance(s, 100)
	if err := s.BeginChange().SendToMainchain(context.Background(), 50); !errors.Is(err, ErrNoMainchain) {
		t.Fatalf("expected ErrNoMainchain, got %v", err)
	}
	if _, err := s.SendToLocalchain(context.Background(), 50); !errors.Is(err, ErrNoMainchain) {
		t.Fatalf("expected ErrNoMainchain, got %v", err)
	}
}

func TestImportRejectsBalanceOverflow(t *testing.T) {
	ctx := context.Background()
	receiver := openMemory(t, "full")
	SeedBalance(receiver, math.MaxInt64-10)

	raw, err := argonfile.Marshal(argonfile.File{Send: []argonfile.BalanceChange{{
		AccountID:   "arSender",
		AccountType: argonfile.AccountTypeDeposit,
		Notes: []argonfile.Note{{
			NoteType:  argonfile.NoteType{Action: argonfile.ActionSend},
			Milligons: 100,
		}},
	}}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := receiver.BeginChange().ImportArgonFile(ctx, string(raw)); !errors.Is(err, argonfile.ErrInvalidFile) {
		t.Fatalf("expected ErrInvalidFile, got %v", err)
	}
	if o, _ := receiver.Overview(ctx); o.Balance != math.MaxInt64-10 {
		t.Fatalf("balance must be untouched, got %d", o.Balance)
	}
}

func TestNotarizeReportsOrphanedMainchainTransfer(t *testing.T) {
	ctx := context.Background()
	chain := mainchain.NewDevChain(time.Unix(0, 0), time.Minute)
	client, err := chain.InProcClient(time.Second)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	defer client.Close()

	s := openMemory(t, "orphan")
	address, _ := s.Address(ctx)
	if err := s.AttachMainchain(ctx, client); err != nil {
		t.Fatalf("attach: %v", err)
	}
	SeedBalance(s, 100)

	cs := s.BeginChange()
	if err := cs.SendToMainchain(ctx, 60); err != nil {
		t.Fatalf("stage transfer: %v", err)
	}
	// Storage fails after the mainchain has accepted the transfer.
	if err := s.(*LevelStore).db.Close(); err != nil {
		t.Fatalf("close db: %v", err)
	}

	_, err = cs.Notarize(ctx)
	var orphan *OrphanedTransferError
	if !errors.As(err, &orphan) || orphan.TransferID == "" {
		t.Fatalf("expected an orphaned transfer error, got %v", err)
	}
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("orphaned transfer should wrap ErrStorage, got %v", err)
	}
	if got := chain.AccountBalance(address); got != 60 {
		t.Fatalf("mainchain should hold the submitted transfer, got %d", got)
	}
	if o, _ := s.Overview(ctx); o.Balance != 100 {
		t.Fatalf("local balance must be unchanged, got %d", o.Balance)
	}
}
