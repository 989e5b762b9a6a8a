package ledger

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestSeedFromSuri(t *testing.T) {
	seed, err := seedFromSuri(testMnemonic)
	if err != nil {
		t.Fatalf("mnemonic: %v", err)
	}
	if len(seed) != 32 {
		t.Fatalf("expected 32 byte seed, got %d", len(seed))
	}

	hexSeed := "0x" + strings.Repeat("ab", 32)
	seed, err = seedFromSuri(hexSeed)
	if err != nil {
		t.Fatalf("hex seed: %v", err)
	}
	if !bytes.Equal(seed, bytes.Repeat([]byte{0xab}, 32)) {
		t.Fatalf("unexpected hex seed %x", seed)
	}

	for _, bad := range []string{"", "not a mnemonic", "0x1234", "0xzz"} {
		if _, err := seedFromSuri(bad); !errors.Is(err, ErrCrypto) {
			t.Fatalf("seedFromSuri(%q): expected ErrCrypto, got %v", bad, err)
		}
	}
}

func TestSealAndOpenKey(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, 32)
	rec, key, err := sealKey(seed, []byte("secret"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	opened, err := openKey(rec, []byte("secret"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(opened, key) {
		t.Fatal("opened key differs from sealed key")
	}
	if _, err := openKey(rec, []byte("wrong")); !errors.Is(err, ErrCrypto) {
		t.Fatalf("expected ErrCrypto for wrong password, got %v", err)
	}
}

func TestCheckScheme(t *testing.T) {
	if err := checkScheme(SchemeEd25519); err != nil {
		t.Fatalf("ed25519 should be accepted: %v", err)
	}
	if err := checkScheme(SchemeSr25519); !errors.Is(err, ErrCrypto) {
		t.Fatalf("expected ErrCrypto for sr25519, got %v", err)
	}
}
