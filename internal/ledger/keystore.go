package ledger

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mr-tron/base58"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/scrypt"
)

const (
	// scrypt cost for localchain keystores: ~16MB and well under a second.
	scryptN      = 1 << 14
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLen      = 32
	nonceLen     = 12
)

type kdfParams struct {
	N      int    `json:"n"`
	R      int    `json:"r"`
	P      int    `json:"p"`
	KeyLen int    `json:"keyLen"`
	Salt   string `json:"salt"`
}

// keystoreRecord is the persisted, encrypted form of a localchain key.
type keystoreRecord struct {
	Scheme     CryptoScheme `json:"scheme"`
	Address    string       `json:"address"`
	KDF        kdfParams    `json:"kdf"`
	Nonce      string       `json:"nonce"`
	CipherText string       `json:"cipherText"`
	CreatedAt  time.Time    `json:"createdAt"`
}

// seedFromSuri accepts a bip39 mnemonic or a 0x-prefixed 32 byte hex seed.
func seedFromSuri(suri string) ([]byte, error) {
	suri = strings.TrimSpace(suri)
	if strings.HasPrefix(suri, "0x") {
		seed, err := hex.DecodeString(strings.TrimPrefix(suri, "0x"))
		if err != nil {
			return nil, fmt.Errorf("%w: decode hex seed: %v", ErrCrypto, err)
		}
		if len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("%w: hex seed must be %d bytes", ErrCrypto, ed25519.SeedSize)
		}
		return seed, nil
	}
	if !bip39.IsMnemonicValid(suri) {
		return nil, fmt.Errorf("%w: invalid mnemonic", ErrCrypto)
	}
	return bip39.NewSeed(suri, "")[:ed25519.SeedSize], nil
}

func randomSeed() ([]byte, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(rand.Reader, seed); err != nil {
		return nil, fmt.Errorf("%w: generate seed: %v", ErrCrypto, err)
	}
	return seed, nil
}

func addressOf(pub ed25519.PublicKey) string {
	return base58.Encode(pub)
}

func checkScheme(scheme CryptoScheme) error {
	switch scheme {
	case "", SchemeEd25519:
		return nil
	case SchemeSr25519:
		return fmt.Errorf("%w: %s keys are not supported", ErrCrypto, scheme)
	default:
		return fmt.Errorf("%w: unknown crypto scheme %q", ErrCrypto, scheme)
	}
}

func deriveKey(password, salt []byte, p kdfParams) ([]byte, error) {
	key, err := scrypt.Key(password, salt, p.N, p.R, p.P, p.KeyLen)
	if err != nil {
		return nil, fmt.Errorf("%w: derive key: %v", ErrCrypto, err)
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: create cipher: %v", ErrCrypto, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: create gcm: %v", ErrCrypto, err)
	}
	return aead, nil
}

// sealKey encrypts an ed25519 seed under password.
func sealKey(seed, password []byte) (keystoreRecord, ed25519.PrivateKey, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return keystoreRecord{}, nil, fmt.Errorf("%w: generate salt: %v", ErrCrypto, err)
	}
	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return keystoreRecord{}, nil, fmt.Errorf("%w: generate nonce: %v", ErrCrypto, err)
	}

	params := kdfParams{N: scryptN, R: scryptR, P: scryptP, KeyLen: scryptKeyLen, Salt: base64.StdEncoding.EncodeToString(salt)}
	key, err := deriveKey(password, salt, params)
	if err != nil {
		return keystoreRecord{}, nil, err
	}
	aead, err := newGCM(key)
	if err != nil {
		return keystoreRecord{}, nil, err
	}

	priv := ed25519.NewKeyFromSeed(seed)
	rec := keystoreRecord{
		Scheme:     SchemeEd25519,
		Address:    addressOf(priv.Public().(ed25519.PublicKey)),
		KDF:        params,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		CipherText: base64.StdEncoding.EncodeToString(aead.Seal(nil, nonce, seed, nil)),
		CreatedAt:  time.Now().UTC(),
	}
	return rec, priv, nil
}

// openKey decrypts a keystore record.
func openKey(rec keystoreRecord, password []byte) (ed25519.PrivateKey, error) {
	salt, err := base64.StdEncoding.DecodeString(rec.KDF.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: decode salt: %v", ErrCrypto, err)
	}
	nonce, err := base64.StdEncoding.DecodeString(rec.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: decode nonce: %v", ErrCrypto, err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(rec.CipherText)
	if err != nil {
		return nil, fmt.Errorf("%w: decode ciphertext: %v", ErrCrypto, err)
	}

	key, err := deriveKey(password, salt, rec.KDF)
	if err != nil {
		return nil, err
	}
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	seed, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid password", ErrCrypto)
	}
	defer clear(seed)

	priv := ed25519.NewKeyFromSeed(seed)
	if addressOf(priv.Public().(ed25519.PublicKey)) != rec.Address {
		return nil, fmt.Errorf("%w: keystore address mismatch", ErrCrypto)
	}
	return priv, nil
}
