package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// MasterKeySize is the length in bytes of the server master key.
const MasterKeySize = 32

// CookieKeys authenticate and encrypt the session cookie.
type CookieKeys struct {
	Hash  []byte // 64 bytes, HMAC-SHA256
	Block []byte // 32 bytes, AES-256
}

// DeriveCookieKeys derives the session cookie keys from the master key using
// HKDF-SHA256 with distinct info labels.
func DeriveCookieKeys(master []byte) (*CookieKeys, error) {
	if len(master) != MasterKeySize {
		return nil, fmt.Errorf("master key length must be %d bytes, got %d", MasterKeySize, len(master))
	}
	hash, err := derive(master, "ulift-cookie-hash", 64)
	if err != nil {
		return nil, err
	}
	block, err := derive(master, "ulift-cookie-block", 32)
	if err != nil {
		return nil, err
	}
	return &CookieKeys{Hash: hash, Block: block}, nil
}

func derive(master []byte, info string, n int) ([]byte, error) {
	h := hkdf.New(sha256.New, master, nil, []byte(info))
	out := make([]byte, n)
	if _, err := io.ReadFull(h, out); err != nil {
		return nil, fmt.Errorf("hkdf %s: %w", info, err)
	}
	return out, nil
}

// GenerateMasterKey returns a fresh random master key.
func GenerateMasterKey() []byte {
	return MustRandom(MasterKeySize)
}

// MustRandom returns n random bytes or panics.
func MustRandom(n int) []byte {
	if n <= 0 {
		panic(errors.New("crypto: non-positive random length"))
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		panic(err)
	}
	return b
}
