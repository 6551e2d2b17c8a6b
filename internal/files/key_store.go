package files

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ulift/internal/crypto"
)

// MasterKeyEnv holds a hex master key and takes precedence over the key file.
const MasterKeyEnv = "MASTER_KEY_HEX"

// ErrNoMasterKey means neither the environment nor the key file provided a key.
var ErrNoMasterKey = errors.New("master key not configured")

// ReadMasterKey loads the 32-byte master key from MASTER_KEY_HEX or the hex
// file at path.
func ReadMasterKey(path string) ([]byte, error) {
	h := os.Getenv(MasterKeyEnv)
	if h == "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s not set and %s not found", ErrNoMasterKey, MasterKeyEnv, path)
			}
			return nil, fmt.Errorf("read master key: %w", err)
		}
		h = string(data)
	}
	b, err := hex.DecodeString(strings.TrimSpace(h))
	if err != nil {
		return nil, fmt.Errorf("master key hex decode error: %w", err)
	}
	if len(b) != crypto.MasterKeySize {
		return nil, fmt.Errorf("master key length must be %d bytes (hex %d chars)", crypto.MasterKeySize, 2*crypto.MasterKeySize)
	}
	return b, nil
}

// WriteMasterKey stores key hex-encoded at path with owner-only permissions.
// An existing file is never overwritten.
func WriteMasterKey(path string, key []byte) error {
	if FileExists(path) {
		return fmt.Errorf("%s already exists, refusing to overwrite", path)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create key directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key)+"\n"), 0600); err != nil {
		return fmt.Errorf("write master key: %w", err)
	}
	return nil
}

// FileExists checks if the given file exists.
func FileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return !os.IsNotExist(err)
}
