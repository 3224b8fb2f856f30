package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// Configuration for Argon2id hashing.
const (
	memory      = 19 * 1024 // Memory usage in KiB (19 MiB)
	iterations  = 2         // Iteration count
	parallelism = 1         // Number of threads
	keyLength   = 32        // Length of the generated hash
	saltLength  = 16        // Length of the salt
)

var (
	pepperMu sync.RWMutex
	pepper   string
)

// ErrPepperNotLoaded is returned when hashing is attempted before LoadPepper.
var ErrPepperNotLoaded = errors.New("cryptox: pepper not loaded")

// SetPepper installs a pepper directly. Tests use this instead of a file.
func SetPepper(p string) {
	pepperMu.Lock()
	pepper = p
	pepperMu.Unlock()
}

// LoadPepper reads the pepper from file, generating and persisting a new one
// on first start.
func LoadPepper(file string) error {
	p, err := loadOrGenerateSecret(file)
	if err != nil {
		return err
	}
	SetPepper(p)
	return nil
}

func getPepper() (string, error) {
	pepperMu.RLock()
	defer pepperMu.RUnlock()
	if pepper == "" {
		return "", ErrPepperNotLoaded
	}
	return pepper, nil
}

func loadOrGenerateSecret(file string) (string, error) {
	file = filepath.Clean(file)
	if err := os.MkdirAll(filepath.Dir(file), 0750); err != nil {
		return "", err
	}

	data, err := os.ReadFile(file) // #nosec G304 - path comes from operator config
	if err == nil {
		return string(data), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	buf := make([]byte, keyLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	p := base64.RawURLEncoding.EncodeToString(buf)
	if err := os.WriteFile(file, []byte(p), 0600); err != nil {
		return "", err
	}
	return p, nil
}
