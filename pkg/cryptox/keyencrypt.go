package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"
)

var (
	masterKeyMu sync.RWMutex
	masterKey   []byte
)

// ErrMasterKeyNotLoaded is returned when key material is sealed or opened
// before LoadMasterKey.
var ErrMasterKeyNotLoaded = errors.New("cryptox: master key not loaded")

// SetMasterKey derives the AES-256 key from material. Tests use this
// instead of a file.
func SetMasterKey(material []byte) {
	sum := sha256.Sum256(material)
	masterKeyMu.Lock()
	masterKey = sum[:]
	masterKeyMu.Unlock()
}

// LoadMasterKey reads the master key material from file, generating and
// persisting it on first start. Every instance sharing a database must use
// the same file.
func LoadMasterKey(file string) error {
	m, err := loadOrGenerateSecret(file)
	if err != nil {
		return fmt.Errorf("load master key: %w", err)
	}
	SetMasterKey([]byte(m))
	return nil
}

func getMasterKey() ([]byte, error) {
	masterKeyMu.RLock()
	defer masterKeyMu.RUnlock()
	if masterKey == nil {
		return nil, ErrMasterKeyNotLoaded
	}
	return masterKey, nil
}

func masterGCM() (cipher.AEAD, error) {
	key, err := getMasterKey()
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// EncryptPrivateKey seals PEM key material with AES-256-GCM. The output is
// the random nonce followed by the ciphertext and tag.
func EncryptPrivateKey(pemData []byte) ([]byte, error) {
	gcm, err := masterGCM()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, pemData, nil), nil
}

// DecryptPrivateKey opens data produced by EncryptPrivateKey.
func DecryptPrivateKey(data []byte) ([]byte, error) {
	gcm, err := masterGCM()
	if err != nil {
		return nil, err
	}
	n := gcm.NonceSize()
	if len(data) < n {
		return nil, errors.New("cryptox: ciphertext too short")
	}
	plain, err := gcm.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("cryptox: decrypt private key: %w", err)
	}
	return plain, nil
}
