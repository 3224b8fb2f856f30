package domain

import "time"

// SigningKey is a persisted JWT signing key shared by every instance. The
// private half is encrypted at rest with the master key.
type SigningKey struct {
	ID                  string
	Kid                 string // key identifier published in the JWKS
	Algorithm           string
	PrivateKeyEncrypted []byte
	CreatedAt           time.Time
	RetiresAt           time.Time // no new tokens are signed after this
	ExpiresAt           time.Time // verification ends and the row is purged
}
