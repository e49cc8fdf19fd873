package crypto

import (
	"errors"
	"time"
)

// Format versions for EncryptedSecret payloads. The version written into a
// payload is immutable; moving a secret forward means re-encrypting it.
const (
	// VersionXOR is the original scheme: iterated-SHA256 key, XOR
	// keystream, 8-byte truncated integrity hash. Decrypt support is
	// permanent; new writes use it only when no AES-GCM cipher is
	// available on the device.
	VersionXOR = 1

	// VersionFixedSalt is PBKDF2 + AES-256-GCM with a fixed salt shared
	// across all wallets. Decrypt-only.
	VersionFixedSalt = 2

	// VersionRandomSalt is PBKDF2 + AES-256-GCM with a per-secret random
	// salt. All new writes use this.
	VersionRandomSalt = 3
)

// StaleAfter is how old a secret may grow before readers should log a
// re-encryption warning. Staleness is advisory, never an error.
const StaleAfter = 90 * 24 * time.Hour

// ErrDecryptionFailed is the only error surfaced for wrong passwords,
// tampered ciphertext and truncated payloads alike. Callers must not be able
// to tell which check failed.
var ErrDecryptionFailed = errors.New("crypto: decryption failed")

// EncryptedSecret is the stored form of a PIN-protected secret. Salt is only
// present for VersionRandomSalt payloads; VersionXOR and VersionFixedSalt use
// a well-known fixed salt. Timestamp is epoch milliseconds at encryption
// time. A missing Version means the payload predates versioning and decodes
// as VersionXOR.
type EncryptedSecret struct {
	Data      []byte `json:"data"`
	IV        []byte `json:"iv"`
	Salt      []byte `json:"salt,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Version   int    `json:"version"`
}

// Stale reports whether the secret is old enough to warrant re-encryption,
// or carries a timestamp from the future. Callers log this; it is never a
// failure.
func (s EncryptedSecret) Stale(now time.Time) bool {
	ts := time.UnixMilli(s.Timestamp)
	if ts.After(now) {
		return true
	}
	return now.Sub(ts) > StaleAfter
}
