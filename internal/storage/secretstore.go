// Package storage defines the secret-store collaborator the keystore
// persists through. Production apps bind this to an OS-backed secure
// key-value store; the file and Mongo implementations here cover CLI and
// synced-backend use.
package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("storage: key not found")

// SecretStore is a flat key-value store for small secret blobs. Get returns
// ErrNotFound for absent keys. Put overwrites. Delete of an absent key is
// not an error.
type SecretStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// Logical keys used by the keystore. Everything lives under these slots plus
// the per-master-key biometric PIN caches.
const (
	KeyWalletStorage = "multiwallet/storage"
	KeySchemaVersion = "multiwallet/schema"
	KeyLockState     = "wallet/locked"
	KeyLastActivity  = "wallet/last-activity"

	biometricPINPrefix = "biometric/pin/"
)

// BiometricPINKey is the cache slot for a master key's biometric-unlock PIN.
func BiometricPINKey(masterKeyID string) string {
	return biometricPINPrefix + masterKeyID
}
