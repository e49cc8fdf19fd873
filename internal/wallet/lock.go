package wallet

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"wallet-keystore/internal/storage"
	"wallet-keystore/internal/walletdb"
)

// SetLocked records the app-level lock flag under its auxiliary key.
func (m *Manager) SetLocked(ctx context.Context, locked bool) error {
	v := []byte("0")
	if locked {
		v = []byte("1")
	}
	if err := m.store.Put(ctx, storage.KeyLockState, v); err != nil {
		return externalErr("write lock state", err)
	}
	return nil
}

// IsLocked reads the lock flag; absent means unlocked.
func (m *Manager) IsLocked(ctx context.Context) (bool, error) {
	b, err := m.store.Get(ctx, storage.KeyLockState)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, externalErr("read lock state", err)
	}
	return string(b) == "1", nil
}

// TouchActivity stamps the last-activity key with the current time.
func (m *Manager) TouchActivity(ctx context.Context) error {
	ms := strconv.FormatInt(m.now().UnixMilli(), 10)
	if err := m.store.Put(ctx, storage.KeyLastActivity, []byte(ms)); err != nil {
		return externalErr("write last activity", err)
	}
	return nil
}

// LastActivity returns the recorded last-activity time, zero when absent.
func (m *Manager) LastActivity(ctx context.Context) (time.Time, error) {
	b, err := m.store.Get(ctx, storage.KeyLastActivity)
	if errors.Is(err, storage.ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, externalErr("read last activity", err)
	}
	ms, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("wallet: corrupt last-activity value: %w", err)
	}
	return time.UnixMilli(ms), nil
}

// CacheBiometricPIN stores a master key's PIN for biometric unlock. The
// slot sits in the secure store and is only ever read back through the
// biometric gate.
func (m *Manager) CacheBiometricPIN(ctx context.Context, masterKeyID, pin string) error {
	if len(pin) < minPINLen {
		return ErrPINTooShort
	}
	if err := m.store.Put(ctx, storage.BiometricPINKey(masterKeyID), []byte(pin)); err != nil {
		return externalErr("cache biometric PIN", err)
	}
	return nil
}

// BiometricPIN returns the cached PIN after a positive biometric
// confirmation. Without a configured prompt there is no gate, so no PIN.
func (m *Manager) BiometricPIN(ctx context.Context, masterKeyID string) (string, error) {
	if m.biometric == nil {
		return "", errors.New("wallet: no biometric prompt configured")
	}
	ok, err := m.biometric.Confirm(ctx, "Unlock wallet")
	if err != nil {
		return "", externalErr("biometric prompt", err)
	}
	if !ok {
		return "", ErrBiometricDenied
	}
	b, err := m.store.Get(ctx, storage.BiometricPINKey(masterKeyID))
	if errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("%w: no cached PIN", ErrMasterKeyNotFound)
	}
	if err != nil {
		return "", externalErr("read biometric PIN", err)
	}
	return string(b), nil
}

// FactoryReset deletes the storage blob, the schema stamp, the lock-state
// keys and every master key's biometric PIN cache. The only path that
// destroys the index.
func (m *Manager) FactoryReset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// A corrupted or schema-mismatched blob must not block the wipe; this
	// is the recovery path out of exactly those states. The load is only
	// needed to enumerate biometric cache slots, so its failure costs at
	// most some orphaned cache entries.
	s, err := m.load(ctx)
	if err != nil && !errors.Is(err, walletdb.ErrNoWallet) {
		m.log.Printf("factory reset: load storage: %v", err)
	}
	if s != nil {
		for _, mk := range s.MasterKeys {
			if err := m.store.Delete(ctx, storage.BiometricPINKey(mk.ID)); err != nil {
				m.log.Printf("factory reset: delete biometric PIN for %s: %v", mk.ID, err)
			}
		}
	}
	for _, key := range []string{
		storage.KeyWalletStorage,
		storage.KeySchemaVersion,
		storage.KeyLockState,
		storage.KeyLastActivity,
	} {
		if err := m.store.Delete(ctx, key); err != nil {
			return externalErr("factory reset", err)
		}
	}
	m.log.Printf("factory reset complete")
	return nil
}
