package walletdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"wallet-keystore/internal/mnemonic"
	"wallet-keystore/internal/storage"
)

var (
	// ErrNoWallet means no storage blob has ever been written.
	ErrNoWallet = errors.New("walletdb: no wallet storage")

	// ErrSchemaMismatch means the blob's schema version is not the
	// supported one. Not auto-upgraded; the app needs an update.
	ErrSchemaMismatch = errors.New("walletdb: unsupported storage schema")

	// ErrSubWalletCapacity means all indices 0..19 are occupied.
	ErrSubWalletCapacity = errors.New("walletdb: all sub-wallet indices occupied")
)

// Load reads and decodes the storage blob, enforces the schema version, and
// applies structural migrations. If any migration fired the corrected blob is
// re-saved before returning, so the cost is paid once. Returns ErrNoWallet
// when nothing has been persisted yet.
func Load(ctx context.Context, store storage.SecretStore, now time.Time) (*MultiWalletStorage, error) {
	b, err := store.Get(ctx, storage.KeyWalletStorage)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoWallet
	}
	if err != nil {
		return nil, fmt.Errorf("walletdb: read storage: %w", err)
	}

	var s MultiWalletStorage
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("walletdb: decode storage: %w", err)
	}
	if s.Version != SchemaVersion {
		return nil, fmt.Errorf("%w: on-disk %d, supported %d",
			ErrSchemaMismatch, s.Version, SchemaVersion)
	}

	if Migrate(&s, now) {
		if err := Save(ctx, store, &s); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

// Save validates, serializes and writes the blob, then stamps the schema
// version under its auxiliary key so existence checks skip deserialization.
func Save(ctx context.Context, store storage.SecretStore, s *MultiWalletStorage) error {
	s.Version = SchemaVersion
	if err := s.validate(); err != nil {
		return err
	}
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := store.Put(ctx, storage.KeyWalletStorage, b); err != nil {
		return fmt.Errorf("walletdb: write storage: %w", err)
	}
	stamp := []byte(strconv.Itoa(SchemaVersion))
	if err := store.Put(ctx, storage.KeySchemaVersion, stamp); err != nil {
		return fmt.Errorf("walletdb: write schema stamp: %w", err)
	}
	return nil
}

// Exists is the fast existence check against the schema stamp alone.
func Exists(ctx context.Context, store storage.SecretStore) (bool, error) {
	_, err := store.Get(ctx, storage.KeySchemaVersion)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("walletdb: read schema stamp: %w", err)
	}
	return true, nil
}

// NextSubWalletIndex returns the first integer in 0..19 not occupied by an
// active or archived sub-wallet. Archived entries keep their index, so an
// index frees up only when its master key is deleted outright.
func NextSubWalletIndex(mk *MasterKeyEntry) (int, error) {
	occupied := make(map[int]bool, mk.SubWalletCount())
	for _, sw := range mk.SubWallets {
		occupied[sw.Index] = true
	}
	for _, sw := range mk.ArchivedSubWallets {
		occupied[sw.Index] = true
	}
	for i := 0; i < mnemonic.MaxSubWallets; i++ {
		if !occupied[i] {
			return i, nil
		}
	}
	return 0, ErrSubWalletCapacity
}

// validate enforces the cross-entry invariants before anything hits disk:
// no duplicate sub-wallet index within a master key, and a live active
// selection whenever one is set.
func (s *MultiWalletStorage) validate() error {
	for i := range s.MasterKeys {
		mk := &s.MasterKeys[i]
		seen := make(map[int]bool, mk.SubWalletCount())
		for _, sw := range mk.SubWallets {
			if seen[sw.Index] {
				return fmt.Errorf("walletdb: master key %s: duplicate sub-wallet index %d", mk.ID, sw.Index)
			}
			seen[sw.Index] = true
		}
		for _, sw := range mk.ArchivedSubWallets {
			if seen[sw.Index] {
				return fmt.Errorf("walletdb: master key %s: duplicate sub-wallet index %d", mk.ID, sw.Index)
			}
			seen[sw.Index] = true
		}
	}
	if s.ActiveMasterKeyID == "" {
		return nil
	}
	mk := s.FindMasterKey(s.ActiveMasterKeyID)
	if mk == nil {
		return fmt.Errorf("walletdb: active master key %s not in index", s.ActiveMasterKeyID)
	}
	if mk.ActiveSubWallet(s.ActiveSubWalletIndex) == nil {
		return fmt.Errorf("walletdb: active sub-wallet %d not in master key %s", s.ActiveSubWalletIndex, mk.ID)
	}
	return nil
}
