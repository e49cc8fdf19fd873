package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"wallet-keystore/internal/crypto"
	"wallet-keystore/internal/mnemonic"
	"wallet-keystore/internal/storage"
	"wallet-keystore/internal/walletdb"
)

// CreateMasterKey generates a fresh mnemonic, encrypts it under pin in the
// current format, and appends a master key with one active sub-wallet at
// index 0. The new key becomes the active selection. Returns its identifier.
func (m *Manager) CreateMasterKey(ctx context.Context, pin, nickname string) (string, error) {
	phrase, err := mnemonic.Generate()
	if err != nil {
		return "", err
	}
	return m.addMasterKey(ctx, phrase, pin, nickname)
}

// ImportMasterKey is CreateMasterKey with a user-supplied mnemonic, which is
// validated and normalized before any crypto or storage work.
func (m *Manager) ImportMasterKey(ctx context.Context, phrase, pin, nickname string) (string, error) {
	if err := mnemonic.Validate(phrase); err != nil {
		return "", err
	}
	return m.addMasterKey(ctx, mnemonic.Normalize(phrase), pin, nickname)
}

func (m *Manager) addMasterKey(ctx context.Context, phrase, pin, nickname string) (string, error) {
	if len(pin) < minPINLen {
		return "", ErrPINTooShort
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.loadOrInit(ctx)
	if err != nil {
		return "", err
	}
	if len(s.MasterKeys) >= MaxMasterKeys {
		return "", ErrMasterKeyCapacity
	}

	sealed, err := crypto.EncryptVersion(phrase, pin, m.encVersion)
	if err != nil {
		return "", err
	}

	if nickname == "" {
		nickname = mnemonic.MasterKeyNickname(len(s.MasterKeys) + 1)
	}
	ts := m.now().UnixMilli()
	mk := walletdb.MasterKeyEntry{
		ID:                uuid.NewString(),
		Nickname:          nickname,
		EncryptedMnemonic: sealed,
		SubWallets: []walletdb.SubWalletEntry{{
			Index:      0,
			Nickname:   mnemonic.MainWalletNickname,
			CreatedAt:  ts,
			LastUsedAt: ts,
		}},
		CreatedAt:  ts,
		LastUsedAt: ts,
	}
	s.MasterKeys = append(s.MasterKeys, mk)
	s.ActiveMasterKeyID = mk.ID
	s.ActiveSubWalletIndex = 0

	if err := m.save(ctx, s); err != nil {
		return "", err
	}
	m.log.Printf("master key %s created (%d total)", mk.ID, len(s.MasterKeys))
	return mk.ID, nil
}

// LiveActivity carries the connected wallet's in-memory balance and
// transaction state, which may be fresher than the persisted flags.
type LiveActivity struct {
	HasBalance      bool
	HasTransactions bool
}

// AddSubWallet allocates the next free index for the master key and appends
// an active entry. Refused while the last active sub-wallet has no recorded
// activity: the user must use a wallet before spawning another. live, when
// non-nil and the last sub-wallet is the connected one, overrides the
// possibly-stale persisted flag; observed live activity is also persisted so
// the two sources stay consistent.
func (m *Manager) AddSubWallet(ctx context.Context, masterKeyID, nickname string, live *LiveActivity) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.load(ctx)
	if errors.Is(err, walletdb.ErrNoWallet) {
		return 0, ErrMasterKeyNotFound
	}
	if err != nil {
		return 0, err
	}
	mk := s.FindMasterKey(masterKeyID)
	if mk == nil {
		return 0, fmt.Errorf("%w: %s", ErrMasterKeyNotFound, masterKeyID)
	}

	// Capacity before activity, so a full key reports the right error.
	idx, err := walletdb.NextSubWalletIndex(mk)
	if err != nil {
		return 0, err
	}

	last := mk.LastActiveSubWallet()
	active := last != nil && last.HasActivity != nil && *last.HasActivity
	if !active && live != nil && last != nil &&
		s.ActiveMasterKeyID == masterKeyID && s.ActiveSubWalletIndex == last.Index {
		if live.HasBalance || live.HasTransactions {
			active = true
			t := true
			last.HasActivity = &t
			if live.HasTransactions {
				last.HasTransactionHistory = &t
			}
		}
	}
	if !active {
		return 0, ErrSubWalletInactive
	}

	if nickname == "" {
		nickname = mnemonic.SubWalletNickname(idx)
	}
	ts := m.now().UnixMilli()
	mk.SubWallets = append(mk.SubWallets, walletdb.SubWalletEntry{
		Index:      idx,
		Nickname:   nickname,
		CreatedAt:  ts,
		LastUsedAt: ts,
	})

	if err := m.save(ctx, s); err != nil {
		return 0, err
	}
	return idx, nil
}

// ArchiveSubWallet moves one active entry to the archive, stamping its
// archival time. Index 0 is never archived. Archiving the currently
// selected sub-wallet moves the selection back to index 0 of the same key.
func (m *Manager) ArchiveSubWallet(ctx context.Context, masterKeyID string, index int) error {
	if index == 0 {
		return ErrMainSubWallet
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.load(ctx)
	if err != nil {
		return err
	}
	mk := s.FindMasterKey(masterKeyID)
	if mk == nil {
		return fmt.Errorf("%w: %s", ErrMasterKeyNotFound, masterKeyID)
	}
	sw := mk.ActiveSubWallet(index)
	if sw == nil {
		return fmt.Errorf("%w: index %d", ErrSubWalletNotFound, index)
	}

	entry := *sw
	entry.ArchivedAt = m.now().UnixMilli()
	kept := mk.SubWallets[:0]
	for _, e := range mk.SubWallets {
		if e.Index != index {
			kept = append(kept, e)
		}
	}
	mk.SubWallets = kept
	mk.ArchivedSubWallets = append(mk.ArchivedSubWallets, entry)

	if s.ActiveMasterKeyID == masterKeyID && s.ActiveSubWalletIndex == index {
		s.ActiveSubWalletIndex = 0
	}
	return m.save(ctx, s)
}

// RestoreSubWallet moves an archived entry back to the active collection,
// clearing its archival stamp and re-sorting the active list by index.
func (m *Manager) RestoreSubWallet(ctx context.Context, masterKeyID string, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.load(ctx)
	if err != nil {
		return err
	}
	mk := s.FindMasterKey(masterKeyID)
	if mk == nil {
		return fmt.Errorf("%w: %s", ErrMasterKeyNotFound, masterKeyID)
	}
	sw := mk.ArchivedSubWallet(index)
	if sw == nil {
		return fmt.Errorf("%w: index %d not archived", ErrSubWalletNotFound, index)
	}

	entry := *sw
	entry.ArchivedAt = 0
	kept := mk.ArchivedSubWallets[:0]
	for _, e := range mk.ArchivedSubWallets {
		if e.Index != index {
			kept = append(kept, e)
		}
	}
	mk.ArchivedSubWallets = kept
	mk.SubWallets = append(mk.SubWallets, entry)
	mk.SortSubWallets()

	return m.save(ctx, s)
}

// SwitchWallet moves the active selection and persists it. With a non-empty
// pin it then derives the child mnemonic and cycles the Lightning session
// (disconnect, connect). A session failure is surfaced as an ExternalError
// but never rolls back the already-persisted selection.
func (m *Manager) SwitchWallet(ctx context.Context, masterKeyID string, subWalletIndex int, pin string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.load(ctx)
	if err != nil {
		return err
	}
	mk := s.FindMasterKey(masterKeyID)
	if mk == nil {
		return fmt.Errorf("%w: %s", ErrMasterKeyNotFound, masterKeyID)
	}
	sw := mk.ActiveSubWallet(subWalletIndex)
	if sw == nil {
		return fmt.Errorf("%w: index %d", ErrSubWalletNotFound, subWalletIndex)
	}

	ts := m.now().UnixMilli()
	mk.LastUsedAt = ts
	sw.LastUsedAt = ts
	s.ActiveMasterKeyID = masterKeyID
	s.ActiveSubWalletIndex = subWalletIndex
	if err := m.save(ctx, s); err != nil {
		return err
	}

	if pin == "" {
		return nil
	}
	phrase, err := m.decryptMnemonic(masterKeyID, mk.EncryptedMnemonic, pin)
	if err != nil {
		return err
	}
	child, err := mnemonic.DeriveSubWallet(phrase, subWalletIndex)
	if err != nil {
		return err
	}
	if m.session == nil {
		m.log.Printf("switch to %s/%d: no session configured", masterKeyID, subWalletIndex)
		return nil
	}
	// The new wallet is brought up even when tearing down the old session
	// fails; the selection stays persisted and the first failure of the
	// reconnect sequence is surfaced.
	derr := m.session.Disconnect(ctx)
	if err := m.session.Connect(ctx, child); err != nil {
		return externalErr("connect lightning session", err)
	}
	if derr != nil {
		return externalErr("disconnect lightning session", derr)
	}
	return nil
}

// DeleteResult reports what DeleteMasterKey did to the active selection.
type DeleteResult struct {
	WasActive   bool
	NewActiveID string
}

// DeleteMasterKey verifies the PIN against the stored secret, removes the
// entry, and moves the selection to the first remaining master key (or to
// none). The key's biometric PIN cache is cleared best-effort.
func (m *Manager) DeleteMasterKey(ctx context.Context, masterKeyID, pin string) (DeleteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res DeleteResult
	s, err := m.load(ctx)
	if err != nil {
		return res, err
	}
	mk := s.FindMasterKey(masterKeyID)
	if mk == nil {
		return res, fmt.Errorf("%w: %s", ErrMasterKeyNotFound, masterKeyID)
	}

	if !m.pins.allow(masterKeyID) {
		return res, ErrTooManyAttempts
	}
	if !crypto.VerifyPassword(mk.EncryptedMnemonic, pin) {
		return res, ErrInvalidPIN
	}

	kept := s.MasterKeys[:0]
	for _, e := range s.MasterKeys {
		if e.ID != masterKeyID {
			kept = append(kept, e)
		}
	}
	s.MasterKeys = kept

	res.WasActive = s.ActiveMasterKeyID == masterKeyID
	if res.WasActive {
		s.ActiveMasterKeyID = ""
		s.ActiveSubWalletIndex = 0
		if len(s.MasterKeys) > 0 {
			s.ActiveMasterKeyID = s.MasterKeys[0].ID
		}
	}
	res.NewActiveID = s.ActiveMasterKeyID

	if len(s.MasterKeys) == 0 {
		// Last key gone: remove the blob and stamp outright so the
		// installation reads as having no wallet again.
		if err := m.store.Delete(ctx, storage.KeyWalletStorage); err != nil {
			return DeleteResult{}, externalErr("delete storage", err)
		}
		if err := m.store.Delete(ctx, storage.KeySchemaVersion); err != nil {
			return DeleteResult{}, externalErr("delete schema stamp", err)
		}
	} else if err := m.save(ctx, s); err != nil {
		return DeleteResult{}, err
	}

	// Cleanup only; a failure here must not fail the delete.
	if err := m.store.Delete(ctx, storage.BiometricPINKey(masterKeyID)); err != nil {
		m.log.Printf("delete biometric PIN cache for %s: %v", masterKeyID, err)
	}
	m.log.Printf("master key %s deleted (%d remain)", masterKeyID, len(s.MasterKeys))
	return res, nil
}

// GetMnemonic decrypts and returns the master phrase. Wrong PINs surface the
// crypto layer's generic decryption failure.
func (m *Manager) GetMnemonic(ctx context.Context, masterKeyID, pin string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.load(ctx)
	if err != nil {
		return "", err
	}
	mk := s.FindMasterKey(masterKeyID)
	if mk == nil {
		return "", fmt.Errorf("%w: %s", ErrMasterKeyNotFound, masterKeyID)
	}
	return m.decryptMnemonic(masterKeyID, mk.EncryptedMnemonic, pin)
}

// decryptMnemonic centralizes attempt limiting and the staleness warning.
// Callers hold m.mu.
func (m *Manager) decryptMnemonic(masterKeyID string, sealed crypto.EncryptedSecret, pin string) (string, error) {
	if !m.pins.allow(masterKeyID) {
		return "", ErrTooManyAttempts
	}
	phrase, err := crypto.Decrypt(sealed, pin)
	if err != nil {
		return "", err
	}
	if sealed.Stale(m.now()) {
		m.log.Printf("master key %s: encrypted secret is stale, consider re-encrypting", masterKeyID)
	}
	return phrase, nil
}

// RenameMasterKey sets a master key's display nickname.
func (m *Manager) RenameMasterKey(ctx context.Context, masterKeyID, nickname string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.load(ctx)
	if err != nil {
		return err
	}
	mk := s.FindMasterKey(masterKeyID)
	if mk == nil {
		return fmt.Errorf("%w: %s", ErrMasterKeyNotFound, masterKeyID)
	}
	mk.Nickname = nickname
	return m.save(ctx, s)
}

// RenameSubWallet sets a sub-wallet's display nickname, active or archived.
func (m *Manager) RenameSubWallet(ctx context.Context, masterKeyID string, index int, nickname string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.load(ctx)
	if err != nil {
		return err
	}
	mk := s.FindMasterKey(masterKeyID)
	if mk == nil {
		return fmt.Errorf("%w: %s", ErrMasterKeyNotFound, masterKeyID)
	}
	sw := mk.ActiveSubWallet(index)
	if sw == nil {
		sw = mk.ArchivedSubWallet(index)
	}
	if sw == nil {
		return fmt.Errorf("%w: index %d", ErrSubWalletNotFound, index)
	}
	sw.Nickname = nickname
	return m.save(ctx, s)
}

// RecordSubWalletActivity persists activity observed by a live
// balance/transaction refresh. Flags only ever move to true, keeping the
// persisted state consistent with what the session has seen.
func (m *Manager) RecordSubWalletActivity(ctx context.Context, masterKeyID string, index int, hasBalance, hasTxHistory bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.load(ctx)
	if err != nil {
		return err
	}
	mk := s.FindMasterKey(masterKeyID)
	if mk == nil {
		return fmt.Errorf("%w: %s", ErrMasterKeyNotFound, masterKeyID)
	}
	sw := mk.ActiveSubWallet(index)
	if sw == nil {
		return fmt.Errorf("%w: index %d", ErrSubWalletNotFound, index)
	}

	changed := false
	t := true
	if (hasBalance || hasTxHistory) && (sw.HasActivity == nil || !*sw.HasActivity) {
		sw.HasActivity = &t
		changed = true
	}
	if hasTxHistory && (sw.HasTransactionHistory == nil || !*sw.HasTransactionHistory) {
		sw.HasTransactionHistory = &t
		changed = true
	}
	if !changed {
		return nil
	}
	sw.LastUsedAt = m.now().UnixMilli()
	return m.save(ctx, s)
}
