// Package walletdb owns the persisted multi-wallet index: every master key,
// its active and archived sub-wallets, and the active-selection pointer, all
// serialized as one JSON blob under a single secret-store key.
package walletdb

import (
	"encoding/json"
	"sort"

	"wallet-keystore/internal/crypto"
	"wallet-keystore/internal/mnemonic"
)

// SchemaVersion is the supported on-disk shape of MultiWalletStorage.
// Distinct from the per-secret encryption format version. A blob stamped
// with any other value is unsupported and never auto-upgraded.
const SchemaVersion = 1

// SubWalletEntry is one derived wallet partition of a master key.
// Timestamps are epoch milliseconds. ArchivedAt zero means active. The two
// activity flags are tri-state: nil means never observed, which is not the
// same as false for the add-sub-wallet gate.
type SubWalletEntry struct {
	Index                 int    `json:"index"`
	Nickname              string `json:"nickname"`
	CreatedAt             int64  `json:"createdAt"`
	LastUsedAt            int64  `json:"lastUsedAt"`
	ArchivedAt            int64  `json:"archivedAt,omitempty"`
	HasActivity           *bool  `json:"hasActivity,omitempty"`
	HasTransactionHistory *bool  `json:"hasTransactionHistory,omitempty"`
}

// UnmarshalJSON tolerates the two malformed historical shapes: a bare string
// where an entry object should be, and an object with no index field. Both
// decode with Index -1 so Migrate can rebuild them; well-formed entries pass
// through untouched.
func (e *SubWalletEntry) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*e = SubWalletEntry{Index: -1}
		return nil
	}
	var aux struct {
		Index                 *int   `json:"index"`
		Nickname              string `json:"nickname"`
		CreatedAt             int64  `json:"createdAt"`
		LastUsedAt            int64  `json:"lastUsedAt"`
		ArchivedAt            int64  `json:"archivedAt"`
		HasActivity           *bool  `json:"hasActivity"`
		HasTransactionHistory *bool  `json:"hasTransactionHistory"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	e.Index = -1
	if aux.Index != nil {
		e.Index = *aux.Index
	}
	e.Nickname = aux.Nickname
	e.CreatedAt = aux.CreatedAt
	e.LastUsedAt = aux.LastUsedAt
	e.ArchivedAt = aux.ArchivedAt
	e.HasActivity = aux.HasActivity
	e.HasTransactionHistory = aux.HasTransactionHistory
	return nil
}

// MasterKeyEntry is one imported or created master mnemonic and the
// sub-wallets partitioned from it. A sub-wallet index appears in SubWallets
// or ArchivedSubWallets, never both.
type MasterKeyEntry struct {
	ID                 string                 `json:"id"`
	Nickname           string                 `json:"nickname"`
	EncryptedMnemonic  crypto.EncryptedSecret `json:"encryptedMnemonic"`
	SubWallets         []SubWalletEntry       `json:"subWallets"`
	ArchivedSubWallets []SubWalletEntry       `json:"archivedSubWallets"`
	CreatedAt          int64                  `json:"createdAt"`
	LastUsedAt         int64                  `json:"lastUsedAt"`
	ArchivedAt         int64                  `json:"archivedAt,omitempty"`
}

// ActiveSubWallet returns a pointer into SubWallets for the given index.
func (mk *MasterKeyEntry) ActiveSubWallet(index int) *SubWalletEntry {
	for i := range mk.SubWallets {
		if mk.SubWallets[i].Index == index {
			return &mk.SubWallets[i]
		}
	}
	return nil
}

// ArchivedSubWallet returns a pointer into ArchivedSubWallets for the index.
func (mk *MasterKeyEntry) ArchivedSubWallet(index int) *SubWalletEntry {
	for i := range mk.ArchivedSubWallets {
		if mk.ArchivedSubWallets[i].Index == index {
			return &mk.ArchivedSubWallets[i]
		}
	}
	return nil
}

// LastActiveSubWallet is the active entry with the highest index, or nil.
// The add-sub-wallet gate is evaluated against this entry.
func (mk *MasterKeyEntry) LastActiveSubWallet() *SubWalletEntry {
	var last *SubWalletEntry
	for i := range mk.SubWallets {
		if last == nil || mk.SubWallets[i].Index > last.Index {
			last = &mk.SubWallets[i]
		}
	}
	return last
}

// SubWalletCount is the occupied-index count across both collections.
// Archived entries still hold their index.
func (mk *MasterKeyEntry) SubWalletCount() int {
	return len(mk.SubWallets) + len(mk.ArchivedSubWallets)
}

// CanAddSubWallet is the persisted-state half of the creation gate: room
// below the index cap, and the last active sub-wallet has recorded activity.
// A nil flag does not qualify. Live session state may override the activity
// half; that is the lifecycle manager's call.
func (mk *MasterKeyEntry) CanAddSubWallet() bool {
	if mk.SubWalletCount() >= mnemonic.MaxSubWallets {
		return false
	}
	last := mk.LastActiveSubWallet()
	return last != nil && last.HasActivity != nil && *last.HasActivity
}

// SortSubWallets restores the index-ascending order of the active
// collection, required after a restore from the archive.
func (mk *MasterKeyEntry) SortSubWallets() {
	sort.Slice(mk.SubWallets, func(i, j int) bool {
		return mk.SubWallets[i].Index < mk.SubWallets[j].Index
	})
}

// MultiWalletStorage is the single persisted unit. ActiveMasterKeyID, when
// non-empty, names an entry in MasterKeys, and ActiveSubWalletIndex an entry
// in that key's active collection.
type MultiWalletStorage struct {
	MasterKeys           []MasterKeyEntry `json:"masterKeys"`
	ActiveMasterKeyID    string           `json:"activeMasterKeyId"`
	ActiveSubWalletIndex int              `json:"activeSubWalletIndex"`
	Version              int              `json:"version"`
}

// FindMasterKey returns a pointer into MasterKeys, or nil.
func (s *MultiWalletStorage) FindMasterKey(id string) *MasterKeyEntry {
	for i := range s.MasterKeys {
		if s.MasterKeys[i].ID == id {
			return &s.MasterKeys[i]
		}
	}
	return nil
}
