package walletdb

import (
	"sort"
	"time"

	"wallet-keystore/internal/mnemonic"
)

// Migrate repairs structural damage within the supported schema version and
// reports whether anything changed; the caller decides whether to re-save.
// Idempotent: a second pass over migrated storage changes nothing.
//
// Repairs: entries decoded from a bare string or with no index field (Index
// -1) get their positional index, skipping forward past indices already held
// by well-formed entries in either collection; missing nicknames are
// synthesized ("Main Wallet" for index 0, "Sub-Wallet N" otherwise); zero
// timestamps become now; the active collection is re-sorted by index
// ascending.
func Migrate(s *MultiWalletStorage, now time.Time) bool {
	changed := false
	ts := now.UnixMilli()

	for i := range s.MasterKeys {
		mk := &s.MasterKeys[i]

		occupied := make(map[int]bool, mk.SubWalletCount())
		for _, sw := range mk.SubWallets {
			if sw.Index >= 0 {
				occupied[sw.Index] = true
			}
		}
		for _, sw := range mk.ArchivedSubWallets {
			if sw.Index >= 0 {
				occupied[sw.Index] = true
			}
		}
		if assignMissingIndices(mk.SubWallets, occupied) {
			changed = true
		}
		if assignMissingIndices(mk.ArchivedSubWallets, occupied) {
			changed = true
		}

		if fillEntryDefaults(mk.SubWallets, ts) {
			changed = true
		}
		if fillEntryDefaults(mk.ArchivedSubWallets, ts) {
			changed = true
		}
		if !sort.SliceIsSorted(mk.SubWallets, func(a, b int) bool {
			return mk.SubWallets[a].Index < mk.SubWallets[b].Index
		}) {
			mk.SortSubWallets()
			changed = true
		}
	}
	return changed
}

// assignMissingIndices gives every Index -1 entry its position in the slice,
// advanced past indices already taken. The repaired blob must still pass the
// no-duplicate-index validation on re-save.
func assignMissingIndices(entries []SubWalletEntry, occupied map[int]bool) bool {
	changed := false
	for i := range entries {
		if entries[i].Index >= 0 {
			continue
		}
		idx := i
		for occupied[idx] {
			idx++
		}
		entries[i].Index = idx
		occupied[idx] = true
		changed = true
	}
	return changed
}

func fillEntryDefaults(entries []SubWalletEntry, ts int64) bool {
	changed := false
	for i := range entries {
		e := &entries[i]
		if e.Nickname == "" {
			if e.Index == 0 {
				e.Nickname = mnemonic.MainWalletNickname
			} else {
				e.Nickname = mnemonic.SubWalletNickname(e.Index)
			}
			changed = true
		}
		if e.CreatedAt == 0 {
			e.CreatedAt = ts
			changed = true
		}
		if e.LastUsedAt == 0 {
			e.LastUsedAt = ts
			changed = true
		}
	}
	return changed
}
