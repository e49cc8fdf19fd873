// Package mnemonic generates, validates and partitions BIP-39 seed phrases.
//
// Sub-wallet derivation is a word-substitution scheme, not BIP-32: one word
// of the master phrase is swapped deterministically per sub-wallet index.
// Existing wallets depend on this exact transform, so it must never change.
package mnemonic

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

// MaxSubWallets is the hard per-master-key cap on derivation indices.
const MaxSubWallets = 20

// ErrInvalidMnemonic covers wrong word count, unknown words and checksum
// failures. Wrapped variants carry the specific cause.
var ErrInvalidMnemonic = errors.New("mnemonic: invalid seed phrase")

var wordIndex = func() map[string]int {
	list := bip39.GetWordList()
	m := make(map[string]int, len(list))
	for i, w := range list {
		m[w] = i
	}
	return m
}()

// Generate returns a fresh 12-word phrase from 128 bits of entropy.
func Generate() (string, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

// Normalize lowercases, trims and collapses whitespace. Applied before any
// validation or derivation so pasted phrases with stray spacing still match.
func Normalize(phrase string) string {
	return strings.Join(strings.Fields(strings.ToLower(phrase)), " ")
}

// Validate rejects a master phrase before any derivation or encryption is
// attempted: word count, word-list membership and BIP-39 checksum.
func Validate(phrase string) error {
	phrase = Normalize(phrase)
	words := strings.Fields(phrase)
	switch len(words) {
	case 12, 15, 18, 21, 24:
	default:
		return fmt.Errorf("%w: %d words", ErrInvalidMnemonic, len(words))
	}
	for _, w := range words {
		if _, ok := wordIndex[w]; !ok {
			return fmt.Errorf("%w: unknown word %q", ErrInvalidMnemonic, w)
		}
	}
	if !bip39.IsMnemonicValid(phrase) {
		return fmt.Errorf("%w: checksum mismatch", ErrInvalidMnemonic)
	}
	return nil
}

// DeriveSubWallet produces the child phrase for a sub-wallet index by
// replacing the second-to-last word of the master phrase (the 11th word of a
// 12-word phrase) with wordlist[(orig + index*index + index*1009) mod 2048].
// Index 0 returns the master phrase unchanged. The output intentionally does
// not carry a valid BIP-39 checksum for index > 0; it is a partitioning
// transform, and derived phrases must match across app versions byte for
// byte.
func DeriveSubWallet(master string, index int) (string, error) {
	if index < 0 || index >= MaxSubWallets {
		return "", fmt.Errorf("mnemonic: sub-wallet index %d out of range", index)
	}
	if err := Validate(master); err != nil {
		return "", err
	}
	master = Normalize(master)
	if index == 0 {
		return master, nil
	}

	words := strings.Fields(master)
	pos := len(words) - 2
	orig := wordIndex[words[pos]]
	list := bip39.GetWordList()
	words[pos] = list[(orig+index*index+index*1009)%len(list)]
	return strings.Join(words, " "), nil
}

// MasterKeyNickname is the default display name for the n-th master key.
func MasterKeyNickname(n int) string { return fmt.Sprintf("Wallet %d", n) }

// SubWalletNickname is the default display name for the n-th sub-wallet.
func SubWalletNickname(n int) string { return fmt.Sprintf("Sub-Wallet %d", n) }

// MainWalletNickname names sub-wallet index 0.
const MainWalletNickname = "Main Wallet"
