package wallet

import (
	"errors"
	"fmt"
)

var (
	// ErrMasterKeyNotFound and ErrSubWalletNotFound cover every lookup by
	// an identifier or index that is not in the index. Operations never
	// silently no-op on unknown targets.
	ErrMasterKeyNotFound = errors.New("wallet: master key not found")
	ErrSubWalletNotFound = errors.New("wallet: sub-wallet not found")

	// ErrMasterKeyCapacity is the per-installation master key cap.
	ErrMasterKeyCapacity = errors.New("wallet: master key limit reached")

	// ErrSubWalletInactive means the add-sub-wallet gate failed: the last
	// active sub-wallet has no recorded activity yet.
	ErrSubWalletInactive = errors.New("wallet: last sub-wallet has no recorded activity")

	// ErrMainSubWallet guards index 0, which normal flows never archive.
	ErrMainSubWallet = errors.New("wallet: sub-wallet 0 cannot be archived")

	// ErrInvalidPIN is returned by PIN-gated operations. Deliberately as
	// uninformative as the crypto layer's decryption error.
	ErrInvalidPIN = errors.New("wallet: invalid PIN")

	// ErrPINTooShort rejects weak PINs before any storage or KDF work.
	ErrPINTooShort = errors.New("wallet: PIN too short")

	// ErrTooManyAttempts is returned before any KDF work once the per-key
	// attempt budget is spent.
	ErrTooManyAttempts = errors.New("wallet: too many PIN attempts, retry later")

	// ErrBiometricDenied means the biometric prompt was rejected.
	ErrBiometricDenied = errors.New("wallet: biometric confirmation denied")
)

// ExternalError wraps a collaborator failure (secret store, Lightning
// session) with the operation that hit it. Never retried here; retry policy
// belongs to the caller.
type ExternalError struct {
	Op  string
	Err error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("wallet: %s: %v", e.Op, e.Err)
}

func (e *ExternalError) Unwrap() error { return e.Err }

func externalErr(op string, err error) error {
	return &ExternalError{Op: op, Err: err}
}
