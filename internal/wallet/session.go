package wallet

import "context"

// LightningSession is the injected handle to the node SDK. The manager hands
// it derived child mnemonics and sequences disconnect-before-connect on
// wallet switches; it does not interpret SDK state beyond success/failure.
type LightningSession interface {
	Connect(ctx context.Context, mnemonic string) error
	Disconnect(ctx context.Context) error
}

// BiometricPrompt gates retrieval of cached biometric-unlock PINs. The
// cached PIN is never returned without a positive confirmation.
type BiometricPrompt interface {
	Confirm(ctx context.Context, reason string) (bool, error)
}
