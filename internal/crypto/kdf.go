package crypto

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations applies to VersionFixedSalt and VersionRandomSalt.
	pbkdf2Iterations = 100_000

	// legacyIterations is 1/100 of the PBKDF2 count. The XOR format was
	// written on devices with no hardware crypto, where the full count
	// stalled the UI.
	legacyIterations = pbkdf2Iterations / 100

	keySize = 32
)

// fixedSalt is the well-known salt shared by every VersionXOR and
// VersionFixedSalt payload ever written. Changing it breaks decryption of
// all pre-VersionRandomSalt secrets.
var fixedSalt = []byte{
	0x8f, 0x1a, 0x3c, 0x57, 0xe2, 0x09, 0xb4, 0x6d,
	0x71, 0xc8, 0x95, 0x2e, 0x40, 0xfb, 0x13, 0xa6,
	0x5b, 0xd0, 0x87, 0x34, 0xe9, 0x1c, 0x62, 0xaf,
	0x08, 0x9d, 0x46, 0xf3, 0x2a, 0xb1, 0x7e, 0xc5,
}

// deriveKey runs PBKDF2-HMAC-SHA256 over (password, salt). The returned key
// is best-effort locked into memory; callers must Zero it when done.
func deriveKey(password string, salt []byte) []byte {
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, keySize, sha256.New)
	_ = lockMemory(key)
	return key
}

// deriveLegacyKey is the VersionXOR key schedule: SHA-256 over
// password||fixedSalt, then rehashed legacyIterations-1 more times.
func deriveLegacyKey(password string) []byte {
	sum := sha256.Sum256(append([]byte(password), fixedSalt...))
	for i := 1; i < legacyIterations; i++ {
		sum = sha256.Sum256(sum[:])
	}
	key := make([]byte, keySize)
	copy(key, sum[:])
	_ = lockMemory(key)
	return key
}
