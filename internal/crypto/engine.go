package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"time"
)

const (
	saltSize  = 32
	gcmIVSize = 12
	gcmTagLen = 16
)

// Encrypt seals plaintext under password using the current format
// (VersionRandomSalt): fresh 32-byte salt, fresh 12-byte IV, PBKDF2 key,
// AES-256-GCM with the tag appended to the ciphertext.
func Encrypt(plaintext, password string) (EncryptedSecret, error) {
	return EncryptVersion(plaintext, password, VersionRandomSalt)
}

// EncryptVersion seals plaintext in a specific format. VersionFixedSalt and
// VersionXOR writes exist for devices without a usable AES-GCM cipher and for
// exercising the legacy decrypt paths; everything else should call Encrypt.
func EncryptVersion(plaintext, password string, version int) (EncryptedSecret, error) {
	now := time.Now().UnixMilli()
	switch version {
	case VersionRandomSalt:
		salt := make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return EncryptedSecret{}, err
		}
		return sealGCM(plaintext, password, salt, now, VersionRandomSalt)

	case VersionFixedSalt:
		return sealGCM(plaintext, password, fixedSalt, now, VersionFixedSalt)

	case VersionXOR:
		return sealXOR(plaintext, password, now)

	default:
		return EncryptedSecret{}, fmt.Errorf("crypto: unknown format version %d", version)
	}
}

// Decrypt opens a secret, branching strictly on its version tag. A zero or
// missing version means the payload predates versioning and is treated as
// VersionXOR. Formats are never tried speculatively.
func Decrypt(secret EncryptedSecret, password string) (string, error) {
	switch secret.Version {
	case VersionRandomSalt:
		if len(secret.Salt) == 0 {
			return "", ErrDecryptionFailed
		}
		return openGCM(secret, password, secret.Salt)

	case VersionFixedSalt:
		return openGCM(secret, password, fixedSalt)

	default:
		// VersionXOR, payloads from before versioning existed (zero
		// version), and unrecognized tags all take the oldest path;
		// anything that is not really a v1 payload fails its
		// integrity check there.
		return openXOR(secret, password)
	}
}

// VerifyPassword reports whether password decrypts the secret.
func VerifyPassword(secret EncryptedSecret, password string) bool {
	_, err := Decrypt(secret, password)
	return err == nil
}

func sealGCM(plaintext, password string, salt []byte, now int64, version int) (EncryptedSecret, error) {
	key := deriveKey(password, salt)
	defer Zero(key)

	aead, err := newGCM(key)
	if err != nil {
		return EncryptedSecret{}, err
	}
	iv := make([]byte, gcmIVSize)
	if _, err := rand.Read(iv); err != nil {
		return EncryptedSecret{}, err
	}
	out := EncryptedSecret{
		Data:      aead.Seal(nil, iv, []byte(plaintext), nil),
		IV:        iv,
		Timestamp: now,
		Version:   version,
	}
	if version == VersionRandomSalt {
		out.Salt = salt
	}
	return out, nil
}

func openGCM(secret EncryptedSecret, password string, salt []byte) (string, error) {
	// Guard lengths before touching the cipher so truncated payloads never
	// reach Open with a short nonce or negative ciphertext length.
	if len(secret.IV) != gcmIVSize || len(secret.Data) < gcmTagLen {
		return "", ErrDecryptionFailed
	}

	key := deriveKey(password, salt)
	defer Zero(key)

	aead, err := newGCM(key)
	if err != nil {
		return "", err
	}
	pt, err := aead.Open(nil, secret.IV, secret.Data, nil)
	if err != nil {
		// Tag mismatch: wrong password or tampering, indistinguishable.
		return "", ErrDecryptionFailed
	}
	return string(pt), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if aead.Overhead() != gcmTagLen || aead.NonceSize() != gcmIVSize {
		return nil, errors.New("crypto: unexpected GCM geometry")
	}
	return aead, nil
}
