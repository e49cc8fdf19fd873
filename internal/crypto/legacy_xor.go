package crypto

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"strconv"
)

// VersionXOR wire layout inside EncryptedSecret.Data: XOR ciphertext followed
// by an 8-byte truncated SHA-256 over ciphertext||key. Not a real MAC, but it
// is what every pre-AEAD payload carries, so decrypt support is permanent.
const (
	legacyIVSize  = 16
	legacyTagSize = 8
)

func sealXOR(plaintext, password string, now int64) (EncryptedSecret, error) {
	key := deriveLegacyKey(password)
	defer Zero(key)

	iv := legacyIV(now, password)

	ct := make([]byte, len(plaintext))
	xorKeyStream(ct, []byte(plaintext), key, iv)

	data := make([]byte, 0, len(ct)+legacyTagSize)
	data = append(data, ct...)
	data = append(data, legacyTag(ct, key)...)

	return EncryptedSecret{
		Data:      data,
		IV:        iv,
		Timestamp: now,
		Version:   VersionXOR,
	}, nil
}

func openXOR(secret EncryptedSecret, password string) (string, error) {
	// Length guards before any hashing: the payload must hold at least the
	// trailing tag, and the IV must be whole.
	if len(secret.Data) < legacyTagSize || len(secret.IV) != legacyIVSize {
		return "", ErrDecryptionFailed
	}

	key := deriveLegacyKey(password)
	defer Zero(key)

	ct := secret.Data[:len(secret.Data)-legacyTagSize]
	tag := secret.Data[len(secret.Data)-legacyTagSize:]

	// The historical code compared byte-by-byte with early exit; constant
	// time is strictly stronger and decrypts the same payloads.
	if subtle.ConstantTimeCompare(legacyTag(ct, key), tag) != 1 {
		return "", ErrDecryptionFailed
	}

	pt := make([]byte, len(ct))
	xorKeyStream(pt, ct, key, secret.IV)
	return string(pt), nil
}

// legacyIV derives the per-encryption IV from the timestamp and password,
// truncated SHA-256. Uniqueness rides on the millisecond timestamp.
func legacyIV(now int64, password string) []byte {
	sum := sha256.Sum256([]byte(strconv.FormatInt(now, 10) + password))
	iv := make([]byte, legacyIVSize)
	copy(iv, sum[:legacyIVSize])
	return iv
}

// xorKeyStream XORs src into dst against a stream of SHA-256 blocks over
// key||iv||counter.
func xorKeyStream(dst, src, key, iv []byte) {
	var counter [4]byte
	block := make([]byte, 0, len(key)+len(iv)+len(counter))
	for off, i := 0, uint32(0); off < len(src); i++ {
		binary.BigEndian.PutUint32(counter[:], i)
		block = append(block[:0], key...)
		block = append(block, iv...)
		block = append(block, counter[:]...)
		stream := sha256.Sum256(block)
		n := min(len(src)-off, len(stream))
		for j := 0; j < n; j++ {
			dst[off+j] = src[off+j] ^ stream[j]
		}
		off += n
	}
}

func legacyTag(ciphertext, key []byte) []byte {
	h := sha256.New()
	h.Write(ciphertext)
	h.Write(key)
	return h.Sum(nil)[:legacyTagSize]
}
