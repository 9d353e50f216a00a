package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"io"

	"github.com/byokit/byokit/errs"
	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 16
	ivSize     = 12
	pbkdf2Iter = 600_000 // §4.3: "at least 600,000 iterations"
	keySize    = 32      // AES-256
)

// deriveKeySHA512 runs PBKDF2-SHA-512 over password+salt, per §4.3. §9: "an
// implementer must use a vetted AES-GCM and PBKDF2 primitive of their
// ecosystem, never a home-rolled one" — both primitives here come from the
// standard library / golang.org/x/crypto, not a bespoke implementation.
func deriveKeySHA512(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, pbkdf2Iter, keySize, sha512.New)
}

// Seal encrypts plaintext under password, producing a fresh salt and IV per
// call (§4.3: "IV and salt are fresh per record").
func Seal(password string, plaintext []byte) (ciphertext, tag, iv, salt []byte, err error) {
	salt = make([]byte, saltSize)
	if _, err = io.ReadFull(rand.Reader, salt); err != nil {
		return nil, nil, nil, nil, errs.Wrap(errs.EncryptionError, "", "generating salt", err)
	}

	key := deriveKeySHA512(password, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, nil, nil, errs.Wrap(errs.EncryptionError, "", "initializing cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, nil, nil, errs.Wrap(errs.EncryptionError, "", "initializing GCM", err)
	}

	iv = make([]byte, ivSize)
	if _, err = io.ReadFull(rand.Reader, iv); err != nil {
		return nil, nil, nil, nil, errs.Wrap(errs.EncryptionError, "", "generating IV", err)
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	// Go's GCM.Seal appends the tag to the ciphertext; split it back out so
	// the persisted shape matches §6's explicit {ct, tag} fields.
	tagStart := len(sealed) - gcm.Overhead()
	return sealed[:tagStart], sealed[tagStart:], iv, salt, nil
}

// Open decrypts a record sealed by Seal. Any failure — wrong password,
// corrupted ciphertext, truncated tag — becomes an ENCRYPTION_ERROR per
// §4.3, never a partial/garbage plaintext.
func Open(password string, ciphertext, tag, iv, salt []byte) ([]byte, error) {
	key := deriveKeySHA512(password, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errs.Wrap(errs.EncryptionError, "", "initializing cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errs.Wrap(errs.EncryptionError, "", "initializing GCM", err)
	}

	sealed := append(append([]byte{}, ciphertext...), tag...)
	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, errs.Wrap(errs.EncryptionError, "", "decrypting record", err)
	}
	return plaintext, nil
}

// Fingerprint derives the 4-character hex suffix of a one-way hash of key,
// per §3's Credential record definition and §4.3's "never emit the key
// itself." SHA-256 is used rather than a faster non-cryptographic hash
// because this value is the only externally observable trace of the secret
// — it must not be feasible to invert even approximately.
func Fingerprint(key string) string {
	sum := sha256.Sum256([]byte(key))
	hexSum := hex.EncodeToString(sum[:])
	return hexSum[len(hexSum)-4:]
}

// ConstantTimeEqual compares two secrets without leaking timing information,
// per §4.3's "constant-time comparison" requirement for validation checks.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// Zero overwrites b with zero bytes in place. provider.BaseProvider.Credential
// calls it on the plaintext from Store.Get once the key has been copied
// into the string an adapter sends, per §3:
// "MUST be zeroed after use when the backend supports memory wiping."
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
