package keystore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen_RoundTrip(t *testing.T) {
	ciphertext, tag, iv, salt, err := Seal("correct horse battery staple", []byte("sk-test-secret"))
	require.NoError(t, err)

	plaintext, err := Open("correct horse battery staple", ciphertext, tag, iv, salt)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-secret", string(plaintext))
}

func TestOpen_WrongPasswordFails(t *testing.T) {
	ciphertext, tag, iv, salt, err := Seal("right-password", []byte("sk-test-secret"))
	require.NoError(t, err)

	_, err = Open("wrong-password", ciphertext, tag, iv, salt)
	assert.Error(t, err)
}

func TestOpen_TamperedCiphertextFails(t *testing.T) {
	ciphertext, tag, iv, salt, err := Seal("pw", []byte("sk-test-secret"))
	require.NoError(t, err)
	ciphertext[0] ^= 0xFF

	_, err = Open("pw", ciphertext, tag, iv, salt)
	assert.Error(t, err)
}

func TestSeal_FreshSaltAndIVPerCall(t *testing.T) {
	_, _, iv1, salt1, err := Seal("pw", []byte("secret"))
	require.NoError(t, err)
	_, _, iv2, salt2, err := Seal("pw", []byte("secret"))
	require.NoError(t, err)

	assert.NotEqual(t, salt1, salt2)
	assert.NotEqual(t, iv1, iv2)
}

func TestFingerprint_StableAndFourChars(t *testing.T) {
	fp1 := Fingerprint("sk-abc123")
	fp2 := Fingerprint("sk-abc123")
	assert.Equal(t, fp1, fp2)
	assert.Len(t, fp1, 4)
	assert.NotEqual(t, fp1, Fingerprint("sk-different"))
}

func TestConstantTimeEqual(t *testing.T) {
	assert.True(t, ConstantTimeEqual([]byte("abc"), []byte("abc")))
	assert.False(t, ConstantTimeEqual([]byte("abc"), []byte("abd")))
	assert.False(t, ConstantTimeEqual([]byte("abc"), []byte("abcd")))
}

func TestZero(t *testing.T) {
	b := []byte("secret")
	Zero(b)
	for _, c := range b {
		assert.Equal(t, byte(0), c)
	}
}
