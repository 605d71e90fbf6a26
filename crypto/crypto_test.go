// Copyright (c) 2024 The walletstore developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFastHash(t *testing.T) {
	// Keccak-256 of the empty string, legacy padding.
	empty := FastHash()
	assert.Equal(t,
		"c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470",
		hexString(empty[:]))
	// Concatenation of the arguments, not per-argument hashing.
	assert.Equal(t, FastHash([]byte("ab"), []byte("c")), FastHash([]byte("abc")))
}

func hexString(b []byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, 0, len(b)*2)
	for _, c := range b {
		out = append(out, digits[c>>4], digits[c&15])
	}
	return string(out)
}

func TestKeysMatch(t *testing.T) {
	kp := RandomKeypair()
	assert.True(t, KeysMatch(kp.SecretKey, kp.PublicKey))
	assert.True(t, KeyIsValid(kp.PublicKey))

	other := RandomKeypair()
	assert.False(t, KeysMatch(kp.SecretKey, other.PublicKey))

	var invalid PublicKey
	for i := range invalid {
		invalid[i] = 0xff
	}
	assert.False(t, KeyIsValid(invalid))
}

func TestHashToScalarCanonical(t *testing.T) {
	sk := HashToScalar([]byte("anything"))
	_, ok := SecretKeyToPublicKey(sk)
	assert.True(t, ok)
	assert.Equal(t, sk, HashToScalar([]byte("anything")))
	assert.NotEqual(t, sk, HashToScalar([]byte("anything else")))
}

func TestDeriveUnderiveSymmetry(t *testing.T) {
	view := RandomKeypair()
	spend := RandomKeypair()
	tx := RandomKeypair()

	// Receiver and sender compute the same derivation.
	kdReceiver, err := GenerateKeyDerivation(tx.PublicKey, view.SecretKey)
	require.NoError(t, err)
	kdSender, err := GenerateKeyDerivation(view.PublicKey, tx.SecretKey)
	require.NoError(t, err)
	assert.Equal(t, kdSender, kdReceiver)

	outputPub, err := DerivePublicKey(kdSender, 3, spend.PublicKey)
	require.NoError(t, err)
	outputSec, err := DeriveSecretKey(kdReceiver, 3, spend.SecretKey)
	require.NoError(t, err)
	assert.True(t, KeysMatch(outputSec, outputPub))

	recovered, err := UnderivePublicKey(kdReceiver, 3, outputPub)
	require.NoError(t, err)
	assert.Equal(t, spend.PublicKey, recovered)

	// A different output index underives to a different key.
	wrong, err := UnderivePublicKey(kdReceiver, 4, outputPub)
	require.NoError(t, err)
	assert.NotEqual(t, spend.PublicKey, wrong)
}

func TestGenerateHDSpendkeys(t *testing.T) {
	base := RandomKeypair()
	viewSeed := FastHash([]byte("seed"))

	out := make([]KeyPair, 10)
	require.NoError(t, GenerateHDSpendkeys(base, viewSeed, 0, out))
	for _, kp := range out {
		assert.True(t, KeysMatch(kp.SecretKey, kp.PublicKey))
	}

	// Generation is deterministic and window-position independent.
	tail := make([]KeyPair, 4)
	require.NoError(t, GenerateHDSpendkeys(base, viewSeed, 6, tail))
	assert.Equal(t, out[6:], tail)

	// Public-only generation yields the same public keys.
	pubOnly := make([]KeyPair, 10)
	require.NoError(t, GenerateHDSpendkeys(KeyPair{PublicKey: base.PublicKey}, viewSeed, 0, pubOnly))
	for i := range out {
		assert.Equal(t, out[i].PublicKey, pubOnly[i].PublicKey)
		assert.Equal(t, SecretKey{}, pubOnly[i].SecretKey)
	}
}

func TestUnlinkableRoundTrip(t *testing.T) {
	view := RandomKeypair()
	spend := RandomKeypair()
	ephemeral := RandomKeypair()
	txInputsHash := FastHash([]byte("inputs"))

	shared, err := GenerateKeyDerivation(ephemeral.PublicKey, view.SecretKey)
	require.NoError(t, err)
	buf := append([]byte{}, shared[:]...)
	buf = append(buf, txInputsHash[:]...)
	buf = append(buf, 7) // uvarint(7)
	scalar := HashToScalar(buf)

	outputSec, err := UnlinkableDeriveSecretKey(spend.SecretKey, scalar)
	require.NoError(t, err)
	outputPub, ok := SecretKeyToPublicKey(outputSec)
	require.True(t, ok)

	var recovered SecretKey
	spendPub, err := UnlinkableUnderivePublicKey(view.SecretKey, txInputsHash, 7,
		outputPub, ephemeral.PublicKey, &recovered)
	require.NoError(t, err)
	assert.Equal(t, spend.PublicKey, spendPub)
	assert.Equal(t, scalar, recovered)
}

func TestChaCha8RoundTrip(t *testing.T) {
	var key ChachaKey
	keyHash := FastHash([]byte("key"))
	copy(key[:], keyHash[:])
	iv := RandIV()

	plain := []byte("some plaintext spanning more than one 64-byte chacha block to cover the counter path.......")
	enc := ChaCha8(key, iv, plain)
	assert.NotEqual(t, plain, enc)
	assert.Equal(t, plain, ChaCha8(key, iv, enc))

	// A different IV produces a different keystream.
	assert.NotEqual(t, enc, ChaCha8(key, RandIV(), plain))
}

func TestChaCha20ZeroRoundTrip(t *testing.T) {
	var key ChachaKey
	keyHash := FastHash([]byte("row key"))
	copy(key[:], keyHash[:])
	plain := make([]byte, 300)
	for i := range plain {
		plain[i] = byte(i)
	}
	enc := ChaCha20Zero(key, plain)
	assert.NotEqual(t, plain, enc)
	assert.Equal(t, plain, ChaCha20Zero(key, enc))
}

func TestPasswordKeyDeterministic(t *testing.T) {
	a := PasswordKey([]byte("password"))
	b := PasswordKey([]byte("password"))
	c := PasswordKey([]byte("other"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
