// Copyright (c) 2024 The walletstore developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package bip32

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tyler-smith/go-bip39"
)

func validMnemonic(t *testing.T) string {
	t.Helper()
	mnemonic, err := bip39.NewMnemonic(make([]byte, 32))
	require.NoError(t, err)
	return mnemonic
}

func TestCheckMnemonic(t *testing.T) {
	mnemonic := validMnemonic(t)

	normalized, err := CheckMnemonic(mnemonic)
	require.NoError(t, err)
	assert.Equal(t, mnemonic, normalized)

	// Surrounding whitespace is normalized away.
	messy := "  " + mnemonic + "  "
	normalized, err = CheckMnemonic(messy)
	require.NoError(t, err)
	assert.Equal(t, mnemonic, normalized)

	_, err = CheckMnemonic("zoo zoo zoo")
	assert.ErrorIs(t, err, ErrMnemonic)
}

func TestRootPrivateKey(t *testing.T) {
	mnemonic := validMnemonic(t)

	key, err := RootPrivateKey(mnemonic, "", 1)
	require.NoError(t, err)
	assert.Len(t, key, 32)

	again, err := RootPrivateKey(mnemonic, "", 1)
	require.NoError(t, err)
	assert.Equal(t, key, again)

	// The address type and the mnemonic password both fork the chain.
	other, err := RootPrivateKey(mnemonic, "", 2)
	require.NoError(t, err)
	assert.NotEqual(t, key, other)

	withPass, err := RootPrivateKey(mnemonic, "hunter2", 1)
	require.NoError(t, err)
	assert.NotEqual(t, key, withPass)

	_, err = RootPrivateKey("zoo zoo zoo", "", 1)
	assert.ErrorIs(t, err, ErrMnemonic)
}
