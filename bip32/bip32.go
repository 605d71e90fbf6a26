// Copyright (c) 2024 The walletstore developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

// Package bip32 derives the wallet's HD root from a BIP-39 mnemonic
// through the hardened chain m/44'/768'/address_type'/0/0.
package bip32

import (
	"errors"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip39"
)

// ErrMnemonic is returned for wordlist or checksum failures.
var ErrMnemonic = errors.New("bip32: invalid bip39 mnemonic")

const (
	purpose  = 0x2c  // 44'
	coinType = 0x300 // 768'
)

// CheckMnemonic normalizes whitespace and case and validates the BIP-39
// checksum, returning the canonical form.
func CheckMnemonic(mnemonic string) (string, error) {
	normalized := strings.Join(strings.Fields(strings.ToLower(mnemonic)), " ")
	if !bip39.IsMnemonicValid(normalized) {
		return "", ErrMnemonic
	}
	return normalized, nil
}

// RootPrivateKey runs the full chain for the given address type and
// returns the terminal node's 32-byte private key.
func RootPrivateKey(mnemonic, mnemonicPassword string, addressType uint8) ([]byte, error) {
	normalized, err := CheckMnemonic(mnemonic)
	if err != nil {
		return nil, err
	}
	seed := bip39.NewSeed(normalized, mnemonicPassword)
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, err
	}
	path := []uint32{
		hdkeychain.HardenedKeyStart + purpose,
		hdkeychain.HardenedKeyStart + coinType,
		hdkeychain.HardenedKeyStart + uint32(addressType),
		0,
		0,
	}
	node := master
	for _, child := range path {
		node, err = node.Derive(child)
		if err != nil {
			return nil, err
		}
	}
	priv, err := node.ECPrivKey()
	if err != nil {
		return nil, err
	}
	return priv.Serialize(), nil
}
