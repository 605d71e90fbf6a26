// Copyright (c) 2024 The walletstore developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package walletstore

import (
	"encoding/hex"
	"math"

	"github.com/cryptonote-community/walletstore/crypto"
)

// Timestamp is seconds since epoch. Zero means "unknown, scan from the
// beginning"; TimestampMax marks look-ahead records that must never
// trigger a rescan.
type Timestamp = uint64

const TimestampMax = Timestamp(math.MaxUint64)

// WalletRecord is one addressable sub-account. An all-zero spend secret
// marks tracking-only material.
type WalletRecord struct {
	SpendPublicKey    crypto.PublicKey
	SpendSecretKey    crypto.SecretKey
	CreationTimestamp Timestamp
}

// OutputKey is the per-output context the scanner hands to the wallet.
type OutputKey struct {
	Amount          uint64
	PublicKey       crypto.PublicKey
	EncryptedSecret crypto.PublicKey
	IsAuditable     bool
}

// Detection is the result of a successful detect_our_output call. The
// keypair secret is zero for view-only wallets.
type Detection struct {
	Amount        uint64
	OutputKeypair crypto.KeyPair
	Address       AccountAddress
}

// History is the set of destination addresses a sent transaction used.
type History map[AccountAddressSimple]struct{}

const importKeysHexLen = 256

// parseImportKeys splits the 256-hex-char import string into
// spend_pub | view_pub | spend_sec | view_sec.
func parseImportKeys(importKeys string) (record WalletRecord, view crypto.KeyPair, err error) {
	if len(importKeys) != importKeysHexLen {
		return record, view, errDecrypt("imported keys should be exactly 128 hex bytes")
	}
	raw, err := hex.DecodeString(importKeys)
	if err != nil {
		return record, view, errDecrypt("imported keys should contain only hex bytes")
	}
	copy(record.SpendPublicKey[:], raw[0:32])
	copy(view.PublicKey[:], raw[32:64])
	copy(record.SpendSecretKey[:], raw[64:96])
	copy(view.SecretKey[:], raw[96:128])
	return record, view, nil
}

func exportKeysHex(record WalletRecord, view crypto.KeyPair) string {
	raw := make([]byte, 0, importKeysHexLen/2)
	raw = append(raw, record.SpendPublicKey[:]...)
	raw = append(raw, view.PublicKey[:]...)
	raw = append(raw, record.SpendSecretKey[:]...)
	raw = append(raw, view.SecretKey[:]...)
	return hex.EncodeToString(raw)
}
