// Copyright (c) 2024 The walletstore developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

// Package walletstore holds a wallet's key material at rest. Two backends
// satisfy the same Wallet contract: the legacy flat encrypted container
// file and the SQLite-backed hierarchical-deterministic wallet.
package walletstore

import (
	"encoding/hex"

	"github.com/cryptonote-community/walletstore/crypto"
)

// Currency identifies the coin and network the wallet belongs to.
type Currency struct {
	Name string // coin name stored inside HD wallets
	Net  string // "main", "stage", "test"
}

// netSuffix is "" for main, "_<net>net" otherwise.
func netSuffix(net string) string {
	if net == "main" {
		return ""
	}
	return "_" + net + "net"
}

// KeyDerivationCache memoizes the transaction-wide key derivation across
// the outputs of a single transaction. A nil KD after Tried means the
// transaction public key was invalid, so no output can be ours.
type KeyDerivationCache struct {
	Tried bool
	KD    *crypto.KeyDerivation
}

// OutputHandler computes the candidate spend public key (and, for HD
// wallets, the per-output secret scalar) for one transaction output. The
// handler holds only a copy of the view secret key and is safe to call
// from scanning threads; it never touches wallet state.
type OutputHandler func(txPublicKey crypto.PublicKey, kdCache *KeyDerivationCache,
	txInputsHash crypto.Hash, outputIndex int, output OutputKey) (spendPublicKey crypto.PublicKey, secretScalar crypto.SecretKey)

// Wallet is the storage contract shared by both backends. Operations are
// not safe for concurrent use; DetectOurOutput in particular may grow the
// look-ahead window and persist the used-address counter.
type Wallet interface {
	FirstAddress() AccountAddress
	IsOurAddress(addr AccountAddress) bool
	ViewPublicKey() crypto.PublicKey
	ViewSecretKey() crypto.SecretKey
	IsViewOnly() bool
	CanViewOutgoingAddresses() bool
	IsAuditable() bool
	ActualRecordCount() int
	OldestTimestamp() Timestamp

	// GenerateNewAddresses appends records for each input secret (zero
	// secret means "generate random" on the container backend and "next
	// deterministic" on HD). rescanFromCT reports that an existing
	// record's creation timestamp was lowered to ct.
	GenerateNewAddresses(sks []crypto.SecretKey, ct, now Timestamp) (records []WalletRecord, rescanFromCT bool, err error)
	RecordToAddress(record WalletRecord) AccountAddress
	Record(addr AccountAddress) (WalletRecord, bool)

	GetOutputHandler() OutputHandler
	DetectOurOutput(tid, txInputsHash crypto.Hash, kdCache *KeyDerivationCache, outputIndex int,
		spendPublicKey crypto.PublicKey, secretScalar crypto.SecretKey, output OutputKey) (Detection, bool)

	SetPassword(password string) error
	ExportWallet(exportPath, newPassword string, viewOnly, viewOutgoingAddresses bool) error
	ExportKeys() (string, error)
	Backup(dst, password string) error

	SetLabel(address, label string) error
	Label(address string) string

	SaveHistory(tid crypto.Hash, usedAddresses History) bool
	LoadHistory(tid crypto.Hash) History

	PaymentQueueGet() ([][]byte, error)
	PaymentQueueAdd(tid crypto.Hash, binaryTransaction []byte) error
	PaymentQueueRemove(tid crypto.Hash) error

	OnFirstOutputFound(ts Timestamp) error
	CacheName() string
	Close() error
}

// deriveFromSeedLegacy is the container ordering: cn_fast_hash(label | seed).
func deriveFromSeedLegacy(seed crypto.Hash, label string) crypto.Hash {
	return crypto.FastHash([]byte(label), seed[:])
}

// deriveFromSeed is the HD ordering: cn_fast_hash(seed | label). The two
// orderings are not interchangeable.
func deriveFromSeed(seed crypto.Hash, label string) crypto.Hash {
	return crypto.FastHash(seed[:], []byte(label))
}

// deriveFromKey builds the deterministic lookup tokens for hashed database
// columns: cn_fast_hash(wallet_key | namespace+key).
func deriveFromKey(key crypto.ChachaKey, suffix string) crypto.Hash {
	return crypto.FastHash(key[:], []byte(suffix))
}

// cacheName is hex(cn_fast_hash(view_public_key)) with a view-only suffix.
func cacheName(viewPublicKey crypto.PublicKey, viewOnly, viewOutgoing bool) string {
	h := crypto.FastHash(viewPublicKey[:])
	name := hex.EncodeToString(h[:])
	if viewOnly {
		if viewOutgoing {
			name += "-view-only-voa"
		} else {
			name += "-view-only"
		}
	}
	return name
}
