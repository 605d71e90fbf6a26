// Copyright (c) 2024 The walletstore developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package walletstore

import (
	"github.com/cryptonote-community/walletstore/crypto"
)

// GetOutputHandler returns the per-output spend-key recovery hook. The
// closure captures only a copy of the view secret key, so scanning threads
// can call it without touching the wallet.
func (w *ContainerWallet) GetOutputHandler() OutputHandler {
	vskCopy := w.viewKeys.SecretKey
	return func(txPublicKey crypto.PublicKey, kdCache *KeyDerivationCache,
		txInputsHash crypto.Hash, outputIndex int, output OutputKey) (crypto.PublicKey, crypto.SecretKey) {
		if !kdCache.Tried {
			kdCache.Tried = true
			// The tx public key is not checked by the daemon, so it can
			// be an invalid point; such a transaction is never ours.
			if kd, err := crypto.GenerateKeyDerivation(txPublicKey, vskCopy); err == nil {
				kdCache.KD = &kd
			}
		}
		if kdCache.KD == nil {
			return crypto.PublicKey{}, crypto.SecretKey{}
		}
		spendPublicKey, err := crypto.UnderivePublicKey(*kdCache.KD, outputIndex, output.PublicKey)
		if err != nil {
			return crypto.PublicKey{}, crypto.SecretKey{}
		}
		return spendPublicKey, crypto.SecretKey{}
	}
}

// DetectOurOutput confirms that a candidate spend public key belongs to
// this wallet and recomputes the output keypair for spendable wallets.
func (w *ContainerWallet) DetectOurOutput(tid, txInputsHash crypto.Hash, kdCache *KeyDerivationCache,
	outputIndex int, spendPublicKey crypto.PublicKey, secretScalar crypto.SecretKey,
	output OutputKey) (Detection, bool) {
	record, ok := w.getLookAheadRecord(spendPublicKey)
	if !ok {
		return Detection{}, false
	}
	var outputKeypair crypto.KeyPair
	if record.SpendSecretKey != (crypto.SecretKey{}) {
		if kdCache.KD == nil { // tx public key was invalid
			return Detection{}, false
		}
		// Some of this was computed during the scan already, but only
		// our own outputs get this far.
		var err error
		outputKeypair.PublicKey, err = crypto.DerivePublicKey(*kdCache.KD, outputIndex, spendPublicKey)
		if err != nil {
			return Detection{}, false
		}
		outputKeypair.SecretKey, err = crypto.DeriveSecretKey(*kdCache.KD, outputIndex, record.SpendSecretKey)
		if err != nil {
			return Detection{}, false
		}
		if outputKeypair.PublicKey != output.PublicKey {
			return Detection{}, false
		}
	}
	return Detection{
		Amount:        output.Amount,
		OutputKeypair: outputKeypair,
		Address: AccountAddressSimple{
			SpendPublicKey: spendPublicKey,
			ViewPublicKey:  w.viewKeys.PublicKey,
		},
	}, true
}

// GetOutputHandler returns the unlinkable-output recovery hook; it also
// yields the per-output secret scalar needed to later spend the output.
func (w *HDWallet) GetOutputHandler() OutputHandler {
	vskCopy := w.viewKeys.SecretKey
	return func(txPublicKey crypto.PublicKey, kdCache *KeyDerivationCache,
		txInputsHash crypto.Hash, outputIndex int, output OutputKey) (crypto.PublicKey, crypto.SecretKey) {
		var secretScalar crypto.SecretKey
		spendPublicKey, err := crypto.UnlinkableUnderivePublicKey(vskCopy, txInputsHash, outputIndex,
			output.PublicKey, output.EncryptedSecret, &secretScalar)
		if err != nil {
			return crypto.PublicKey{}, crypto.SecretKey{}
		}
		return spendPublicKey, secretScalar
	}
}

// DetectOurOutput confirms ownership of an unlinkable output. A hit grows
// the look-ahead window, so this call mutates wallet state and must not
// run concurrently with other wallet operations.
func (w *HDWallet) DetectOurOutput(tid, txInputsHash crypto.Hash, kdCache *KeyDerivationCache,
	outputIndex int, spendPublicKey crypto.PublicKey, secretScalar crypto.SecretKey,
	output OutputKey) (Detection, bool) {
	record, ok := w.getLookAheadRecord(spendPublicKey)
	if !ok {
		return Detection{}, false
	}
	addr := w.RecordToAddress(record).(AccountAddressUnlinkable)
	if addr.IsAuditable != output.IsAuditable {
		return Detection{}, false
	}
	var outputKeypair crypto.KeyPair
	if record.SpendSecretKey != (crypto.SecretKey{}) {
		var err error
		outputKeypair.SecretKey, err = crypto.UnlinkableDeriveSecretKey(record.SpendSecretKey, secretScalar)
		if err != nil {
			return Detection{}, false
		}
		pub, ok2 := crypto.SecretKeyToPublicKey(outputKeypair.SecretKey)
		if !ok2 || pub != output.PublicKey {
			return Detection{}, false
		}
		outputKeypair.PublicKey = pub
	}
	return Detection{
		Amount:        output.Amount,
		OutputKeypair: outputKeypair,
		Address:       addr,
	}, true
}
