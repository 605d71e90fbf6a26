// Copyright (c) 2024 The walletstore developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package walletstore

import (
	"runtime"
	"sync"

	"github.com/cryptonote-community/walletstore/crypto"
)

// Single-threaded generation is faster below this many records.
const generateAheadThreshold = 1000

// generateAhead1 fills out with deterministic records starting at index
// counter. Look-ahead records carry TimestampMax so handing one out never
// triggers a rescan.
func (w *HDWallet) generateAhead1(counter int, out []WalletRecord) error {
	keys := make([]crypto.KeyPair, len(out))
	viewSeed := crypto.Hash(w.spendKeyBase.PublicKey)
	if err := crypto.GenerateHDSpendkeys(w.spendKeyBase, viewSeed, uint64(counter), keys); err != nil {
		return err
	}
	for i := range out {
		out[i].SpendSecretKey = keys[i].SecretKey
		out[i].SpendPublicKey = keys[i].PublicKey
		out[i].CreationTimestamp = TimestampMax
	}
	return nil
}

// generateAhead refills the record window up to
// usedAddressCount + GenerateAhead. Large refills are sharded across
// hardware threads; each worker writes its own disjoint slice and results
// are only read after all workers are joined.
func (w *HDWallet) generateAhead() error {
	if len(w.records) >= w.usedAddressCount+GenerateAhead {
		return nil
	}
	delta := w.usedAddressCount + GenerateAhead - len(w.records)
	fresh := make([]WalletRecord, delta)
	if delta < generateAheadThreshold {
		if err := w.generateAhead1(len(w.records), fresh); err != nil {
			return err
		}
	} else {
		thc := runtime.NumCPU()
		var wg sync.WaitGroup
		errs := make([]error, thc)
		for i := 0; i < thc; i++ {
			start := delta * i / thc
			end := delta * (i + 1) / thc
			wg.Add(1)
			go func(i, start, end int) {
				defer wg.Done()
				errs[i] = w.generateAhead1(len(w.records)+start, fresh[start:end])
			}(i, start, end)
		}
		wg.Wait()
		for _, err := range errs {
			if err != nil {
				return err
			}
		}
	}
	for _, record := range fresh {
		w.recordsMap[record.SpendPublicKey] = len(w.records)
		w.records = append(w.records, record)
	}
	return nil
}
