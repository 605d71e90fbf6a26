// Copyright (c) 2024 The walletstore developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package walletstore

import (
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/cryptonote-community/walletstore/crypto"
)

// Per-wallet sidecar folders: <path>.history<net_suffix> holds encrypted
// per-transaction destination-address blobs, <path>.payments<net_suffix>
// holds the payment queue, one binary transaction per file.

func (w *ContainerWallet) historyFolder() string {
	return w.path + ".history" + netSuffix(w.currency.Net)
}

func (w *ContainerWallet) paymentQueueFolder() string {
	return w.path + ".payments" + netSuffix(w.currency.Net)
}

// atomicSaveFile writes data to a sibling temp file, fsyncs and renames it
// over path.
func atomicSaveFile(path string, data []byte, tmpPath string) error {
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func (w *ContainerWallet) historyFilename(tid crypto.Hash) string {
	h := crypto.FastHash(tid[:], w.historyFilenameSeed[:])
	return hex.EncodeToString(h[:]) + ".txh"
}

// SaveHistory persists the destination addresses of a sent transaction,
// encrypted under the history subkey. Returns false only when the history
// folder or file cannot be written.
func (w *ContainerWallet) SaveHistory(tid crypto.Hash, usedAddresses History) bool {
	folder := w.historyFolder()
	if err := os.MkdirAll(folder, 0700); err != nil {
		return false
	}
	if len(usedAddresses) == 0 {
		return true // saved empty history
	}
	data := make([]byte, 0, len(usedAddresses)*2*crypto.PublicKeySize)
	for addr := range usedAddresses {
		data = append(data, addr.ViewPublicKey[:]...)
		data = append(data, addr.SpendPublicKey[:]...)
	}
	iv := crypto.RandIV()
	encrypted := make([]byte, 0, crypto.ChachaIVSize+len(data))
	encrypted = append(encrypted, iv[:]...)
	encrypted = append(encrypted, crypto.ChaCha8(w.historyKey, iv, data)...)

	tmpPath := filepath.Join(folder, "_tmp.txh")
	if err := atomicSaveFile(filepath.Join(folder, w.historyFilename(tid)), encrypted, tmpPath); err != nil {
		log.Warnw("Failed to save payment history", "tid", hex.EncodeToString(tid[:]), "error", err)
		return false
	}
	return true
}

// LoadHistory returns the saved destination set for tid, or an empty set
// when nothing usable is on disk.
func (w *ContainerWallet) LoadHistory(tid crypto.Hash) History {
	usedAddresses := make(History)
	hist, err := os.ReadFile(filepath.Join(w.historyFolder(), w.historyFilename(tid)))
	if err != nil || len(hist) < crypto.ChachaIVSize ||
		(len(hist)-crypto.ChachaIVSize)%(2*crypto.PublicKeySize) != 0 {
		return usedAddresses
	}
	var iv crypto.ChachaIV
	copy(iv[:], hist[:crypto.ChachaIVSize])
	dec := crypto.ChaCha8(w.historyKey, iv, hist[crypto.ChachaIVSize:])
	for i := 0; i+2*crypto.PublicKeySize <= len(dec); i += 2 * crypto.PublicKeySize {
		var addr AccountAddressSimple
		copy(addr.ViewPublicKey[:], dec[i:i+crypto.PublicKeySize])
		copy(addr.SpendPublicKey[:], dec[i+crypto.PublicKeySize:i+2*crypto.PublicKeySize])
		usedAddresses[addr] = struct{}{}
	}
	return usedAddresses
}

// PaymentQueueGet returns every queued binary transaction on this net.
func (w *ContainerWallet) PaymentQueueGet() ([][]byte, error) {
	var result [][]byte
	folder := w.paymentQueueFolder()
	os.Remove(filepath.Join(folder, "tmp.tx")) // leftover of an interrupted save
	entries, err := os.ReadDir(folder)
	if err != nil {
		return result, nil // no queue folder yet
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		body, err := os.ReadFile(filepath.Join(folder, entry.Name()))
		if err != nil {
			continue
		}
		result = append(result, body)
	}
	return result, nil
}

func (w *ContainerWallet) PaymentQueueAdd(tid crypto.Hash, binaryTransaction []byte) error {
	folder := w.paymentQueueFolder()
	file := filepath.Join(folder, hex.EncodeToString(tid[:])+".tx")
	if err := os.MkdirAll(folder, 0700); err != nil {
		log.Warnw("Failed to save transaction to payment queue", "tid", hex.EncodeToString(tid[:]), "error", err)
		return nil
	}
	if err := atomicSaveFile(file, binaryTransaction, filepath.Join(folder, "tmp.tx")); err != nil {
		log.Warnw("Failed to save transaction to payment queue", "tid", hex.EncodeToString(tid[:]), "file", file, "error", err)
	} else {
		log.Infow("Saved transaction to payment queue", "tid", hex.EncodeToString(tid[:]), "file", file)
	}
	return nil
}

func (w *ContainerWallet) PaymentQueueRemove(tid crypto.Hash) error {
	folder := w.paymentQueueFolder()
	file := filepath.Join(folder, hex.EncodeToString(tid[:])+".tx")
	if err := os.Remove(file); err != nil {
		log.Warnw("Failed to remove transaction from payment queue", "tid", hex.EncodeToString(tid[:]), "file", file, "error", err)
	} else {
		log.Infow("Removed transaction from payment queue", "tid", hex.EncodeToString(tid[:]), "file", file)
	}
	os.Remove(folder) // succeeds only when it became empty
	return nil
}

// Backup exports the wallet under a new password and copies the history
// and payment-queue folders next to it.
func (w *ContainerWallet) Backup(dst, password string) error {
	dstHistory := dst + ".history"
	dstPayments := dst + ".payments"
	if err := os.MkdirAll(dstPayments, 0700); err != nil {
		return errWrite("could not create folder for backup "+dstPayments, err)
	}
	if err := os.MkdirAll(dstHistory, 0700); err != nil {
		return errWrite("could not create folder for backup "+dstHistory, err)
	}
	if err := w.ExportWallet(dst, password, false, false); err != nil {
		return err
	}
	if err := copyFolderFiles(w.paymentQueueFolder(), dstPayments); err != nil {
		return err
	}
	return copyFolderFiles(w.historyFolder(), dstHistory)
}

func copyFolderFiles(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return nil // nothing to copy
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		body, err := os.ReadFile(filepath.Join(src, entry.Name()))
		if err != nil {
			return errWrite("could not read "+entry.Name()+" for backup", err)
		}
		if err := os.WriteFile(filepath.Join(dst, entry.Name()), body, 0600); err != nil {
			return errWrite("could not copy "+entry.Name()+" for backup", err)
		}
	}
	return nil
}
