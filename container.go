// Copyright (c) 2024 The walletstore developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package walletstore

import (
	"encoding/binary"
	"io"
	"os"
	"time"

	"github.com/cryptonote-community/walletstore/crypto"
)

const serializationVersionV2 = 6

// checkKeysCount bounds how many records get a full secret-to-public
// consistency check on load. Checking every record would make opening a
// huge wallet take minutes; checking both ends still catches truncation
// and partial-encryption damage.
const checkKeysCount = 128

const (
	encryptedRecordSize = crypto.ChachaIVSize + crypto.PublicKeySize + crypto.SecretKeySize + 8
	containerPrefixSize = crypto.ChachaIVSize + encryptedRecordSize
	countsOffset        = 1 + containerPrefixSize
	recordsOffset       = countsOffset + 16
)

// walletFileSize is the exact container length for a given record count.
func walletFileSize(records int) int64 {
	return int64(recordsOffset) + int64(records)*encryptedRecordSize
}

// V1Loader loads the pre-V2 wallet layout from raw file contents. It is
// provided by the legacy serialization package; nil when legacy support is
// not linked in.
type V1Loader func(key crypto.ChachaKey, data []byte) (view crypto.KeyPair, records []WalletRecord, err error)

// LegacyLoaderV1 is consulted when a container file with a version byte
// below 6 is opened.
var LegacyLoaderV1 V1Loader

func encryptKeyPair(pk crypto.PublicKey, sk crypto.SecretKey, ct Timestamp, key crypto.ChachaKey) [encryptedRecordSize]byte {
	var plain [crypto.PublicKeySize + crypto.SecretKeySize + 8]byte
	copy(plain[:32], pk[:])
	copy(plain[32:64], sk[:])
	binary.LittleEndian.PutUint64(plain[64:], ct)
	iv := crypto.RandIV()
	var out [encryptedRecordSize]byte
	copy(out[:crypto.ChachaIVSize], iv[:])
	copy(out[crypto.ChachaIVSize:], crypto.ChaCha8(key, iv, plain[:]))
	return out
}

func decryptKeyPair(enc []byte, key crypto.ChachaKey) (pk crypto.PublicKey, sk crypto.SecretKey, ct Timestamp) {
	var iv crypto.ChachaIV
	copy(iv[:], enc[:crypto.ChachaIVSize])
	plain := crypto.ChaCha8(key, iv, enc[crypto.ChachaIVSize:encryptedRecordSize])
	copy(pk[:], plain[:32])
	copy(sk[:], plain[32:64])
	ct = binary.LittleEndian.Uint64(plain[64:])
	return
}

// ContainerWallet is the legacy flat-file backend: a version byte, an
// encrypted view-key record and a length-prefixed array of encrypted spend
// records, all under a CryptoNight-derived chacha key.
type ContainerWallet struct {
	currency Currency
	path     string

	walletKey crypto.ChachaKey
	file      *os.File // nil after loading a legacy-format file

	viewKeys        crypto.KeyPair
	records         []WalletRecord
	recordsMap      map[crypto.PublicKey]int
	oldestTimestamp Timestamp

	seed                crypto.Hash
	txDerivationSeed    crypto.Hash
	historyFilenameSeed crypto.Hash
	historyKey          crypto.ChachaKey
}

var _ Wallet = (*ContainerWallet)(nil)

// OpenContainer opens an existing container wallet file with a password.
func OpenContainer(currency Currency, path, password string) (*ContainerWallet, error) {
	w := &ContainerWallet{
		currency:   currency,
		path:       path,
		walletKey:  crypto.PasswordKey([]byte(password)),
		recordsMap: make(map[crypto.PublicKey]int),
	}
	if err := w.load(); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

func openContainerWithKey(currency Currency, path string, key crypto.ChachaKey) (*ContainerWallet, error) {
	w := &ContainerWallet{
		currency:   currency,
		path:       path,
		walletKey:  key,
		recordsMap: make(map[crypto.PublicKey]int),
	}
	if err := w.load(); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

// CreateContainer creates a new container wallet file. An empty importKeys
// generates a fresh random view/spend pair; otherwise importKeys must be
// the 256-hex-char spend_pub|view_pub|spend_sec|view_sec string.
func CreateContainer(currency Currency, path, password, importKeys string, creationTimestamp Timestamp) (*ContainerWallet, error) {
	w := &ContainerWallet{
		currency:   currency,
		path:       path,
		walletKey:  crypto.PasswordKey([]byte(password)),
		recordsMap: make(map[crypto.PublicKey]int),
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, errWrite("will not overwrite existing wallet "+path, err)
	}
	f.Close()

	if importKeys == "" {
		w.oldestTimestamp = Timestamp(time.Now().Unix()) // ignore creationTimestamp
		view := crypto.RandomKeypair()
		spend := crypto.RandomKeypair()
		w.viewKeys = view
		w.records = append(w.records, WalletRecord{
			SpendPublicKey:    spend.PublicKey,
			SpendSecretKey:    spend.SecretKey,
			CreationTimestamp: w.oldestTimestamp,
		})
	} else {
		record, view, err := parseImportKeys(importKeys)
		if err != nil {
			os.Remove(path)
			return nil, err
		}
		record.CreationTimestamp = creationTimestamp
		if !crypto.KeysMatch(view.SecretKey, view.PublicKey) {
			os.Remove(path)
			return nil, errDecrypt("imported secret view key does not match corresponding public key")
		}
		if record.SpendSecretKey != (crypto.SecretKey{}) && !crypto.KeysMatch(record.SpendSecretKey, record.SpendPublicKey) {
			os.Remove(path)
			return nil, errDecrypt("imported secret spend key does not match corresponding public key")
		}
		w.viewKeys = view
		w.records = append(w.records, record)
		w.oldestTimestamp = 0 // will scan the entire blockchain
	}
	w.recordsMap[w.records[0].SpendPublicKey] = 0
	if err := w.saveAndCheck(); err != nil {
		os.Remove(path)
		return nil, err
	}
	w.records = nil
	w.recordsMap = make(map[crypto.PublicKey]int)
	w.oldestTimestamp = TimestampMax
	if err := w.load(); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

func (w *ContainerWallet) load() error {
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}
	f, err := os.OpenFile(w.path, os.O_RDWR, 0)
	if err != nil { // read-only media?
		f, err = os.Open(w.path)
		if err != nil {
			return errRead("error opening wallet file "+w.path, err)
		}
	}
	w.file = f
	w.records = nil
	w.recordsMap = make(map[crypto.PublicKey]int)
	w.oldestTimestamp = TimestampMax

	var version [1]byte
	if _, err := io.ReadFull(f, version[:]); err != nil {
		return errRead("error reading wallet file "+w.path, err)
	}
	if version[0] > serializationVersionV2 {
		return errUnknownVersion("unknown wallet file version")
	}
	if version[0] < serializationVersionV2 {
		if err := w.loadLegacyWalletFile(); err != nil {
			return err
		}
		w.file.Close()
		w.file = nil // marks legacy format
		if err := w.saveAndCheck(); err != nil {
			log.Warnw("Could not overwrite legacy wallet file with new format", "path", w.path, "error", err)
		} else {
			log.Warnw("Overwritten legacy wallet file with new data format", "path", w.path)
		}
	} else if err := w.loadContainerStorage(); err != nil {
		return err
	}
	if len(w.records) == 0 {
		return errDecrypt("error reading wallet file")
	}
	if !w.IsViewOnly() {
		w.seed = crypto.FastHash(w.viewKeys.SecretKey[:], w.records[0].SpendSecretKey[:])
		w.txDerivationSeed = deriveFromSeedLegacy(w.seed, "tx_derivation")
		w.historyFilenameSeed = deriveFromSeedLegacy(w.seed, "history_filename")
		w.historyKey = crypto.ChachaKey(deriveFromSeedLegacy(w.seed, "history"))
	}
	return nil
}

func (w *ContainerWallet) loadContainerStorage() error {
	var prefix [containerPrefixSize]byte
	var counts [16]byte
	if _, err := io.ReadFull(w.file, prefix[:]); err != nil {
		return errRead("error reading wallet file "+w.path, err)
	}
	if _, err := io.ReadFull(w.file, counts[:]); err != nil {
		return errRead("error reading wallet file "+w.path, err)
	}
	itemCapacity := binary.LittleEndian.Uint64(counts[:8])
	fileItemCount := binary.LittleEndian.Uint64(counts[8:])

	// The view-key record's timestamp is ignored on load.
	w.viewKeys.PublicKey, w.viewKeys.SecretKey, _ = decryptKeyPair(prefix[crypto.ChachaIVSize:], w.walletKey)
	if !crypto.KeysMatch(w.viewKeys.SecretKey, w.viewKeys.PublicKey) {
		return errDecrypt("restored view public key doesn't correspond to secret key")
	}

	// Protection against write shredding - a partial write can extend
	// capacity without finishing the records that follow.
	itemCount := fileItemCount
	if itemCapacity < itemCount {
		itemCount = itemCapacity
	}
	if itemCount > uint64(1)<<40/encryptedRecordSize {
		return errDecrypt("restored item count is too big %d", itemCount)
	}
	encrypted := make([]byte, int(itemCount)*encryptedRecordSize)
	if _, err := io.ReadFull(w.file, encrypted); err != nil {
		return errRead("error reading wallet file "+w.path, err)
	}
	trackingMode := false
	w.records = make([]WalletRecord, 0, itemCount)
	for i := 0; i < int(itemCount); i++ {
		var record WalletRecord
		record.SpendPublicKey, record.SpendSecretKey, record.CreationTimestamp =
			decryptKeyPair(encrypted[i*encryptedRecordSize:], w.walletKey)
		if i == 0 {
			trackingMode = record.SpendSecretKey == crypto.SecretKey{}
		} else if trackingMode != (record.SpendSecretKey == crypto.SecretKey{}) {
			return errDecrypt("all addresses must be either tracking or not")
		}
		if i < checkKeysCount || i >= int(itemCount)-checkKeysCount {
			if record.SpendSecretKey != (crypto.SecretKey{}) {
				if !crypto.KeysMatch(record.SpendSecretKey, record.SpendPublicKey) {
					return errDecrypt("restored spend public key doesn't correspond to secret key")
				}
			} else if !crypto.KeyIsValid(record.SpendPublicKey) {
				return errDecrypt("public spend key is incorrect")
			}
		}
		if record.CreationTimestamp < w.oldestTimestamp {
			w.oldestTimestamp = record.CreationTimestamp
		}
		w.recordsMap[record.SpendPublicKey] = len(w.records)
		w.records = append(w.records, record)
	}
	fileSize, err := w.file.Seek(0, io.SeekEnd)
	if err != nil {
		return errRead("error reading wallet file "+w.path, err)
	}
	if shouldBe := walletFileSize(len(w.records)); fileSize > shouldBe {
		// Legacy wallet caches left data past the records; trim it.
		if err := w.file.Truncate(shouldBe); err != nil {
			// Probably read-only media, ignore.
			log.Warnw("Could not truncate wallet file", "path", w.path, "error", err)
		} else {
			log.Warnw("Truncated legacy wallet file", "path", w.path, "size", shouldBe)
		}
	}
	return nil
}

func (w *ContainerWallet) loadLegacyWalletFile() error {
	if LegacyLoaderV1 == nil {
		return errDecrypt("wallet version too old")
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return errRead("error reading wallet file "+w.path, err)
	}
	data, err := io.ReadAll(w.file)
	if err != nil {
		return errRead("error reading wallet file "+w.path, err)
	}
	view, records, err := LegacyLoaderV1(w.walletKey, data)
	if err != nil {
		return errDecrypt("error decrypting wallet file: %v", err)
	}
	w.viewKeys = view
	w.records = records
	for i := range w.records {
		if w.records[i].CreationTimestamp < w.oldestTimestamp {
			w.oldestTimestamp = w.records[i].CreationTimestamp
		}
		w.recordsMap[w.records[i].SpendPublicKey] = i
	}
	return nil
}

// save writes the complete V2 layout to exportPath under key. When
// viewOnly is set, spend secrets are replaced with zeros.
func (w *ContainerWallet) save(exportPath string, key crypto.ChachaKey, viewOnly, createNew bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if createNew {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(exportPath, flags, 0600)
	if err != nil {
		return errWrite("error creating wallet file "+exportPath, err)
	}
	defer f.Close()

	buf := make([]byte, 0, walletFileSize(len(w.records)))
	buf = append(buf, serializationVersionV2)
	nextIV := crypto.RandIV() // reserved, never read back
	buf = append(buf, nextIV[:]...)
	viewRecord := encryptKeyPair(w.viewKeys.PublicKey, w.viewKeys.SecretKey, w.oldestTimestamp, key)
	buf = append(buf, viewRecord[:]...)
	var counts [16]byte
	binary.LittleEndian.PutUint64(counts[:8], uint64(len(w.records))) // capacity is set to the count
	binary.LittleEndian.PutUint64(counts[8:], uint64(len(w.records)))
	buf = append(buf, counts[:]...)
	for _, rec := range w.records {
		sk := rec.SpendSecretKey
		if viewOnly {
			sk = crypto.SecretKey{}
		}
		enc := encryptKeyPair(rec.SpendPublicKey, sk, rec.CreationTimestamp, key)
		buf = append(buf, enc[:]...)
	}
	if _, err := f.Write(buf); err != nil {
		return errWrite("error writing wallet file "+exportPath, err)
	}
	if err := f.Sync(); err != nil {
		return errWrite("error writing wallet file "+exportPath, err)
	}
	return nil
}

func (w *ContainerWallet) equalState(other *ContainerWallet) bool {
	if w.viewKeys != other.viewKeys || w.oldestTimestamp != other.oldestTimestamp ||
		len(w.records) != len(other.records) {
		return false
	}
	for i := range w.records {
		if w.records[i] != other.records[i] {
			return false
		}
	}
	return true
}

// saveAndCheck writes the whole container to <path>.tmp, re-opens it with
// the same key, compares the restored state byte for byte and only then
// atomically replaces the wallet file. The read-back is the correctness
// oracle: it catches disk, driver and encoding bugs a one-way write would
// hide.
func (w *ContainerWallet) saveAndCheck() error {
	tmpPath := w.path + ".tmp"
	if err := w.save(tmpPath, w.walletKey, false, false); err != nil {
		return err
	}
	other, err := openContainerWithKey(w.currency, tmpPath, w.walletKey)
	if err != nil {
		return errWrite("error writing wallet file - cannot read back", err)
	}
	if !w.equalState(other) {
		other.Close()
		return errWrite("error writing wallet file - records do not match", nil)
	}
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		other.Close()
		return errWrite("error replacing wallet file", err)
	}
	// The re-opened handle now points at the renamed file; adopt it.
	w.file = other.file
	other.file = nil
	return nil
}

// FirstAddress returns the address of record 0.
func (w *ContainerWallet) FirstAddress() AccountAddress { return w.RecordToAddress(w.records[0]) }

func (w *ContainerWallet) IsOurAddress(addr AccountAddress) bool {
	_, ok := w.Record(addr)
	return ok
}

func (w *ContainerWallet) ViewPublicKey() crypto.PublicKey { return w.viewKeys.PublicKey }
func (w *ContainerWallet) ViewSecretKey() crypto.SecretKey { return w.viewKeys.SecretKey }

func (w *ContainerWallet) IsViewOnly() bool {
	return w.records[0].SpendSecretKey == crypto.SecretKey{}
}

func (w *ContainerWallet) CanViewOutgoingAddresses() bool {
	return w.txDerivationSeed != crypto.Hash{}
}

// IsAuditable is always false: the container format predates auditable
// addresses.
func (w *ContainerWallet) IsAuditable() bool { return false }

func (w *ContainerWallet) ActualRecordCount() int { return len(w.records) }

func (w *ContainerWallet) OldestTimestamp() Timestamp { return w.oldestTimestamp }

func (w *ContainerWallet) RecordToAddress(record WalletRecord) AccountAddress {
	return AccountAddressSimple{
		SpendPublicKey: record.SpendPublicKey,
		ViewPublicKey:  w.viewKeys.PublicKey,
	}
}

func (w *ContainerWallet) Record(addr AccountAddress) (WalletRecord, bool) {
	simple, ok := addr.(AccountAddressSimple)
	if !ok {
		return WalletRecord{}, false
	}
	if simple.ViewPublicKey != w.viewKeys.PublicKey {
		return WalletRecord{}, false
	}
	index, ok := w.recordsMap[simple.SpendPublicKey]
	if !ok || index >= w.ActualRecordCount() {
		return WalletRecord{}, false
	}
	return w.records[index], true
}

// getLookAheadRecord returns the record for a candidate spend key. The
// container has no look-ahead window, so nothing grows.
func (w *ContainerWallet) getLookAheadRecord(spendPublicKey crypto.PublicKey) (WalletRecord, bool) {
	index, ok := w.recordsMap[spendPublicKey]
	if !ok {
		return WalletRecord{}, false
	}
	return w.records[index], true
}

// GenerateNewAddresses appends new records to the container. Zero input
// secrets produce fresh random keypairs stamped with now; nonzero secrets
// are imports stamped with ct. New data is appended past the end of the
// existing records and the count words are rewritten in place, so existing
// file contents are never modified; the only exception is a timestamp
// lowering, which forces a full save-and-check afterwards.
func (w *ContainerWallet) GenerateNewAddresses(sks []crypto.SecretKey, ct, now Timestamp) ([]WalletRecord, bool, error) {
	if w.IsViewOnly() {
		return nil, false, errNotSupported("generate new addresses impossible for view-only wallet")
	}
	if w.file == nil { // legacy format still on disk
		log.Warnw("Creation of new addresses forces overwrite of legacy format wallet", "path", w.path)
		if err := w.saveAndCheck(); err != nil {
			return nil, false, err
		}
	}
	rescanFromCT := false
	appendPos := walletFileSize(len(w.records))
	if _, err := w.file.Seek(appendPos, io.SeekStart); err != nil {
		return nil, false, errWrite("error writing wallet file "+w.path, err)
	}
	result := make([]WalletRecord, 0, len(sks))
	for _, sk := range sks {
		var record WalletRecord
		if sk == (crypto.SecretKey{}) {
			record.CreationTimestamp = now
			for {
				kp := crypto.RandomKeypair()
				record.SpendPublicKey, record.SpendSecretKey = kp.PublicKey, kp.SecretKey
				if _, exists := w.recordsMap[record.SpendPublicKey]; !exists {
					break
				}
			}
			if record.CreationTimestamp < w.oldestTimestamp {
				w.oldestTimestamp = record.CreationTimestamp
			}
		} else {
			record.CreationTimestamp = ct
			record.SpendSecretKey = sk
			pub, ok := crypto.SecretKeyToPublicKey(sk)
			if !ok {
				return nil, false, errNotSupported("imported keypair is invalid")
			}
			record.SpendPublicKey = pub
		}
		if index, exists := w.recordsMap[record.SpendPublicKey]; exists {
			if w.records[index].CreationTimestamp > record.CreationTimestamp {
				w.records[index].CreationTimestamp = record.CreationTimestamp
				if record.CreationTimestamp < w.oldestTimestamp {
					w.oldestTimestamp = record.CreationTimestamp
				}
				rescanFromCT = true
			}
			result = append(result, w.records[index])
			continue
		}
		w.recordsMap[record.SpendPublicKey] = len(w.records)
		w.records = append(w.records, record)
		enc := encryptKeyPair(record.SpendPublicKey, record.SpendSecretKey, record.CreationTimestamp, w.walletKey)
		if _, err := w.file.Write(enc[:]); err != nil {
			return nil, false, errWrite("error writing wallet file "+w.path, err)
		}
		result = append(result, record)
	}
	if err := w.file.Sync(); err != nil {
		return nil, false, errWrite("error writing wallet file "+w.path, err)
	}
	if _, err := w.file.Seek(countsOffset, io.SeekStart); err != nil {
		return nil, false, errWrite("error writing wallet file "+w.path, err)
	}
	var count [8]byte
	binary.LittleEndian.PutUint64(count[:], uint64(len(w.records)))
	if _, err := w.file.Write(count[:]); err != nil { // capacity
		return nil, false, errWrite("error writing wallet file "+w.path, err)
	}
	if _, err := w.file.Write(count[:]); err != nil { // count
		return nil, false, errWrite("error writing wallet file "+w.path, err)
	}
	if err := w.file.Sync(); err != nil {
		return nil, false, errWrite("error writing wallet file "+w.path, err)
	}
	if rescanFromCT { // we never write to the middle of the file
		log.Warnw("Updating creation timestamp of existing addresses in wallet file, might take minutes for large wallets",
			"timestamp", ct)
		if err := w.saveAndCheck(); err != nil {
			return nil, false, err
		}
	}
	return result, rescanFromCT, nil
}

func (w *ContainerWallet) SetPassword(password string) error {
	w.walletKey = crypto.PasswordKey([]byte(password))
	return w.saveAndCheck()
}

func (w *ContainerWallet) ExportWallet(exportPath, newPassword string, viewOnly, viewOutgoingAddresses bool) error {
	for _, rec := range w.records {
		if rec.SpendSecretKey != (crypto.SecretKey{}) {
			if !crypto.KeysMatch(rec.SpendSecretKey, rec.SpendPublicKey) {
				return errDecrypt("spend public key doesn't correspond to secret key (corrupted wallet?)")
			}
		} else if !crypto.KeyIsValid(rec.SpendPublicKey) {
			return errDecrypt("public spend key is incorrect (corrupted wallet?)")
		}
	}
	newKey := crypto.PasswordKey([]byte(newPassword))
	return w.save(exportPath, newKey, viewOnly, true)
}

// ExportKeys returns the 256-hex-char import string for record 0.
func (w *ContainerWallet) ExportKeys() (string, error) {
	return exportKeysHex(w.records[0], w.viewKeys), nil
}

// OnFirstOutputFound pins the wallet timestamps once the scanner reports a
// first matching output. Only done on main net - the legacy file format
// has no room for per-net timestamps.
func (w *ContainerWallet) OnFirstOutputFound(ts Timestamp) error {
	if w.currency.Net != "main" {
		return nil
	}
	if ts == 0 || w.oldestTimestamp != 0 {
		return nil
	}
	w.oldestTimestamp = ts
	for i := range w.records {
		if w.records[i].CreationTimestamp == 0 {
			w.records[i].CreationTimestamp = ts
		}
	}
	log.Warnw("Updating creation timestamp in wallet file, might take minutes for large wallets", "timestamp", ts)
	return w.saveAndCheck()
}

// SetLabel is unsupported: the linkable wallet file cannot store labels.
func (w *ContainerWallet) SetLabel(address, label string) error {
	return errNotSupported("linkable wallet file cannot store labels")
}

func (w *ContainerWallet) Label(address string) string { return "" }

func (w *ContainerWallet) CacheName() string {
	return cacheName(w.viewKeys.PublicKey, w.IsViewOnly(), w.CanViewOutgoingAddresses())
}

func (w *ContainerWallet) Close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
