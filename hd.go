// Copyright (c) 2024 The walletstore developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package walletstore

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"os"

	_ "modernc.org/sqlite" // database/sql driver

	"github.com/cryptonote-community/walletstore/bip32"
	"github.com/cryptonote-community/walletstore/crypto"
)

// Address flavors stored in the address-type parameter.
const (
	AddressTypeUnlinkable          = 1
	AddressTypeUnlinkableAuditable = 2
)

const walletVersionString = "CryptoNoteWallet1"

// GenerateAhead is how many deterministic records are kept materialized
// past the used-address counter so the scanner can recognize receipts to
// addresses the user has not handed out yet.
const GenerateAhead = 20000

// Parameter keys of the encrypted parameters table.
const (
	paramVersion          = "version"
	paramCoinName         = "coinname"
	paramAddressType      = "address-type"
	paramMnemonic         = "mnemonic"
	paramMnemonicPassword = "mnemonic-password"
	paramAddressCount     = "total_address_count"
	paramCreationTS       = "creation_timestamp"
	paramSpendKeyBasePub  = "spend_key_base_public_key"
	paramTxDerivationSeed = "tx_derivation_seed"
)

// HDWallet is the hierarchical-deterministic backend: an SQLite database
// of encrypted rows plus an in-memory window of deterministic records.
type HDWallet struct {
	currency Currency
	path     string

	walletKey crypto.ChachaKey
	db        *sql.DB
	tx        *sql.Tx

	addressType      uint8
	seed             crypto.Hash
	txDerivationSeed crypto.Hash
	spendKeyBase     crypto.KeyPair
	viewKeys         crypto.KeyPair

	usedAddressCount int
	records          []WalletRecord
	recordsMap       map[crypto.PublicKey]int
	oldestTimestamp  Timestamp
	labels           map[string]string
}

var _ Wallet = (*HDWallet)(nil)

// IsSQLite reports whether the file at path carries the SQLite magic, i.e.
// is an HD wallet rather than a container file.
func IsSQLite(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	var magic [16]byte
	if _, err := f.Read(magic[:]); err != nil {
		return false
	}
	return string(magic[:]) == "SQLite format 3\x00"
}

func openHDDatabase(path string, readonly bool) (*sql.DB, error) {
	dsn := "file:" + path
	if readonly {
		dsn += "?mode=ro"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// OpenHD opens an existing HD wallet database with a password.
func OpenHD(currency Currency, path, password string, readonly bool) (*HDWallet, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errRead("error opening wallet file "+path, err)
	}
	db, err := openHDDatabase(path, readonly)
	if err != nil {
		return nil, errRead("error opening wallet file "+path, err)
	}
	w := &HDWallet{
		currency:         currency,
		path:             path,
		db:               db,
		usedAddressCount: 1,
		recordsMap:       make(map[crypto.PublicKey]int),
		labels:           make(map[string]string),
	}
	if w.tx, err = db.Begin(); err != nil {
		db.Close()
		return nil, errRead("error opening wallet file "+path, err)
	}
	salt, err := w.getSalt()
	if err != nil {
		w.closeDB()
		return nil, errDecrypt("wallet file invalid or wrong password")
	}
	w.walletKey = crypto.PasswordKey(append(salt, []byte(password)...))
	if err := w.load(); err != nil {
		w.closeDB()
		return nil, wrapHDLoadError(err)
	}
	return w, nil
}

// CreateHD creates a new HD wallet database. An empty mnemonic produces a
// bare keyless database, which export_wallet fills in.
func CreateHD(currency Currency, path, password, mnemonic string, addressType uint8,
	creationTimestamp Timestamp, mnemonicPassword string) (*HDWallet, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, errWrite("will not overwrite existing wallet "+path, nil)
	}
	db, err := openHDDatabase(path, false)
	if err != nil {
		return nil, errWrite("error creating wallet file "+path, err)
	}
	w := &HDWallet{
		currency:         currency,
		path:             path,
		db:               db,
		usedAddressCount: 1,
		recordsMap:       make(map[crypto.PublicKey]int),
		labels:           make(map[string]string),
	}
	if w.tx, err = db.Begin(); err != nil {
		w.closeDB()
		return nil, errWrite("error creating wallet file "+path, err)
	}
	for _, ddl := range []string{
		"CREATE TABLE unencrypted(key BLOB PRIMARY KEY COLLATE BINARY NOT NULL, value BLOB NOT NULL) WITHOUT ROWID",
		"CREATE TABLE parameters(key_hash BLOB PRIMARY KEY COLLATE BINARY NOT NULL, key BLOB NOT NULL, value BLOB NOT NULL) WITHOUT ROWID",
		"CREATE TABLE labels(address_hash BLOB PRIMARY KEY NOT NULL, address BLOB NOT NULL, label BLOB NOT NULL) WITHOUT ROWID",
		"CREATE TABLE payment_queue(tid_hash BLOB COLLATE BINARY NOT NULL, net_hash BLOB COLLATE BINARY NOT NULL, " +
			"tid BLOB NOT NULL, net BLOB NOT NULL, binary_transaction BLOB NOT NULL, PRIMARY KEY (tid_hash, net_hash)) WITHOUT ROWID",
	} {
		if _, err := w.tx.Exec(ddl); err != nil {
			w.closeDB()
			os.Remove(path)
			return nil, errWrite("error creating wallet file "+path, err)
		}
	}
	salt := crypto.RandHash()
	if err := w.putSalt(salt[:]); err != nil { // the only unencrypted field
		w.closeDB()
		os.Remove(path)
		return nil, errWrite("error creating wallet file "+path, err)
	}
	w.walletKey = crypto.PasswordKey(append(salt[:], []byte(password)...))

	if mnemonic == "" {
		if err := w.commit(); err != nil {
			w.closeDB()
			os.Remove(path)
			return nil, err
		}
		return w, nil
	}
	normalized, err := bip32.CheckMnemonic(mnemonic)
	if err != nil {
		w.closeDB()
		os.Remove(path)
		return nil, errMnemonic(err)
	}
	fail := func(err error) (*HDWallet, error) {
		w.closeDB()
		os.Remove(path)
		return nil, err
	}
	if err := w.put(paramVersion, []byte(walletVersionString), true); err != nil {
		return fail(err)
	}
	if err := w.put(paramCoinName, []byte(currency.Name), true); err != nil {
		return fail(err)
	}
	if err := w.put(paramAddressType, []byte{addressType}, true); err != nil {
		return fail(err)
	}
	if err := w.put(paramMnemonic, []byte(normalized), true); err != nil {
		return fail(err)
	}
	// Written even when empty to keep the row count the same.
	if err := w.put(paramMnemonicPassword, []byte(mnemonicPassword), true); err != nil {
		return fail(err)
	}
	if err := w.put(paramAddressCount, uint64ToBinary(uint64(w.usedAddressCount)), true); err != nil {
		return fail(err)
	}
	if err := w.OnFirstOutputFound(creationTimestamp); err != nil {
		return fail(err)
	}
	if err := w.load(); err != nil {
		return fail(wrapHDLoadError(err))
	}
	if err := w.commit(); err != nil {
		return fail(err)
	}
	return w, nil
}

func wrapHDLoadError(err error) error {
	var walletErr *Error
	if errors.As(err, &walletErr) {
		return err
	}
	if errors.Is(err, bip32.ErrMnemonic) {
		return errMnemonic(err)
	}
	return errDecrypt("wallet file invalid or wrong password")
}

func (w *HDWallet) closeDB() {
	if w.tx != nil {
		w.tx.Rollback()
		w.tx = nil
	}
	if w.db != nil {
		w.db.Close()
		w.db = nil
	}
}

// commit ends the long-lived transaction and immediately begins the next
// one; every logical save boundary goes through here.
func (w *HDWallet) commit() error {
	if err := w.tx.Commit(); err != nil {
		return errWrite("error committing wallet database", err)
	}
	tx, err := w.db.Begin()
	if err != nil {
		return errWrite("error committing wallet database", err)
	}
	w.tx = tx
	return nil
}

func (w *HDWallet) load() error {
	version, ok, err := w.getString(paramVersion)
	if err != nil {
		return err
	}
	if !ok || version != walletVersionString {
		return errDecrypt("wallet version unknown - %s", version)
	}
	coinname, ok, err := w.getString(paramCoinName)
	if err != nil {
		return err
	}
	if !ok || coinname != w.currency.Name {
		return errDecrypt("wallet is for different coin - %s", coinname)
	}
	addressType, ok, err := w.get(paramAddressType)
	if err != nil {
		return err
	}
	if !ok || len(addressType) != 1 {
		return errDecrypt("wallet corrupted, no address type")
	}
	w.addressType = addressType[0]
	if w.addressType != AddressTypeUnlinkable && w.addressType != AddressTypeUnlinkableAuditable {
		return errDecrypt("wallet address type unknown")
	}
	mnemonic, haveMnemonic, err := w.getString(paramMnemonic)
	if err != nil {
		return err
	}
	if haveMnemonic {
		mnemonicPassword, ok, err := w.getString(paramMnemonicPassword)
		if err != nil {
			return err
		}
		if !ok {
			return errDecrypt("wallet corrupted, no mnemonic password")
		}
		rootKey, err := bip32.RootPrivateKey(mnemonic, mnemonicPassword, w.addressType)
		if err != nil {
			return err
		}
		w.seed = crypto.FastHash(rootKey)
		w.txDerivationSeed = deriveFromSeed(w.seed, "tx_derivation")
		w.spendKeyBase.SecretKey = crypto.HashToScalar(w.seed[:], []byte("spend_key_base"))
		pub, ok2 := crypto.SecretKeyToPublicKey(w.spendKeyBase.SecretKey)
		if !ok2 {
			return errDecrypt("wallet corrupted, bad spend key base")
		}
		w.spendKeyBase.PublicKey = pub
	} else { // view only
		ba, ok, err := w.get(paramSpendKeyBasePub)
		if err != nil {
			return err
		}
		if !ok || len(ba) != crypto.PublicKeySize {
			return errDecrypt("wallet corrupted, no spend key base")
		}
		copy(w.spendKeyBase.PublicKey[:], ba)
		if !crypto.KeyIsValid(w.spendKeyBase.PublicKey) {
			return errDecrypt("wallet corrupted - spend key base is invalid")
		}
		// Only with the derivation seed can a view-only wallet see
		// outgoing addresses.
		if ba, ok, err = w.get(paramTxDerivationSeed); err != nil {
			return err
		} else if ok && len(ba) == crypto.HashSize {
			copy(w.txDerivationSeed[:], ba)
		}
	}
	w.viewKeys.SecretKey = crypto.HashToScalar(w.spendKeyBase.PublicKey[:], []byte("view_key"))
	viewPub, ok2 := crypto.SecretKeyToPublicKey(w.viewKeys.SecretKey)
	if !ok2 {
		return errDecrypt("wallet corrupted, bad view key")
	}
	w.viewKeys.PublicKey = viewPub

	if ba, ok, err := w.get(paramAddressCount); err != nil {
		return err
	} else if ok {
		count, err2 := uint64FromBinary(ba)
		if err2 != nil {
			return errDecrypt("wallet corrupted, bad address count")
		}
		w.usedAddressCount = int(count)
	}
	if ba, ok, err := w.get(paramCreationTS + netSuffix(w.currency.Net)); err != nil {
		return err
	} else if ok {
		ts, err2 := uint64FromBinary(ba)
		if err2 != nil {
			return errDecrypt("wallet corrupted, bad creation timestamp")
		}
		w.oldestTimestamp = ts
	} else {
		w.oldestTimestamp = 0
	}
	if err := w.generateAhead(); err != nil {
		return err
	}

	rows, err := w.tx.Query("SELECT address, label FROM labels")
	if err != nil {
		return errRead("error reading wallet database", err)
	}
	defer rows.Close()
	for rows.Next() {
		var address, label []byte
		if err := rows.Scan(&address, &label); err != nil {
			return errRead("error reading wallet database", err)
		}
		ka, err := decryptData(w.walletKey, address)
		if err != nil {
			return err
		}
		ba, err := decryptData(w.walletKey, label)
		if err != nil {
			return err
		}
		w.labels[string(ka)] = string(ba)
	}
	return rows.Err()
}

// uint64ToBinary / uint64FromBinary are the fixed-width encoding used for
// counters and timestamps inside encrypted parameter values.
func uint64ToBinary(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}

func uint64FromBinary(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, errors.New("wrong integer width")
	}
	return binary.LittleEndian.Uint64(b), nil
}

const (
	encMinSize   = 256
	encExtraSize = crypto.HashSize + 4 // iv, actual size in le
)

// encryptData produces iv | chacha20(padded) where padded hides the exact
// value length behind the next power of two and the row key mixes the iv
// into the wallet key, so the fixed zero nonce never reuses a keystream.
func encryptData(walletKey crypto.ChachaKey, data []byte) []byte {
	actualSize := 1
	for actualSize < len(data)+encExtraSize || actualSize < encMinSize {
		actualSize *= 2
	}
	large := make([]byte, actualSize-crypto.HashSize)
	binary.LittleEndian.PutUint32(large[:4], uint32(len(data)))
	copy(large[4:], data)
	iv := crypto.RandHash()
	rowKey := crypto.ChachaKey(crypto.FastHash(walletKey[:], iv[:]))
	enc := make([]byte, 0, actualSize)
	enc = append(enc, iv[:]...)
	enc = append(enc, crypto.ChaCha20Zero(rowKey, large)...)
	return enc
}

func decryptData(walletKey crypto.ChachaKey, value []byte) ([]byte, error) {
	if len(value) < encExtraSize {
		return nil, errDecrypt("encrypted value too short")
	}
	var iv crypto.Hash
	copy(iv[:], value[:crypto.HashSize])
	rowKey := crypto.ChachaKey(crypto.FastHash(walletKey[:], iv[:]))
	plain := crypto.ChaCha20Zero(rowKey, value[crypto.HashSize:])
	realSize := int(binary.LittleEndian.Uint32(plain[:4]))
	if realSize > len(plain)-4 {
		return nil, errDecrypt("encrypted value corrupted")
	}
	return plain[4 : 4+realSize], nil
}

func (w *HDWallet) putSalt(salt []byte) error {
	_, err := w.tx.Exec("REPLACE INTO unencrypted (key, value) VALUES ('salt', ?)", salt)
	if err != nil {
		return errWrite("error writing wallet database", err)
	}
	return nil
}

func (w *HDWallet) getSalt() ([]byte, error) {
	var salt []byte
	err := w.tx.QueryRow("SELECT value FROM unencrypted WHERE key = 'salt'").Scan(&salt)
	if err != nil {
		return nil, err
	}
	return salt, nil
}

func (w *HDWallet) put(key string, value []byte, noOverwrite bool) error {
	keyHash := deriveFromKey(w.walletKey, "db_parameters"+key)
	encKey := encryptData(w.walletKey, []byte(key))
	encValue := encryptData(w.walletKey, value)
	stmt := "REPLACE INTO parameters (key_hash, key, value) VALUES (?, ?, ?)"
	if noOverwrite {
		stmt = "INSERT INTO parameters (key_hash, key, value) VALUES (?, ?, ?)"
	}
	if _, err := w.tx.Exec(stmt, keyHash[:], encKey, encValue); err != nil {
		return errWrite("error writing wallet database", err)
	}
	return nil
}

func (w *HDWallet) get(key string) ([]byte, bool, error) {
	keyHash := deriveFromKey(w.walletKey, "db_parameters"+key)
	var value []byte
	err := w.tx.QueryRow("SELECT value FROM parameters WHERE key_hash = ?", keyHash[:]).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errRead("error reading wallet database", err)
	}
	plain, err := decryptData(w.walletKey, value)
	if err != nil {
		return nil, false, err
	}
	return plain, true, nil
}

func (w *HDWallet) getString(key string) (string, bool, error) {
	value, ok, err := w.get(key)
	return string(value), ok, err
}

// parametersGet decrypts the full parameters table.
func (w *HDWallet) parametersGet() ([][2][]byte, error) {
	rows, err := w.tx.Query("SELECT key, value FROM parameters")
	if err != nil {
		return nil, errRead("error reading wallet database", err)
	}
	defer rows.Close()
	var result [][2][]byte
	for rows.Next() {
		var key, value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, errRead("error reading wallet database", err)
		}
		ka, err := decryptData(w.walletKey, key)
		if err != nil {
			return nil, err
		}
		ba, err := decryptData(w.walletKey, value)
		if err != nil {
			return nil, err
		}
		result = append(result, [2][]byte{ka, ba})
	}
	return result, rows.Err()
}

type paymentQueueRow struct {
	tid  crypto.Hash
	net  string
	blob []byte
}

func (w *HDWallet) paymentQueueGet2() ([]paymentQueueRow, error) {
	rows, err := w.tx.Query("SELECT tid, net, binary_transaction FROM payment_queue")
	if err != nil {
		return nil, errRead("error reading wallet database", err)
	}
	defer rows.Close()
	var result []paymentQueueRow
	for rows.Next() {
		var tid, net, btx []byte
		if err := rows.Scan(&tid, &net, &btx); err != nil {
			return nil, errRead("error reading wallet database", err)
		}
		var row paymentQueueRow
		key, err := decryptData(w.walletKey, tid)
		if err != nil {
			return nil, err
		}
		if len(key) != crypto.HashSize {
			return nil, errDecrypt("wallet corrupted, bad payment queue tid")
		}
		copy(row.tid[:], key)
		netPlain, err := decryptData(w.walletKey, net)
		if err != nil {
			return nil, err
		}
		row.net = string(netPlain)
		if row.blob, err = decryptData(w.walletKey, btx); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (w *HDWallet) FirstAddress() AccountAddress { return w.RecordToAddress(w.records[0]) }

func (w *HDWallet) IsOurAddress(addr AccountAddress) bool {
	_, ok := w.Record(addr)
	return ok
}

func (w *HDWallet) ViewPublicKey() crypto.PublicKey { return w.viewKeys.PublicKey }
func (w *HDWallet) ViewSecretKey() crypto.SecretKey { return w.viewKeys.SecretKey }

func (w *HDWallet) IsViewOnly() bool {
	return w.records[0].SpendSecretKey == crypto.SecretKey{}
}

func (w *HDWallet) CanViewOutgoingAddresses() bool {
	return w.txDerivationSeed != crypto.Hash{}
}

func (w *HDWallet) IsAuditable() bool {
	return w.addressType == AddressTypeUnlinkableAuditable
}

// ActualRecordCount excludes the look-ahead tail: those records are not
// yet "used".
func (w *HDWallet) ActualRecordCount() int { return w.usedAddressCount }

func (w *HDWallet) OldestTimestamp() Timestamp { return w.oldestTimestamp }

func (w *HDWallet) RecordToAddress(record WalletRecord) AccountAddress {
	sv, err := crypto.GenerateAddressSV(record.SpendPublicKey, w.viewKeys.SecretKey)
	if err != nil {
		// Records are generated on the curve; a bad point here is a
		// programmer bug.
		panic(err)
	}
	return AccountAddressUnlinkable{
		SpendPublicKey: record.SpendPublicKey,
		SV:             sv,
		IsAuditable:    w.addressType == AddressTypeUnlinkableAuditable,
	}
}

func (w *HDWallet) Record(addr AccountAddress) (WalletRecord, bool) {
	unlinkable, ok := addr.(AccountAddressUnlinkable)
	if !ok {
		return WalletRecord{}, false
	}
	if unlinkable.IsAuditable != w.IsAuditable() {
		return WalletRecord{}, false
	}
	index, ok := w.recordsMap[unlinkable.SpendPublicKey]
	if !ok || index >= w.ActualRecordCount() {
		return WalletRecord{}, false
	}
	if w.RecordToAddress(w.records[index]) != addr {
		return WalletRecord{}, false
	}
	return w.records[index], true
}

// getLookAheadRecord returns the record for a candidate spend key and, on
// a hit, grows the window so the look-ahead stays GenerateAhead past the
// highest index ever touched.
func (w *HDWallet) getLookAheadRecord(spendPublicKey crypto.PublicKey) (WalletRecord, bool) {
	index, ok := w.recordsMap[spendPublicKey]
	if !ok {
		return WalletRecord{}, false
	}
	record := w.records[index]
	if err := w.createLookAheadRecords(index + 1); err != nil {
		log.Warnw("Failed to extend look-ahead window", "error", err)
	}
	return record, true
}

func (w *HDWallet) createLookAheadRecords(count int) error {
	if count <= w.usedAddressCount {
		return nil
	}
	w.usedAddressCount = count
	if err := w.generateAhead(); err != nil {
		return err
	}
	if err := w.put(paramAddressCount, uint64ToBinary(uint64(w.usedAddressCount)), false); err != nil {
		return err
	}
	return w.commit()
}

// GenerateNewAddresses consumes the next len(sks) look-ahead records. The
// wallet is deterministic, so any nonzero input secret is rejected, and
// rescanFromCT is never set: look-ahead timestamps are TimestampMax and
// the real creation timestamp is stored once per net.
func (w *HDWallet) GenerateNewAddresses(sks []crypto.SecretKey, ct, now Timestamp) ([]WalletRecord, bool, error) {
	for _, sk := range sks {
		if sk != (crypto.SecretKey{}) {
			return nil, false, errNotSupported("generating non-deterministic addresses not supported by HD wallet")
		}
	}
	if len(sks) == 0 {
		return nil, false, nil
	}
	wasUsedAddressCount := w.usedAddressCount
	w.usedAddressCount += len(sks)
	if err := w.generateAhead(); err != nil {
		return nil, false, err
	}
	result := make([]WalletRecord, 0, len(sks))
	for i := 0; i != len(sks); i++ {
		result = append(result, w.records[wasUsedAddressCount+i])
	}
	if err := w.put(paramAddressCount, uint64ToBinary(uint64(w.usedAddressCount)), false); err != nil {
		return nil, false, err
	}
	if err := w.commit(); err != nil {
		return nil, false, err
	}
	return result, false, nil
}

// SetPassword re-randomizes the salt and re-encrypts every row under the
// new wallet key.
func (w *HDWallet) SetPassword(password string) error {
	parameters, err := w.parametersGet()
	if err != nil {
		return err
	}
	pq2, err := w.paymentQueueGet2()
	if err != nil {
		return err
	}
	for _, stmt := range []string{
		"DELETE FROM payment_queue",
		"DELETE FROM parameters",
		"DELETE FROM labels",
	} {
		if _, err := w.tx.Exec(stmt); err != nil {
			return errWrite("error writing wallet database", err)
		}
	}
	salt := crypto.RandHash()
	if err := w.putSalt(salt[:]); err != nil {
		return err
	}
	w.walletKey = crypto.PasswordKey(append(salt[:], []byte(password)...))

	for _, p := range parameters {
		if err := w.put(string(p[0]), p[1], true); err != nil {
			return err
		}
	}
	for address, label := range w.labels {
		if err := w.setLabelRow(address, label); err != nil {
			return err
		}
	}
	for _, el := range pq2 {
		if err := w.paymentQueueAddRow(el.tid, el.net, el.blob); err != nil {
			return err
		}
	}
	return w.commit()
}

// ExportWallet copies the wallet into a fresh database under a new
// password. A view-only export stores the spend key base public key (and
// optionally the derivation seed) instead of the mnemonic.
func (w *HDWallet) ExportWallet(exportPath, newPassword string, viewOnly, viewOutgoingAddresses bool) error {
	other, err := CreateHD(w.currency, exportPath, newPassword, "", 0, 0, "")
	if err != nil {
		return err
	}
	defer other.Close()
	parameters, err := w.parametersGet()
	if err != nil {
		return err
	}
	if !w.IsViewOnly() && viewOnly {
		if err := other.put(paramSpendKeyBasePub, w.spendKeyBase.PublicKey[:], true); err != nil {
			return err
		}
		if viewOutgoingAddresses {
			if err := other.put(paramTxDerivationSeed, w.txDerivationSeed[:], true); err != nil {
				return err
			}
		}
		for _, p := range parameters {
			key := string(p[0])
			if key == paramMnemonic || key == paramMnemonicPassword {
				continue
			}
			if err := other.put(key, p[1], true); err != nil {
				return err
			}
		}
		for address, label := range w.labels {
			if err := other.setLabelRow(address, label); err != nil {
				return err
			}
			other.labels[address] = label
		}
	} else {
		for _, p := range parameters {
			if err := other.put(string(p[0]), p[1], true); err != nil {
				return err
			}
		}
		for address, label := range w.labels {
			if err := other.setLabelRow(address, label); err != nil {
				return err
			}
			other.labels[address] = label
		}
		pq2, err := w.paymentQueueGet2()
		if err != nil {
			return err
		}
		for _, el := range pq2 {
			if err := other.paymentQueueAddRow(el.tid, el.net, el.blob); err != nil {
				return err
			}
		}
	}
	return other.commit()
}

// ExportKeys returns the mnemonic.
func (w *HDWallet) ExportKeys() (string, error) {
	mnemonic, ok, err := w.getString(paramMnemonic)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errNotSupported("exporting keys (mnemonic) not supported by view-only HD wallet")
	}
	return mnemonic, nil
}

func (w *HDWallet) Backup(dst, password string) error {
	return w.ExportWallet(dst, password, false, false)
}

// SaveHistory stores nothing: the HD wallet reconstructs outgoing
// addresses from the derivation seed instead.
func (w *HDWallet) SaveHistory(tid crypto.Hash, usedAddresses History) bool { return true }

func (w *HDWallet) LoadHistory(tid crypto.Hash) History { return make(History) }

func (w *HDWallet) PaymentQueueGet() ([][]byte, error) {
	pq2, err := w.paymentQueueGet2()
	if err != nil {
		return nil, err
	}
	var result [][]byte
	for _, el := range pq2 {
		if el.net == w.currency.Net {
			result = append(result, el.blob)
		}
	}
	return result, nil
}

func (w *HDWallet) paymentQueueAddRow(tid crypto.Hash, net string, binaryTransaction []byte) error {
	tidHash := deriveFromKey(w.walletKey, "db_payment_queue_tid"+string(tid[:]))
	netHash := deriveFromKey(w.walletKey, "db_payment_queue_net"+net)
	encTid := encryptData(w.walletKey, tid[:])
	encNet := encryptData(w.walletKey, []byte(net))
	encValue := encryptData(w.walletKey, binaryTransaction)
	_, err := w.tx.Exec(
		"REPLACE INTO payment_queue (tid_hash, net_hash, tid, net, binary_transaction) VALUES (?, ?, ?, ?, ?)",
		tidHash[:], netHash[:], encTid, encNet, encValue)
	if err != nil {
		return errWrite("error writing wallet database", err)
	}
	return nil
}

func (w *HDWallet) PaymentQueueAdd(tid crypto.Hash, binaryTransaction []byte) error {
	return w.paymentQueueAddRow(tid, w.currency.Net, binaryTransaction)
}

func (w *HDWallet) PaymentQueueRemove(tid crypto.Hash) error {
	tidHash := deriveFromKey(w.walletKey, "db_payment_queue_tid"+string(tid[:]))
	netHash := deriveFromKey(w.walletKey, "db_payment_queue_net"+w.currency.Net)
	_, err := w.tx.Exec("DELETE FROM payment_queue WHERE net_hash = ? AND tid_hash = ?", netHash[:], tidHash[:])
	if err != nil {
		return errWrite("error writing wallet database", err)
	}
	// Committing here is not critical; do it opportunistically for the
	// common bulk case.
	if tid[0] == 'x' {
		return w.commit()
	}
	return nil
}

// OnFirstOutputFound persists the first-seen timestamp for this net. HD
// record timestamps stay untouched; the per-net parameter drives rescans.
func (w *HDWallet) OnFirstOutputFound(ts Timestamp) error {
	if w.oldestTimestamp != 0 || ts == 0 {
		return nil
	}
	if err := w.put(paramCreationTS+netSuffix(w.currency.Net), uint64ToBinary(ts), false); err != nil {
		return err
	}
	w.oldestTimestamp = ts
	return w.commit()
}

func (w *HDWallet) setLabelRow(address, label string) error {
	addressHash := deriveFromKey(w.walletKey, "db_labels"+address)
	if label == "" {
		_, err := w.tx.Exec("DELETE FROM labels WHERE address_hash = ?", addressHash[:])
		if err != nil {
			return errWrite("error writing wallet database", err)
		}
		return nil
	}
	encAddress := encryptData(w.walletKey, []byte(address))
	encLabel := encryptData(w.walletKey, []byte(label))
	_, err := w.tx.Exec("REPLACE INTO labels (address_hash, address, label) VALUES (?, ?, ?)",
		addressHash[:], encAddress, encLabel)
	if err != nil {
		return errWrite("error writing wallet database", err)
	}
	return nil
}

func (w *HDWallet) SetLabel(address, label string) error {
	if label == "" {
		delete(w.labels, address)
	} else {
		w.labels[address] = label
	}
	if err := w.setLabelRow(address, label); err != nil {
		return err
	}
	return w.commit()
}

func (w *HDWallet) Label(address string) string { return w.labels[address] }

func (w *HDWallet) CacheName() string {
	return cacheName(w.viewKeys.PublicKey, w.IsViewOnly(), w.CanViewOutgoingAddresses())
}

func (w *HDWallet) Close() error {
	if w.db == nil {
		return nil
	}
	var err error
	if w.tx != nil {
		err = w.tx.Commit()
		w.tx = nil
	}
	if cerr := w.db.Close(); err == nil {
		err = cerr
	}
	w.db = nil
	return err
}
