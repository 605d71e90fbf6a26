// Copyright (c) 2024 The walletstore developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package walletstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptonote-community/walletstore/crypto"
)

var testCurrency = Currency{Name: "bytecoin", Net: "main"}

func TestContainerCreateReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w")

	w, err := CreateContainer(testCurrency, path, "pw", "", 0)
	require.NoError(t, err)

	assert.Equal(t, 1, w.ActualRecordCount())
	assert.False(t, w.IsViewOnly())
	assert.True(t, w.CanViewOutgoingAddresses())
	first := w.FirstAddress()
	oldest := w.OldestTimestamp()
	assert.NotEqual(t, Timestamp(0), oldest)
	require.NoError(t, w.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, walletFileSize(1), info.Size())

	w2, err := OpenContainer(testCurrency, path, "pw")
	require.NoError(t, err)
	defer w2.Close()
	assert.Equal(t, first, w2.FirstAddress())
	assert.Equal(t, oldest, w2.OldestTimestamp())
	assert.True(t, w2.IsOurAddress(first))
}

func TestContainerBadPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w")

	w, err := CreateContainer(testCurrency, path, "pw", "", 0)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = OpenContainer(testCurrency, path, "px")
	var werr *Error
	require.True(t, errors.As(err, &werr))
	assert.Equal(t, CodeFileDecryptError, werr.Code)
}

func TestContainerUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w")
	require.NoError(t, os.WriteFile(path, append([]byte{7}, make([]byte, 100)...), 0600))

	_, err := OpenContainer(testCurrency, path, "pw")
	var werr *Error
	require.True(t, errors.As(err, &werr))
	assert.Equal(t, CodeFileUnknownVersion, werr.Code)
}

func TestContainerImportRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := CreateContainer(testCurrency, filepath.Join(dir, "w"), "pw", "", 0)
	require.NoError(t, err)
	defer w.Close()

	keys, err := w.ExportKeys()
	require.NoError(t, err)
	assert.Len(t, keys, 256)

	w2, err := CreateContainer(testCurrency, filepath.Join(dir, "w2"), "other", keys, 0)
	require.NoError(t, err)
	defer w2.Close()

	assert.Equal(t, w.FirstAddress(), w2.FirstAddress())
	assert.False(t, w2.IsViewOnly())
	assert.Equal(t, Timestamp(0), w2.OldestTimestamp())
	assert.Equal(t, w.CacheName(), w2.CacheName())
}

func TestContainerImportBadKeys(t *testing.T) {
	dir := t.TempDir()
	_, err := CreateContainer(testCurrency, filepath.Join(dir, "w"), "pw", "deadbeef", 0)
	var werr *Error
	require.True(t, errors.As(err, &werr))
	assert.Equal(t, CodeFileDecryptError, werr.Code)

	// Valid length, but the view secret does not match the view public.
	bad := make([]byte, 256)
	for i := range bad {
		bad[i] = '0'
	}
	_, err = CreateContainer(testCurrency, filepath.Join(dir, "w2"), "pw", string(bad), 0)
	assert.Error(t, err)
}

func TestContainerGenerateBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w")
	w, err := CreateContainer(testCurrency, path, "pw", "", 0)
	require.NoError(t, err)

	records, rescan, err := w.GenerateNewAddresses(make([]crypto.SecretKey, 3), 1000, 2000)
	require.NoError(t, err)
	assert.False(t, rescan)
	assert.Len(t, records, 3)
	for _, rec := range records {
		assert.Equal(t, Timestamp(2000), rec.CreationTimestamp)
		assert.True(t, crypto.KeysMatch(rec.SpendSecretKey, rec.SpendPublicKey))
	}
	assert.Equal(t, 4, w.ActualRecordCount())
	require.NoError(t, w.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, walletFileSize(4), info.Size())

	w2, err := OpenContainer(testCurrency, path, "pw")
	require.NoError(t, err)
	defer w2.Close()
	assert.Equal(t, 4, w2.ActualRecordCount())
	for i, rec := range records {
		got, ok := w2.Record(w2.RecordToAddress(rec))
		assert.True(t, ok, i)
		assert.Equal(t, rec, got)
	}
}

func TestContainerImportLowersTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w")
	w, err := CreateContainer(testCurrency, path, "pw", "", 0)
	require.NoError(t, err)
	defer w.Close()

	records, _, err := w.GenerateNewAddresses(make([]crypto.SecretKey, 1), 0, 5000)
	require.NoError(t, err)
	require.Len(t, records, 1)

	// Importing the same secret with a lower timestamp rewrites the file.
	again, rescan, err := w.GenerateNewAddresses([]crypto.SecretKey{records[0].SpendSecretKey}, 1000, 6000)
	require.NoError(t, err)
	assert.True(t, rescan)
	require.Len(t, again, 1)
	assert.Equal(t, Timestamp(1000), again[0].CreationTimestamp)
	assert.Equal(t, 2, w.ActualRecordCount())

	w2, err := OpenContainer(testCurrency, path, "pw")
	require.NoError(t, err)
	defer w2.Close()
	got, ok := w2.Record(w2.RecordToAddress(again[0]))
	require.True(t, ok)
	assert.Equal(t, Timestamp(1000), got.CreationTimestamp)
}

func TestContainerViewOnlyRules(t *testing.T) {
	dir := t.TempDir()
	w, err := CreateContainer(testCurrency, filepath.Join(dir, "w"), "pw", "", 0)
	require.NoError(t, err)
	defer w.Close()

	exportPath := filepath.Join(dir, "view")
	require.NoError(t, w.ExportWallet(exportPath, "pw2", true, false))

	v, err := OpenContainer(testCurrency, exportPath, "pw2")
	require.NoError(t, err)
	defer v.Close()
	assert.True(t, v.IsViewOnly())
	assert.False(t, v.CanViewOutgoingAddresses())
	assert.Equal(t, w.FirstAddress(), v.FirstAddress())
	assert.Equal(t, w.CacheName()+"-view-only", v.CacheName())

	_, _, err = v.GenerateNewAddresses(make([]crypto.SecretKey, 1), 0, 0)
	var werr *Error
	require.True(t, errors.As(err, &werr))
	assert.Equal(t, CodeNotSupported, werr.Code)
}

func TestContainerSetPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w")
	w, err := CreateContainer(testCurrency, path, "pw", "", 0)
	require.NoError(t, err)
	first := w.FirstAddress()
	require.NoError(t, w.SetPassword("better"))
	require.NoError(t, w.Close())

	_, err = OpenContainer(testCurrency, path, "pw")
	assert.Error(t, err)
	w2, err := OpenContainer(testCurrency, path, "better")
	require.NoError(t, err)
	defer w2.Close()
	assert.Equal(t, first, w2.FirstAddress())
}

func TestContainerSetLabelUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w")
	w, err := CreateContainer(testCurrency, path, "pw", "", 0)
	require.NoError(t, err)
	defer w.Close()

	err = w.SetLabel(w.FirstAddress().String(), "savings")
	var werr *Error
	require.True(t, errors.As(err, &werr))
	assert.Equal(t, CodeNotSupported, werr.Code)
	assert.Equal(t, "", w.Label(w.FirstAddress().String()))
}

func TestContainerHistoryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w")
	w, err := CreateContainer(testCurrency, path, "pw", "", 0)
	require.NoError(t, err)
	defer w.Close()

	tid := crypto.FastHash([]byte("tx1"))
	used := make(History)
	for i := 0; i < 3; i++ {
		used[AccountAddressSimple{
			SpendPublicKey: crypto.RandomKeypair().PublicKey,
			ViewPublicKey:  crypto.RandomKeypair().PublicKey,
		}] = struct{}{}
	}
	assert.True(t, w.SaveHistory(tid, used))
	assert.Equal(t, used, w.LoadHistory(tid))

	// Unknown tid loads an empty set.
	assert.Empty(t, w.LoadHistory(crypto.FastHash([]byte("tx2"))))

	// Empty history saves without creating a file.
	assert.True(t, w.SaveHistory(crypto.FastHash([]byte("tx3")), make(History)))
}

func TestContainerPaymentQueue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w")
	w, err := CreateContainer(testCurrency, path, "pw", "", 0)
	require.NoError(t, err)
	defer w.Close()

	tid1 := crypto.FastHash([]byte("a"))
	tid2 := crypto.FastHash([]byte("b"))
	require.NoError(t, w.PaymentQueueAdd(tid1, []byte("tx-one")))
	require.NoError(t, w.PaymentQueueAdd(tid2, []byte("tx-two")))

	blobs, err := w.PaymentQueueGet()
	require.NoError(t, err)
	assert.ElementsMatch(t, [][]byte{[]byte("tx-one"), []byte("tx-two")}, blobs)

	require.NoError(t, w.PaymentQueueRemove(tid1))
	blobs, err = w.PaymentQueueGet()
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("tx-two")}, blobs)

	require.NoError(t, w.PaymentQueueRemove(tid2))
	blobs, err = w.PaymentQueueGet()
	require.NoError(t, err)
	assert.Empty(t, blobs)
}

func TestContainerAtomicSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w")
	w, err := CreateContainer(testCurrency, path, "pw", "", 0)
	require.NoError(t, err)
	first := w.FirstAddress()
	require.NoError(t, w.Close())

	// A crash between writing <path>.tmp and the rename leaves a stale
	// temp file behind; the original must still open with its contents.
	require.NoError(t, os.WriteFile(path+".tmp", []byte("half-written garbage"), 0600))

	w2, err := OpenContainer(testCurrency, path, "pw")
	require.NoError(t, err)
	defer w2.Close()
	assert.Equal(t, first, w2.FirstAddress())
}

func TestContainerBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "w")
	w, err := CreateContainer(testCurrency, path, "pw", "", 0)
	require.NoError(t, err)
	defer w.Close()

	tid := crypto.FastHash([]byte("queued"))
	require.NoError(t, w.PaymentQueueAdd(tid, []byte("queued-tx")))

	dst := filepath.Join(dir, "backup")
	require.NoError(t, w.Backup(dst, "pw3"))

	b, err := OpenContainer(testCurrency, dst, "pw3")
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, w.FirstAddress(), b.FirstAddress())
	blobs, err := b.PaymentQueueGet()
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("queued-tx")}, blobs)
}

func TestContainerRecordsMapInvariant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w")
	w, err := CreateContainer(testCurrency, path, "pw", "", 0)
	require.NoError(t, err)
	defer w.Close()

	_, _, err = w.GenerateNewAddresses(make([]crypto.SecretKey, 5), 0, 100)
	require.NoError(t, err)
	for i, rec := range w.records {
		assert.Equal(t, i, w.recordsMap[rec.SpendPublicKey])
	}
}
