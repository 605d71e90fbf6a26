// Copyright (c) 2024 The walletstore developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package walletstore

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"

	"github.com/cryptonote-community/walletstore/crypto"
)

// Address version bytes used by the display encoding.
const (
	addressVersionSimple              = 1
	addressVersionUnlinkable          = 2
	addressVersionUnlinkableAuditable = 3
)

// AccountAddress is any kind of payment address. The two implementations
// are plain comparable values, so addresses compare by variant and then by
// field through ==.
type AccountAddress interface {
	EncodeAddress() string
	String() string
}

// AccountAddressSimple is the legacy address flavor: a spend key plus the
// wallet-wide view key.
type AccountAddressSimple struct {
	SpendPublicKey crypto.PublicKey
	ViewPublicKey  crypto.PublicKey
}

// EncodeAddress returns a base58check string representation of the address.
func (a AccountAddressSimple) EncodeAddress() string {
	payload := make([]byte, 0, 2*crypto.PublicKeySize)
	payload = append(payload, a.SpendPublicKey[:]...)
	payload = append(payload, a.ViewPublicKey[:]...)
	return base58.CheckEncode(payload, addressVersionSimple)
}

// String is an alias for EncodeAddress to satisfy the stringer interface
func (a AccountAddressSimple) String() string { return a.EncodeAddress() }

// AccountAddressUnlinkable is the HD address flavor. SV is the
// view-derived second component; auditable addresses expose extra
// metadata to third parties and carry their own version byte.
type AccountAddressUnlinkable struct {
	SpendPublicKey crypto.PublicKey
	SV             crypto.PublicKey
	IsAuditable    bool
}

// EncodeAddress returns a base58check string representation of the address.
func (a AccountAddressUnlinkable) EncodeAddress() string {
	version := byte(addressVersionUnlinkable)
	if a.IsAuditable {
		version = addressVersionUnlinkableAuditable
	}
	payload := make([]byte, 0, 2*crypto.PublicKeySize)
	payload = append(payload, a.SpendPublicKey[:]...)
	payload = append(payload, a.SV[:]...)
	return base58.CheckEncode(payload, version)
}

// String is an alias for EncodeAddress to satisfy the stringer interface
func (a AccountAddressUnlinkable) String() string { return a.EncodeAddress() }

// DecodeAddress decodes the base58check address string and returns a new
// AccountAddress.
func DecodeAddress(addr string) (AccountAddress, error) {
	payload, version, err := base58.CheckDecode(addr)
	if err != nil {
		return nil, err
	}
	if len(payload) != 2*crypto.PublicKeySize {
		return nil, errors.New("wrong address payload length")
	}
	switch version {
	case addressVersionSimple:
		var a AccountAddressSimple
		copy(a.SpendPublicKey[:], payload[:crypto.PublicKeySize])
		copy(a.ViewPublicKey[:], payload[crypto.PublicKeySize:])
		return a, nil
	case addressVersionUnlinkable, addressVersionUnlinkableAuditable:
		a := AccountAddressUnlinkable{IsAuditable: version == addressVersionUnlinkableAuditable}
		copy(a.SpendPublicKey[:], payload[:crypto.PublicKeySize])
		copy(a.SV[:], payload[crypto.PublicKeySize:])
		return a, nil
	default:
		return nil, fmt.Errorf("unknown address version %d", version)
	}
}
