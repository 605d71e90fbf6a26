// Copyright (c) 2024 The walletstore developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

// Package crypto wraps the curve and hash primitives the wallet storage
// layer is built on: Keccak ("cn_fast_hash"), ed25519 scalar and point
// arithmetic, the CryptoNote output key derivations and the unlinkable
// address variants of them.
package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"errors"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/sha3"
)

const (
	HashSize      = 32
	PublicKeySize = 32
	SecretKeySize = 32
	ChachaIVSize  = 8
)

type (
	Hash          [HashSize]byte
	PublicKey     [PublicKeySize]byte
	SecretKey     [SecretKeySize]byte
	KeyDerivation [32]byte
	ChachaKey     [32]byte
	ChachaIV      [ChachaIVSize]byte
)

// KeyPair is a curve keypair. The secret may be all zero for
// public-only ("tracking") material.
type KeyPair struct {
	PublicKey PublicKey
	SecretKey SecretKey
}

var ErrInvalidPoint = errors.New("crypto: invalid curve point")

// FastHash is cn_fast_hash: legacy (pre-NIST padding) Keccak-256 over the
// concatenation of the arguments.
func FastHash(data ...[]byte) Hash {
	k := sha3.NewLegacyKeccak256()
	for _, d := range data {
		k.Write(d)
	}
	var h Hash
	copy(h[:], k.Sum(nil))
	return h
}

// HashToScalar hashes the arguments and reduces the 32-byte digest,
// interpreted little-endian, modulo the group order.
func HashToScalar(data ...[]byte) SecretKey {
	h := FastHash(data...)
	var wide [64]byte
	copy(wide[:32], h[:])
	s, err := edwards25519.NewScalar().SetUniformBytes(wide[:])
	if err != nil {
		panic(err) // 64-byte input cannot fail
	}
	var sk SecretKey
	copy(sk[:], s.Bytes())
	return sk
}

func scalarFromSecret(sk SecretKey) (*edwards25519.Scalar, error) {
	return edwards25519.NewScalar().SetCanonicalBytes(sk[:])
}

func pointFromPublic(pk PublicKey) (*edwards25519.Point, error) {
	p, err := new(edwards25519.Point).SetBytes(pk[:])
	if err != nil {
		return nil, ErrInvalidPoint
	}
	// SetBytes also accepts non-canonical encodings (y >= p, or x = 0 with
	// the sign bit set); those are not valid keys.
	if compressPoint(p) != pk {
		return nil, ErrInvalidPoint
	}
	return p, nil
}

func compressPoint(p *edwards25519.Point) PublicKey {
	var pk PublicKey
	copy(pk[:], p.Bytes())
	return pk
}

// scEight is the cofactor as a scalar.
var scEight = func() *edwards25519.Scalar {
	var b [32]byte
	b[0] = 8
	s, err := edwards25519.NewScalar().SetCanonicalBytes(b[:])
	if err != nil {
		panic(err)
	}
	return s
}()

// SecretKeyToPublicKey multiplies the base point by sk. Returns false when
// sk is not a canonical scalar.
func SecretKeyToPublicKey(sk SecretKey) (PublicKey, bool) {
	s, err := scalarFromSecret(sk)
	if err != nil {
		return PublicKey{}, false
	}
	return compressPoint(new(edwards25519.Point).ScalarBaseMult(s)), true
}

// KeysMatch reports whether pk is the public key of sk.
func KeysMatch(sk SecretKey, pk PublicKey) bool {
	derived, ok := SecretKeyToPublicKey(sk)
	return ok && derived == pk
}

// KeyIsValid reports whether pk is the canonical encoding of a curve point.
func KeyIsValid(pk PublicKey) bool {
	_, err := pointFromPublic(pk)
	return err == nil
}

// RandomKeypair returns a fresh uniformly random keypair.
func RandomKeypair() KeyPair {
	var wide [64]byte
	if _, err := rand.Read(wide[:]); err != nil {
		panic(err)
	}
	s, err := edwards25519.NewScalar().SetUniformBytes(wide[:])
	if err != nil {
		panic(err)
	}
	var kp KeyPair
	copy(kp.SecretKey[:], s.Bytes())
	kp.PublicKey = compressPoint(new(edwards25519.Point).ScalarBaseMult(s))
	return kp
}

// GenerateKeyDerivation computes the shared secret 8*sk*P used to link a
// transaction's outputs to a recipient.
func GenerateKeyDerivation(txPublicKey PublicKey, sk SecretKey) (KeyDerivation, error) {
	p, err := pointFromPublic(txPublicKey)
	if err != nil {
		return KeyDerivation{}, err
	}
	s, err := scalarFromSecret(sk)
	if err != nil {
		return KeyDerivation{}, ErrInvalidPoint
	}
	shared := new(edwards25519.Point).ScalarMult(s, p)
	shared.ScalarMult(scEight, shared)
	var kd KeyDerivation
	copy(kd[:], shared.Bytes())
	return kd, nil
}

func derivationToScalar(kd KeyDerivation, outputIndex int) *edwards25519.Scalar {
	buf := make([]byte, 0, len(kd)+binary.MaxVarintLen64)
	buf = append(buf, kd[:]...)
	buf = binary.AppendUvarint(buf, uint64(outputIndex))
	sk := HashToScalar(buf)
	s, err := scalarFromSecret(sk)
	if err != nil {
		panic(err) // HashToScalar output is always canonical
	}
	return s
}

// DerivePublicKey computes base + H_s(kd, outputIndex)*G.
func DerivePublicKey(kd KeyDerivation, outputIndex int, base PublicKey) (PublicKey, error) {
	b, err := pointFromPublic(base)
	if err != nil {
		return PublicKey{}, err
	}
	d := derivationToScalar(kd, outputIndex)
	p := new(edwards25519.Point).Add(b, new(edwards25519.Point).ScalarBaseMult(d))
	return compressPoint(p), nil
}

// DeriveSecretKey computes base + H_s(kd, outputIndex).
func DeriveSecretKey(kd KeyDerivation, outputIndex int, base SecretKey) (SecretKey, error) {
	b, err := scalarFromSecret(base)
	if err != nil {
		return SecretKey{}, ErrInvalidPoint
	}
	d := derivationToScalar(kd, outputIndex)
	var sk SecretKey
	copy(sk[:], d.Add(d, b).Bytes())
	return sk, nil
}

// UnderivePublicKey recovers the spend public key an output was derived
// for: outputKey - H_s(kd, outputIndex)*G.
func UnderivePublicKey(kd KeyDerivation, outputIndex int, outputKey PublicKey) (PublicKey, error) {
	o, err := pointFromPublic(outputKey)
	if err != nil {
		return PublicKey{}, err
	}
	d := derivationToScalar(kd, outputIndex)
	p := new(edwards25519.Point).Subtract(o, new(edwards25519.Point).ScalarBaseMult(d))
	return compressPoint(p), nil
}

// GenerateHDSpendkeys fills out with the deterministic subkeys of base
// starting at index startIndex. When base carries no secret only public
// keys are produced.
func GenerateHDSpendkeys(base KeyPair, viewSeed Hash, startIndex uint64, out []KeyPair) error {
	basePoint, err := pointFromPublic(base.PublicKey)
	if err != nil {
		return err
	}
	var baseScalar *edwards25519.Scalar
	if base.SecretKey != (SecretKey{}) {
		baseScalar, err = scalarFromSecret(base.SecretKey)
		if err != nil {
			return ErrInvalidPoint
		}
	}
	buf := make([]byte, 0, HashSize+binary.MaxVarintLen64)
	for i := range out {
		buf = append(buf[:0], viewSeed[:]...)
		buf = binary.AppendUvarint(buf, startIndex+uint64(i))
		dk := HashToScalar(buf)
		d, err := scalarFromSecret(dk)
		if err != nil {
			panic(err)
		}
		p := new(edwards25519.Point).Add(basePoint, new(edwards25519.Point).ScalarBaseMult(d))
		out[i].PublicKey = compressPoint(p)
		if baseScalar != nil {
			var sk SecretKey
			copy(sk[:], new(edwards25519.Scalar).Add(baseScalar, d).Bytes())
			out[i].SecretKey = sk
		}
	}
	return nil
}

// UnlinkableUnderivePublicKey recovers the spend public key of an
// unlinkable output and the per-output secret scalar needed to spend it.
func UnlinkableUnderivePublicKey(viewSecret SecretKey, txInputsHash Hash, outputIndex int,
	outputPublicKey, encryptedSecret PublicKey, secretScalar *SecretKey) (PublicKey, error) {
	e, err := pointFromPublic(encryptedSecret)
	if err != nil {
		return PublicKey{}, err
	}
	v, err := scalarFromSecret(viewSecret)
	if err != nil {
		return PublicKey{}, ErrInvalidPoint
	}
	shared := new(edwards25519.Point).ScalarMult(v, e)
	shared.ScalarMult(scEight, shared)
	buf := make([]byte, 0, 2*HashSize+binary.MaxVarintLen64)
	buf = append(buf, shared.Bytes()...)
	buf = append(buf, txInputsHash[:]...)
	buf = binary.AppendUvarint(buf, uint64(outputIndex))
	*secretScalar = HashToScalar(buf)
	d, err := scalarFromSecret(*secretScalar)
	if err != nil {
		panic(err)
	}
	o, err := pointFromPublic(outputPublicKey)
	if err != nil {
		return PublicKey{}, err
	}
	p := new(edwards25519.Point).Subtract(o, new(edwards25519.Point).ScalarBaseMult(d))
	return compressPoint(p), nil
}

// UnlinkableDeriveSecretKey combines a record's spend secret with the
// per-output scalar recovered during detection.
func UnlinkableDeriveSecretKey(spendSecret, secretScalar SecretKey) (SecretKey, error) {
	a, err := scalarFromSecret(spendSecret)
	if err != nil {
		return SecretKey{}, ErrInvalidPoint
	}
	b, err := scalarFromSecret(secretScalar)
	if err != nil {
		return SecretKey{}, ErrInvalidPoint
	}
	var sk SecretKey
	copy(sk[:], a.Add(a, b).Bytes())
	return sk, nil
}

// GenerateAddressSV computes the s_v component of an unlinkable address.
func GenerateAddressSV(spendPublicKey PublicKey, viewSecret SecretKey) (PublicKey, error) {
	p, err := pointFromPublic(spendPublicKey)
	if err != nil {
		return PublicKey{}, err
	}
	v, err := scalarFromSecret(viewSecret)
	if err != nil {
		return PublicKey{}, ErrInvalidPoint
	}
	return compressPoint(new(edwards25519.Point).ScalarMult(v, p)), nil
}

// RandHash returns 32 random bytes.
func RandHash() Hash {
	var h Hash
	if _, err := rand.Read(h[:]); err != nil {
		panic(err)
	}
	return h
}

// RandIV returns a fresh random chacha IV.
func RandIV() ChachaIV {
	var iv ChachaIV
	if _, err := rand.Read(iv[:]); err != nil {
		panic(err)
	}
	return iv
}
