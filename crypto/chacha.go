// Copyright (c) 2024 The walletstore developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package crypto

import (
	"encoding/binary"

	"golang.org/x/crypto/chacha20"
)

// The container format uses the original chacha construction with 8 rounds
// and a 64-bit IV. x/crypto only ships the 20-round IETF cipher, so the
// 8-round keystream is produced here. The HD row cipher runs 20 rounds with
// a zero nonce, where the IETF and original constructions agree, and goes
// through x/crypto.

func chacha8Block(key *ChachaKey, iv ChachaIV, counter uint64, out *[64]byte) {
	var s [16]uint32
	s[0] = 0x61707865
	s[1] = 0x3320646e
	s[2] = 0x79622d32
	s[3] = 0x6b206574
	for i := 0; i < 8; i++ {
		s[4+i] = binary.LittleEndian.Uint32(key[i*4:])
	}
	s[12] = uint32(counter)
	s[13] = uint32(counter >> 32)
	s[14] = binary.LittleEndian.Uint32(iv[0:])
	s[15] = binary.LittleEndian.Uint32(iv[4:])

	x := s
	quarter := func(a, b, c, d int) {
		x[a] += x[b]
		x[d] ^= x[a]
		x[d] = x[d]<<16 | x[d]>>16
		x[c] += x[d]
		x[b] ^= x[c]
		x[b] = x[b]<<12 | x[b]>>20
		x[a] += x[b]
		x[d] ^= x[a]
		x[d] = x[d]<<8 | x[d]>>24
		x[c] += x[d]
		x[b] ^= x[c]
		x[b] = x[b]<<7 | x[b]>>25
	}
	for i := 0; i < 8; i += 2 {
		quarter(0, 4, 8, 12)
		quarter(1, 5, 9, 13)
		quarter(2, 6, 10, 14)
		quarter(3, 7, 11, 15)
		quarter(0, 5, 10, 15)
		quarter(1, 6, 11, 12)
		quarter(2, 7, 8, 13)
		quarter(3, 4, 9, 14)
	}
	for i := 0; i < 16; i++ {
		binary.LittleEndian.PutUint32(out[i*4:], x[i]+s[i])
	}
}

// ChaCha8 XORs data with the 8-round chacha keystream for (key, iv).
func ChaCha8(key ChachaKey, iv ChachaIV, data []byte) []byte {
	out := make([]byte, len(data))
	var block [64]byte
	var counter uint64
	for off := 0; off < len(data); off += 64 {
		chacha8Block(&key, iv, counter, &block)
		counter++
		n := len(data) - off
		if n > 64 {
			n = 64
		}
		for i := 0; i < n; i++ {
			out[off+i] = data[off+i] ^ block[i]
		}
	}
	return out
}

// ChaCha20Zero XORs data with the 20-round chacha keystream for key under
// an all-zero nonce. Row keys are single-use, derived per IV, so the fixed
// nonce never repeats a keystream.
func ChaCha20Zero(key ChachaKey, data []byte) []byte {
	var nonce [chacha20.NonceSize]byte
	c, err := chacha20.NewUnauthenticatedCipher(key[:], nonce[:])
	if err != nil {
		panic(err)
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out
}
