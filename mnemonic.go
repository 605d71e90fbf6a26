// Copyright (c) 2024 The walletstore developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package walletstore

import (
	"crypto/rand"
	"encoding/binary"
	"hash/crc32"
	"strings"

	"github.com/tyler-smith/go-bip39/wordlists"
)

// BitsPerWord is the entropy carried by one word of the 2048-word list.
const BitsPerWord = 11

var (
	mnemonicWords = wordlists.English

	crcTable        = crc32.MakeTable(crc32.IEEE)
	crcReverseIndex [256]byte

	// wordCRCAdj[i] is the CRC state after folding word i starting from
	// zero. Folding a word into any state is then "advance len(word)
	// zero steps, xor the adjustment": the CRC update is linear, so the
	// data contribution separates from the state shift.
	wordCRCAdj []uint32

	wordsByLen  map[int][]int
	wordsMinLen int
	wordsMaxLen int
)

func init() {
	for i := 0; i < 256; i++ {
		crcReverseIndex[crcTable[i]>>24] = byte(i)
	}
	wordCRCAdj = make([]uint32, len(mnemonicWords))
	wordsByLen = make(map[int][]int)
	wordsMinLen, wordsMaxLen = len(mnemonicWords[0]), 0
	for i, word := range mnemonicWords {
		var crc uint32
		for j := 0; j < len(word); j++ {
			crc = crc>>8 ^ crcTable[byte(crc)^word[j]]
		}
		wordCRCAdj[i] = crc
		wordsByLen[len(word)] = append(wordsByLen[len(word)], i)
		if len(word) < wordsMinLen {
			wordsMinLen = len(word)
		}
		if len(word) > wordsMaxLen {
			wordsMaxLen = len(word)
		}
	}
}

// crc32StepZero advances the CRC state by one zero byte.
func crc32StepZero(crc uint32) uint32 {
	return crc>>8 ^ crcTable[byte(crc)]
}

// crc32ReverseStepZero undoes crc32StepZero. The table's high bytes are
// distinct, so the folded byte is recoverable from the state's top byte.
func crc32ReverseStepZero(crc uint32) uint32 {
	low := crcReverseIndex[crc>>24]
	return (crc^crcTable[low])<<8 | uint32(low)
}

func randomWordIndex() int {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	// 65536 is a multiple of the list size, so the modulo is unbiased.
	return int(binary.BigEndian.Uint16(b[:])) % len(mnemonicWords)
}

// GenerateMnemonic produces a display phrase of ceil(bits/11)+3 words
// whose running CRC32 (zero initial state, words concatenated) equals
// version. The three-word suffix is found by search: the needed pre-image
// for every possible last word is precomputed by running the CRC
// backwards, then random prefixes are tried until some penultimate word
// pair lands on one of them.
func GenerateMnemonic(bits int, version uint32) string {
	lastWord := make(map[uint32]int, len(mnemonicWords))
	for i := range mnemonicWords {
		crcSuffix := version ^ wordCRCAdj[i]
		for range mnemonicWords[i] {
			crcSuffix = crc32ReverseStepZero(crcSuffix)
		}
		lastWord[crcSuffix] = i
	}
	wordsInPrefix := (bits-1)/BitsPerWord + 1
	for {
		ids := make([]int, wordsInPrefix, wordsInPrefix+3)
		var crcPrefix uint32
		for i := 0; i < wordsInPrefix; i++ {
			j := randomWordIndex()
			ids[i] = j
			for range mnemonicWords[j] {
				crcPrefix = crc32StepZero(crcPrefix)
			}
			crcPrefix ^= wordCRCAdj[j]
		}
		c1 := crcPrefix
		for i := 0; i < wordsMinLen; i++ {
			c1 = crc32StepZero(c1)
		}
		for l1 := wordsMinLen; l1 <= wordsMaxLen; l1++ {
			for _, w1 := range wordsByLen[l1] {
				c2 := c1 ^ wordCRCAdj[w1]
				for i := 0; i < wordsMinLen; i++ {
					c2 = crc32StepZero(c2)
				}
				for l2 := wordsMinLen; l2 <= wordsMaxLen; l2++ {
					for _, w2 := range wordsByLen[l2] {
						if last, ok := lastWord[c2^wordCRCAdj[w2]]; ok {
							ids = append(ids, w1, w2, last)
							parts := make([]string, len(ids))
							for k, id := range ids {
								parts[k] = mnemonicWords[id]
							}
							return strings.Join(parts, " ")
						}
					}
					c2 = crc32StepZero(c2)
				}
			}
			c1 = crc32StepZero(c1)
		}
	}
}

// MnemonicCRC32 folds the phrase's words (separators excluded) through
// CRC32 from a zero state; GenerateMnemonic output folds to its version
// tag.
func MnemonicCRC32(mnemonic string) uint32 {
	var crc uint32
	for _, word := range strings.Fields(mnemonic) {
		for j := 0; j < len(word); j++ {
			crc = crc>>8 ^ crcTable[byte(crc)^word[j]]
		}
	}
	return crc
}
