// Copyright (c) 2024 The walletstore developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package crypto

import (
	cryptonight "ekyu.moe/cryptonight"
)

// PasswordKey turns password material into the wallet chacha key using the
// CryptoNight memory-hard hash. There is no salt at this layer; callers
// that want one prepend it to data.
func PasswordKey(data []byte) ChachaKey {
	// Sum reads its input once; copy so callers keep ownership.
	in := make([]byte, len(data))
	copy(in, data)
	sum := cryptonight.Sum(in, 0)
	var key ChachaKey
	copy(key[:], sum)
	return key
}
