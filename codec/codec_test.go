/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBase64StdRoundTrip(t *testing.T) {
	enc := Base64StdEncode([]byte("hello world"))
	dec, err := Base64StdDecode(enc)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(dec))
}

func TestBase64URLRoundTrip(t *testing.T) {
	enc := Base64URLEncode([]byte{0xff, 0xfe, 0x00, 0x10})
	dec, err := Base64URLDecode(enc)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xfe, 0x00, 0x10}, dec)
}

func TestHexRoundTrip(t *testing.T) {
	enc := HexEncode([]byte("abc"))
	assert.Equal(t, "616263", enc)
	dec, err := HexDecode(enc)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(dec))
}

func TestMD5HexKnownVector(t *testing.T) {
	assert.Equal(t, "5eb63bbbe01eeed093cb22bb8f5acdc3", MD5Hex([]byte("hello world")))
}

func TestSHA1HexKnownVector(t *testing.T) {
	assert.Equal(t, "2aae6c35c94fcfb415dbe95f408b9ce91ee846ed", SHA1Hex([]byte("hello world")))
}
