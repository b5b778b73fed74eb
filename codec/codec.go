/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package codec wraps the base64/hex/md5/sha1 codecs spec.md §1 lists
// as out-of-scope external collaborators behind one small interface,
// matching how badu-http treats hashing/encoding as a thin pass-through
// over the standard library rather than something worth re-deriving.
package codec

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
)

// Base64StdEncode / Base64StdDecode wrap the standard (padded) alphabet.
func Base64StdEncode(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func Base64StdDecode(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }

// Base64URLEncode / Base64URLDecode wrap the URL-safe alphabet, used
// for cookie signatures and other values that ride inside a header.
func Base64URLEncode(b []byte) string { return base64.URLEncoding.EncodeToString(b) }

func Base64URLDecode(s string) ([]byte, error) { return base64.URLEncoding.DecodeString(s) }

// HexEncode / HexDecode wrap lower-case hex, as used for digest output.
func HexEncode(b []byte) string { return hex.EncodeToString(b) }

func HexDecode(s string) ([]byte, error) { return hex.DecodeString(s) }

// MD5Sum returns the raw 16-byte MD5 digest of b.
func MD5Sum(b []byte) [md5.Size]byte { return md5.Sum(b) }

// MD5Hex returns the lower-case hex MD5 digest of b.
func MD5Hex(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

// SHA1Sum returns the raw 20-byte SHA-1 digest of b.
func SHA1Sum(b []byte) [sha1.Size]byte { return sha1.Sum(b) }

// SHA1Hex returns the lower-case hex SHA-1 digest of b.
func SHA1Hex(b []byte) string {
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}
