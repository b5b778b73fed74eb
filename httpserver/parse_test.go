/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package httpserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequestLineValid(t *testing.T) {
	rl, err := parseRequestLine("GET /x?y=1 HTTP/1.1\r\n")
	require.NoError(t, err)
	assert.Equal(t, "GET", rl.Method)
	assert.Equal(t, "/x?y=1", rl.URI)
	assert.Equal(t, "HTTP/1.1", rl.Version)
}

func TestParseRequestLineRejectsWrongTokenCount(t *testing.T) {
	_, err := parseRequestLine("GET /x\r\n")
	require.ErrorIs(t, err, ErrMalformedRequestLine)
}

func TestParseRequestLineRejectsBadVersion(t *testing.T) {
	_, err := parseRequestLine("GET /x FOO/1.1\r\n")
	require.ErrorIs(t, err, ErrMalformedRequestLine)
}

func TestParseHeaderBlockBasic(t *testing.T) {
	h, err := parseHeaderBlock("Host: example.com\r\nContent-Length: 5\r\n")
	require.NoError(t, err)
	assert.Equal(t, "example.com", h.Get("Host"))
	assert.Equal(t, "5", h.Get("Content-Length"))
}

func TestParseHeaderBlockContinuation(t *testing.T) {
	h, err := parseHeaderBlock("X-Long: part-one\r\n part-two\r\n")
	require.NoError(t, err)
	assert.Equal(t, "part-one part-two", h.Get("X-Long"))
}

func TestParseHeaderBlockDuplicateCommaJoins(t *testing.T) {
	h, err := parseHeaderBlock("X-Tag: a\r\nX-Tag: b\r\n")
	require.NoError(t, err)
	assert.Equal(t, "a,b", h.Get("X-Tag"))
}

func TestParseHeaderBlockRejectsMissingColon(t *testing.T) {
	_, err := parseHeaderBlock("not-a-header-line\r\n")
	require.ErrorIs(t, err, ErrMalformedHeader)
}

func TestParseHeaderBlockRejectsInvalidFieldName(t *testing.T) {
	_, err := parseHeaderBlock("Bad Name: value\r\n")
	require.ErrorIs(t, err, ErrMalformedHeader)
}

func TestParseHeaderBlockRejectsInvalidFieldValue(t *testing.T) {
	_, err := parseHeaderBlock("X-Tag: bad\x00value\r\n")
	require.ErrorIs(t, err, ErrMalformedHeader)
}
