/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package urllib

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQueryBasic(t *testing.T) {
	v, err := ParseQuery("a=1&b=2&a=3&c")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "3"}, v["a"])
	assert.Equal(t, "2", v.Get("b"))
	assert.Equal(t, []string{""}, v["c"])
}

func TestParseQueryPlusAndPercent(t *testing.T) {
	v, err := ParseQuery("name=John+Doe&city=S%C3%A3o+Paulo")
	require.NoError(t, err)
	assert.Equal(t, "John Doe", v.Get("name"))
	assert.Equal(t, "São Paulo", v.Get("city"))
}

func TestParseQueryRejectsSemicolon(t *testing.T) {
	_, err := ParseQuery("a=1;b=2")
	require.Error(t, err)
}

func TestParseQueryBadEscape(t *testing.T) {
	_, err := ParseQuery("a=%zz")
	require.Error(t, err)
	var esc EscapeError
	require.ErrorAs(t, err, &esc)
}

func TestEncodeRoundTrips(t *testing.T) {
	v := Values{"b": {"2"}, "a": {"1", "3"}}
	encoded := v.Encode()
	assert.Equal(t, "a=1&a=3&b=2", encoded)

	v2, err := ParseQuery(encoded)
	require.NoError(t, err)
	assert.Equal(t, v, v2)
}

func TestSplitAndUnsplit(t *testing.T) {
	path, q, frag := Split("/a/b?x=1&y=2#sec1")
	assert.Equal(t, "/a/b", path)
	assert.Equal(t, "x=1&y=2", q)
	assert.Equal(t, "sec1", frag)
	assert.Equal(t, "/a/b?x=1&y=2#sec1", Unsplit(path, q, frag))
}

func TestSplitNoQueryNoFragment(t *testing.T) {
	path, q, frag := Split("/just/a/path")
	assert.Equal(t, "/just/a/path", path)
	assert.Empty(t, q)
	assert.Empty(t, frag)
}
