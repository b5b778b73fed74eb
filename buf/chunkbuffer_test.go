/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package buf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferSizeInvariant(t *testing.T) {
	var b Buffer
	b.PushBack(NewChunk([]byte("abc")))
	b.PushBack(NewChunk([]byte("defgh")))
	assert.Equal(t, 8, b.Size())

	b.MergePrefix(4)
	assert.Equal(t, 8, b.Size())
	assert.Equal(t, 4, b.PeekFront().Len())

	b.RemovePrefix(5)
	assert.Equal(t, 3, b.Size())

	rest := b.PopFront()
	assert.Equal(t, "fgh", string(rest.Bytes()))
	assert.Equal(t, 0, b.Size())
	assert.True(t, b.Empty())
}

func TestBufferMergePrefixBeyondSize(t *testing.T) {
	var b Buffer
	b.PushBack(NewChunk([]byte("ab")))
	b.PushBack(NewChunk([]byte("cd")))
	b.MergePrefix(100)
	require.Equal(t, 4, b.Size())
	assert.Equal(t, "abcd", string(b.PeekFront().Bytes()))
}

func TestBufferDoublePrefix(t *testing.T) {
	var b Buffer
	b.PushBack(NewChunk([]byte("a")))
	b.PushBack(NewChunk([]byte("bb")))
	b.PushBack(NewChunk([]byte("cccc")))
	b.DoublePrefix()
	// front=1, second=2 -> target = max(2, 3) = 3
	assert.Equal(t, 3, b.PeekFront().Len())
	assert.Equal(t, "abb", string(b.PeekFront().Bytes()))
}

func TestNullVsEmptyChunk(t *testing.T) {
	var null Chunk
	empty := NewChunk([]byte{})
	assert.True(t, null.IsNull())
	assert.False(t, empty.IsNull())
	assert.Equal(t, 0, empty.Len())
}

func TestBufferPopFrontEmpty(t *testing.T) {
	var b Buffer
	assert.True(t, b.PopFront().IsNull())
	assert.True(t, b.PeekFront().IsNull())
}
