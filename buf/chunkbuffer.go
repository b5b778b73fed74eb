/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package buf

// Buffer is an ordered FIFO sequence of Chunks with a cached total
// size. It backs both the read and write sides of iostream.Stream.
//
// Invariant: size always equals the sum of the lengths of the chunks
// currently queued; callers must go through the methods below rather
// than touch an exported field so that invariant can't be violated
// from outside the package.
type Buffer struct {
	chunks []Chunk
	head   int // index of the front chunk within chunks
	size   int
}

// PushBack appends c to the end of the buffer. A nil or empty chunk is
// a no-op push (nothing useful to read from it).
func (b *Buffer) PushBack(c Chunk) {
	if c.Len() == 0 {
		return
	}
	b.chunks = append(b.chunks, c)
	b.size += c.Len()
}

// Size returns the total number of buffered bytes.
func (b *Buffer) Size() int { return b.size }

// Empty reports whether the buffer holds no bytes.
func (b *Buffer) Empty() bool { return b.size == 0 }

// PeekFront returns the current front chunk without removing it. It
// returns the null Chunk if the buffer is empty.
func (b *Buffer) PeekFront() Chunk {
	if b.head >= len(b.chunks) {
		return nil
	}
	return b.chunks[b.head]
}

// PopFront removes and returns the front chunk. It returns the null
// Chunk if the buffer is empty.
func (b *Buffer) PopFront() Chunk {
	if b.head >= len(b.chunks) {
		return nil
	}
	c := b.chunks[b.head]
	b.chunks[b.head] = nil
	b.head++
	b.size -= c.Len()
	b.compact()
	return c
}

// compact drops consumed slots once they pile up, so a long-lived
// buffer doesn't retain an ever-growing backing array.
func (b *Buffer) compact() {
	if b.head == len(b.chunks) {
		b.chunks = b.chunks[:0]
		b.head = 0
		return
	}
	if b.head > 64 && b.head*2 > len(b.chunks) {
		b.chunks = append(b.chunks[:0], b.chunks[b.head:]...)
		b.head = 0
	}
}

// MergePrefix coalesces the front chunks so the first chunk is exactly
// min(n, Size()) bytes, allocating one combined chunk when more than
// one source chunk is involved. A single front chunk already long
// enough is split by re-slicing (no copy).
func (b *Buffer) MergePrefix(n int) {
	if n <= 0 || b.head >= len(b.chunks) {
		return
	}
	if n > b.size {
		n = b.size
	}
	first := b.chunks[b.head]
	if first.Len() >= n {
		if first.Len() > n {
			split := []Chunk{first.Slice(0, n), first.Slice(n, first.Len())}
			b.chunks = append(split, b.chunks[b.head+1:]...)
			b.head = 0
		}
		return
	}

	builder := NewBuilder(n)
	taken := 0
	i := b.head
	for i < len(b.chunks) && taken < n {
		c := b.chunks[i]
		remaining := n - taken
		if c.Len() <= remaining {
			builder.Write(c.Bytes())
			taken += c.Len()
			i++
			continue
		}
		builder.Write(c.Bytes()[:remaining])
		b.chunks[i] = c.Slice(remaining, c.Len())
		taken += remaining
		break
	}

	merged := builder.Finish()
	// Replace [b.head:i) with the single merged chunk.
	newChunks := make([]Chunk, 0, len(b.chunks)-(i-b.head)+1)
	newChunks = append(newChunks, merged)
	newChunks = append(newChunks, b.chunks[i:]...)
	b.chunks = newChunks
	b.head = 0
}

// DoublePrefix grows the first chunk to at least
// max(2*len(front), len(front)+len(second)) bytes, the amortizing
// policy that keeps repeated delimiter scans over a fragmented buffer
// at O(log n) total merge work.
func (b *Buffer) DoublePrefix() {
	if b.head >= len(b.chunks) {
		return
	}
	front := b.chunks[b.head].Len()
	target := front * 2
	if b.head+1 < len(b.chunks) {
		alt := front + b.chunks[b.head+1].Len()
		if alt > target {
			target = alt
		}
	}
	if target <= front {
		target = front + 1
	}
	b.MergePrefix(target)
}

// RemovePrefix drops n bytes from the front of the buffer.
func (b *Buffer) RemovePrefix(n int) {
	if n <= 0 {
		return
	}
	if n > b.size {
		n = b.size
	}
	remaining := n
	for remaining > 0 && b.head < len(b.chunks) {
		c := b.chunks[b.head]
		if c.Len() <= remaining {
			remaining -= c.Len()
			b.chunks[b.head] = nil
			b.head++
			continue
		}
		b.chunks[b.head] = c.Slice(remaining, c.Len())
		remaining = 0
	}
	b.size -= n
	b.compact()
}

// Bytes copies out the first n bytes of the buffer (n must be <=
// Size()). It does not consume them; pair with RemovePrefix.
func (b *Buffer) Bytes(n int) []byte {
	if n > b.size {
		n = b.size
	}
	out := make([]byte, 0, n)
	taken := 0
	for i := b.head; i < len(b.chunks) && taken < n; i++ {
		c := b.chunks[i]
		remaining := n - taken
		if c.Len() <= remaining {
			out = append(out, c.Bytes()...)
			taken += c.Len()
			continue
		}
		out = append(out, c.Bytes()[:remaining]...)
		taken += remaining
	}
	return out
}
