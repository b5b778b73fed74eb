/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package reactor

import "container/heap"

// Callback is any deferred or timer callback the reactor will invoke.
type Callback func()

// TimerHandle identifies a scheduled timer for Cancel. Cancellation is
// a tombstone: the callback is nulled and the entry is dropped lazily
// when it reaches the top of the heap, per spec §3 "Timer entry".
type TimerHandle struct {
	entry *timerEntry
}

type timerEntry struct {
	deadlineMs int64
	cb         Callback // nil once canceled
	index      int      // heap.Interface bookkeeping
}

// timerHeap is a min-heap of *timerEntry ordered by deadline.
type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadlineMs < h[j].deadlineMs }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// timers wraps timerHeap with the schedule/cancel operations the
// reactor's main loop needs; it is not safe for concurrent use, matching
// spec §5 "Timers are not thread-safe".
type timers struct {
	h timerHeap
}

func (t *timers) schedule(deadlineMs int64, cb Callback) TimerHandle {
	e := &timerEntry{deadlineMs: deadlineMs, cb: cb}
	heap.Push(&t.h, e)
	return TimerHandle{entry: e}
}

func (t *timers) cancel(h TimerHandle) {
	if h.entry != nil {
		h.entry.cb = nil
	}
}

// dropCanceled pops and discards tombstoned entries sitting at the
// top of the heap.
func (t *timers) dropCanceled() {
	for len(t.h) > 0 && t.h[0].cb == nil {
		heap.Pop(&t.h)
	}
}

// peek returns the next live entry's deadline and whether one exists.
// Callers must call dropCanceled first.
func (t *timers) peek() (int64, bool) {
	if len(t.h) == 0 {
		return 0, false
	}
	return t.h[0].deadlineMs, true
}

// popReady removes and returns the top entry's callback, assuming the
// caller already verified it is due.
func (t *timers) popReady() Callback {
	e := heap.Pop(&t.h).(*timerEntry)
	return e.cb
}
