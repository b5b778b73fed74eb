/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package reactor

import "time"

// PeriodicTask repeatedly invokes a callback on a fixed interval. The
// next deadline is advanced by whole multiples of the interval from
// the previous deadline (never reset from "now"), so a callback that
// occasionally runs long does not cause the reactor to burst-catch-up
// afterward — ctornado's ioloop.cc PeriodicCallback anchors the same way.
type PeriodicTask struct {
	r        *Reactor
	interval time.Duration
	cb       func()
	next     time.Time
	handle   TimerHandle
	stopped  bool
}

// NewPeriodicTask creates (but does not start) a periodic task.
func NewPeriodicTask(r *Reactor, interval time.Duration, cb func()) *PeriodicTask {
	return &PeriodicTask{r: r, interval: interval, cb: cb}
}

// Start schedules the first tick.
func (p *PeriodicTask) Start() {
	p.next = time.Now()
	p.scheduleNext()
}

// Stop cancels any pending tick; already-running ticks finish.
func (p *PeriodicTask) Stop() {
	p.stopped = true
	p.r.Cancel(p.handle)
}

func (p *PeriodicTask) scheduleNext() {
	if p.stopped {
		return
	}
	now := time.Now()
	for !p.next.After(now) {
		p.next = p.next.Add(p.interval)
	}
	p.handle = p.r.Schedule(p.next, p.run)
}

func (p *PeriodicTask) run() {
	if p.stopped {
		return
	}
	p.cb()
	p.scheduleNext()
}
