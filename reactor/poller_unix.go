/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

//go:build darwin || freebsd || netbsd || openbsd

package reactor

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// pollPoller backs non-Linux unix targets with the portable poll(2)
// syscall. It is level-triggered in exactly the same sense epoll is:
// a descriptor stays "ready" across calls until the condition is
// drained, so the rest of the reactor/stream code is unaware which
// backend is in play.
type pollPoller struct {
	mu   sync.Mutex
	mask map[int]Mask
}

func NewPoller() (Poller, error) {
	return &pollPoller{mask: make(map[int]Mask)}, nil
}

func (p *pollPoller) Add(fd int, mask Mask) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mask[fd] = mask
	return nil
}

func (p *pollPoller) Modify(fd int, mask Mask) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mask[fd] = mask
	return nil
}

func (p *pollPoller) Remove(fd int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.mask, fd)
}

func toPollEvents(m Mask) int16 {
	var ev int16
	if m.Has(Read) {
		ev |= unix.POLLIN
	}
	if m.Has(Write) {
		ev |= unix.POLLOUT
	}
	return ev
}

func fromPollEvents(ev int16) Mask {
	var m Mask
	if ev&(unix.POLLIN|unix.POLLHUP) != 0 {
		m |= Read
	}
	if ev&unix.POLLOUT != 0 {
		m |= Write
	}
	if ev&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
		m |= Error
	}
	return m
}

func (p *pollPoller) Poll(timeout time.Duration) ([]Event, error) {
	p.mu.Lock()
	fds := make([]unix.PollFd, 0, len(p.mask))
	order := make([]int, 0, len(p.mask))
	for fd, m := range p.mask {
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: toPollEvents(m)})
		order = append(order, fd)
	}
	p.mu.Unlock()

	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}

	for {
		n, err := unix.Poll(fds, ms)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return nil, fmt.Errorf("reactor: poll: %w", err)
		}
		if n == 0 {
			return nil, nil
		}
		out := make([]Event, 0, n)
		for i, pfd := range fds {
			if pfd.Revents == 0 {
				continue
			}
			out = append(out, Event{Fd: order[i], Mask: fromPollEvents(pfd.Revents)})
		}
		return out, nil
	}
}

func (p *pollPoller) Close() error { return nil }
