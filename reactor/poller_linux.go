/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

//go:build linux

package reactor

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// epollPoller is the Linux Poller backend. It is the direct
// translation of ctornado's lib/epoll.cc wrapper: add/modify/remove
// map straight onto epoll_ctl, and Poll onto epoll_wait with EINTR
// retried transparently.
type epollPoller struct {
	fd int
}

// NewPoller constructs the platform readiness demultiplexer.
func NewPoller() (Poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	return &epollPoller{fd: fd}, nil
}

func toEpollEvents(m Mask) uint32 {
	var ev uint32
	if m.Has(Read) {
		ev |= unix.EPOLLIN
	}
	if m.Has(Write) {
		ev |= unix.EPOLLOUT
	}
	// ERROR and HUP are always implicitly reported by epoll regardless
	// of the requested event bits, matching spec §4.1's "ERROR is
	// always implicitly armed alongside any subscription".
	ev |= unix.EPOLLERR | unix.EPOLLHUP
	return ev
}

func fromEpollEvents(ev uint32) Mask {
	var m Mask
	if ev&(unix.EPOLLIN|unix.EPOLLHUP) != 0 {
		m |= Read
	}
	if ev&unix.EPOLLOUT != 0 {
		m |= Write
	}
	if ev&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		m |= Error
	}
	return m
}

func (p *epollPoller) Add(fd int, mask Mask) error {
	ev := unix.EpollEvent{Events: toEpollEvents(mask), Fd: int32(fd)}
	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("reactor: epoll_ctl(add, %d): %w", fd, err)
	}
	return nil
}

func (p *epollPoller) Modify(fd int, mask Mask) error {
	ev := unix.EpollEvent{Events: toEpollEvents(mask), Fd: int32(fd)}
	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("reactor: epoll_ctl(mod, %d): %w", fd, err)
	}
	return nil
}

// Remove is best-effort: an unknown fd is ignored, per spec §4.1.
func (p *epollPoller) Remove(fd int) {
	_ = unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) Poll(timeout time.Duration) ([]Event, error) {
	var raw [maxPollBatch]unix.EpollEvent
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}

	for {
		n, err := unix.EpollWait(p.fd, raw[:], ms)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return nil, fmt.Errorf("reactor: epoll_wait: %w", err)
		}
		out := make([]Event, n)
		for i := 0; i < n; i++ {
			out[i] = Event{Fd: int(raw[i].Fd), Mask: fromEpollEvents(raw[i].Events)}
		}
		return out, nil
	}
}

func (p *epollPoller) Close() error {
	return unix.Close(p.fd)
}
