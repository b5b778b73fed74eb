/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package iostream implements the non-blocking, buffered I/O
// abstraction that mediates all byte traffic on one connected socket:
// Stream. It is the direct port of ctornado's core/iostream.cc, with
// the manual refcounted buffer replaced by buf.Buffer and the
// exception-based recv/send wrappers replaced by explicit error
// returns, per spec.md §9's design notes.
package iostream

import (
	"bytes"
	"errors"
	"fmt"
	"net"

	"github.com/dlclark/regexp2"
	"golang.org/x/sys/unix"

	"github.com/badu/ion/buf"
	"github.com/badu/ion/reactor"
)

// Mode is the exclusive read mode a Stream may have outstanding.
// Invariant I-1: at most one is active; requesting a new read while
// one is pending is a programmer error.
type Mode int

const (
	ModeNone Mode = iota
	ModeDelimiter
	ModeRegex
	ModeFixedLength
	ModeUntilClose
)

var (
	// ErrReadPending is returned when a read is requested while
	// another is already outstanding (spec invariant I-1).
	ErrReadPending = errors.New("iostream: a read is already pending")
	// ErrBufferOverflow is returned (and stashed on the Stream) when
	// the read buffer reaches Config.MaxBufferSize.
	ErrBufferOverflow = errors.New("iostream: read buffer exceeded max_buffer_size")
	// ErrClosed is returned by operations attempted on a closed Stream.
	ErrClosed = errors.New("iostream: stream is closed")
	// ErrAddressResolution is stashed on the Stream (and passed to the
	// Connect callback) when hostname resolution fails; per spec §7 this
	// aborts the connect and closes the stream.
	ErrAddressResolution = errors.New("iostream: address resolution failed")
	// ErrProtocol is stashed on the Stream (and passed to the Connect
	// callback) when connect(2) fails immediately or SO_ERROR is
	// non-zero once the socket reports writable.
	ErrProtocol = errors.New("iostream: protocol error")
)

// Config holds the per-Stream tunables from spec §6.
type Config struct {
	MaxBufferSize int // default 100 MiB
	ReadChunkSize int // default 4 KiB
}

func (c Config) withDefaults() Config {
	if c.MaxBufferSize <= 0 {
		c.MaxBufferSize = 100 << 20
	}
	if c.ReadChunkSize <= 0 {
		c.ReadChunkSize = 4 << 10
	}
	return c
}

type (
	// TerminalFunc is the callback fired when a read request completes.
	TerminalFunc func(buf.Chunk)
	// StreamingFunc is fired with each incremental arrival while a
	// ReadBytes/ReadUntilClose request with streaming is outstanding.
	StreamingFunc func(buf.Chunk)
	// WriteFunc is fired once the write buffer fully drains.
	WriteFunc func()
	// ConnectFunc is fired when Connect completes (err is nil on success).
	ConnectFunc func(err error)
	// CloseFunc is fired once the stream has fully closed and no
	// pending callbacks remain outstanding.
	CloseFunc func()
)

// Stream mediates non-blocking byte I/O over one connected socket. See
// spec §4.3 for the governing invariants (I-1..I-4).
type Stream struct {
	fd  int
	r   *reactor.Reactor
	cfg Config

	readBuf  buf.Buffer
	writeBuf buf.Buffer

	mode      Mode
	delim     []byte
	regex     *regexp2.Regexp
	fixedWant int // bytes still required for the current ReadBytes

	streamingCB StreamingFunc
	terminalCB  TerminalFunc
	writeCB     WriteFunc
	connectCB   ConnectFunc
	closeCB     CloseFunc
	closeFired  bool

	lastErr    error
	mask       reactor.Mask
	pending    int
	connecting bool
	frozen     bool
	closed     bool
}

// New wraps an already-connected, non-blocking socket fd. Callers
// (typically tcpserver.Server's accept loop) own setting O_NONBLOCK
// before this call; Stream never changes it itself.
func New(r *reactor.Reactor, fd int, cfg Config) *Stream {
	s := &Stream{fd: fd, r: r, cfg: cfg.withDefaults()}
	s.mask = reactor.Error | reactor.Read
	_ = r.Register(fd, s.onEvent, s.mask)
	return s
}

// Fd returns the underlying file descriptor.
func (s *Stream) Fd() int { return s.fd }

// SetNoDelay toggles TCP_NODELAY, as ctornado's HTTPConnection
// constructor always does on every accepted stream.
func (s *Stream) SetNoDelay(enabled bool) error {
	v := 0
	if enabled {
		v = 1
	}
	return unix.SetsockoptInt(s.fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, v)
}

// SetCloseCallback installs cb to run once the stream is fully closed
// (deferred while pending callbacks remain outstanding, per I-3).
func (s *Stream) SetCloseCallback(cb CloseFunc) { s.closeCB = cb }

// Closed reports whether the stream has closed its socket.
func (s *Stream) Closed() bool { return s.closed }

// Reading reports whether a read request is currently outstanding.
func (s *Stream) Reading() bool { return s.mode != ModeNone }

// Writing reports whether bytes are queued to be flushed.
func (s *Stream) Writing() bool { return !s.writeBuf.Empty() }

// LastError returns the most recently stashed transport error, if any.
func (s *Stream) LastError() error { return s.lastErr }

// MaxBufferSize returns the configured ceiling on buffered read bytes,
// so a caller (e.g. the HTTP connection) can reject an oversized
// Content-Length before ever issuing the read.
func (s *Stream) MaxBufferSize() int { return s.cfg.MaxBufferSize }

// post schedules cb on the reactor, tracking it in the pending-callback
// count (I-3) so a close that happens while cb is in flight is
// deferred until cb (and any other pending callback) has run. Per I-2,
// every Stream-originated user callback crosses this boundary; none are
// ever invoked inline from another callback.
func (s *Stream) post(cb func()) {
	s.pending++
	s.r.Post(func() {
		cb()
		s.pending--
		if s.pending == 0 && s.closed && s.closeCB != nil && !s.closeFired {
			s.closeFired = true
			s.closeCB()
		}
	})
}

// ReadUntil completes once delim is found in the buffered input,
// delivering everything up to and including the delimiter.
func (s *Stream) ReadUntil(delim []byte, cb TerminalFunc) error {
	if s.mode != ModeNone {
		return ErrReadPending
	}
	s.mode = ModeDelimiter
	s.delim = delim
	s.terminalCB = cb
	s.streamingCB = nil
	s.trySatisfy()
	s.recomputeMask()
	return nil
}

// ReadUntilRegex completes once pattern matches within the buffered
// input; cb receives everything up to and including the end of the
// match (capture 0).
func (s *Stream) ReadUntilRegex(pattern *regexp2.Regexp, cb TerminalFunc) error {
	if s.mode != ModeNone {
		return ErrReadPending
	}
	s.mode = ModeRegex
	s.regex = pattern
	s.terminalCB = cb
	s.streamingCB = nil
	s.trySatisfy()
	s.recomputeMask()
	return nil
}

// ReadBytes completes once n bytes have accumulated. If streaming is
// non-nil it is invoked with each incremental chunk as bytes arrive
// (each call's chunk length subtracted from the remaining count); the
// terminal cb then receives an empty (non-nil) chunk.
func (s *Stream) ReadBytes(n int, cb TerminalFunc, streaming StreamingFunc) error {
	if s.mode != ModeNone {
		return ErrReadPending
	}
	s.mode = ModeFixedLength
	s.fixedWant = n
	s.terminalCB = cb
	s.streamingCB = streaming
	s.trySatisfy()
	s.recomputeMask()
	return nil
}

// ReadUntilClose completes at EOF. With streaming set, each buffered
// increment is delivered as it arrives; the terminal cb always
// receives the final remainder (empty if streaming drained it all).
func (s *Stream) ReadUntilClose(cb TerminalFunc, streaming StreamingFunc) error {
	if s.mode != ModeNone {
		return ErrReadPending
	}
	s.mode = ModeUntilClose
	s.terminalCB = cb
	s.streamingCB = streaming
	s.trySatisfy()
	s.recomputeMask()
	return nil
}

// Connect resolves host and issues a non-blocking connect(2) on the
// Stream's already-created socket fd. EINPROGRESS/EWOULDBLOCK arm WRITE
// readiness; cb fires once the socket reports writable and SO_ERROR is
// 0, or with a non-nil error (ErrAddressResolution or ErrProtocol) if
// resolution or the connect itself fails, in which case the stream
// also closes (spec §4.3, §7).
func (s *Stream) Connect(host string, port int, cb ConnectFunc) error {
	if s.closed {
		return ErrClosed
	}

	ips, err := net.LookupIP(host)
	if err != nil || len(ips) == 0 {
		s.lastErr = fmt.Errorf("%w: %s: %v", ErrAddressResolution, host, err)
		s.failConnect(cb)
		return nil
	}

	s.connecting = true
	s.connectCB = cb
	if err := unix.Connect(s.fd, sockaddrForIP(ips[0], port)); err != nil {
		if err != unix.EINPROGRESS && err != unix.EAGAIN && err != unix.EWOULDBLOCK {
			s.lastErr = fmt.Errorf("%w: connect: %w", ErrProtocol, err)
			s.connecting = false
			s.failConnect(cb)
			return nil
		}
	}
	s.recomputeMask()
	return nil
}

// failConnect fires cb with the already-stashed lastErr and closes the
// stream, matching spec §7's "aborts the connect and closes" behavior
// for both address-resolution and immediate connect(2) failures.
func (s *Stream) failConnect(cb ConnectFunc) {
	s.connectCB = nil
	err := s.lastErr
	if cb != nil {
		s.post(func() { cb(err) })
	}
	s.Close()
}

// handleConnectable runs once the socket first reports writable while
// connecting: SO_ERROR determines success or failure of the completed
// connect(2) (spec §4.3's "connect completion").
func (s *Stream) handleConnectable() {
	s.connecting = false
	cb := s.connectCB
	s.connectCB = nil

	errno, err := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		s.lastErr = fmt.Errorf("%w: getsockopt SO_ERROR: %w", ErrProtocol, err)
	} else if errno != 0 {
		s.lastErr = fmt.Errorf("%w: %s", ErrProtocol, unix.Errno(errno))
	}

	if s.lastErr != nil {
		failErr := s.lastErr
		if cb != nil {
			s.post(func() { cb(failErr) })
		}
		s.Close()
		return
	}
	if cb != nil {
		s.post(func() { cb(nil) })
	}
}

// sockaddrForIP builds the unix.Sockaddr for ip:port, picking the
// IPv4 or IPv6 sockaddr representation to match the address family.
func sockaddrForIP(ip net.IP, port int) unix.Sockaddr {
	if ip4 := ip.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: port}
		copy(sa.Addr[:], ip4)
		return sa
	}
	sa := &unix.SockaddrInet6{Port: port}
	copy(sa.Addr[:], ip.To16())
	return sa
}

// Write appends chunk to the write buffer. If the stream isn't
// currently connecting it attempts an immediate synchronous flush of
// up to 1 MiB coalesced; any remainder arms WRITE readiness. cb, if
// non-nil, replaces any previously set write callback and fires once
// the write buffer fully drains.
func (s *Stream) Write(chunk buf.Chunk, cb WriteFunc) error {
	if s.closed {
		return ErrClosed
	}
	s.writeBuf.PushBack(chunk)
	if cb != nil {
		s.writeCB = cb
	}
	if !s.connecting {
		s.flushWrite()
	}
	if !s.closed {
		s.recomputeMask()
	}
	return nil
}

// Close tears the stream down: delivers any outstanding
// read_until_close buffer, deregisters from the reactor, closes the
// socket, and schedules (or, if callbacks are still pending, defers)
// the close callback.
func (s *Stream) Close() {
	if s.closed {
		return
	}
	s.closed = true

	if s.mode == ModeUntilClose {
		n := s.readBuf.Size()
		data := s.readBuf.Bytes(n)
		s.readBuf.RemovePrefix(n)
		cb := s.terminalCB
		s.mode = ModeNone
		s.terminalCB = nil
		if cb != nil {
			s.post(func() { cb(buf.NewChunk(data)) })
		}
	} else {
		s.mode = ModeNone
	}

	s.r.Deregister(s.fd)
	_ = unix.Close(s.fd)

	if s.pending == 0 && s.closeCB != nil && !s.closeFired {
		s.closeFired = true
		cb := s.closeCB
		s.r.Post(cb)
	}
}

// onEvent is the reactor Handler registered for this stream's fd.
func (s *Stream) onEvent(_ int, mask reactor.Mask) {
	if s.closed {
		return
	}
	if mask.Has(reactor.Read) {
		s.handleReadable()
	}
	if !s.closed && mask.Has(reactor.Write) {
		if s.connecting {
			s.handleConnectable()
		}
		if !s.closed {
			s.flushWrite()
		}
	}
	if !s.closed && mask.Has(reactor.Error) {
		errno, _ := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if errno != 0 {
			s.lastErr = unix.Errno(errno)
		}
		s.r.Post(s.Close)
		return
	}
	if !s.closed {
		s.recomputeMask()
	}
}

func (s *Stream) handleReadable() {
	for {
		tmp := make([]byte, s.cfg.ReadChunkSize)
		n, err := unix.Read(s.fd, tmp)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			if err == unix.EINTR {
				continue
			}
			s.lastErr = fmt.Errorf("iostream: recv: %w", err)
			s.Close()
			return
		}
		if n == 0 {
			s.Close() // peer EOF; no error, matches spec §4.3 failure semantics
			return
		}
		s.readBuf.PushBack(buf.NewChunk(tmp[:n]))
		if s.readBuf.Size() >= s.cfg.MaxBufferSize {
			s.lastErr = ErrBufferOverflow
			s.Close()
			return
		}
		s.trySatisfy()
		if s.closed {
			return
		}
	}
}

// trySatisfy attempts to complete the current read request from
// already-buffered data. Returns true if the request completed (and
// the mode was reset to ModeNone).
func (s *Stream) trySatisfy() bool {
	switch s.mode {
	case ModeDelimiter:
		return s.trySatisfyDelimiter()
	case ModeRegex:
		return s.trySatisfyRegex()
	case ModeFixedLength:
		return s.trySatisfyFixed()
	case ModeUntilClose:
		s.trySatisfyStreamOnly()
		return false
	default:
		return false
	}
}

func (s *Stream) trySatisfyDelimiter() bool {
	for {
		front := s.readBuf.PeekFront()
		if front.IsNull() {
			return false
		}
		idx := bytes.Index(front.Bytes(), s.delim)
		if idx >= 0 {
			total := idx + len(s.delim)
			data := s.readBuf.Bytes(total)
			s.readBuf.RemovePrefix(total)
			s.finishTerminal(buf.NewChunk(data))
			return true
		}
		if front.Len() >= s.readBuf.Size() {
			return false // whole buffer scanned, delimiter not present yet
		}
		s.readBuf.DoublePrefix()
	}
}

func (s *Stream) trySatisfyRegex() bool {
	for {
		front := s.readBuf.PeekFront()
		if front.IsNull() {
			return false
		}
		m, err := s.regex.FindStringMatch(string(front.Bytes()))
		if err != nil {
			s.lastErr = fmt.Errorf("iostream: regex exec: %w", err)
			s.Close()
			return true
		}
		if m != nil {
			total := m.Index + m.Length
			data := s.readBuf.Bytes(total)
			s.readBuf.RemovePrefix(total)
			s.finishTerminal(buf.NewChunk(data))
			return true
		}
		if front.Len() >= s.readBuf.Size() {
			return false
		}
		s.readBuf.DoublePrefix()
	}
}

func (s *Stream) trySatisfyFixed() bool {
	if s.streamingCB != nil {
		for s.readBuf.Size() > 0 && s.fixedWant > 0 {
			take := s.readBuf.Size()
			if take > s.fixedWant {
				take = s.fixedWant
			}
			data := s.readBuf.Bytes(take)
			s.readBuf.RemovePrefix(take)
			s.fixedWant -= take
			cb := s.streamingCB
			s.post(func() { cb(buf.NewChunk(data)) })
		}
		if s.fixedWant == 0 {
			s.finishTerminal(buf.NewChunk([]byte{}))
			return true
		}
		return false
	}
	if s.readBuf.Size() >= s.fixedWant {
		data := s.readBuf.Bytes(s.fixedWant)
		s.readBuf.RemovePrefix(s.fixedWant)
		s.finishTerminal(buf.NewChunk(data))
		return true
	}
	return false
}

func (s *Stream) trySatisfyStreamOnly() {
	if s.streamingCB == nil {
		return
	}
	if s.readBuf.Size() == 0 {
		return
	}
	n := s.readBuf.Size()
	data := s.readBuf.Bytes(n)
	s.readBuf.RemovePrefix(n)
	cb := s.streamingCB
	s.post(func() { cb(buf.NewChunk(data)) })
}

func (s *Stream) finishTerminal(c buf.Chunk) {
	cb := s.terminalCB
	s.mode = ModeNone
	s.terminalCB = nil
	s.streamingCB = nil
	if cb != nil {
		s.post(func() { cb(c) })
	}
}

func (s *Stream) flushWrite() {
	if !s.frozen {
		s.writeBuf.MergePrefix(1 << 20)
	}
	for !s.writeBuf.Empty() {
		front := s.writeBuf.PeekFront()
		n, err := unix.Write(s.fd, front.Bytes())
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				s.frozen = true
				return
			}
			if err == unix.EINTR {
				continue
			}
			s.lastErr = fmt.Errorf("iostream: send: %w", err)
			s.Close()
			return
		}
		s.writeBuf.RemovePrefix(n)
	}
	s.frozen = false
	if s.writeBuf.Empty() && s.writeCB != nil {
		cb := s.writeCB
		s.writeCB = nil
		s.post(cb)
	}
}

func (s *Stream) recomputeMask() {
	if s.closed {
		return
	}
	m := reactor.Error
	if s.mode != ModeNone {
		m |= reactor.Read
	} else if s.pending == 0 {
		m |= reactor.Read // I-4: arm READ while idle to notice peer close promptly
	}
	if !s.writeBuf.Empty() || s.connecting {
		m |= reactor.Write
	}
	if m != s.mask {
		s.mask = m
		_ = s.r.UpdateMask(s.fd, m)
	}
}
