/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package iostream

import (
	"net"
	"testing"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/badu/ion/buf"
	"github.com/badu/ion/reactor"
)

// pair returns two connected, non-blocking Stream-ready fds, wired to
// a fresh Reactor that the caller must Start in its own goroutine.
func pair(t *testing.T) (*reactor.Reactor, int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))
	r, err := reactor.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, fds[0], fds[1]
}

func runFor(t *testing.T, r *reactor.Reactor, d time.Duration) {
	t.Helper()
	done := make(chan error, 1)
	r.ScheduleAfter(d, r.Stop)
	go func() { done <- r.Start() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(d + 2*time.Second):
		t.Fatal("reactor never stopped")
	}
}

func TestReadUntilDelimiter(t *testing.T) {
	r, a, b := pair(t)
	sa := New(r, a, Config{})
	sb := New(r, b, Config{})

	var got buf.Chunk
	require.NoError(t, sb.ReadUntil([]byte("\r\n"), func(c buf.Chunk) {
		got = c
		r.Stop()
	}))
	require.NoError(t, sa.Write(buf.NewChunk([]byte("hello\r\nworld")), nil))

	runFor(t, r, time.Second)
	require.Equal(t, "hello\r\n", string(got))
}

func TestReadUntilRegex(t *testing.T) {
	r, a, b := pair(t)
	sa := New(r, a, Config{})
	sb := New(r, b, Config{})

	re := regexp2.MustCompile(`\d+\n`, 0)
	var got buf.Chunk
	require.NoError(t, sb.ReadUntilRegex(re, func(c buf.Chunk) {
		got = c
		r.Stop()
	}))
	require.NoError(t, sa.Write(buf.NewChunk([]byte("abc123\ndef")), nil))

	runFor(t, r, time.Second)
	require.Equal(t, "abc123\n", string(got))
}

func TestReadBytesWithStreaming(t *testing.T) {
	r, a, b := pair(t)
	sa := New(r, a, Config{})
	sb := New(r, b, Config{})

	var chunks [][]byte
	var terminal buf.Chunk
	terminalFired := false
	require.NoError(t, sb.ReadBytes(10, func(c buf.Chunk) {
		terminal = c
		terminalFired = true
		r.Stop()
	}, func(c buf.Chunk) {
		chunks = append(chunks, append([]byte(nil), c...))
	}))
	require.NoError(t, sa.Write(buf.NewChunk([]byte("0123456789extra")), nil))

	runFor(t, r, time.Second)
	require.True(t, terminalFired)
	require.NotNil(t, terminal)
	require.Equal(t, 0, terminal.Len())

	var total []byte
	for _, c := range chunks {
		total = append(total, c...)
	}
	require.Equal(t, "0123456789", string(total))
}

func TestReadUntilCloseDeliversOnEOF(t *testing.T) {
	r, a, b := pair(t)
	sa := New(r, a, Config{})
	sb := New(r, b, Config{})

	var got buf.Chunk
	done := false
	require.NoError(t, sb.ReadUntilClose(func(c buf.Chunk) {
		got = c
		done = true
		r.Stop()
	}, nil))
	require.NoError(t, sa.Write(buf.NewChunk([]byte("tail data")), nil))
	sa.Close()

	runFor(t, r, time.Second)
	require.True(t, done)
	require.Equal(t, "tail data", string(got))
}

func TestCloseFiresCallbackAfterPendingDrain(t *testing.T) {
	r, a, b := pair(t)
	sa := New(r, a, Config{})
	sb := New(r, b, Config{})

	closeFired := false
	sb.SetCloseCallback(func() { closeFired = true })

	readDone := false
	require.NoError(t, sb.ReadUntil([]byte("\n"), func(c buf.Chunk) {
		readDone = true
		sb.Close()
	}))
	require.NoError(t, sa.Write(buf.NewChunk([]byte("line\n")), nil))
	r.ScheduleAfter(50*time.Millisecond, r.Stop)

	runFor(t, r, 200*time.Millisecond)
	require.True(t, readDone)
	require.True(t, closeFired)
}

func TestConnectSucceeds(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()
	addr := ln.Addr().(*net.TCPAddr)

	r, err := reactor.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fd, true))
	s := New(r, fd, Config{})

	var connErr error
	done := false
	require.NoError(t, s.Connect("127.0.0.1", addr.Port, func(err error) {
		connErr = err
		done = true
		r.Stop()
	}))

	runFor(t, r, time.Second)
	require.True(t, done)
	require.NoError(t, connErr)
	require.False(t, s.Closed())

	select {
	case c := <-accepted:
		c.Close()
	case <-time.After(time.Second):
		t.Fatal("listener never accepted a connection")
	}
}

func TestConnectRefusedClosesWithProtocolError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close()) // port now has nothing listening

	r, err := reactor.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fd, true))
	s := New(r, fd, Config{})

	var connErr error
	done := false
	require.NoError(t, s.Connect("127.0.0.1", addr.Port, func(err error) {
		connErr = err
		done = true
		r.Stop()
	}))

	runFor(t, r, time.Second)
	require.True(t, done)
	require.Error(t, connErr)
	require.ErrorIs(t, connErr, ErrProtocol)
	require.True(t, s.Closed())
}

func TestConnectAddressResolutionFailureCloses(t *testing.T) {
	r, err := reactor.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fd, true))
	s := New(r, fd, Config{})

	var connErr error
	done := false
	require.NoError(t, s.Connect("this-host-does-not-resolve.invalid", 80, func(err error) {
		connErr = err
		done = true
	}))
	r.ScheduleAfter(200*time.Millisecond, r.Stop)

	runFor(t, r, 300*time.Millisecond)
	require.True(t, done)
	require.ErrorIs(t, connErr, ErrAddressResolution)
	require.True(t, s.Closed())
}

func TestSecondReadWhilePendingErrors(t *testing.T) {
	r, _, b := pair(t)
	sb := New(r, b, Config{})
	require.NoError(t, sb.ReadUntil([]byte("\n"), func(buf.Chunk) {}))
	err := sb.ReadBytes(5, func(buf.Chunk) {}, nil)
	require.ErrorIs(t, err, ErrReadPending)
}
