/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package httpserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/badu/ion/buf"
	"github.com/badu/ion/iostream"
	"github.com/badu/ion/reactor"
)

// clientPair returns a Stream wired into r representing the server
// side of a connection, and the raw fd the test drives as the client.
func clientPair(t *testing.T) (*reactor.Reactor, *iostream.Stream, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))
	r, err := reactor.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	serverStream := iostream.New(r, fds[0], iostream.Config{})
	return r, serverStream, fds[1]
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

// startReactor runs r in the background and returns a stop func, for
// tests that need to interleave client I/O with a live event loop
// instead of firing everything before the loop ever starts.
func startReactor(t *testing.T, r *reactor.Reactor) (stop func()) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- r.Start() }()
	return func() {
		r.Stop()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("reactor never stopped")
		}
	}
}

func clientWrite(t *testing.T, fd int, data string) {
	t.Helper()
	remaining := []byte(data)
	for len(remaining) > 0 {
		n, err := unix.Write(fd, remaining)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				time.Sleep(time.Millisecond)
				continue
			}
			t.Fatalf("client write: %v", err)
		}
		remaining = remaining[n:]
	}
}

func clientReadAll(t *testing.T, fd int, deadline time.Duration) []byte {
	t.Helper()
	var out []byte
	start := time.Now()
	tmp := make([]byte, 4096)
	for time.Since(start) < deadline {
		n, err := unix.Read(fd, tmp)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				time.Sleep(time.Millisecond)
				continue
			}
			break
		}
		if n == 0 {
			break
		}
		out = append(out, tmp[:n]...)
	}
	return out
}

func TestSimpleGetKeepAlive(t *testing.T) {
	r, stream, clientFd := clientPair(t)
	defer unix.Close(clientFd)

	var seen int
	NewConnection(stream, "127.0.0.1:9999", func(req *Request) {
		seen++
		require.NoError(t, req.Write(buf.NewChunk([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nOK")), nil))
		req.Finish()
	}, Options{}, nil)

	clientWrite(t, clientFd, "GET /x HTTP/1.1\r\nHost: h\r\n\r\n")
	clientWrite(t, clientFd, "GET /x HTTP/1.1\r\nHost: h\r\n\r\n")

	runFor(t, r, 300*time.Millisecond)

	resp := string(clientReadAll(t, clientFd, 200*time.Millisecond))
	require.Equal(t, 2, seen)
	require.Equal(t, "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nOKHTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nOK", resp)
}

func TestPostFormUrlencoded(t *testing.T) {
	r, stream, clientFd := clientPair(t)
	defer unix.Close(clientFd)

	var args map[string][]string
	NewConnection(stream, "127.0.0.1:9999", func(req *Request) {
		args = req.Args
		req.Finish()
	}, Options{}, nil)

	body := "a=1&b=2&a=3"
	reqStr := "POST /submit HTTP/1.1\r\nHost: h\r\nContent-Type: application/x-www-form-urlencoded\r\nContent-Length: " +
		itoa(len(body)) + "\r\n\r\n" + body
	clientWrite(t, clientFd, reqStr)

	runFor(t, r, 300*time.Millisecond)

	require.Equal(t, []string{"1", "3"}, args["a"])
	require.Equal(t, []string{"2"}, args["b"])
}

func TestMultipartUploadScenario(t *testing.T) {
	r, stream, clientFd := clientPair(t)
	defer unix.Close(clientFd)

	var args map[string][]string
	var files map[string][]FileUpload
	NewConnection(stream, "127.0.0.1:9999", func(req *Request) {
		args = req.Args
		files = req.Files
		req.Finish()
	}, Options{}, nil)

	body := "--AaB03x\r\n" +
		"Content-Disposition: form-data; name=\"submit-name\"\r\n\r\n" +
		"Larry\r\n" +
		"--AaB03x\r\n" +
		"Content-Disposition: form-data; name=\"files\"; filename=\"file1.txt\"\r\n" +
		"Content-Type: text/plain\r\n\r\n" +
		"... contents of file1.txt ...\r\n" +
		"--AaB03x--\r\n"

	reqStr := "POST /upload HTTP/1.1\r\nHost: h\r\nContent-Type: multipart/form-data; boundary=AaB03x\r\nContent-Length: " +
		itoa(len(body)) + "\r\n\r\n" + body
	clientWrite(t, clientFd, reqStr)

	runFor(t, r, 300*time.Millisecond)

	require.Equal(t, []string{"Larry"}, args["submit-name"])
	require.Len(t, files["files"], 1)
	require.Equal(t, "file1.txt", files["files"][0].Filename)
	require.Equal(t, "text/plain", files["files"][0].ContentType)
}

func TestExpectContinue(t *testing.T) {
	r, stream, clientFd := clientPair(t)
	defer unix.Close(clientFd)

	calls := 0
	NewConnection(stream, "127.0.0.1:9999", func(req *Request) {
		calls++
		req.Finish()
	}, Options{}, nil)

	stop := startReactor(t, r)
	defer stop()

	clientWrite(t, clientFd, "POST /x HTTP/1.1\r\nHost: h\r\nContent-Length: 5\r\nExpect: 100-continue\r\n\r\n")

	cont := clientReadAll(t, clientFd, 300*time.Millisecond)
	require.Equal(t, "HTTP/1.1 100 (Continue)\r\n\r\n", string(cont))

	clientWrite(t, clientFd, "hello")
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, calls)
}

func TestContentLengthOverflowClosesWithoutCallback(t *testing.T) {
	r, stream, clientFd := clientPair(t)
	defer unix.Close(clientFd)

	called := false
	NewConnection(stream, "127.0.0.1:9999", func(req *Request) {
		called = true
		req.Finish()
	}, Options{}, nil)

	clientWrite(t, clientFd, "POST /x HTTP/1.1\r\nHost: h\r\nContent-Length: 99999999999\r\n\r\n")
	runFor(t, r, 300*time.Millisecond)

	require.False(t, called)
	require.True(t, stream.Closed())
}

func TestMalformedHostHeaderClosesWithoutDispatch(t *testing.T) {
	r, stream, clientFd := clientPair(t)
	defer unix.Close(clientFd)

	called := false
	NewConnection(stream, "127.0.0.1:9999", func(req *Request) {
		called = true
		req.Finish()
	}, Options{}, nil)

	clientWrite(t, clientFd, "GET /x HTTP/1.1\r\nHost: exa mple.com\r\n\r\n")
	runFor(t, r, 300*time.Millisecond)

	require.False(t, called)
	require.True(t, stream.Closed())
}

func TestPeerHalfCloseMidBodyNeverDispatches(t *testing.T) {
	r, stream, clientFd := clientPair(t)

	called := 0
	NewConnection(stream, "127.0.0.1:9999", func(req *Request) {
		called++
		req.Finish()
	}, Options{}, nil)

	clientWrite(t, clientFd, "POST /x HTTP/1.1\r\nHost: h\r\nContent-Length: 10\r\n\r\n123")
	unix.Close(clientFd)

	runFor(t, r, 300*time.Millisecond)

	require.Equal(t, 0, called)
	require.True(t, stream.Closed())
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
