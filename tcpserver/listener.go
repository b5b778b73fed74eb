/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package tcpserver binds listening sockets and spawns one
// iostream.Stream per accepted connection, per spec §4.4. It is the
// Go-native replacement for ctornado's TCPServer, talking directly to
// the kernel via golang.org/x/sys/unix rather than through Go's own
// net package, since the reactor must own every fd it drives.
package tcpserver

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/badu/ion/iostream"
	"github.com/badu/ion/reactor"
)

// StreamHandler is invoked once per accepted connection. peerAddr is a
// numeric "ip:port" string; it is never empty even for unix-domain or
// otherwise address-less peers (a placeholder is substituted).
type StreamHandler func(stream *iostream.Stream, peerAddr string)

// Server binds zero or more listening sockets (added via Bind or
// Listen) and, once Start is called, registers each with the reactor
// for accept-on-READ.
type Server struct {
	r        *reactor.Reactor
	cfg      iostream.Config
	onStream StreamHandler

	listenFds  []int
	registered map[int]bool
}

// New constructs a Server. onStream is invoked for every accepted
// connection, already wrapped as a Stream with TCP_NODELAY set.
func New(r *reactor.Reactor, onStream StreamHandler, cfg iostream.Config) *Server {
	return &Server{r: r, cfg: cfg, onStream: onStream}
}

// Bind creates, configures, and `listen(2)`s a socket for (host, port)
// without registering it with the reactor yet; Start does that. Host
// "" binds the IPv6 wildcard (::) with V6ONLY cleared so a single
// socket serves both families where the kernel supports it; an
// explicit IPv6 host gets V6ONLY set, so Bind("0.0.0.0", p) and
// Bind("::", p) yield two separate per-family sockets on one port.
func (s *Server) Bind(host string, port int, backlog int) error {
	family := unix.AF_INET6
	if host != "" && isIPv4(host) {
		family = unix.AF_INET
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return fmt.Errorf("tcpserver: socket: %w", err)
	}
	if err := configureListenSocket(fd, family); err != nil {
		_ = unix.Close(fd)
		return err
	}
	if family == unix.AF_INET6 && host != "" {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 1); err != nil {
			_ = unix.Close(fd)
			return fmt.Errorf("tcpserver: set v6only: %w", err)
		}
	}

	sa, err := sockaddr(family, host, port)
	if err != nil {
		_ = unix.Close(fd)
		return err
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("tcpserver: bind %s:%d: %w", host, port, err)
	}
	if backlog <= 0 {
		backlog = 128
	}
	if err := unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("tcpserver: listen: %w", err)
	}

	s.listenFds = append(s.listenFds, fd)
	return nil
}

// Listen is shorthand for Bind followed by registering the socket with
// the reactor immediately (rather than waiting for Start).
func (s *Server) Listen(host string, port int, backlog int) error {
	if err := s.Bind(host, port, backlog); err != nil {
		return err
	}
	fd := s.listenFds[len(s.listenFds)-1]
	return s.register(fd)
}

// Start registers every socket bound so far (via Bind) with the
// reactor for accept-on-READ. Sockets added with Listen are already
// registered and are skipped.
func (s *Server) Start() error {
	for _, fd := range s.listenFds {
		if s.registered[fd] {
			continue
		}
		if err := s.register(fd); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) register(fd int) error {
	if err := s.r.Register(fd, func(_ int, _ reactor.Mask) { s.acceptLoop(fd) }, reactor.Read|reactor.Error); err != nil {
		return err
	}
	if s.registered == nil {
		s.registered = make(map[int]bool)
	}
	s.registered[fd] = true
	return nil
}

// acceptLoop drains every pending connection on fd until EWOULDBLOCK,
// per spec §4.4 ("accept repeatedly until EWOULDBLOCK").
func (s *Server) acceptLoop(fd int) {
	for {
		connFd, sa, err := unix.Accept(fd)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			if err == unix.EINTR {
				continue
			}
			return
		}
		if err := unix.SetNonblock(connFd, true); err != nil {
			_ = unix.Close(connFd)
			continue
		}
		if err := unix.SetCloseOnExec(connFd); err != nil {
			_ = unix.Close(connFd)
			continue
		}

		stream := iostream.New(s.r, connFd, s.cfg)
		_ = stream.SetNoDelay(true)

		if s.onStream != nil {
			s.onStream(stream, peerAddrString(sa))
		}
	}
}

// Addr returns the bound "ip:port" for the i-th socket added via Bind
// or Listen, resolving an ephemeral port (0) to the one the kernel
// actually assigned.
func (s *Server) Addr(i int) (string, error) {
	if i < 0 || i >= len(s.listenFds) {
		return "", fmt.Errorf("tcpserver: no listening socket at index %d", i)
	}
	sa, err := unix.Getsockname(s.listenFds[i])
	if err != nil {
		return "", fmt.Errorf("tcpserver: getsockname: %w", err)
	}
	return peerAddrString(sa), nil
}

// Close deregisters and closes every listening socket.
func (s *Server) Close() {
	for _, fd := range s.listenFds {
		s.r.Deregister(fd)
		_ = unix.Close(fd)
	}
	s.listenFds = nil
	s.registered = nil
}
