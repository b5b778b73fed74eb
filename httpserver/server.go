/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package httpserver

import (
	"go.uber.org/zap"

	"github.com/badu/ion/iostream"
	"github.com/badu/ion/reactor"
	"github.com/badu/ion/tcpserver"
)

// Server binds listening sockets via tcpserver.Server and wraps every
// accepted Stream in a Connection, wiring the three-layer stack of
// spec §2 (reactor → stream → HTTP connection) end to end.
type Server struct {
	tcp *tcpserver.Server
}

// NewServer constructs a Server. handler is invoked once per parsed
// request; opts and streamCfg are the two configuration surfaces spec
// §6 names.
func NewServer(r *reactor.Reactor, handler RequestHandler, opts Options, streamCfg iostream.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{}
	s.tcp = tcpserver.New(r, func(stream *iostream.Stream, peerAddr string) {
		NewConnection(stream, peerAddr, handler, opts, logger)
	}, streamCfg)
	return s
}

// Bind binds a listening socket without registering it with the
// reactor yet.
func (s *Server) Bind(host string, port int, backlog int) error {
	return s.tcp.Bind(host, port, backlog)
}

// Listen binds and immediately registers a listening socket.
func (s *Server) Listen(host string, port int, backlog int) error {
	return s.tcp.Listen(host, port, backlog)
}

// Start registers every socket added via Bind with the reactor.
func (s *Server) Start() error { return s.tcp.Start() }

// Addr returns the bound address of the i-th listening socket.
func (s *Server) Addr(i int) (string, error) { return s.tcp.Addr(i) }

// Close tears down every listening socket.
func (s *Server) Close() { s.tcp.Close() }
