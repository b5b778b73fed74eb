/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Command reactorhttpd wires a single reactor, a tcpserver listener, and
// the httpserver request/response state machine into one process. It
// exists primarily as an integration harness: a handful of routes
// exercise every concrete scenario spec §8 describes (echo, form
// parsing, multipart upload, a response written in stages). On
// SIGINT/SIGTERM it stops the reactor and closes the listening sockets;
// in-flight requests are not drained.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/badu/ion/buf"
	"github.com/badu/ion/httpserver"
	"github.com/badu/ion/iostream"
	"github.com/badu/ion/reactor"
	"github.com/badu/ion/rlog"
)

var (
	host        = flag.String("host", "0.0.0.0", "address to bind")
	port        = flag.Int("port", 8080, "port to listen on")
	backlog     = flag.Int("backlog", 128, "listen(2) backlog")
	noKeepAlive = flag.Bool("no-keep-alive", false, "disable HTTP keep-alive")
	xheaders    = flag.Bool("xheaders", false, "trust X-Real-Ip/X-Forwarded-For and X-Scheme/X-Forwarded-Proto")
	maxBody     = flag.Int("max-body-bytes", 100<<20, "maximum buffered request body size")
	development = flag.Bool("dev", false, "use a human-readable development logger instead of JSON production logging")
)

func main() {
	flag.Parse()

	var (
		logger *zap.Logger
		err    error
	)
	if *development {
		logger, err = rlog.Development()
	} else {
		logger, err = rlog.Production()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "reactorhttpd: building logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Error("reactorhttpd: exiting with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger) error {
	r, err := reactor.New()
	if err != nil {
		return fmt.Errorf("reactor.New: %w", err)
	}

	srv := httpserver.NewServer(r, router(logger), httpserver.Options{
		NoKeepAlive: *noKeepAlive,
		XHeaders:    *xheaders,
	}, iostream.Config{MaxBufferSize: *maxBody}, logger)

	if err := srv.Listen(*host, *port, *backlog); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	addr, err := srv.Addr(0)
	if err != nil {
		return err
	}
	logger.Info("reactorhttpd: listening", zap.String("addr", addr))

	var g errgroup.Group
	g.Go(r.Start)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("reactorhttpd: shutting down")

	r.Stop()
	err = g.Wait()
	srv.Close()
	return err
}

// router dispatches on Request.Path to a small set of handlers that
// together exercise every scenario spec §8 enumerates: a plain GET, a
// form-urlencoded POST, a multipart upload, a response written in
// stages, and a fallback 404.
func router(logger *zap.Logger) httpserver.RequestHandler {
	return func(req *httpserver.Request) {
		reqID := uuid.New().String()
		start := time.Now()

		switch req.Path {
		case "/", "/echo":
			handleEcho(req)
		case "/form":
			handleForm(req)
		case "/upload":
			handleUpload(req)
		case "/slow":
			handleSlow(req)
		default:
			writeStatus(req, 404, "Not Found")
			req.Finish()
		}

		logger.Info("reactorhttpd: request",
			zap.String("request_id", reqID),
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.String("remote_ip", req.RemoteIP),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func handleEcho(req *httpserver.Request) {
	body := fmt.Sprintf("%s %s %s\nHost: %s\nRemote: %s\n", req.Method, req.URI, req.Version, req.Host, req.RemoteIP)
	writeText(req, 200, "OK", body)
	req.Finish()
}

func handleForm(req *httpserver.Request) {
	var b []byte
	for k, vs := range req.Args {
		for _, v := range vs {
			b = append(b, fmt.Sprintf("%s=%s\n", k, v)...)
		}
	}
	writeText(req, 200, "OK", string(b))
	req.Finish()
}

func handleUpload(req *httpserver.Request) {
	var b []byte
	for field, uploads := range req.Files {
		for _, f := range uploads {
			b = append(b, fmt.Sprintf("%s: %s (%s, %d bytes)\n", field, f.Filename, f.ContentType, len(f.Body))...)
		}
	}
	writeText(req, 200, "OK", string(b))
	req.Finish()
}

// handleSlow writes its response as two chunked-encoding pieces: the
// second piece and Finish are issued from the first piece's write
// callback, once the write buffer has drained. There is no timed pause.
func handleSlow(req *httpserver.Request) {
	writeStatusLine(req, 200, "OK")
	_ = req.Write(buf.NewChunk([]byte("Content-Type: text/plain\r\nTransfer-Encoding: chunked\r\n\r\n")), nil)
	_ = req.Write(buf.NewChunk([]byte("5\r\nfirst\r\n")), func() {
		_ = req.Write(buf.NewChunk([]byte("6\r\nsecond\r\n0\r\n\r\n")), nil)
		req.Finish()
	})
}

func writeText(req *httpserver.Request, status int, reason, body string) {
	writeStatusLine(req, status, reason)
	head := fmt.Sprintf("Content-Type: text/plain\r\nContent-Length: %d\r\n\r\n", len(body))
	_ = req.Write(buf.NewChunk([]byte(head+body)), nil)
}

func writeStatus(req *httpserver.Request, status int, reason string) {
	writeText(req, status, reason, reason+"\n")
}

func writeStatusLine(req *httpserver.Request, status int, reason string) {
	_ = req.Write(buf.NewChunk([]byte(fmt.Sprintf("HTTP/1.1 %d %s\r\n", status, reason))), nil)
}
