/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package httpserver

import (
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http/httpguts"

	"github.com/badu/ion/buf"
	"github.com/badu/ion/iostream"
	"github.com/badu/ion/urllib"
)

// connState names the states of the per-connection machine spec §4.5
// tables out. It exists for observability (logging, tests); the
// actual transitions are driven by Stream callback completion, not by
// switching on this field.
type connState int

const (
	stateAwaitHeaders connState = iota
	stateParseHeaders
	stateAwaitBody
	stateDispatch
	stateWriting
	stateFinishRequest
	stateClosed
)

// RequestHandler is the user callback invoked once per parsed request.
// It may call Request.Write any number of times and must eventually
// call Request.Finish.
type RequestHandler func(*Request)

// Options is the HTTP server's configuration surface, per spec §6.
type Options struct {
	NoKeepAlive bool
	XHeaders    bool
}

// Connection drives one accepted Stream through the request/response
// state machine of spec §4.5: headers → body → dispatch → write →
// finish → keep-alive-or-close.
type Connection struct {
	stream     *iostream.Stream
	remoteAddr string
	handler    RequestHandler
	opts       Options
	logger     *zap.Logger

	state           connState
	request         *Request
	requestFinished bool
}

// NewConnection wraps an already-accepted Stream and immediately
// issues the first AwaitHeaders read.
func NewConnection(stream *iostream.Stream, remoteAddr string, handler RequestHandler, opts Options, logger *zap.Logger) *Connection {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Connection{
		stream:     stream,
		remoteAddr: remoteAddr,
		handler:    handler,
		opts:       opts,
		logger:     logger,
	}
	stream.SetCloseCallback(c.onStreamClosed)
	c.awaitHeaders()
	return c
}

func (c *Connection) awaitHeaders() {
	c.state = stateAwaitHeaders
	_ = c.stream.ReadUntil([]byte("\r\n\r\n"), c.onHeadersRead)
}

func (c *Connection) onHeadersRead(chunk buf.Chunk) {
	c.state = stateParseHeaders
	raw := string(chunk.Bytes())

	lineEnd := strings.Index(raw, "\r\n")
	if lineEnd < 0 {
		c.logger.Warn("httpserver: request missing CRLF after request line", zap.String("remote", c.remoteAddr))
		c.stream.Close()
		return
	}
	rl, err := parseRequestLine(raw[:lineEnd])
	if err != nil {
		c.logger.Warn("httpserver: malformed request line", zap.Error(err), zap.String("remote", c.remoteAddr))
		c.stream.Close()
		return
	}

	headerBlock := strings.TrimSuffix(raw[lineEnd+2:], "\r\n\r\n")
	headers, err := parseHeaderBlock(headerBlock)
	if err != nil {
		c.logger.Warn("httpserver: malformed header block", zap.Error(err), zap.String("remote", c.remoteAddr))
		c.stream.Close()
		return
	}
	if host := headers.Get("Host"); host != "" && !httpguts.ValidHostHeader(host) {
		c.logger.Warn("httpserver: malformed Host header", zap.String("host", host), zap.String("remote", c.remoteAddr))
		c.stream.Close()
		return
	}

	path, query, _ := urllib.Split(rl.URI)
	queryArgs, _ := urllib.ParseQuery(query)

	req := &Request{
		Method:    rl.Method,
		URI:       rl.URI,
		Version:   rl.Version,
		Headers:   headers,
		Path:      path,
		Query:     query,
		Args:      queryArgs,
		Files:     make(map[string][]FileUpload),
		RemoteIP:  remoteIPOf(c.remoteAddr),
		Scheme:    "http",
		Host:      headers.Get("Host"),
		StartTime: time.Now(),
		conn:      c,
	}
	if c.opts.XHeaders {
		applyXHeaders(req, headers)
	}
	c.request = req
	c.requestFinished = false

	cl := headers.Get("Content-Length")
	if cl == "" {
		c.dispatch()
		return
	}
	n, err := strconv.Atoi(cl)
	if err != nil || n < 0 {
		c.logger.Warn("httpserver: malformed Content-Length", zap.String("value", cl))
		c.stream.Close()
		return
	}
	c.awaitBody(n, headers)
}

func (c *Connection) awaitBody(n int, headers Header) {
	c.state = stateAwaitBody
	if n > c.stream.MaxBufferSize() {
		c.logger.Warn("httpserver: Content-Length exceeds max buffer size",
			zap.Int("content_length", n), zap.Int("max_buffer_size", c.stream.MaxBufferSize()))
		c.stream.Close()
		return
	}
	if strings.EqualFold(headers.Get("Expect"), "100-continue") {
		_ = c.stream.Write(buf.NewChunk([]byte("HTTP/1.1 100 (Continue)\r\n\r\n")), nil)
	}
	_ = c.stream.ReadBytes(n, c.onBodyRead, nil)
}

func (c *Connection) onBodyRead(chunk buf.Chunk) {
	c.request.Body = chunk.Bytes()
	c.parseBody()
	c.dispatch()
}

// parseBody implements spec §4.5's body-parsing dispatch, merging
// decoded pairs into the Request's Args (already seeded from the
// query string) alongside Files for multipart uploads.
func (c *Connection) parseBody() {
	req := c.request
	contentType, params := parseContentType(req.Headers.Get("Content-Type"))

	switch contentType {
	case "application/x-www-form-urlencoded":
		bodyArgs, err := urllib.ParseQuery(string(req.Body))
		if err != nil {
			c.logger.Warn("httpserver: malformed form body", zap.Error(err))
		}
		mergeValues(req.Args, bodyArgs)

	case "multipart/form-data":
		boundary, ok := params["boundary"]
		if !ok {
			c.logger.Warn("httpserver: multipart/form-data without boundary parameter")
			return
		}
		bodyArgs, files, err := parseMultipartFormData(req.Body, boundary)
		if err != nil {
			c.logger.Warn("httpserver: malformed multipart body", zap.Error(err))
			return
		}
		mergeValues(req.Args, bodyArgs)
		for name, uploads := range files {
			req.Files[name] = append(req.Files[name], uploads...)
		}
	}
}

func mergeValues(into, from urllib.Values) {
	for k, vs := range from {
		for _, v := range vs {
			into.Add(k, v)
		}
	}
}

// dispatch invokes the user callback, recovering a panic into a
// closed stream per spec §7's UserCallback propagation policy.
func (c *Connection) dispatch() {
	c.state = stateDispatch
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error("httpserver: request handler panicked", zap.Any("recover", rec))
			c.stream.Close()
		}
	}()
	if c.handler != nil {
		c.handler(c.request)
	}
}

// write is Request.Write's forwarding target: writes iff the stream
// is open, and always installs a wrapper callback so a FinishRequest
// queued behind this write's drain still runs even if cb is nil.
func (c *Connection) write(chunk buf.Chunk, cb iostream.WriteFunc) error {
	if c.stream.Closed() {
		return iostream.ErrClosed
	}
	c.state = stateWriting
	return c.stream.Write(chunk, func() {
		if cb != nil {
			cb()
		}
		c.afterDrain()
	})
}

func (c *Connection) afterDrain() {
	if c.requestFinished && !c.stream.Writing() {
		c.finishRequest()
	}
}

// finish is Request.Finish's forwarding target.
func (c *Connection) finish() {
	c.requestFinished = true
	if !c.stream.Writing() {
		c.finishRequest()
	}
}

func (c *Connection) finishRequest() {
	c.state = stateFinishRequest
	req := c.request
	if req != nil {
		req.FinishTime = time.Now()
	}
	keepAlive := c.decideKeepAlive()
	c.request = nil
	c.requestFinished = false

	if !keepAlive {
		c.state = stateClosed
		c.stream.Close()
		return
	}
	c.awaitHeaders()
}

// decideKeepAlive implements spec §4.5's keep-alive decision table.
func (c *Connection) decideKeepAlive() bool {
	if c.opts.NoKeepAlive {
		return false
	}
	req := c.request
	conn := strings.ToLower(req.Headers.Get("Connection"))
	if req.Version == "HTTP/1.1" {
		return conn != "close"
	}
	hasContentLength := req.Headers.Get("Content-Length") != ""
	safeMethod := req.Method == "HEAD" || req.Method == "GET"
	return (hasContentLength || safeMethod) && conn == "keep-alive"
}

func (c *Connection) onStreamClosed() {
	c.state = stateClosed
}

// applyXHeaders implements spec §6's XHeaders remote-IP/scheme override.
func applyXHeaders(req *Request, headers Header) {
	ip := headers.Get("X-Real-Ip")
	if ip == "" {
		ip = firstForwardedFor(headers.Get("X-Forwarded-For"))
	}
	if ip != "" && net.ParseIP(ip) != nil {
		req.RemoteIP = ip
	}

	scheme := strings.ToLower(headers.Get("X-Scheme"))
	if scheme == "" {
		scheme = strings.ToLower(headers.Get("X-Forwarded-Proto"))
	}
	if scheme == "http" || scheme == "https" {
		req.Scheme = scheme
	}
}

func firstForwardedFor(v string) string {
	if v == "" {
		return ""
	}
	return strings.TrimSpace(strings.Split(v, ",")[0])
}

// remoteIPOf strips the port from a "host:port" peer address, falling
// back to the address unchanged if it isn't in that form.
func remoteIPOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
