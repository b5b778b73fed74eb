/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package httpserver

import (
	"time"

	"github.com/badu/ion/buf"
	"github.com/badu/ion/iostream"
	"github.com/badu/ion/urllib"
)

// Request is the parsed-request snapshot handed to the user callback,
// per spec §3. It is valid only for the duration of that callback and
// any write/finish calls made from it or from callbacks it schedules
// before Finish; the connection drops its reference once FinishRequest
// runs.
type Request struct {
	Method  string
	URI     string
	Version string
	Headers Header
	Body    []byte

	Path  string
	Query string
	Args  urllib.Values
	Files map[string][]FileUpload

	RemoteIP string
	Scheme   string
	Host     string

	StartTime  time.Time
	FinishTime time.Time

	conn    *Connection
	cookies map[string]string
}

// FullURL reconstructs scheme://host+uri, the supplemental accessor
// ctornado's HTTPRequest exposes (httprequest.cc's full_url()).
func (r *Request) FullURL() string {
	return r.Scheme + "://" + r.Host + r.URI
}

// Cookies lazily parses the Cookie request header on first access and
// caches the result on the Request, per spec §3's "lazy cookies".
func (r *Request) Cookies() map[string]string {
	if r.cookies == nil {
		r.cookies = ParseCookies(r.Headers.Get("Cookie"))
	}
	return r.cookies
}

// Write forwards to the owning connection, which writes iff the
// stream is still open and remembers cb as the pending write
// callback, replacing any prior one (spec §4.5).
func (r *Request) Write(chunk buf.Chunk, cb iostream.WriteFunc) error {
	return r.conn.write(chunk, cb)
}

// Finish forwards to the owning connection: marks the request
// finished so that FinishRequest runs as soon as the write buffer
// next drains (immediately, if it's already empty).
func (r *Request) Finish() {
	r.conn.finish()
}
