/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package httpserver

import (
	"errors"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// ErrMalformedRequestLine and ErrMalformedHeader are logged (never
// sent to the client, per spec §7's "malformed client is not owed
// diagnostics") and cause the connection to close without a response.
var (
	ErrMalformedRequestLine = errors.New("httpserver: malformed request line")
	ErrMalformedHeader      = errors.New("httpserver: malformed header line")
)

// requestLine is the parsed first line of an HTTP/1.x request.
type requestLine struct {
	Method  string
	URI     string
	Version string
}

// parseRequestLine splits "METHOD URI VERSION" into exactly three
// whitespace-separated tokens, per spec §4.5.
func parseRequestLine(line string) (requestLine, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return requestLine{}, ErrMalformedRequestLine
	}
	if !strings.HasPrefix(fields[2], "HTTP/") {
		return requestLine{}, ErrMalformedRequestLine
	}
	return requestLine{Method: fields[0], URI: fields[1], Version: fields[2]}, nil
}

// parseHeaderBlock parses the raw bytes between the request line and
// the blank line terminating the header block (exclusive of the
// request line, inclusive of nothing past the final CRLF) into a
// Header, honoring line-continuation (a line starting with space or
// tab is appended to the previous header's value) and comma-joining
// duplicate header names.
func parseHeaderBlock(block string) (Header, error) {
	h := make(Header)
	lines := splitLines(block)

	var lastKey string
	for _, line := range lines {
		if line == "" {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			if lastKey == "" {
				return nil, ErrMalformedHeader
			}
			cont := strings.TrimSpace(line)
			existing := h[lastKey]
			if len(existing) > 0 {
				h[lastKey][len(existing)-1] = existing[len(existing)-1] + " " + cont
			}
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			return nil, ErrMalformedHeader
		}
		name := line[:idx]
		value := strings.TrimSpace(line[idx+1:])
		if !httpguts.ValidHeaderFieldName(name) || !httpguts.ValidHeaderFieldValue(value) {
			return nil, ErrMalformedHeader
		}
		key := CanonicalHeaderKey(name)
		h.AddCommaJoined(key, value)
		lastKey = key
	}
	return h, nil
}

// splitLines splits on CRLF or bare LF, dropping a trailing empty
// element produced by a terminal newline.
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
