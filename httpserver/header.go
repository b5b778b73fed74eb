/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package httpserver implements the HTTP/1.x connection state machine
// of spec §4.5 atop an iostream.Stream: request-line and header
// parsing, Expect: 100-continue, keep-alive, multipart/form-data and
// x-www-form-urlencoded body decomposition, cookies, and the Request
// object handed to the user callback.
package httpserver

import (
	"sort"
	"strings"
	"sync"
)

// Header is the case-normalized, comma-joined-on-duplicate multimap
// spec §3 describes for Request.Headers, ported from badu-http's hdr.Header.
type Header map[string][]string

// Add appends value to key's list under its canonicalized form.
func (h Header) Add(key, value string) {
	h[CanonicalHeaderKey(key)] = append(h[CanonicalHeaderKey(key)], value)
}

// AddCommaJoined implements spec §4.5's "duplicate header additions
// append with a single comma": the new value is joined onto the
// existing single entry rather than becoming a second list element.
func (h Header) AddCommaJoined(key, value string) {
	k := CanonicalHeaderKey(key)
	if existing, ok := h[k]; ok && len(existing) > 0 {
		h[k][0] = existing[0] + "," + value
		return
	}
	h[k] = []string{value}
}

// Set replaces key's values with a single value.
func (h Header) Set(key, value string) { h[CanonicalHeaderKey(key)] = []string{value} }

// Get returns the first value for key, or "" if absent.
func (h Header) Get(key string) string {
	if h == nil {
		return ""
	}
	v := h[CanonicalHeaderKey(key)]
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

// Del removes key's values entirely.
func (h Header) Del(key string) { delete(h, CanonicalHeaderKey(key)) }

// Keys returns every canonicalized header name present, sorted.
func (h Header) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var canonicalCache sync.Map // string -> string, process-wide per spec §4.5

// canonicalQuickCheck reports whether s already matches
// ^[A-Z0-9][a-z0-9]*(-[A-Z0-9][a-z0-9]*)*$, the "already canonical, do
// nothing" fast path spec §4.5 calls out explicitly.
func canonicalQuickCheck(s string) bool {
	if s == "" {
		return false
	}
	expectUpper := true
	sawAnyInSegment := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '-':
			if !sawAnyInSegment {
				return false
			}
			expectUpper = true
			sawAnyInSegment = false
		case expectUpper:
			if !(('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')) {
				return false
			}
			expectUpper = false
			sawAnyInSegment = true
		default:
			if !(('a' <= c && c <= 'z') || ('0' <= c && c <= '9')) {
				return false
			}
			sawAnyInSegment = true
		}
	}
	return sawAnyInSegment
}

// CanonicalHeaderKey renders s as Http-Header-Case: the first letter
// of each '-'-separated token upper-cased, the rest lower-cased —
// unless s already matches the canonical pattern, in which case it is
// returned unchanged. Results are cached process-wide (spec §4.5).
func CanonicalHeaderKey(s string) string {
	if canonicalQuickCheck(s) {
		return s
	}
	if v, ok := canonicalCache.Load(s); ok {
		return v.(string)
	}

	parts := strings.Split(s, "-")
	for i, p := range parts {
		if p == "" {
			continue
		}
		lower := strings.ToLower(p)
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	canon := strings.Join(parts, "-")
	canonicalCache.Store(s, canon)
	return canon
}
