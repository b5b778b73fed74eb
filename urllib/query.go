/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package urllib implements the query-string parser and request-target
// splitter/unsplitter spec §4.6 treats as out-of-scope-but-specified
// collaborators, ported from the badu-http url package (itself a
// trimmed net/url) down to just what an HTTP connection needs: no
// userinfo, no reference resolution, no opaque URLs.
package urllib

import (
	"sort"
	"strings"
)

// Values maps a string key to the list of values seen for it in a
// query string or application/x-www-form-urlencoded body, matching
// the arguments multimap of spec §3.
type Values map[string][]string

// Get returns the first value for key, or "" if absent.
func (v Values) Get(key string) string {
	vs := v[key]
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// Add appends value to key's list.
func (v Values) Add(key, value string) { v[key] = append(v[key], value) }

// Set replaces key's value list with a single value.
func (v Values) Set(key, value string) { v[key] = []string{value} }

// ParseQuery parses a URL-encoded query string (or
// application/x-www-form-urlencoded body) into Values. It always
// returns a non-nil map containing every pair parsed before the first
// error, with err describing that first error.
func ParseQuery(query string) (Values, error) {
	v := make(Values)
	err := parseQuery(v, query)
	return v, err
}

func parseQuery(v Values, query string) error {
	var firstErr error
	for query != "" {
		var key string
		key, query, _ = cut(query, "&")
		if strings.Contains(key, ";") {
			if firstErr == nil {
				firstErr = EscapeError("invalid semicolon separator in query")
			}
			continue
		}
		if key == "" {
			continue
		}
		key, value, _ := cut(key, "=")
		key, err1 := QueryUnescape(key)
		if err1 != nil {
			if firstErr == nil {
				firstErr = err1
			}
			continue
		}
		value, err1 = QueryUnescape(value)
		if err1 != nil {
			if firstErr == nil {
				firstErr = err1
			}
			continue
		}
		v[key] = append(v[key], value)
	}
	return firstErr
}

// Encode renders v as a "&"-joined, key-sorted query string.
func (v Values) Encode() string {
	if len(v) == 0 {
		return ""
	}
	var buf strings.Builder
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ek := QueryEscape(k)
		for _, val := range v[k] {
			if buf.Len() > 0 {
				buf.WriteByte('&')
			}
			buf.WriteString(ek)
			buf.WriteByte('=')
			buf.WriteString(QueryEscape(val))
		}
	}
	return buf.String()
}

// cut is strings.Cut, restated for the pre-1.18 posture the rest of
// this package's teacher holds to.
func cut(s, sep string) (before, after string, found bool) {
	if i := strings.Index(s, sep); i >= 0 {
		return s[:i], s[i+len(sep):], true
	}
	return s, "", false
}
