/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package httpserver

import "strings"

// parseContentType splits a Content-Type (or Content-Disposition)
// header value into its bare value and a lower-cased-key parameter
// map, per spec §4.5: segments are split on unquoted ';', each on the
// first '=', and quoted values are dequoted with '\\' and '\"'
// unescaped. A ';' inside a double-quoted value does not end the
// segment.
func parseContentType(header string) (value string, params map[string]string) {
	segments := splitUnquoted(header, ';')
	if len(segments) == 0 {
		return "", map[string]string{}
	}
	value = strings.TrimSpace(segments[0])
	params = make(map[string]string, len(segments)-1)
	for _, seg := range segments[1:] {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		idx := strings.IndexByte(seg, '=')
		if idx < 0 {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(seg[:idx]))
		raw := strings.TrimSpace(seg[idx+1:])
		params[name] = dequote(raw)
	}
	return value, params
}

// splitUnquoted splits s on sep, except where sep occurs inside a
// double-quoted span (a preceding backslash escapes a quote so it
// doesn't toggle quote state).
func splitUnquoted(s string, sep byte) []string {
	var out []string
	inQuotes := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++ // skip the escaped byte, it can't toggle quote state
		case '"':
			inQuotes = !inQuotes
		case sep:
			if !inQuotes {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}

// dequote strips wrapping double quotes, unescaping \\ and \".
func dequote(s string) string {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return s
	}
	inner := s[1 : len(s)-1]
	var b strings.Builder
	b.Grow(len(inner))
	for i := 0; i < len(inner); i++ {
		if inner[i] == '\\' && i+1 < len(inner) {
			i++
		}
		b.WriteByte(inner[i])
	}
	return b.String()
}
