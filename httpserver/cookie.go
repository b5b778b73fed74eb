/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package httpserver

import (
	"fmt"
	"strings"
)

// Cookie mirrors the handful of fields spec §6 actually requires for
// parsing and Set-Cookie serialization.
type Cookie struct {
	Name     string
	Value    string
	Path     string
	Domain   string
	MaxAge   int
	HttpOnly bool
	Secure   bool
}

// reservedCookieAttrs are skipped when parsing a Cookie header, per
// spec §6 and ctornado's cookie.cc _COOKIE_PARAMS set.
var reservedCookieAttrs = map[string]bool{
	"expires": true, "path": true, "comment": true, "domain": true,
	"max-age": true, "secure": true, "httponly": true, "version": true,
}

// ParseCookies parses the value of a Cookie request header into a
// name→value map. Pairs are split on ';' outside of double-quoted
// spans (so a quoted value may itself contain ';' or ',', covering the
// token/quoted-string/email-date value shapes spec §6 calls out),
// skipping anything that looks like a reserved attribute.
func ParseCookies(header string) map[string]string {
	out := make(map[string]string)
	if header == "" {
		return out
	}
	for _, pair := range splitUnquoted(header, ';') {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		idx := strings.IndexByte(pair, '=')
		if idx < 0 {
			continue
		}
		name := strings.TrimSpace(pair[:idx])
		if reservedCookieAttrs[strings.ToLower(name)] {
			continue
		}
		value := strings.TrimSpace(pair[idx+1:])
		out[name] = dequote(value)
	}
	return out
}

// isCookieToken reports whether every byte of v is a valid,
// unescaped-safe cookie-value token byte.
func isCookieToken(v string) bool {
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c <= 0x20 || c == 0x7f || c == '"' || c == ',' || c == ';' || c == '\\' {
			return false
		}
	}
	return true
}

// EncodeCookieValue quotes v if it contains any byte unsafe for a bare
// cookie-value token, octal-escaping each unsafe byte inside the
// quotes — matching spec §6's `\ooo`-escape behavior, most notably for
// ',' and ';'.
func EncodeCookieValue(v string) string {
	if isCookieToken(v) {
		return v
	}
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c <= 0x20 || c == 0x7f || c == '"' || c == ',' || c == ';' || c == '\\' {
			fmt.Fprintf(&b, `\%03o`, c)
			continue
		}
		b.WriteByte(c)
	}
	b.WriteByte('"')
	return b.String()
}

// String renders c as a Set-Cookie header value.
func (c *Cookie) String() string {
	if c == nil || c.Name == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteByte('=')
	b.WriteString(EncodeCookieValue(c.Value))
	if c.Path != "" {
		b.WriteString("; Path=")
		b.WriteString(c.Path)
	}
	if c.Domain != "" {
		b.WriteString("; Domain=")
		b.WriteString(c.Domain)
	}
	if c.MaxAge > 0 {
		fmt.Fprintf(&b, "; Max-Age=%d", c.MaxAge)
	} else if c.MaxAge < 0 {
		b.WriteString("; Max-Age=0")
	}
	if c.HttpOnly {
		b.WriteString("; HttpOnly")
	}
	if c.Secure {
		b.WriteString("; Secure")
	}
	return b.String()
}
