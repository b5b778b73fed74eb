/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package httpserver

import (
	"errors"
	"strings"

	"github.com/badu/ion/urllib"
)

// ErrMalformedMultipart is logged and the malformed body dropped
// (arguments/files stay empty) rather than surfaced to the client,
// matching spec §4.5's "absent closing boundary → log and skip".
var ErrMalformedMultipart = errors.New("httpserver: multipart body missing closing boundary")

// FileUpload is one entry of the files multimap spec §3 describes.
type FileUpload struct {
	Filename    string
	Body        []byte
	ContentType string
}

// parseMultipartFormData decomposes body per spec §4.5's simplified
// RFC 2046 delimiter rules: split on "--boundary\r\n" up to the
// mandatory closing "--boundary--"; each part's sub-header block must
// carry Content-Disposition: form-data with a name parameter, and
// routes into files (if filename is present) or arguments.
func parseMultipartFormData(body []byte, boundary string) (urllib.Values, map[string][]FileUpload, error) {
	args := make(urllib.Values)
	files := make(map[string][]FileUpload)

	parts, ok := splitMultipartParts(string(body), boundary)
	if !ok {
		return args, files, ErrMalformedMultipart
	}

	for _, part := range parts {
		headerBlock, value, ok := splitOnBlankLine(part)
		if !ok {
			continue
		}
		headers, err := parseHeaderBlock(headerBlock)
		if err != nil {
			continue
		}
		disposition, params := parseContentType(headers.Get("Content-Disposition"))
		if disposition != "form-data" {
			continue
		}
		name, ok := params["name"]
		if !ok || name == "" {
			continue
		}
		if !strings.HasSuffix(value, "\r\n") {
			continue
		}
		value = strings.TrimSuffix(value, "\r\n")

		if filename, ok := params["filename"]; ok {
			ct := headers.Get("Content-Type")
			if ct == "" {
				ct = "application/unknown"
			}
			files[name] = append(files[name], FileUpload{
				Filename:    filename,
				Body:        []byte(value),
				ContentType: ct,
			})
			continue
		}
		args.Add(name, value)
	}
	return args, files, nil
}

func splitMultipartParts(body, boundary string) ([]string, bool) {
	delimMid := "--" + boundary + "\r\n"
	delimEnd := "--" + boundary + "--"

	segments := strings.Split(body, delimMid)
	if len(segments) < 2 {
		return nil, false
	}
	parts := segments[1:]

	last := parts[len(parts)-1]
	endIdx := strings.Index(last, delimEnd)
	if endIdx < 0 {
		return nil, false
	}
	parts[len(parts)-1] = last[:endIdx]
	return parts, true
}

func splitOnBlankLine(part string) (headerBlock, value string, ok bool) {
	idx := strings.Index(part, "\r\n\r\n")
	if idx < 0 {
		return "", "", false
	}
	return part[:idx], part[idx+4:], true
}
