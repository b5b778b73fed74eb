/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package httpserver

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMultipartFormDataTextAndFile(t *testing.T) {
	boundary := "AaB03x"
	body := strings.Join([]string{
		"--" + boundary,
		`Content-Disposition: form-data; name="submit-name"`,
		"",
		"Larry",
		"--" + boundary,
		`Content-Disposition: form-data; name="files"; filename="file1.txt"`,
		"Content-Type: text/plain",
		"",
		"... contents of file1.txt ...",
		"--" + boundary + "--",
		"",
	}, "\r\n")

	args, files, err := parseMultipartFormData([]byte(body), boundary)
	require.NoError(t, err)

	assert.Equal(t, []string{"Larry"}, args["submit-name"])
	require.Len(t, files["files"], 1)
	assert.Equal(t, "file1.txt", files["files"][0].Filename)
	assert.Equal(t, "... contents of file1.txt ...", string(files["files"][0].Body))
	assert.Equal(t, "text/plain", files["files"][0].ContentType)
}

func TestParseMultipartFormDataPartWithoutTrailingCRLFIsSkipped(t *testing.T) {
	boundary := "AaB03x"
	// The text between the part's blank-line separator and the closing
	// boundary marker does not end in "\r\n" (it runs right up against
	// "--AaB03x--" with no line break), so the part is malformed and
	// must be dropped rather than stored with a corrupted value.
	body := `--` + boundary + "\r\n" +
		`Content-Disposition: form-data; name="a"` + "\r\n\r\n" +
		"1" + "--" + boundary + "--" + "\r\n"

	args, files, err := parseMultipartFormData([]byte(body), boundary)
	require.NoError(t, err)
	assert.Empty(t, args["a"])
	assert.Empty(t, files)
}

func TestParseMultipartFormDataMissingClosingBoundary(t *testing.T) {
	boundary := "AaB03x"
	body := "--" + boundary + "\r\nContent-Disposition: form-data; name=\"a\"\r\n\r\n1\r\n"
	_, _, err := parseMultipartFormData([]byte(body), boundary)
	require.ErrorIs(t, err, ErrMalformedMultipart)
}

func TestParseMultipartFormDataDefaultContentType(t *testing.T) {
	boundary := "b"
	body := strings.Join([]string{
		"--" + boundary,
		`Content-Disposition: form-data; name="f"; filename="x.bin"`,
		"",
		"data",
		"--" + boundary + "--",
		"",
	}, "\r\n")
	_, files, err := parseMultipartFormData([]byte(body), boundary)
	require.NoError(t, err)
	assert.Equal(t, "application/unknown", files["f"][0].ContentType)
}
