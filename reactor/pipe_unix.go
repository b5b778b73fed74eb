/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package reactor

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// plainNonblockingPipe opens a pipe and flips O_NONBLOCK on both ends
// by hand, since os.Pipe's runtime-integrated descriptors are not what
// we want here: the reactor drives these fds itself through the
// poller, not through Go's own network poller.
func plainNonblockingPipe() ([2]*os.File, error) {
	var zero [2]*os.File
	r, w, err := os.Pipe()
	if err != nil {
		return zero, fmt.Errorf("pipe: %w", err)
	}
	if err := unix.SetNonblock(int(r.Fd()), true); err != nil {
		return zero, err
	}
	if err := unix.SetNonblock(int(w.Fd()), true); err != nil {
		return zero, err
	}
	return [2]*os.File{r, w}, nil
}
