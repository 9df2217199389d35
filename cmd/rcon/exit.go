// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package main

import (
	"github.com/schultz-is/rcon-go/v2"
)

// Process exit codes.
const (
	exitOK        = 0
	exitUsage     = 1 // configuration errors and anything unclassified
	exitTransport = 2
	exitFraming   = 3
	exitAuth      = 4
	exitEncoding  = 5
	exitState     = 6
)

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	switch rcon.KindOf(err) {
	case rcon.KindTransport:
		return exitTransport
	case rcon.KindFraming:
		return exitFraming
	case rcon.KindProtocol:
		return exitAuth
	case rcon.KindEncoding:
		return exitEncoding
	case rcon.KindState:
		return exitState
	default:
		return exitUsage
	}
}
