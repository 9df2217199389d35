// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

/*
Package rcon provides mechanisms for interacting with the Source RCON protocol as described by
Valve Software at https://developer.valvesoftware.com/wiki/Source_RCON_Protocol.

The package is layered. [Packet] and [ReadPacket] encode and decode the wire format against any
[io.Writer] or [io.Reader]. [Conn] owns a single connection and lets one sender and one receiver
use it at the same time. [Session] runs the authorization handshake and command exchange on top
of a Conn, and [Run] performs a complete connect, authenticate and execute cycle:

	out, err := rcon.Run(ctx, "192.0.2.1:27015", "password", "status", rcon.SessionConfig{})
	switch {
	case errors.Is(err, rcon.ErrAuthRejected):
		// bad password
	case errors.Is(err, rcon.ErrTransport):
		// network issue
	}

Errors are never retried internally and a connection is never resynchronized after a framing
error.
*/
package rcon
