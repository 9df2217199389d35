// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package rcon

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by this package that originates from the wire, the socket or
// the peer wraps exactly one of these, so callers can distinguish "bad password" from "network issue"
// with [errors.Is].
var (
	// ErrTransport wraps connect, read and write failures at the socket layer.
	ErrTransport = errors.New("rcon: transport error")

	// ErrFraming wraps any violation of the packet wire format. A connection that produced a framing
	// error cannot be resynchronized.
	ErrFraming = errors.New("rcon: framing error")

	// ErrAuthRejected is returned when the server refuses the supplied password.
	ErrAuthRejected = errors.New("rcon: authentication rejected")

	// ErrEncoding wraps caller input that cannot be represented on the wire.
	ErrEncoding = errors.New("rcon: encoding error")
)

// Framing errors.
var (
	ErrInvalidSize       = fmt.Errorf("%w: declared size out of range", ErrFraming)
	ErrUnknownPacketType = fmt.Errorf("%w: unknown packet type", ErrFraming)
	ErrUnterminatedBody  = fmt.Errorf("%w: body is not NUL terminated", ErrFraming)
	ErrInteriorNUL       = fmt.Errorf("%w: body contains an interior NUL", ErrFraming)
	ErrMissingTrailer    = fmt.Errorf("%w: expected empty trailing string", ErrFraming)
	ErrBodyTooLong       = fmt.Errorf("%w: body exceeds maximum length", ErrFraming)
	ErrTrailingData      = fmt.Errorf("%w: trailing data after packet", ErrFraming)
)

// ErrBodyContainsNUL is returned when encoding a packet whose body holds a NUL byte.
var ErrBodyContainsNUL = fmt.Errorf("%w: body contains a NUL byte", ErrEncoding)

// Connection and session state errors.
var (
	// ErrConnBroken is returned by [Conn.Receive] after a previous receive failed part way through a
	// packet. The byte offset of the next packet is unknown, so the connection must be discarded.
	ErrConnBroken = errors.New("rcon: connection unusable after failed receive")

	// ErrInvalidState is returned when a [Session] operation is attempted from a state that does not
	// permit it.
	ErrInvalidState = errors.New("rcon: invalid session state")

	// ErrSessionFailed is returned by every [Session] operation after the session reached
	// [StateFailed]. It is joined with the error that caused the failure.
	ErrSessionFailed = errors.New("rcon: session failed")
)

// ErrorKind is a coarse classification of errors returned by this package.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindTransport
	KindFraming
	KindProtocol
	KindEncoding
	KindState
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindFraming:
		return "framing"
	case KindProtocol:
		return "protocol"
	case KindEncoding:
		return "encoding"
	case KindState:
		return "state"
	default:
		return "unknown"
	}
}

// KindOf classifies err. A nil error is [KindUnknown].
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrAuthRejected):
		return KindProtocol
	case errors.Is(err, ErrFraming):
		return KindFraming
	case errors.Is(err, ErrEncoding):
		return KindEncoding
	case errors.Is(err, ErrTransport), errors.Is(err, ErrConnBroken):
		return KindTransport
	case errors.Is(err, ErrInvalidState):
		return KindState
	default:
		return KindUnknown
	}
}

// IOError reports an exact read or write that could not be completed.
type IOError struct {
	// Op is either "read" or "write".
	Op string

	// Outstanding is the number of requested bytes that were not transferred.
	Outstanding int

	// Err is the underlying error reported by the reader or writer.
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("rcon: %s failed with %d bytes outstanding: %v", e.Op, e.Outstanding, e.Err)
}

// Unwrap exposes both the transport category and the underlying error.
func (e *IOError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}
