// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package rcon

import (
	"encoding/binary"
	"io"
)

// exactReader satisfies every read request in full or fails with an [IOError]. It never reads more
// than requested, so bytes following a packet stay on the underlying stream.
type exactReader struct {
	r io.Reader

	// n counts the bytes consumed so far.
	n int64
}

func (er *exactReader) readFull(b []byte) error {
	read, err := io.ReadFull(er.r, b)
	er.n += int64(read)
	if err != nil {
		if err == io.EOF && read == 0 && er.n > 0 {
			// A clean EOF is only acceptable before the first byte of a packet.
			err = io.ErrUnexpectedEOF
		}
		return &IOError{Op: "read", Outstanding: len(b) - read, Err: err}
	}
	return nil
}

func (er *exactReader) readInt32() (int32, error) {
	var b [4]byte
	if err := er.readFull(b[:]); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b[:])), nil
}

func (er *exactReader) readByte() (byte, error) {
	var b [1]byte
	if err := er.readFull(b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// exactWriter writes complete buffers or fails with an [IOError].
type exactWriter struct {
	w io.Writer

	// n counts the bytes written so far.
	n int64
}

func (ew *exactWriter) writeFull(b []byte) error {
	for len(b) > 0 {
		written, err := ew.w.Write(b)
		ew.n += int64(written)
		b = b[written:]
		if err != nil {
			return &IOError{Op: "write", Outstanding: len(b), Err: err}
		}
		if written == 0 {
			return &IOError{Op: "write", Outstanding: len(b), Err: io.ErrShortWrite}
		}
	}
	return nil
}
