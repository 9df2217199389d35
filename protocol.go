// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package rcon

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
)

// WrapperSize is the cumulative size of non-body bytes that contribute to the packet size that
// precedes a binary packet. Eight bytes are accounted for by the packet ID and type, while two bytes
// are accounted for by the NUL termination of the body and the empty trailing string. The packet
// size itself is not included in the size calculation.
const WrapperSize = 8 + 2

// MaxBodySize is the largest body, including its terminating NUL, accepted when decoding.
const MaxBodySize = 4096

// PacketType discriminates the semantics of a [Packet]. Only the four documented values are valid on
// the wire.
type PacketType int32

const (
	// PacketTypeAuth is a client authorization request. The body carries the server password.
	PacketTypeAuth PacketType = 3

	// PacketTypeExecCommandOrAuthResponse is a client command request, and also the server's
	// notification of an authorization outcome. The protocol reuses the same value for both.
	PacketTypeExecCommandOrAuthResponse PacketType = 2

	// PacketTypeResponseValue is a server response carrying command output.
	PacketTypeResponseValue PacketType = 0

	// PacketTypeAuthFailed is sent by some servers to reject an authorization request.
	PacketTypeAuthFailed PacketType = -1
)

// ParsePacketType validates a wire value. Unknown values are a framing error.
func ParsePacketType(v int32) (PacketType, error) {
	switch t := PacketType(v); t {
	case PacketTypeAuth, PacketTypeExecCommandOrAuthResponse, PacketTypeResponseValue, PacketTypeAuthFailed:
		return t, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrUnknownPacketType, v)
}

func (t PacketType) String() string {
	switch t {
	case PacketTypeAuth:
		return "auth"
	case PacketTypeExecCommandOrAuthResponse:
		return "exec_command_or_auth_response"
	case PacketTypeResponseValue:
		return "response_value"
	case PacketTypeAuthFailed:
		return "auth_failed"
	default:
		return fmt.Sprintf("PacketType(%d)", int32(t))
	}
}

// Packet is a singular RCON protocol packet, either as a request from a client or a response from
// a server.
type Packet struct {
	// ID is chosen by the client and echoed by the server so responses can be correlated with
	// requests. The server answers a rejected authorization with an ID of -1.
	ID int32

	// Type indicates the purpose of the packet.
	Type PacketType

	// Body contains the password, the command to execute, or the server's output, without the
	// terminating NUL. It must not contain a NUL byte and may be empty.
	Body []byte
}

// NewPacket builds a [Packet] from a string body, rejecting bodies that contain a NUL byte.
func NewPacket(id int32, typ PacketType, body string) (Packet, error) {
	if bytes.IndexByte([]byte(body), 0) >= 0 {
		return Packet{}, ErrBodyContainsNUL
	}
	return Packet{ID: id, Type: typ, Body: []byte(body)}, nil
}

// Size returns the value of the size field that precedes the packet on the wire.
func (p Packet) Size() int32 {
	return int32(len(p.Body) + WrapperSize)
}

// AppendBinary appends the wire encoding of p to b.
func (p Packet) AppendBinary(b []byte) ([]byte, error) {
	if bytes.IndexByte(p.Body, 0) >= 0 {
		return b, ErrBodyContainsNUL
	}
	b = binary.LittleEndian.AppendUint32(b, uint32(p.Size()))
	b = binary.LittleEndian.AppendUint32(b, uint32(p.ID))
	b = binary.LittleEndian.AppendUint32(b, uint32(p.Type))
	b = append(b, p.Body...)
	return append(b, 0, 0), nil
}

// MarshalBinary encodes the receiving [Packet] into binary form and returns the result. This
// satisfies the [encoding.BinaryMarshaler] interface.
func (p Packet) MarshalBinary() ([]byte, error) {
	bs, err := p.AppendBinary(make([]byte, 0, int(p.Size())+4))
	if err != nil {
		return nil, err
	}
	return bs, nil
}

// WriteTo writes a binary representation of the packet to [io.Writer] w. The packet is encoded in
// full before any byte is written. This method satisfies the [io.WriterTo] interface.
func (p Packet) WriteTo(w io.Writer) (int64, error) {
	bs, err := p.MarshalBinary()
	if err != nil {
		return 0, err
	}
	ew := exactWriter{w: w}
	err = ew.writeFull(bs)
	return ew.n, err
}

// UnmarshalBinary decodes the binary encoded packet b into the receiving [Packet]. Bytes left over
// after the packet are an error. This satisfies the [encoding.BinaryUnmarshaler] interface.
func (p *Packet) UnmarshalBinary(b []byte) error {
	r := bytes.NewReader(b)
	decoded, err := ReadPacket(r)
	if err != nil {
		return err
	}
	if r.Len() > 0 {
		return fmt.Errorf("%w: %d bytes", ErrTrailingData, r.Len())
	}
	*p = decoded
	return nil
}

// ReadFrom reads a binary representation of a packet into the receiving [Packet] instance. This
// method satisfies the [io.ReaderFrom] interface.
func (p *Packet) ReadFrom(r io.Reader) (int64, error) {
	er := exactReader{r: r}
	decoded, err := decodeStrict(&er)
	if err != nil {
		return er.n, err
	}
	*p = decoded
	return er.n, nil
}

// ReadPacket decodes one packet from r, trusting the declared size. It reads exactly the number of
// bytes the size field announces, so data following the packet is left unread.
func ReadPacket(r io.Reader) (Packet, error) {
	return decodeStrict(&exactReader{r: r})
}

// ReadPacketLenient decodes one packet from r without trusting the declared size. The body is
// scanned up to its NUL terminator, bounded by [MaxBodySize], and the empty trailing string is still
// required. This interoperates with servers that announce an inconsistent size.
func ReadPacketLenient(r io.Reader) (Packet, error) {
	p, _, err := decodeLenient(&exactReader{r: r})
	return p, err
}

func decodeStrict(er *exactReader) (Packet, error) {
	size, err := er.readInt32()
	if err != nil {
		return Packet{}, err
	}

	// Body length including its NUL terminator.
	bodyLen := int64(size) - (8 + 1)
	if bodyLen <= 0 || bodyLen > MaxBodySize {
		return Packet{}, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}

	id, typ, err := decodeHeader(er)
	if err != nil {
		return Packet{}, err
	}

	body := make([]byte, bodyLen)
	if err := er.readFull(body); err != nil {
		return Packet{}, err
	}
	if body[len(body)-1] != 0 {
		return Packet{}, ErrUnterminatedBody
	}
	body = body[:len(body)-1]
	if bytes.IndexByte(body, 0) >= 0 {
		return Packet{}, ErrInteriorNUL
	}

	if err := decodeTrailer(er); err != nil {
		return Packet{}, err
	}

	return Packet{ID: id, Type: typ, Body: body}, nil
}

// decodeLenient returns the decoded packet along with the size field it ignored.
func decodeLenient(er *exactReader) (Packet, int32, error) {
	size, err := er.readInt32()
	if err != nil {
		return Packet{}, 0, err
	}

	id, typ, err := decodeHeader(er)
	if err != nil {
		return Packet{}, size, err
	}

	var body []byte
	for {
		c, err := er.readByte()
		if err != nil {
			return Packet{}, size, err
		}
		if c == 0 {
			break
		}
		body = append(body, c)
		if len(body) >= MaxBodySize {
			return Packet{}, size, ErrBodyTooLong
		}
	}

	if err := decodeTrailer(er); err != nil {
		return Packet{}, size, err
	}

	return Packet{ID: id, Type: typ, Body: body}, size, nil
}

func decodeHeader(er *exactReader) (int32, PacketType, error) {
	id, err := er.readInt32()
	if err != nil {
		return 0, 0, err
	}
	raw, err := er.readInt32()
	if err != nil {
		return 0, 0, err
	}
	typ, err := ParsePacketType(raw)
	if err != nil {
		return 0, 0, err
	}
	return id, typ, nil
}

func decodeTrailer(er *exactReader) error {
	c, err := er.readByte()
	if err != nil {
		return err
	}
	if c != 0 {
		return fmt.Errorf("%w: got 0x%02x", ErrMissingTrailer, c)
	}
	return nil
}

// EqualTo determines if the provided Packet content matches the receiving Packet content.
func (p Packet) EqualTo(p2 Packet) bool {
	switch {
	case p.ID != p2.ID:
		return false
	case p.Type != p2.Type:
		return false
	case !bytes.Equal(p.Body, p2.Body):
		return false
	}
	return true
}

// Clone returns a copy of p that shares no memory with it.
func (p Packet) Clone() Packet {
	p.Body = bytes.Clone(p.Body)
	return p
}

// hexString renders the wire form of p for logging. Packets that cannot be encoded render their
// fields instead.
func (p Packet) hexString() string {
	bs, err := p.MarshalBinary()
	if err != nil {
		return fmt.Sprintf("id=%d type=%s len=%d", p.ID, p.Type, len(p.Body))
	}
	return hex.EncodeToString(bs)
}
