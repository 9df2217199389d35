// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package rcon

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ConnConfig contains settings to control [Conn] instances.
type ConnConfig struct {
	// DialTimeout limits connection establishment in [Dial]. Zero means no limit beyond the
	// context passed to Dial.
	DialTimeout time.Duration

	// TLSConfig, when non-nil, makes [Dial] wrap the TCP connection in TLS. RCON is unencrypted by
	// default, so this is only useful when the server (or a proxy in front of it) speaks TLS.
	TLSConfig *tls.Config

	// Lenient selects [ReadPacketLenient] for incoming packets, for servers that announce packet
	// sizes inconsistent with the payload they send.
	Lenient bool

	// Logger receives packet level debug output. A nil Logger disables logging.
	Logger *zerolog.Logger

	// LogOutboundAuthPackets enables debug logging of outbound authorization packets, exposing
	// server passwords in plaintext. When false (the default) the password is replaced before
	// logging.
	//
	// WARNING: Only enable this flag if you are aware of the implications and are willing to accept
	// the risks!
	LogOutboundAuthPackets bool

	// Metrics records packet and error counters. May be nil.
	Metrics *Metrics
}

// Conn owns a single connection to an RCON server. The read half and the write half are guarded
// independently: one Send and one Receive may run concurrently without blocking each other, while
// concurrent calls on the same half are serialized so packets never interleave on the wire.
//
// While the RCON protocol specifies transport over TCP, a Conn can wrap anything that satisfies the
// [net.Conn] interface, such as a [crypto/tls.Conn] or a Unix socket.
type Conn struct {
	conn net.Conn

	// rmu guards the read half and readBroken.
	rmu        sync.Mutex
	readBroken bool

	// wmu guards the write half and writeBroken.
	wmu         sync.Mutex
	writeBroken bool

	lenient                bool
	logger                 zerolog.Logger
	logOutboundAuthPackets bool
	metrics                *Metrics
}

// Dial connects to the RCON server at endpoint ("host:port").
func Dial(ctx context.Context, endpoint string, config ConnConfig) (*Conn, error) {
	dialer := &net.Dialer{Timeout: config.DialTimeout}

	var (
		conn net.Conn
		err  error
	)
	if config.TLSConfig != nil {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: config.TLSConfig}
		conn, err = tlsDialer.DialContext(ctx, "tcp", endpoint)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", endpoint)
	}
	if err != nil {
		err = fmt.Errorf("%w: dial %s: %w", ErrTransport, endpoint, err)
		config.Metrics.recordError(err)
		return nil, err
	}

	return NewConn(conn, config), nil
}

// NewConn creates a [Conn] that uses conn as its transport. Once conn is handed to NewConn it
// should not be used outside of the returned Conn.
func NewConn(conn net.Conn, config ConnConfig) *Conn {
	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = *config.Logger
	}
	return &Conn{
		conn:                   conn,
		lenient:                config.Lenient,
		logger:                 logger.With().Str("remote", conn.RemoteAddr().String()).Logger(),
		logOutboundAuthPackets: config.LogOutboundAuthPackets,
		metrics:                config.Metrics,
	}
}

// Send encodes p and writes it to the connection. Encoding happens before the write half is
// locked, so an unencodable packet never reaches the wire.
func (c *Conn) Send(p Packet) error {
	bs, err := p.MarshalBinary()
	if err != nil {
		c.metrics.recordError(err)
		return err
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.writeBroken {
		return ErrConnBroken
	}

	c.logPacket("sending packet", p, true)
	ew := exactWriter{w: c.conn}
	err = ew.writeFull(bs)
	c.metrics.recordSent(p, ew.n)
	if err != nil {
		if ew.n > 0 {
			// The peer now holds part of a packet.
			c.writeBroken = true
		}
		c.metrics.recordError(err)
		return err
	}
	return nil
}

// Receive reads and decodes the next packet. Once a packet has been partially consumed and then
// fails to decode, every later call returns [ErrConnBroken].
func (c *Conn) Receive() (Packet, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	if c.readBroken {
		return Packet{}, ErrConnBroken
	}

	er := exactReader{r: c.conn}
	var (
		p   Packet
		err error
	)
	if c.lenient {
		var size int32
		p, size, err = decodeLenient(&er)
		if err == nil && size != p.Size() {
			c.logger.Trace().Int32("declared", size).Int32("actual", p.Size()).Msg("ignored packet size")
		}
	} else {
		p, err = decodeStrict(&er)
	}
	if err != nil {
		if er.n > 0 {
			c.readBroken = true
		}
		c.metrics.recordBytesReceived(er.n)
		c.metrics.recordError(err)
		c.logger.Debug().Err(err).Int64("consumed", er.n).Msg("receive failed")
		return Packet{}, err
	}

	c.metrics.recordReceived(p, er.n)
	c.logPacket("received packet", p, false)
	return p, nil
}

// SetDeadline sets the read and write deadlines of the underlying connection. An operation
// interrupted by a deadline fails with an error wrapping [ErrTransport].
func (c *Conn) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// RemoteAddr returns the address of the server.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close closes the underlying connection. Blocked Send and Receive calls return with an error.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// logPacket writes p to the debug log as hex. Outbound authorization packets are scrubbed unless
// the connection was explicitly configured otherwise.
func (c *Conn) logPacket(msg string, p Packet, outbound bool) {
	e := c.logger.Debug()
	if !e.Enabled() {
		return
	}

	if outbound && p.Type == PacketTypeAuth && !c.logOutboundAuthPackets {
		p.Body = []byte{'x', 'x', 'x', 'x', 'x'}
	}

	e.Int32("id", p.ID).Stringer("type", p.Type).Str("packet", p.hexString()).Msg(msg)
}
