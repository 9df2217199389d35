// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package rcon

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTimeout is the default amount of time allowed for a session to complete one request and
// response round trip.
const DefaultTimeout = 15 * time.Second

const (
	// AuthID is the correlation ID of authorization requests. A server accepting the password
	// echoes it back; a server rejecting it answers with -1.
	AuthID int32 = 0

	// CommandID is the correlation ID of the first command sent by a session. Later commands use
	// increasing IDs.
	CommandID int32 = 1
)

const tracerName = "github.com/schultz-is/rcon-go/v2"

// State is a step of the session lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateAuthenticating
	StateAuthenticated
	StateExecuting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateExecuting:
		return "executing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// SessionConfig contains settings to control [Session] instances.
type SessionConfig struct {
	// ConnConfig configures the connection opened by [Session.Connect]. Its Logger and Metrics are
	// also used by the session itself.
	ConnConfig

	// Timeout limits each round trip performed by [Session.Authenticate] and [Session.Exec]. A
	// value of zero selects [DefaultTimeout].
	Timeout time.Duration

	// StartingSeq is the correlation ID of the first command. Values below [CommandID] are
	// ignored.
	StartingSeq int32

	// TracerProvider creates the tracer used for session spans. Defaults to the global provider.
	TracerProvider trace.TracerProvider
}

// Session drives the authorization handshake and command exchange over a single [Conn]:
//
//	disconnected -> connected -> authenticating -> authenticated -> executing -> done
//
// Any transport, framing or protocol error moves the session to [StateFailed], closes the
// connection, and makes every later operation fail with [ErrSessionFailed]. There is no retry and
// no reconnection; callers wanting either create a new Session.
//
// Session operations are serialized. A Session is safe for concurrent use, but commands from
// several goroutines run one after another.
type Session struct {
	id     uuid.UUID
	config SessionConfig

	mu       sync.Mutex
	state    State
	err      error
	conn     *Conn
	endpoint string
	seq      int32

	timeout time.Duration
	logger  zerolog.Logger
	tracer  trace.Tracer
}

// NewSession creates a disconnected [Session].
func NewSession(config SessionConfig) *Session {
	s := &Session{
		id:      uuid.New(),
		config:  config,
		timeout: config.Timeout,
		seq:     CommandID,
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	if config.StartingSeq > CommandID {
		s.seq = config.StartingSeq
	}

	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = *config.Logger
	}
	s.logger = logger.With().Str("session", s.id.String()).Logger()

	tp := config.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	s.tracer = tp.Tracer(tracerName)

	return s
}

// ID returns the identifier used to tag the session's log entries and spans.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that moved the session to [StateFailed], or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Connect dials endpoint ("host:port") using the session's [ConnConfig].
func (s *Session) Connect(ctx context.Context, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.expect(StateDisconnected); err != nil {
		return err
	}

	conn, err := Dial(ctx, endpoint, s.config.ConnConfig)
	if err != nil {
		return s.fail(err)
	}
	s.endpoint = endpoint
	s.logger = s.logger.With().Str("endpoint", endpoint).Logger()
	s.conn = conn
	s.transition(StateConnected)
	return nil
}

// Attach adopts an already established [Conn], for callers that bring their own transport.
func (s *Session) Attach(conn *Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.expect(StateDisconnected); err != nil {
		return err
	}
	s.endpoint = conn.RemoteAddr().String()
	s.conn = conn
	s.transition(StateConnected)
	return nil
}

// Authenticate sends password to the server and waits for the authorization outcome. Packets that
// are not authorization responses are discarded. A response echoing an ID other than [AuthID], or a
// packet of type [PacketTypeAuthFailed], fails the session with [ErrAuthRejected].
func (s *Session) Authenticate(ctx context.Context, password string) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.expect(StateConnected); err != nil {
		return err
	}

	req, err := NewPacket(AuthID, PacketTypeAuth, password)
	if err != nil {
		return err
	}

	ctx, span := s.startSpan(ctx, "rcon.Authenticate", attribute.Int("rcon.packet_id", int(AuthID)))
	defer func() { endSpan(span, err) }()

	ctx, release := s.bind(ctx)
	defer release()

	s.transition(StateAuthenticating)
	if err := s.conn.Send(req); err != nil {
		return s.fail(withContext(ctx, err))
	}

	for {
		resp, err := s.conn.Receive()
		if err != nil {
			return s.fail(withContext(ctx, err))
		}

		switch resp.Type {
		case PacketTypeExecCommandOrAuthResponse:
			if resp.ID != AuthID {
				s.config.Metrics.recordAuth("rejected")
				return s.fail(fmt.Errorf("%w: response id %d", ErrAuthRejected, resp.ID))
			}
			s.config.Metrics.recordAuth("accepted")
			s.transition(StateAuthenticated)
			return nil

		case PacketTypeAuthFailed:
			s.config.Metrics.recordAuth("rejected")
			return s.fail(fmt.Errorf("%w: auth failed packet id %d", ErrAuthRejected, resp.ID))

		default:
			s.discard(resp)
		}
	}
}

// Exec sends command to the server and returns the body of the first response value packet that
// echoes the command's ID. Exec may be called again once a previous command completed.
//
// Servers that split long output across several packets are answered with the first one only.
func (s *Session) Exec(ctx context.Context, command string) (out string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.expect(StateAuthenticated, StateDone); err != nil {
		return "", err
	}

	id := s.nextSeq()
	req, err := NewPacket(id, PacketTypeExecCommandOrAuthResponse, command)
	if err != nil {
		return "", err
	}

	ctx, span := s.startSpan(ctx, "rcon.Exec", attribute.Int("rcon.packet_id", int(id)))
	defer func() { endSpan(span, err) }()

	ctx, release := s.bind(ctx)
	defer release()

	start := time.Now()
	s.transition(StateExecuting)
	if err := s.conn.Send(req); err != nil {
		return "", s.fail(withContext(ctx, err))
	}

	for {
		resp, err := s.conn.Receive()
		if err != nil {
			return "", s.fail(withContext(ctx, err))
		}
		if resp.ID != id || resp.Type != PacketTypeResponseValue {
			s.discard(resp)
			continue
		}

		s.config.Metrics.recordCommand(time.Since(start))
		s.transition(StateDone)
		span.SetAttributes(attribute.Int("rcon.response_bytes", len(resp.Body)))
		return string(resp.Body), nil
	}
}

// Close closes the session's connection, if any. The session state is left unchanged.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil || s.state == StateFailed {
		// Failed sessions already closed their connection.
		return nil
	}
	return s.conn.Close()
}

// Run connects to endpoint, authenticates with password, executes command and returns its output.
// The connection is closed before Run returns.
func Run(ctx context.Context, endpoint, password, command string, config SessionConfig) (string, error) {
	s := NewSession(config)
	defer s.Close()

	if err := s.Connect(ctx, endpoint); err != nil {
		return "", err
	}
	if err := s.Authenticate(ctx, password); err != nil {
		return "", err
	}
	return s.Exec(ctx, command)
}

// expect returns an error unless the session is in one of the allowed states.
func (s *Session) expect(allowed ...State) error {
	if s.state == StateFailed {
		return fmt.Errorf("%w: %w", ErrSessionFailed, s.err)
	}
	for _, state := range allowed {
		if s.state == state {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidState, s.state)
}

func (s *Session) transition(to State) {
	s.logger.Debug().Stringer("from", s.state).Stringer("to", to).Msg("session state changed")
	s.state = to
}

// fail moves the session to StateFailed, closes its connection and returns err.
func (s *Session) fail(err error) error {
	s.transition(StateFailed)
	s.err = err
	if s.conn != nil {
		_ = s.conn.Close()
	}

	ev := s.logger.Debug()
	if errors.Is(err, ErrAuthRejected) {
		// Transport and framing errors were already counted by the Conn.
		s.config.Metrics.recordError(err)
		ev = s.logger.Warn()
	}
	ev.Err(err).Stringer("kind", KindOf(err)).Msg("session failed")
	return err
}

func (s *Session) discard(p Packet) {
	s.logger.Debug().Int32("id", p.ID).Stringer("type", p.Type).Int("len", len(p.Body)).Msg("discarded packet")
}

// nextSeq returns and then increments the session's command ID, wrapping around to CommandID when
// math.MaxInt32 is reached. IDs below CommandID are reserved for authorization.
func (s *Session) nextSeq() int32 {
	seq := s.seq
	if seq == math.MaxInt32 {
		s.seq = CommandID
	} else {
		s.seq = seq + 1
	}
	return seq
}

// bind applies the session timeout and ctx to the connection. A blocked exact read cannot be
// abandoned safely, so cancellation forces the connection deadline instead; the interrupted
// operation then fails with a transport error.
func (s *Session) bind(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetDeadline(deadline)
	}

	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(fired)
		_ = s.conn.SetDeadline(time.Now())
	})

	return ctx, func() {
		if !stop() {
			<-fired
		}
		cancel()
		_ = s.conn.SetDeadline(time.Time{})
	}
}

// withContext attaches the context's error to err when the context ended the operation. The
// connection deadline may fire slightly ahead of the context's own timer.
func withContext(ctx context.Context, err error) error {
	ctxErr := ctx.Err()
	if deadline, ok := ctx.Deadline(); ctxErr == nil && ok && !time.Now().Before(deadline) {
		ctxErr = context.DeadlineExceeded
	}
	if ctxErr != nil {
		return fmt.Errorf("%w: %w", err, ctxErr)
	}
	return err
}

func (s *Session) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("rcon.session_id", s.id.String()),
		attribute.String("rcon.endpoint", s.endpoint),
	)
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...), trace.WithSpanKind(trace.SpanKindClient))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("rcon.error_kind", KindOf(err).String()))
	}
	span.End()
}
