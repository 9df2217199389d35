// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package rcon_test

import (
	"context"
	"errors"
	"math"
	"net"
	"testing"
	"time"

	"github.com/schultz-is/rcon-go/v2"
)

// peer plays the server side of a session over an in-memory connection.
type peer struct {
	t    *testing.T
	conn net.Conn
}

// expect reads the next request and checks its type.
func (p peer) expect(typ rcon.PacketType) rcon.Packet {
	req, err := rcon.ReadPacket(p.conn)
	if err != nil {
		p.t.Errorf("Server failed to read request: %s", err)
		return rcon.Packet{}
	}
	if req.Type != typ {
		p.t.Errorf("Server received packet type %s, want %s", req.Type, typ)
	}
	return req
}

func (p peer) reply(id int32, typ rcon.PacketType, body string) {
	resp := rcon.Packet{ID: id, Type: typ, Body: []byte(body)}
	if _, err := resp.WriteTo(p.conn); err != nil {
		p.t.Errorf("Server failed to write response: %s", err)
	}
}

// scriptedSession attaches a new session to a pipe whose far end is driven by script. The
// returned channel is closed when script returns.
func scriptedSession(t *testing.T, config rcon.SessionConfig, script func(peer)) (*rcon.Session, <-chan struct{}) {
	t.Helper()

	cc, sc := net.Pipe()
	t.Cleanup(func() {
		_ = cc.Close()
		_ = sc.Close()
	})

	s := rcon.NewSession(config)
	if err := s.Attach(rcon.NewConn(cc, config.ConnConfig)); err != nil {
		t.Fatalf("Attach() failed unexpectedly: %s", err)
	}
	if s.State() != rcon.StateConnected {
		t.Fatalf("State() = %s after Attach(), want connected", s.State())
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		script(peer{t: t, conn: sc})
	}()

	return s, done
}

func TestSessionAuthenticate(t *testing.T) {
	t.Run(
		"accepted",
		func(t *testing.T) {
			s, done := scriptedSession(t, rcon.SessionConfig{}, func(p peer) {
				req := p.expect(rcon.PacketTypeAuth)
				if string(req.Body) != "password" || req.ID != rcon.AuthID {
					t.Errorf("Server received auth request %#v", req)
				}
				// Source servers precede the auth response with an empty response value.
				p.reply(req.ID, rcon.PacketTypeResponseValue, "")
				p.reply(req.ID, rcon.PacketTypeExecCommandOrAuthResponse, "")
			})

			if err := s.Authenticate(context.Background(), "password"); err != nil {
				t.Fatalf("Authenticate() failed unexpectedly: %s", err)
			}
			<-done
			if s.State() != rcon.StateAuthenticated {
				t.Fatalf("State() = %s, want authenticated", s.State())
			}
		},
	)

	t.Run(
		"rejected with id -1",
		func(t *testing.T) {
			s, done := scriptedSession(t, rcon.SessionConfig{}, func(p peer) {
				p.expect(rcon.PacketTypeAuth)
				p.reply(-1, rcon.PacketTypeResponseValue, "")
				p.reply(-1, rcon.PacketTypeExecCommandOrAuthResponse, "")
			})

			err := s.Authenticate(context.Background(), "wrong")
			if !errors.Is(err, rcon.ErrAuthRejected) {
				t.Fatalf("Authenticate() error = %v, want ErrAuthRejected", err)
			}
			<-done
			if s.State() != rcon.StateFailed {
				t.Fatalf("State() = %s, want failed", s.State())
			}
			if rcon.KindOf(err) != rcon.KindProtocol {
				t.Fatalf("KindOf(%v) = %s, want protocol", err, rcon.KindOf(err))
			}

			_, err = s.Exec(context.Background(), "status")
			if !errors.Is(err, rcon.ErrSessionFailed) || !errors.Is(err, rcon.ErrAuthRejected) {
				t.Fatalf("Exec() after rejection error = %v, want ErrSessionFailed and ErrAuthRejected", err)
			}
			if !errors.Is(s.Err(), rcon.ErrAuthRejected) {
				t.Fatalf("Err() = %v, want ErrAuthRejected", s.Err())
			}
		},
	)

	t.Run(
		"rejected with auth failed packet",
		func(t *testing.T) {
			s, done := scriptedSession(t, rcon.SessionConfig{}, func(p peer) {
				req := p.expect(rcon.PacketTypeAuth)
				p.reply(req.ID, rcon.PacketTypeAuthFailed, "")
			})

			err := s.Authenticate(context.Background(), "wrong")
			if !errors.Is(err, rcon.ErrAuthRejected) {
				t.Fatalf("Authenticate() error = %v, want ErrAuthRejected", err)
			}
			<-done
		},
	)

	t.Run(
		"password with NUL",
		func(t *testing.T) {
			s, _ := scriptedSession(t, rcon.SessionConfig{}, func(peer) {})

			err := s.Authenticate(context.Background(), "pass\x00word")
			if !errors.Is(err, rcon.ErrEncoding) {
				t.Fatalf("Authenticate() error = %v, want ErrEncoding", err)
			}
			if s.State() != rcon.StateConnected {
				t.Fatalf("State() = %s, want connected", s.State())
			}
		},
	)

	t.Run(
		"framing error",
		func(t *testing.T) {
			s, _ := scriptedSession(t, rcon.SessionConfig{}, func(p peer) {
				p.expect(rcon.PacketTypeAuth)
				_, _ = p.conn.Write([]byte{0x04, 0x00, 0x00, 0x00})
			})

			err := s.Authenticate(context.Background(), "password")
			if !errors.Is(err, rcon.ErrFraming) {
				t.Fatalf("Authenticate() error = %v, want ErrFraming", err)
			}
			if s.State() != rcon.StateFailed {
				t.Fatalf("State() = %s, want failed", s.State())
			}
		},
	)
}

func TestSessionExec(t *testing.T) {
	authenticate := func(p peer) {
		req := p.expect(rcon.PacketTypeAuth)
		p.reply(req.ID, rcon.PacketTypeExecCommandOrAuthResponse, "")
	}

	t.Run(
		"responses are matched by id",
		func(t *testing.T) {
			s, done := scriptedSession(t, rcon.SessionConfig{}, func(p peer) {
				authenticate(p)

				req := p.expect(rcon.PacketTypeExecCommandOrAuthResponse)
				if req.ID != rcon.CommandID || string(req.Body) != "status" {
					t.Errorf("Server received command %#v", req)
				}
				p.reply(req.ID+100, rcon.PacketTypeResponseValue, "stale")
				p.reply(req.ID, rcon.PacketTypeExecCommandOrAuthResponse, "wrong type")
				p.reply(req.ID, rcon.PacketTypeResponseValue, "hostname: test")

				req = p.expect(rcon.PacketTypeExecCommandOrAuthResponse)
				if req.ID != rcon.CommandID+1 {
					t.Errorf("Second command has id %d, want %d", req.ID, rcon.CommandID+1)
				}
				p.reply(req.ID, rcon.PacketTypeResponseValue, "")
			})

			if err := s.Authenticate(context.Background(), "password"); err != nil {
				t.Fatal(err)
			}

			out, err := s.Exec(context.Background(), "status")
			if err != nil {
				t.Fatalf("Exec() failed unexpectedly: %s", err)
			}
			if out != "hostname: test" {
				t.Fatalf("Exec() = %q, want %q", out, "hostname: test")
			}
			if s.State() != rcon.StateDone {
				t.Fatalf("State() = %s, want done", s.State())
			}

			out, err = s.Exec(context.Background(), "noop")
			if err != nil || out != "" {
				t.Fatalf("Exec() = %q, %v, want empty output", out, err)
			}
			<-done
		},
	)

	t.Run(
		"before authentication",
		func(t *testing.T) {
			s, _ := scriptedSession(t, rcon.SessionConfig{}, func(peer) {})

			_, err := s.Exec(context.Background(), "status")
			if !errors.Is(err, rcon.ErrInvalidState) {
				t.Fatalf("Exec() error = %v, want ErrInvalidState", err)
			}
			if s.State() != rcon.StateConnected {
				t.Fatalf("State() = %s, want connected", s.State())
			}
		},
	)

	t.Run(
		"sequence wraps around",
		func(t *testing.T) {
			config := rcon.SessionConfig{StartingSeq: math.MaxInt32}
			s, done := scriptedSession(t, config, func(p peer) {
				authenticate(p)
				for _, want := range []int32{math.MaxInt32, rcon.CommandID} {
					req := p.expect(rcon.PacketTypeExecCommandOrAuthResponse)
					if req.ID != want {
						t.Errorf("Command has id %d, want %d", req.ID, want)
					}
					p.reply(req.ID, rcon.PacketTypeResponseValue, "ok")
				}
			})

			if err := s.Authenticate(context.Background(), "password"); err != nil {
				t.Fatal(err)
			}
			for i := 0; i < 2; i++ {
				if _, err := s.Exec(context.Background(), "status"); err != nil {
					t.Fatalf("Exec() failed unexpectedly: %s", err)
				}
			}
			<-done
		},
	)

	t.Run(
		"timeout",
		func(t *testing.T) {
			config := rcon.SessionConfig{Timeout: 50 * time.Millisecond}
			s, _ := scriptedSession(t, config, func(p peer) {
				authenticate(p)
				p.expect(rcon.PacketTypeExecCommandOrAuthResponse)
			})

			if err := s.Authenticate(context.Background(), "password"); err != nil {
				t.Fatal(err)
			}

			_, err := s.Exec(context.Background(), "status")
			if !errors.Is(err, rcon.ErrTransport) || !errors.Is(err, context.DeadlineExceeded) {
				t.Fatalf("Exec() error = %v, want a transport timeout", err)
			}
			if s.State() != rcon.StateFailed {
				t.Fatalf("State() = %s, want failed", s.State())
			}
		},
	)

	t.Run(
		"cancellation",
		func(t *testing.T) {
			s, _ := scriptedSession(t, rcon.SessionConfig{}, func(p peer) {
				authenticate(p)
				p.expect(rcon.PacketTypeExecCommandOrAuthResponse)
			})

			if err := s.Authenticate(context.Background(), "password"); err != nil {
				t.Fatal(err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			time.AfterFunc(20*time.Millisecond, cancel)

			_, err := s.Exec(ctx, "status")
			if !errors.Is(err, context.Canceled) {
				t.Fatalf("Exec() error = %v, want context.Canceled", err)
			}
			if rcon.KindOf(err) != rcon.KindTransport {
				t.Fatalf("KindOf(%v) = %s, want transport", err, rcon.KindOf(err))
			}
		},
	)
}

func TestSessionConnect(t *testing.T) {
	t.Run(
		"connect twice",
		func(t *testing.T) {
			addr := listenEcho(t)

			s := rcon.NewSession(rcon.SessionConfig{})
			defer s.Close()

			if err := s.Connect(context.Background(), addr); err != nil {
				t.Fatalf("Connect(%s) failed unexpectedly: %s", addr, err)
			}
			err := s.Connect(context.Background(), addr)
			if !errors.Is(err, rcon.ErrInvalidState) {
				t.Fatalf("second Connect() error = %v, want ErrInvalidState", err)
			}
		},
	)

	t.Run(
		"unreachable",
		func(t *testing.T) {
			ln, err := net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				t.Fatal(err)
			}
			addr := ln.Addr().String()
			_ = ln.Close()

			s := rcon.NewSession(rcon.SessionConfig{})
			err = s.Connect(context.Background(), addr)
			if !errors.Is(err, rcon.ErrTransport) {
				t.Fatalf("Connect(%s) error = %v, want ErrTransport", addr, err)
			}
			if s.State() != rcon.StateFailed {
				t.Fatalf("State() = %s, want failed", s.State())
			}
		},
	)
}

// listenServer starts a loopback RCON server accepting password and answering every command
// with its own text reversed.
func listenServer(t *testing.T, password string) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %s", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serve(conn, password)
		}
	}()

	return ln.Addr().String()
}

func serve(conn net.Conn, password string) {
	defer conn.Close()

	for {
		req, err := rcon.ReadPacket(conn)
		if err != nil {
			return
		}

		var resp []rcon.Packet
		switch req.Type {
		case rcon.PacketTypeAuth:
			id := req.ID
			if string(req.Body) != password {
				id = -1
			}
			resp = append(resp,
				rcon.Packet{ID: id, Type: rcon.PacketTypeResponseValue},
				rcon.Packet{ID: id, Type: rcon.PacketTypeExecCommandOrAuthResponse},
			)
		case rcon.PacketTypeExecCommandOrAuthResponse:
			body := []byte(string(req.Body))
			for i, j := 0, len(body)-1; i < j; i, j = i+1, j-1 {
				body[i], body[j] = body[j], body[i]
			}
			resp = append(resp, rcon.Packet{ID: req.ID, Type: rcon.PacketTypeResponseValue, Body: body})
		}

		for _, p := range resp {
			if _, err := p.WriteTo(conn); err != nil {
				return
			}
		}
	}
}

func TestRun(t *testing.T) {
	addr := listenServer(t, "hunter2")

	t.Run(
		"success",
		func(t *testing.T) {
			out, err := rcon.Run(context.Background(), addr, "hunter2", "status", rcon.SessionConfig{})
			if err != nil {
				t.Fatalf("Run() failed unexpectedly: %s", err)
			}
			if out != "sutats" {
				t.Fatalf("Run() = %q, want %q", out, "sutats")
			}
		},
	)

	t.Run(
		"bad password",
		func(t *testing.T) {
			_, err := rcon.Run(context.Background(), addr, "hunter3", "status", rcon.SessionConfig{})
			if !errors.Is(err, rcon.ErrAuthRejected) {
				t.Fatalf("Run() error = %v, want ErrAuthRejected", err)
			}
		},
	)
}
