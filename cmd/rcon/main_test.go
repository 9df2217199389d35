// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/schultz-is/rcon-go/v2"
	"github.com/schultz-is/rcon-go/v2/internal/version"
)

func TestExitCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, exitOK},
		{errors.New("command is required"), exitUsage},
		{fmt.Errorf("%w: dial: refused", rcon.ErrTransport), exitTransport},
		{rcon.ErrConnBroken, exitTransport},
		{rcon.ErrInteriorNUL, exitFraming},
		{fmt.Errorf("%w: response id -1", rcon.ErrAuthRejected), exitAuth},
		{rcon.ErrBodyContainsNUL, exitEncoding},
		{rcon.ErrInvalidState, exitState},
	}
	for _, tc := range cases {
		if got := exitCode(tc.err); got != tc.want {
			t.Errorf("exitCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

// listenServer accepts any password and answers commands with their length.
func listenServer(t *testing.T) string {
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
			go func() {
				defer conn.Close()
				for {
					req, err := rcon.ReadPacket(conn)
					if err != nil {
						return
					}
					resp := rcon.Packet{ID: req.ID, Type: rcon.PacketTypeExecCommandOrAuthResponse}
					if req.Type != rcon.PacketTypeAuth {
						resp.Type = rcon.PacketTypeResponseValue
						resp.Body = []byte(fmt.Sprintf("%d", len(req.Body)))
					}
					if _, err := resp.WriteTo(conn); err != nil {
						return
					}
				}
			}()
		}
	}()

	return ln.Addr().String()
}

func TestExecCmd(t *testing.T) {
	addr := listenServer(t)

	t.Run(
		"arguments form the command",
		func(t *testing.T) {
			var out bytes.Buffer
			cmd := execCmd()
			cmd.SetOut(&out)
			cmd.SetArgs([]string{"-e", addr, "-p", "pw", "--timeout", "2s", "say", "hello", "world"})

			if err := cmd.ExecuteContext(context.Background()); err != nil {
				t.Fatalf("exec failed unexpectedly: %s", err)
			}
			if got := strings.TrimSpace(out.String()); got != "15" {
				t.Fatalf("exec printed %q, want %q", got, "15")
			}
		},
	)

	t.Run(
		"environment",
		func(t *testing.T) {
			t.Setenv("RCON_ENDPOINT", addr)
			t.Setenv("RCON_PASSWORD", "pw")
			t.Setenv("RCON_COMMAND", "status")

			var out bytes.Buffer
			cmd := execCmd()
			cmd.SetOut(&out)
			cmd.SetArgs([]string{})

			if err := cmd.ExecuteContext(context.Background()); err != nil {
				t.Fatalf("exec failed unexpectedly: %s", err)
			}
			if got := strings.TrimSpace(out.String()); got != "6" {
				t.Fatalf("exec printed %q, want %q", got, "6")
			}
		},
	)

	t.Run(
		"missing command",
		func(t *testing.T) {
			cmd := execCmd()
			cmd.SetArgs([]string{"-e", addr, "-p", "pw"})

			err := cmd.ExecuteContext(context.Background())
			if err == nil || exitCode(err) != exitUsage {
				t.Fatalf("exec error = %v, want a usage error", err)
			}
		},
	)

	t.Run(
		"flags override the environment",
		func(t *testing.T) {
			opts := execOptions{endpoint: addr, timeout: time.Second}
			cmd := execCmd()
			if err := cmd.Flags().Parse([]string{"--endpoint", addr, "--timeout", "1s"}); err != nil {
				t.Fatal(err)
			}
			lookup := func(key string) (string, bool) {
				if key == "RCON_ENDPOINT" {
					return "192.0.2.1:1", true
				}
				return "", false
			}

			cfg, err := opts.resolve(cmd, []string{"list"}, lookup)
			if err != nil {
				t.Fatalf("resolve() failed unexpectedly: %s", err)
			}
			if cfg.Endpoint != addr || cfg.Timeout != time.Second || cfg.Command != "list" {
				t.Fatalf("resolve() = %+v", cfg)
			}
		},
	)
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	cmd := versionCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--short"})

	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(out.String()); got != version.Version {
		t.Fatalf("version --short printed %q, want %q", got, version.Version)
	}
}
