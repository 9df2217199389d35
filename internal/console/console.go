// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

// Package console implements the interactive RCON shell.
package console

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/table"
	"github.com/rs/zerolog"

	"github.com/schultz-is/rcon-go/v2"
	"github.com/schultz-is/rcon-go/v2/internal/config"
)

// ErrNotConnected is returned by Exec when no authenticated session is open.
var ErrNotConnected = errors.New("not connected, use 'connect' first")

// Entry records one executed command.
type Entry struct {
	At       time.Time
	Command  string
	Output   string
	Duration time.Duration
	Err      error
}

// Console holds the state of an interactive shell: the configuration, at most one session and
// the command history.
type Console struct {
	config  *config.Config
	logger  zerolog.Logger
	metrics *rcon.Metrics

	mu      sync.Mutex
	session *rcon.Session
	history []Entry
}

// New creates a Console. metrics may be nil.
func New(cfg *config.Config, logger zerolog.Logger, metrics *rcon.Metrics) *Console {
	return &Console{
		config:  cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// Connect opens and authenticates a session against endpoint, or the configured endpoint when
// endpoint is empty. An open session is closed first.
func (c *Console) Connect(ctx context.Context, endpoint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if endpoint != "" {
		c.config.Endpoint = endpoint
	}
	if err := c.config.Validate(); err != nil {
		return err
	}
	c.closeLocked()

	s := rcon.NewSession(c.config.SessionConfig(&c.logger, c.metrics))
	if err := s.Connect(ctx, c.config.Endpoint); err != nil {
		return err
	}
	if err := s.Authenticate(ctx, c.config.Password); err != nil {
		_ = s.Close()
		return err
	}

	c.session = s
	c.logger.Info().Str("endpoint", c.config.Endpoint).Str("session", s.ID().String()).Msg("Authenticated")
	return nil
}

// Exec runs command on the open session and records it in the history. A session that failed
// is dropped so the next call reports ErrNotConnected.
func (c *Console) Exec(ctx context.Context, command string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return "", ErrNotConnected
	}

	start := time.Now()
	out, err := c.session.Exec(ctx, command)
	c.history = append(c.history, Entry{
		At:       start,
		Command:  command,
		Output:   out,
		Duration: time.Since(start),
		Err:      err,
	})

	if c.session.State() == rcon.StateFailed {
		c.logger.Warn().Err(err).Msg("Session lost")
		c.session = nil
	}
	return out, err
}

// Disconnect closes the open session, if any.
func (c *Console) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return ErrNotConnected
	}
	c.closeLocked()
	return nil
}

// Close releases the console's session.
func (c *Console) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}

func (c *Console) closeLocked() {
	if c.session == nil {
		return
	}
	if err := c.session.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Failed to close session")
	}
	c.session = nil
}

// Connected reports whether an authenticated session is open.
func (c *Console) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// History returns a copy of the executed commands, oldest first.
func (c *Console) History() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Entry(nil), c.history...)
}

// Healthy returns nil while a session is open.
func (c *Console) Healthy() error {
	if !c.Connected() {
		return ErrNotConnected
	}
	return nil
}

// Status renders the session state as a table.
func (c *Console) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Endpoint", "Session", "State", "Commands"})

	session, state := "-", rcon.StateDisconnected.String()
	if c.session != nil {
		session = c.session.ID().String()
		state = c.session.State().String()
	}
	t.AppendRow(table.Row{c.config.Endpoint, session, state, len(c.history)})

	return t.Render()
}

// RenderHistory formats entries as a table. Outputs are reduced to their first line.
func RenderHistory(entries []Entry) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)

	t.AppendHeader(table.Row{
		"#",
		"Time",
		"Command",
		"Duration",
		"Result",
	})

	for i, e := range entries {
		result := firstLine(e.Output)
		if e.Err != nil {
			result = fmt.Sprintf("error (%s)", rcon.KindOf(e.Err))
		}
		t.AppendRow(table.Row{
			i + 1,
			e.At.Format("15:04:05"),
			e.Command,
			e.Duration.Round(time.Millisecond),
			result,
		})
	}

	return t.Render()
}

func firstLine(s string) string {
	line, _, more := strings.Cut(strings.TrimSpace(s), "\n")
	if more {
		return line + " ..."
	}
	return line
}
