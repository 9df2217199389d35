// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package config

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/term"
)

// ErrNoTerminal is returned by PromptPassword when fd is not an interactive terminal.
var ErrNoTerminal = errors.New("password required but stdin is not a terminal")

// PromptPassword fills in a missing password by reading it from the terminal at fd without
// echo. The prompt is written to out.
func (config *Config) PromptPassword(fd int, out io.Writer) error {
	if config.Password != "" {
		return nil
	}
	if !term.IsTerminal(fd) {
		return ErrNoTerminal
	}

	fmt.Fprintf(out, "Password for %s: ", config.Endpoint)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	config.Password = string(b)
	return nil
}
