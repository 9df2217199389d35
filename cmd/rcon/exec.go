// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/schultz-is/rcon-go/v2"
	"github.com/schultz-is/rcon-go/v2/internal/config"
)

// execOptions holds the flag values of the exec command.
type execOptions struct {
	configPath  string
	endpoint    string
	password    string
	timeout     time.Duration
	dialTimeout time.Duration
	tls         bool
	tlsInsecure bool
	lenient     bool
	logLevel    string
}

func execCmd() *cobra.Command {
	var opts execOptions

	cmd := &cobra.Command{
		Use:   "exec [command...]",
		Short: "Authenticate and execute one command",
		Long: `Connect to the server, authenticate and execute one command, printing its
output. Arguments are joined with spaces; without arguments RCON_COMMAND or
the configuration file supplies the command. A missing password is read
from the terminal.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.resolve(cmd, args, os.LookupEnv)
			if err != nil {
				return err
			}
			zerolog.SetGlobalLevel(cfg.Level())

			if err := cfg.PromptPassword(int(os.Stdin.Fd()), os.Stderr); err != nil {
				return err
			}

			logger := log.Logger
			out, err := rcon.Run(cmd.Context(), cfg.Endpoint, cfg.Password, cfg.Command, cfg.SessionConfig(&logger, nil))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "path to a JSON configuration file")
	f.StringVarP(&opts.endpoint, "endpoint", "e", "", "server address as host:port")
	f.StringVarP(&opts.password, "password", "p", "", "server password (prefer RCON_PASSWORD or the prompt)")
	f.DurationVar(&opts.timeout, "timeout", rcon.DefaultTimeout, "limit for each request and response round trip")
	f.DurationVar(&opts.dialTimeout, "dial-timeout", config.DefaultDialTimeout, "limit for connection establishment")
	f.BoolVar(&opts.tls, "tls", false, "connect using TLS")
	f.BoolVar(&opts.tlsInsecure, "tls-insecure", false, "skip TLS certificate verification")
	f.BoolVar(&opts.lenient, "lenient", false, "ignore packet sizes announced by the server")
	f.StringVar(&opts.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")

	return cmd
}

// resolve layers the configuration file, the environment, explicitly set flags and args.
func (opts *execOptions) resolve(cmd *cobra.Command, args []string, lookup func(string) (string, bool)) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(lookup)

	flags := cmd.Flags()
	if flags.Changed("endpoint") {
		cfg.Endpoint = opts.endpoint
	}
	if flags.Changed("password") {
		cfg.Password = opts.password
	}
	if flags.Changed("timeout") {
		cfg.Timeout = opts.timeout
	}
	if flags.Changed("dial-timeout") {
		cfg.DialTimeout = opts.dialTimeout
	}
	if flags.Changed("tls") {
		cfg.TLS = opts.tls
	}
	if flags.Changed("tls-insecure") {
		cfg.TLSInsecure = opts.tlsInsecure
	}
	if flags.Changed("lenient") {
		cfg.Lenient = opts.lenient
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if len(args) > 0 {
		cfg.Command = strings.Join(args, " ")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Command == "" {
		return nil, errors.New("command is required")
	}
	return cfg, nil
}
