// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

// Package config loads the settings shared by the rcon command line tools. Values are layered:
// defaults, then an optional JSON file, then RCON_* environment variables, then flags.
package config

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/schultz-is/rcon-go/v2"
)

// Environment variables read by ApplyEnv.
const (
	EnvEndpoint = "RCON_ENDPOINT"
	EnvPassword = "RCON_PASSWORD"
	EnvCommand  = "RCON_COMMAND"
)

// DefaultDialTimeout bounds connection establishment when nothing else is configured.
const DefaultDialTimeout = 5 * time.Second

// Config holds everything needed to run a session against one server.
type Config struct {
	Endpoint    string        // host:port
	Password    string        // RCON password
	Command     string        // command for one-shot execution
	Timeout     time.Duration // per round trip
	DialTimeout time.Duration // connection establishment
	TLS         bool          // wrap the connection in TLS
	TLSInsecure bool          // skip certificate verification
	Lenient     bool          // ignore declared packet sizes
	LogLevel    string        // zerolog level name
}

// file is the on-disk form of Config. Durations are written as strings such as "10s".
type file struct {
	Endpoint    string `json:"endpoint"`
	Password    string `json:"password,omitempty"`
	Command     string `json:"command,omitempty"`
	Timeout     string `json:"timeout,omitempty"`
	DialTimeout string `json:"dial_timeout,omitempty"`
	TLS         bool   `json:"tls,omitempty"`
	TLSInsecure bool   `json:"tls_insecure,omitempty"`
	Lenient     bool   `json:"lenient,omitempty"`
	LogLevel    string `json:"log_level,omitempty"`
}

// Default returns a Config populated with default values.
func Default() *Config {
	return &Config{
		Timeout:     rcon.DefaultTimeout,
		DialTimeout: DefaultDialTimeout,
		LogLevel:    zerolog.InfoLevel.String(),
	}
}

// Load reads the JSON configuration file at path on top of the defaults. An empty path returns
// the defaults.
func Load(path string) (*Config, error) {
	config := Default()
	if path == "" {
		return config, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", absPath, err)
	}

	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", absPath, err)
	}

	config.Endpoint = f.Endpoint
	config.Password = f.Password
	config.Command = f.Command
	config.TLS = f.TLS
	config.TLSInsecure = f.TLSInsecure
	config.Lenient = f.Lenient
	if f.LogLevel != "" {
		config.LogLevel = f.LogLevel
	}
	if f.Timeout != "" {
		if config.Timeout, err = time.ParseDuration(f.Timeout); err != nil {
			return nil, fmt.Errorf("invalid timeout in %s: %w", absPath, err)
		}
	}
	if f.DialTimeout != "" {
		if config.DialTimeout, err = time.ParseDuration(f.DialTimeout); err != nil {
			return nil, fmt.Errorf("invalid dial_timeout in %s: %w", absPath, err)
		}
	}

	return config, nil
}

// ApplyEnv overrides fields from the RCON_* environment variables. lookup is normally
// os.LookupEnv.
func (config *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvEndpoint); ok {
		config.Endpoint = v
	}
	if v, ok := lookup(EnvPassword); ok {
		config.Password = v
	}
	if v, ok := lookup(EnvCommand); ok {
		config.Command = v
	}
}

// Validate checks the fields required to open a session. The password and command are not
// checked here since both may be supplied interactively.
func (config *Config) Validate() error {
	if config.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	if _, _, err := net.SplitHostPort(config.Endpoint); err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", config.Endpoint, err)
	}
	if config.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative: %s", config.Timeout)
	}
	if config.DialTimeout < 0 {
		return fmt.Errorf("dial_timeout must not be negative: %s", config.DialTimeout)
	}
	if config.TLSInsecure && !config.TLS {
		return errors.New("tls_insecure requires tls")
	}
	if _, err := zerolog.ParseLevel(config.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", config.LogLevel, err)
	}
	return nil
}

// Level returns the parsed log level, falling back to info.
func (config *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(config.LogLevel)
	if err != nil || config.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return level
}

// SessionConfig builds the session settings described by config.
func (config *Config) SessionConfig(logger *zerolog.Logger, metrics *rcon.Metrics) rcon.SessionConfig {
	sc := rcon.SessionConfig{
		ConnConfig: rcon.ConnConfig{
			DialTimeout: config.DialTimeout,
			Lenient:     config.Lenient,
			Logger:      logger,
			Metrics:     metrics,
		},
		Timeout: config.Timeout,
	}
	if config.TLS {
		host, _, _ := net.SplitHostPort(config.Endpoint)
		sc.TLSConfig = &tls.Config{
			ServerName:         host,
			InsecureSkipVerify: config.TLSInsecure,
			MinVersion:         tls.VersionTLS12,
		}
	}
	return sc
}
