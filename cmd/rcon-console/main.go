// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

// Command rcon-console is an interactive Source RCON shell.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/desertbit/grumble"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/schultz-is/rcon-go/v2"
	"github.com/schultz-is/rcon-go/v2/internal/config"
	"github.com/schultz-is/rcon-go/v2/internal/console"
	"github.com/schultz-is/rcon-go/v2/internal/version"
)

const banner = `
  ┬─┐┌─┐┌─┐┌┐┌
  ├┬┘│  │ ││││
  ┴└─└─┘└─┘┘└┘  console %s

`

const defaultPrompt = "rcon » "

var (
	shell         *console.Console
	metricsServer *http.Server
)

func main() {
	configureLogging()

	app := setupCLI()

	if err := app.Run(); err != nil {
		log.Fatal().Msg(err.Error())
	}
}

func configureLogging() {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "15:04:05",
	})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func setupCLI() *grumble.App {
	var histFile string
	home, err := os.UserHomeDir()
	if err != nil {
		histFile = ".rcon_history"
	} else {
		histFile = filepath.Join(home, ".rcon_history")
	}

	app := grumble.New(&grumble.Config{
		Name:        "rcon-console",
		Description: "interactive Source RCON shell",
		HistoryFile: histFile,
		Prompt:      defaultPrompt,
		Flags: func(f *grumble.Flags) {
			f.String("c", "config", "", "path to a JSON configuration file")
			f.String("e", "endpoint", "", "server address as host:port")
			f.Duration("t", "timeout", rcon.DefaultTimeout, "limit for each request and response round trip")
			f.Bool("", "tls", false, "connect using TLS")
			f.Bool("", "lenient", false, "ignore packet sizes announced by the server")
			f.String("l", "log-level", "", "log level (trace, debug, info, warn, error)")
			f.String("m", "metrics-addr", "", "serve Prometheus metrics on this address, e.g. 127.0.0.1:9150")
		},
	})

	app.SetPrintASCIILogo(func(a *grumble.App) {
		fmt.Printf(banner, version.Version)
	})

	app.OnInit(func(a *grumble.App, flags grumble.FlagMap) error {
		cfg, err := config.Load(flags.String("config"))
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg.ApplyEnv(os.LookupEnv)
		if v := flags.String("endpoint"); v != "" {
			cfg.Endpoint = v
		}
		if v := flags.String("log-level"); v != "" {
			cfg.LogLevel = v
		}
		if flags.Duration("timeout") != rcon.DefaultTimeout {
			cfg.Timeout = flags.Duration("timeout")
		}
		if flags.Bool("tls") {
			cfg.TLS = true
		}
		if flags.Bool("lenient") {
			cfg.Lenient = true
		}
		zerolog.SetGlobalLevel(cfg.Level())

		var metrics *rcon.Metrics
		if addr := flags.String("metrics-addr"); addr != "" {
			registry := prometheus.NewRegistry()
			metrics = rcon.NewMetrics(rcon.WithRegistry(registry))
			if err := serveMetrics(addr, registry); err != nil {
				return err
			}
		}

		shell = console.New(cfg, log.Logger, metrics)
		shell.AddCommands(a)

		if cfg.Endpoint == "" {
			return nil
		}
		if err := cfg.PromptPassword(int(os.Stdin.Fd()), os.Stdout); err != nil {
			return err
		}
		if err := shell.Connect(context.Background(), ""); err != nil {
			log.Error().Err(err).Msg("Failed to connect")
			return nil
		}
		a.SetPrompt(cfg.Endpoint + " » ")
		return nil
	})

	app.OnClose(func() error {
		if metricsServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(ctx)
		}
		if shell != nil {
			return shell.Close()
		}
		return nil
	})

	return app
}

// serveMetrics starts the /metrics and /healthz endpoints in the background.
func serveMetrics(addr string, registry *prometheus.Registry) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	metricsServer = &http.Server{
		Handler: console.NewRouter(registry, func() error {
			if shell == nil {
				return console.ErrNotConnected
			}
			return shell.Healthy()
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server stopped")
		}
	}()

	log.Info().Str("addr", ln.Addr().String()).Msg("Serving metrics")
	return nil
}
