// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

// Command rcon executes a single command on a Source RCON server.
//
//	RCON_PASSWORD=secret rcon exec -e 192.0.2.1:27015 status
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	configureLogging()

	rootCmd := &cobra.Command{
		Use:   "rcon",
		Short: "Source RCON client",
		Long: `rcon connects to a game server speaking the Source RCON protocol,
authenticates and executes a command.

Settings are read from an optional JSON file, then the RCON_ENDPOINT,
RCON_PASSWORD and RCON_COMMAND environment variables, then flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		execCmd(),
		versionCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		log.Error().Err(err).Msg("rcon failed")
		os.Exit(exitCode(err))
	}
}

// configureLogging writes human readable logs to stderr so stdout carries only command output.
func configureLogging() {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}
