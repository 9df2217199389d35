// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package console

import (
	"context"
	"strings"

	"github.com/desertbit/grumble"
	"github.com/rs/zerolog/log"
)

// AddCommands registers the shell commands with app.
func (c *Console) AddCommands(app *grumble.App) {
	app.AddCommand(&grumble.Command{
		Name:    "connect",
		Aliases: []string{"open"},
		Help:    "connect and authenticate to a server",
		Args: func(a *grumble.Args) {
			a.String("endpoint", "host:port of the server, defaults to the configured endpoint", grumble.Default(""))
		},
		Run: func(ctx *grumble.Context) error {
			if err := c.Connect(context.Background(), ctx.Args.String("endpoint")); err != nil {
				log.Error().Err(err).Msg("Failed to connect")
				return nil
			}
			ctx.App.SetPrompt(c.config.Endpoint + " » ")
			return nil
		},
	})

	app.AddCommand(&grumble.Command{
		Name:    "exec",
		Aliases: []string{"x"},
		Help:    "execute a command on the server",
		Args: func(a *grumble.Args) {
			a.StringList("command", "command and its arguments")
		},
		Run: func(ctx *grumble.Context) error {
			command := strings.Join(ctx.Args.StringList("command"), " ")
			if command == "" {
				log.Warn().Msg("No command given")
				return nil
			}

			out, err := c.Exec(context.Background(), command)
			if err != nil {
				log.Error().Err(err).Str("command", command).Msg("Command failed")
				if !c.Connected() {
					ctx.App.SetPrompt("rcon » ")
				}
				return nil
			}
			ctx.App.Println(out)
			return nil
		},
	})

	app.AddCommand(&grumble.Command{
		Name:    "history",
		Aliases: []string{"hist"},
		Help:    "list executed commands",
		Run: func(ctx *grumble.Context) error {
			entries := c.History()
			if len(entries) == 0 {
				log.Info().Msg("No commands executed yet")
				return nil
			}
			ctx.App.Println(RenderHistory(entries))
			return nil
		},
	})

	app.AddCommand(&grumble.Command{
		Name: "status",
		Help: "show the session state",
		Run: func(ctx *grumble.Context) error {
			ctx.App.Println(c.Status())
			return nil
		},
	})

	app.AddCommand(&grumble.Command{
		Name:    "disconnect",
		Aliases: []string{"close"},
		Help:    "close the session",
		Run: func(ctx *grumble.Context) error {
			if err := c.Disconnect(); err != nil {
				log.Warn().Err(err).Msg("Nothing to disconnect")
				return nil
			}
			ctx.App.SetPrompt("rcon » ")
			log.Info().Msg("Disconnected")
			return nil
		},
	})
}
