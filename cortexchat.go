package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/cortexchat/cmd"
)

const (
	version = "0.1.0"
)

func main() {
	app := &cli.App{
		Name:    "cortexchat",
		Usage:   "Ask questions about your Snowflake data in plain language",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE` (default ./cortexchat.toml, then $HOME/.cortexchat.toml)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override the configured log level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			cmd.ChatCommand(),
			cmd.AskCommand(),
			cmd.ServeCommand(),
			cmd.ConfigCommand(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
