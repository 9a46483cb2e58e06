package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/cortexchat/internal/api"
)

// ServeCommand returns the CLI command for starting the API server
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve one conversation over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Interface to listen on (default from config)",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (default from config)",
			},
		},
		Action: func(c *cli.Context) error {
			s, err := newSession(c)
			if err != nil {
				return err
			}
			defer s.Close()

			opts := api.Options{
				Host:      s.cfg.Server.Host,
				Port:      s.cfg.Server.Port,
				RateLimit: s.cfg.Server.RateLimit,
				Burst:     s.cfg.Server.Burst,
			}
			if c.IsSet("host") {
				opts.Host = c.String("host")
			}
			if c.IsSet("port") {
				opts.Port = c.Int("port")
			}

			fmt.Fprintf(c.App.Writer, "Starting cortexchat API server on %s:%d...\n", opts.Host, opts.Port)

			server := api.NewServer(s.orch, opts)
			return server.Start()
		},
	}
}
