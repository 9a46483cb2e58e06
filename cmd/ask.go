package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
)

// AskCommand returns the one-shot question command
func AskCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Ask a single question and print the answer",
		ArgsUsage: "QUESTION",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "trace",
				Usage: "Print every request sent after the answer",
			},
		},
		Action: runAsk,
	}
}

func runAsk(c *cli.Context) error {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return errors.New("a question is required")
	}

	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	out := c.App.Writer
	unsubscribe := s.orch.State().Subscribe(newPrinter(out, true).handle)
	runErr := s.orch.Submit(c.Context, question)
	unsubscribe()

	if c.Bool("trace") {
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderTrace(s.orch.Recorder().Entries(), s.cfg.Snowflake.Token))
	}

	if runErr != nil {
		return cli.Exit("", 1)
	}
	return nil
}
