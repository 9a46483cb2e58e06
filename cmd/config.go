package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/cortexchat/internal/config"
	"github.com/cortexchat/internal/logging"
)

// ConfigCommand returns the config command
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Initialize a new configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path",
						Value:   "cortexchat.toml",
					},
				},
				Action: runConfigInit,
			},
			{
				Name:   "validate",
				Usage:  "Validate the configuration file",
				Action: runConfigValidate,
			},
			{
				Name:  "env",
				Usage: "List CORTEXCHAT_ environment overrides",
				Action: func(c *cli.Context) error {
					PrintEnvCheck(c.App.Writer, CheckEnvOverrides(os.Environ()))
					return nil
				},
			},
			{
				Name:   "show",
				Usage:  "Print the effective configuration with secrets masked",
				Action: runConfigShow,
			},
		},
	}
}

func runConfigInit(c *cli.Context) error {
	outputPath := c.String("output")

	if err := config.InitConfig(outputPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "Created configuration file at %s\n", outputPath)
	return nil
}

func runConfigValidate(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	fmt.Fprintln(c.App.Writer, "Configuration is valid")
	return nil
}

func runConfigShow(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	settings := cfg.PipelineSettings()
	w := c.App.Writer
	fmt.Fprintf(w, "snowflake.account_url   = %s\n", cfg.Snowflake.AccountURL)
	fmt.Fprintf(w, "snowflake.token         = %s\n", logging.MaskSecret(cfg.Snowflake.Token))
	fmt.Fprintf(w, "analyst.semantic_model  = %s\n", settings.SemanticModelFile)
	fmt.Fprintf(w, "analyst.warehouse       = %s\n", settings.AnalystWarehouse)
	fmt.Fprintf(w, "statement               = %s.%s on %s as %s (timeout %ds)\n",
		settings.Statement.Database, settings.Statement.Schema,
		settings.Statement.Warehouse, settings.Statement.Role, settings.Statement.Timeout)
	fmt.Fprintf(w, "summary                 = %s (temperature %.2f, max_tokens %d)\n",
		settings.Summary.Model, settings.Summary.Temperature, settings.Summary.MaxTokens)
	fmt.Fprintf(w, "poll                    = %d attempts, %v base, %v max\n",
		settings.Poll.MaxAttempts, settings.Poll.BaseDelay, settings.Poll.MaxDelay)
	fmt.Fprintf(w, "log                     = %s/%s\n", cfg.Log.Level, cfg.Log.Format)
	if cfg.Log.TraceFile != "" {
		fmt.Fprintf(w, "log.trace_file          = %s\n", cfg.Log.TraceFile)
	}
	fmt.Fprintf(w, "server                  = %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	return nil
}
