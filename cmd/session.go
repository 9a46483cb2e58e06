package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/cortexchat/internal/capture"
	"github.com/cortexchat/internal/config"
	"github.com/cortexchat/internal/conversation"
	"github.com/cortexchat/internal/logging"
	"github.com/cortexchat/internal/pipeline"
	"github.com/cortexchat/internal/trace"
	"github.com/cortexchat/internal/transport"
)

// session bundles everything one conversation needs
type session struct {
	cfg        *config.Config
	orch       *pipeline.Orchestrator
	sessionLog *logging.SessionLog
	detach     []func()
}

// newSession loads and validates the configuration, configures logging and
// wires a fresh conversation to the Snowflake endpoints
func newSession(c *cli.Context) (*session, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if level := c.String("log-level"); level != "" {
		cfg.Log.Level = level
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format, c.App.ErrWriter)

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	client := transport.New(transport.Options{
		Credential: cfg.Snowflake.Token,
		TokenType:  cfg.Snowflake.TokenType,
		UserAgent:  cfg.Snowflake.UserAgent,
	})
	state := conversation.NewState()
	orch := pipeline.New(client, state, trace.NewRecorder(), cfg.PipelineSettings())

	s := &session{cfg: cfg, orch: orch}
	if cfg.Log.TraceFile != "" {
		sessionLog, err := logging.OpenSessionLog(cfg.Log.TraceFile, cfg.Snowflake.Token)
		if err != nil {
			return nil, err
		}
		s.sessionLog = sessionLog
		s.detach = append(s.detach, sessionLog.Attach(state))
		log.Debug().Str("path", cfg.Log.TraceFile).Msg("Mirroring request trace to file")
	}
	if cfg.Log.CaptureDir != "" {
		writer := capture.NewWriter(cfg.Log.CaptureDir, cfg.Snowflake.Token)
		s.detach = append(s.detach, writer.Attach(state))
		log.Debug().Str("dir", writer.Dir()).Msg("Capturing request trace as JSON fixtures")
	}

	return s, nil
}

// Close detaches the trace sinks and closes the session log
func (s *session) Close() {
	for _, detach := range s.detach {
		detach()
	}
	if err := s.sessionLog.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close session log")
	}
}
