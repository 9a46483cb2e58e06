package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/cortexchat/internal/pipeline"
	"github.com/cortexchat/internal/retry"
)

// EnvPrefix is the prefix of environment overrides. A double underscore
// separates sections: CORTEXCHAT_SNOWFLAKE__TOKEN sets snowflake.token.
const EnvPrefix = "CORTEXCHAT_"

// DefaultPaths are tried in order when no config path is given
var DefaultPaths = []string{"./cortexchat.toml", "$HOME/.cortexchat.toml"}

// Config represents the application configuration
type Config struct {
	Snowflake struct {
		AccountURL string `koanf:"account_url"`
		Token      string `koanf:"token"`
		TokenType  string `koanf:"token_type"`
		UserAgent  string `koanf:"user_agent"`
	} `koanf:"snowflake"`

	Analyst struct {
		SemanticModelFile string `koanf:"semantic_model_file"`
		Warehouse         string `koanf:"warehouse"`
	} `koanf:"analyst"`

	Statement struct {
		Timeout   int    `koanf:"timeout"`
		Database  string `koanf:"database"`
		Schema    string `koanf:"schema"`
		Warehouse string `koanf:"warehouse"`
		Role      string `koanf:"role"`
	} `koanf:"statement"`

	Summary struct {
		Model       string  `koanf:"model"`
		Temperature float64 `koanf:"temperature"`
		MaxTokens   int     `koanf:"max_tokens"`
	} `koanf:"summary"`

	Poll struct {
		MaxAttempts int           `koanf:"max_attempts"`
		BaseDelay   time.Duration `koanf:"base_delay"`
		MaxDelay    time.Duration `koanf:"max_delay"`
		Multiplier  float64       `koanf:"multiplier"`
		Jitter      bool          `koanf:"jitter"`
	} `koanf:"poll"`

	Log struct {
		Level      string `koanf:"level"`
		Format     string `koanf:"format"`
		TraceFile  string `koanf:"trace_file"`
		CaptureDir string `koanf:"capture_dir"`
	} `koanf:"log"`

	Server struct {
		Host      string  `koanf:"host"`
		Port      int     `koanf:"port"`
		RateLimit float64 `koanf:"rate_limit"`
		Burst     int     `koanf:"burst"`
	} `koanf:"server"`
}

func defaults() map[string]interface{} {
	poll := retry.DefaultPollConfig()
	return map[string]interface{}{
		"snowflake.token_type": "",
		"snowflake.user_agent": "cortexchat",

		"analyst.semantic_model_file": "@CORTEX_ANALYST_DEMO.REVENUE_TIMESERIES.RAW_DATA/revenue_timeseries.yaml",
		"analyst.warehouse":           "COMPUTE_WH",

		"statement.timeout":   10,
		"statement.database":  "CORTEX_ANALYST_DEMO",
		"statement.schema":    "REVENUE_TIMESERIES",
		"statement.warehouse": "COMPUTE_WH",
		"statement.role":      "ACCOUNTADMIN",

		"summary.model":       "mistral-large2",
		"summary.temperature": 0.5,
		"summary.max_tokens":  1024,

		"poll.max_attempts": poll.MaxAttempts,
		"poll.base_delay":   poll.BaseDelay,
		"poll.max_delay":    poll.MaxDelay,
		"poll.multiplier":   poll.Multiplier,
		"poll.jitter":       poll.Jitter,

		"log.level":  "info",
		"log.format": "console",

		"server.host":       "127.0.0.1",
		"server.port":       8888,
		"server.rate_limit": 1.0,
		"server.burst":      3,
	}
}

// LoadConfig loads defaults, then the TOML file, then environment overrides
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		for _, path := range DefaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// InitConfig initializes a new configuration file
func InitConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# cortexchat configuration

[snowflake]
account_url = "https://myorg-myaccount.snowflakecomputing.com"
token = "your-snowflake-token"
# token_type = "KEYPAIR_JWT"

[analyst]
semantic_model_file = "@CORTEX_ANALYST_DEMO.REVENUE_TIMESERIES.RAW_DATA/revenue_timeseries.yaml"
warehouse = "COMPUTE_WH"

[statement]
timeout = 10
database = "CORTEX_ANALYST_DEMO"
schema = "REVENUE_TIMESERIES"
warehouse = "COMPUTE_WH"
role = "ACCOUNTADMIN"

[summary]
model = "mistral-large2"
temperature = 0.5
max_tokens = 1024

[poll]
max_attempts = 10
base_delay = "500ms"
max_delay = "5s"

[log]
level = "info"
format = "console"
# trace_file = "cortexchat-trace.log"
# capture_dir = "captures"

[server]
host = "127.0.0.1"
port = 8888
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate validates the configuration
func Validate(config *Config) error {
	if config.Snowflake.AccountURL == "" {
		return errors.New("snowflake account_url is required")
	}
	u, err := url.Parse(config.Snowflake.AccountURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("snowflake account_url %q is not an absolute URL", config.Snowflake.AccountURL)
	}

	if config.Snowflake.Token == "" {
		return errors.New("snowflake token is required")
	}

	if config.Analyst.SemanticModelFile == "" {
		return errors.New("analyst semantic_model_file is required")
	}

	if config.Statement.Timeout < 0 {
		return errors.New("statement timeout must not be negative")
	}

	if config.Summary.Model == "" {
		return errors.New("summary model is required")
	}
	if config.Summary.MaxTokens <= 0 {
		return errors.New("summary max_tokens must be positive")
	}

	if config.Poll.MaxAttempts < 1 {
		return errors.New("poll max_attempts must be at least 1")
	}

	switch config.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log format %q", config.Log.Format)
	}

	return nil
}

// PipelineSettings maps the configuration onto the orchestrator's settings
func (c *Config) PipelineSettings() pipeline.Settings {
	return pipeline.Settings{
		AccountURL:        strings.TrimRight(c.Snowflake.AccountURL, "/"),
		SemanticModelFile: c.Analyst.SemanticModelFile,
		AnalystWarehouse:  c.Analyst.Warehouse,
		Statement: pipeline.StatementSettings{
			Timeout:   c.Statement.Timeout,
			Database:  c.Statement.Database,
			Schema:    c.Statement.Schema,
			Warehouse: c.Statement.Warehouse,
			Role:      c.Statement.Role,
		},
		Summary: pipeline.SummarySettings{
			Model:       c.Summary.Model,
			Temperature: c.Summary.Temperature,
			MaxTokens:   c.Summary.MaxTokens,
		},
		Poll: retry.Config{
			MaxAttempts: c.Poll.MaxAttempts,
			BaseDelay:   c.Poll.BaseDelay,
			MaxDelay:    c.Poll.MaxDelay,
			Multiplier:  c.Poll.Multiplier,
			Jitter:      c.Poll.Jitter,
		},
	}
}
