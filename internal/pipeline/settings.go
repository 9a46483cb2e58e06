package pipeline

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/cortexchat/internal/retry"
	"github.com/cortexchat/internal/snowflake"
)

// StatementSettings are the fixed execution parameters of submitted SQL
type StatementSettings struct {
	Timeout   int // server-side execution timeout in seconds
	Database  string
	Schema    string
	Warehouse string
	Role      string
}

// SummarySettings configure the streamed summary completion
type SummarySettings struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Settings hold everything the pipeline sends besides the user's question
type Settings struct {
	AccountURL string

	// Endpoint overrides; empty values derive from AccountURL
	AnalystURL    string
	StatementsURL string
	InferenceURL  string

	SemanticModelFile string
	AnalystWarehouse  string

	Statement StatementSettings
	Summary   SummarySettings
	Poll      retry.Config
}

func (s Settings) withEndpoints() Settings {
	base := strings.TrimSuffix(s.AccountURL, "/")
	if s.AnalystURL == "" {
		s.AnalystURL = base + snowflake.AnalystPath
	}
	if s.StatementsURL == "" {
		s.StatementsURL = base + snowflake.StatementsPath
	}
	if s.InferenceURL == "" {
		s.InferenceURL = base + snowflake.InferencePath
	}
	return s
}

// resolveStatusURL turns the status URL returned by the statements endpoint
// into an absolute URL. Relative paths resolve against the account URL.
func (s Settings) resolveStatusURL(statusURL string) (string, error) {
	ref, err := url.Parse(statusURL)
	if err != nil {
		return "", fmt.Errorf("invalid statementStatusUrl %q: %w", statusURL, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}

	base, err := url.Parse(s.AccountURL)
	if err != nil {
		return "", fmt.Errorf("invalid account url %q: %w", s.AccountURL, err)
	}
	return base.ResolveReference(ref).String(), nil
}
