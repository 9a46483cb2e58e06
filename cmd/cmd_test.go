package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/cortexchat/internal/conversation"
	"github.com/cortexchat/internal/trace"
)

func fakeSnowflake(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/cortex/analyst/message", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"message":{"role":"analyst","content":[
			{"type":"text","text":"Monthly revenue."},
			{"type":"sql","statement":"SELECT 1"}]}}`)
	})
	mux.HandleFunc("/api/v2/statements", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"statementStatusUrl":"/api/v2/statements/h1","requestId":"r1"}`)
	})
	mux.HandleFunc("/api/v2/statements/h1", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"resultSetMetaData":{"rowType":[{"name":"MONTH"},{"name":"REVENUE"}]},"data":[["2024-01","100"]]}`)
	})
	mux.HandleFunc("/api/v2/cortex/inference:complete", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Revenue \"}}]}\n")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"grew.\"}}]}\n")
		io.WriteString(w, "data: [DONE]\n")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeTestConfig(t *testing.T, accountURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cortexchat.toml")
	body := fmt.Sprintf(`
[snowflake]
account_url = %q
token = "super-secret-token"

[poll]
max_attempts = 1

[log]
level = "error"
`, accountURL)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func newTestApp(in io.Reader, out *bytes.Buffer) *cli.App {
	return &cli.App{
		Name:      "cortexchat",
		Reader:    in,
		Writer:    out,
		ErrWriter: io.Discard,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config"},
			&cli.StringFlag{Name: "log-level"},
		},
		Commands: []*cli.Command{
			ChatCommand(),
			AskCommand(),
			ConfigCommand(),
		},
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

func TestAskCommand(t *testing.T) {
	srv := fakeSnowflake(t)
	path := writeTestConfig(t, srv.URL)

	var out bytes.Buffer
	app := newTestApp(strings.NewReader(""), &out)
	err := app.RunContext(context.Background(), []string{"cortexchat", "--config", path, "ask", "--trace", "revenue", "by", "month"})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "revenue by month")
	assert.Contains(t, text, "Monthly revenue.")
	assert.Contains(t, text, "MONTH")
	assert.Contains(t, text, "2024-01")
	assert.Contains(t, text, "Revenue grew.")
	assert.Contains(t, text, "Summarize (streamed)")
	assert.NotContains(t, text, "super-secret-token")
}

func TestAskCommand_RequiresQuestion(t *testing.T) {
	var out bytes.Buffer
	app := newTestApp(strings.NewReader(""), &out)
	err := app.RunContext(context.Background(), []string{"cortexchat", "ask"})
	assert.Error(t, err)
}

func TestChatCommand(t *testing.T) {
	srv := fakeSnowflake(t)
	path := writeTestConfig(t, srv.URL)

	input := strings.Join([]string{"revenue by month", "/trace", "/clear", "/trace", "/quit", "never sent"}, "\n")
	var out bytes.Buffer
	app := newTestApp(strings.NewReader(input), &out)
	require.NoError(t, app.RunContext(context.Background(), []string{"cortexchat", "--config", path, "chat"}))

	text := out.String()
	assert.Contains(t, text, "Monthly revenue.")
	assert.Contains(t, text, "Revenue grew.")
	assert.Contains(t, text, "#4 Summarize (streamed)")
	assert.Contains(t, text, "Started a new conversation.")
	assert.Contains(t, text, "No requests recorded yet.")
}

func TestConfigCommand_InitValidateShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cortexchat.toml")

	var out bytes.Buffer
	app := newTestApp(strings.NewReader(""), &out)
	require.NoError(t, app.RunContext(context.Background(), []string{"cortexchat", "config", "init", "-o", path}))
	require.NoError(t, app.RunContext(context.Background(), []string{"cortexchat", "--config", path, "config", "validate"}))
	require.NoError(t, app.RunContext(context.Background(), []string{"cortexchat", "--config", path, "config", "show"}))

	text := out.String()
	assert.Contains(t, text, "Configuration is valid")
	assert.Contains(t, text, "yo****en")
	assert.NotContains(t, text, "your-snowflake-token")
}

func TestCheckEnvOverrides(t *testing.T) {
	result := CheckEnvOverrides([]string{
		"HOME=/root",
		"CORTEXCHAT_SNOWFLAKE__TOKEN=abcdefghijkl",
		"CORTEXCHAT_LOGLEVEL=debug",
		"CORTEXCHAT_SUMMARY__MODEL=",
	})

	assert.Equal(t, []string{"CORTEXCHAT_SNOWFLAKE__ACCOUNT_URL"}, result.Missing)
	assert.Equal(t, map[string]string{
		"CORTEXCHAT_SNOWFLAKE__TOKEN": "ab****kl",
		"CORTEXCHAT_LOGLEVEL":         "debug",
	}, result.Present)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "CORTEXCHAT_LOGLEVEL")

	var out bytes.Buffer
	PrintEnvCheck(&out, result)
	assert.Contains(t, out.String(), "CORTEXCHAT_SNOWFLAKE__TOKEN = ab****kl")
}

func TestPrinter_StreamsSummaryInPlace(t *testing.T) {
	var out bytes.Buffer
	state := conversation.NewState()
	state.Subscribe(newPrinter(&out, false).handle)

	state.Append(conversation.UserText("hidden question"))
	state.SetPhase(conversation.PhaseSummarizing)
	m := state.OpenStream()
	_, err := state.UpdateByID(m.ID, "Revenue ")
	require.NoError(t, err)
	_, err = state.UpdateByID(m.ID, "Revenue grew.")
	require.NoError(t, err)
	state.CloseStream(m.ID)
	state.SetPhase(conversation.PhaseIdle)

	text := out.String()
	assert.NotContains(t, text, "hidden question")
	assert.Contains(t, text, "Generating summary insights...")
	assert.Contains(t, text, "Revenue grew.\n")
	assert.Equal(t, 1, strings.Count(text, "Revenue "))
}

func TestRenderTable(t *testing.T) {
	out := renderTable(conversation.TabularResult{
		Columns: []string{"MONTH", "REVENUE"},
		Rows:    [][]interface{}{{"2024-01", "100"}, {nil, 3.5}},
	})

	assert.Contains(t, out, "MONTH")
	assert.Contains(t, out, "2024-01")
	assert.Contains(t, out, "NULL")
	assert.Contains(t, out, "3.5")

	empty := renderTable(conversation.TabularResult{Columns: []string{"A"}, Rows: [][]interface{}{}})
	assert.Contains(t, empty, "(no rows)")
}

func TestRenderTrace(t *testing.T) {
	out := renderTrace([]trace.Entry{
		{
			Stage:     "Submit SQL Error",
			Method:    "POST",
			URL:       "https://acme/api/v2/statements",
			Headers:   map[string]string{"Authorization": "Bearer super-secret-token"},
			Error:     "unexpected status 500",
			ErrorKind: "HttpStatusError",
			Raw:       "boom",
			Timestamp: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		},
	}, "super-secret-token")

	assert.Contains(t, out, "#1 Submit SQL Error")
	assert.Contains(t, out, "HttpStatusError")
	assert.Contains(t, out, "Bearer su****en")
	assert.Contains(t, out, `"raw": "boom"`)
	assert.NotContains(t, out, "super-secret-token")
}
