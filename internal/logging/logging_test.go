package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexchat/internal/conversation"
	"github.com/cortexchat/internal/trace"
)

type nopCloser struct {
	*bytes.Buffer
	closed bool
}

func (n *nopCloser) Close() error {
	n.closed = true
	return nil
}

func TestSetup_JSON(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	lvl := Setup("debug", "json", &buf)
	assert.Equal(t, zerolog.DebugLevel, lvl)

	log.Debug().Str("stage", "Generate SQL").Msg("Pipeline stage completed")
	assert.Contains(t, buf.String(), `"stage":"Generate SQL"`)
	assert.Contains(t, buf.String(), `"level":"debug"`)
}

func TestSetup_LevelFilters(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	Setup("warn", "console", &buf)

	log.Info().Msg("hidden")
	log.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("loud"))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("ERROR"))
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "****", MaskSecret("short"))
	assert.Equal(t, "ab****yz", MaskSecret("abcdefghijklmnopqrstuvwxyz"))
}

func TestSessionLog_LogEntry(t *testing.T) {
	out := &nopCloser{Buffer: &bytes.Buffer{}}
	s := NewSessionLog(out, "super-secret-token")

	s.LogEntry(trace.Entry{
		Stage:   "Generate SQL",
		Method:  "POST",
		URL:     "https://acme.snowflakecomputing.com/api/v2/cortex/analyst/message",
		Headers: map[string]string{"Authorization": "Bearer super-secret-token"},
		Body:    map[string]interface{}{"operation": "sql_generation"},
		Outcome: map[string]interface{}{"request_id": "a-1"},
	})
	s.LogEntry(trace.Entry{
		Stage:     "Submit SQL Error",
		Method:    "POST",
		URL:       "https://acme.snowflakecomputing.com/api/v2/statements",
		Error:     "unexpected status 500",
		ErrorKind: "HttpStatusError",
		Raw:       "upstream exploded",
	})
	require.NoError(t, s.Close())

	text := out.String()
	assert.True(t, strings.HasPrefix(text, "CORTEXCHAT SESSION LOG"))
	assert.Contains(t, text, "= Generate SQL")
	assert.Contains(t, text, `"operation": "sql_generation"`)
	assert.Contains(t, text, "Authorization: Bearer su****en")
	assert.NotContains(t, text, "super-secret-token")
	assert.Contains(t, text, "ERROR [HttpStatusError]: unexpected status 500")
	assert.Contains(t, text, "upstream exploded")
	assert.Contains(t, text, "Session logging completed")
	assert.True(t, out.closed)

	assert.NoError(t, s.Close(), "second close is a no-op")
}

func TestSessionLog_Attach(t *testing.T) {
	out := &nopCloser{Buffer: &bytes.Buffer{}}
	s := NewSessionLog(out, "")
	state := conversation.NewState()

	detach := s.Attach(state)
	entry := trace.Entry{Stage: "Poll Result", Method: "GET", URL: "https://x/api/v2/statements/1", Outcome: "ok"}
	state.Notify(conversation.Event{Type: conversation.EventTraceAppended, Trace: &entry})
	state.Append(conversation.AssistantError("Error in final result: boom"))
	state.Clear()
	detach()
	state.Append(conversation.AssistantError("after detach"))

	text := out.String()
	assert.Contains(t, text, "= Poll Result")
	assert.Contains(t, text, "ERROR Error in final result: boom")
	assert.Contains(t, text, "Conversation reset")
	assert.NotContains(t, text, "after detach")
}

func TestOpenSessionLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "trace.log")

	s, err := OpenSessionLog(path, "")
	require.NoError(t, err)
	s.Log("hello %s", "world")
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello world")
}

func TestSessionLog_NilIsSafe(t *testing.T) {
	var s *SessionLog
	s.Log("ignored")
	s.LogEntry(trace.Entry{Error: "x"})
	assert.NoError(t, s.Close())
}
