package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexchat/internal/conversation"
	"github.com/cortexchat/internal/pipeline"
	"github.com/cortexchat/internal/retry"
	"github.com/cortexchat/internal/trace"
	"github.com/cortexchat/internal/transport"
)

const clarification = `{"message":{"role":"analyst","content":[{"type":"text","text":"Which region?"}]}}`

// newSnowflake fakes the analyst endpoint only; every reply is text so the
// chain ends after the first stage
func newSnowflake(t *testing.T, analyst http.HandlerFunc) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/cortex/analyst/message", analyst)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func textReply(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, clarification)
}

func newTestServer(t *testing.T, analyst http.HandlerFunc, opts Options) (*Server, *pipeline.Orchestrator) {
	upstream := newSnowflake(t, analyst)
	orch := pipeline.New(
		transport.New(transport.Options{Credential: "test-token"}),
		conversation.NewState(),
		trace.NewRecorder(),
		pipeline.Settings{AccountURL: upstream.URL, Poll: retry.SingleShot()},
	)
	return NewServer(orch, opts), orch
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, textReply, Options{})

	rec := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestPostMessage(t *testing.T) {
	s, _ := newTestServer(t, textReply, Options{})

	rec := do(t, s, http.MethodPost, "/api/v1/messages", `{"text":"revenue by region"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ConversationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "revenue by region", resp.Messages[0].Text)
	assert.Equal(t, "Which region?", resp.Messages[1].Text)
	assert.Equal(t, conversation.PhaseIdle, resp.Phase)
	assert.False(t, resp.Busy)
	assert.Empty(t, resp.Error)
}

func TestPostMessage_StageFailureIsPartOfConversation(t *testing.T) {
	s, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"bad semantic model"}`, http.StatusBadRequest)
	}, Options{})

	rec := do(t, s, http.MethodPost, "/api/v1/messages", `{"text":"q"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ConversationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, conversation.KindError, resp.Messages[1].Kind)
	assert.Contains(t, resp.Error, "Generate SQL")
}

func TestPostMessage_Validation(t *testing.T) {
	s, _ := newTestServer(t, textReply, Options{})

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/v1/messages", `{"text":"  "}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/v1/messages", `{"text":`).Code)
}

func TestPostMessage_RateLimited(t *testing.T) {
	s, _ := newTestServer(t, textReply, Options{RateLimit: 0.001, Burst: 1})

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/v1/messages", `{"text":"one"}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, s, http.MethodPost, "/api/v1/messages", `{"text":"two"}`).Code)
}

func TestBusyConflicts(t *testing.T) {
	release := make(chan struct{})
	s, orch := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		textReply(w, r)
	}, Options{})

	done := make(chan int, 1)
	go func() {
		done <- do(t, s, http.MethodPost, "/api/v1/messages", `{"text":"first"}`).Code
	}()

	require.Eventually(t, orch.Busy, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, http.StatusConflict, do(t, s, http.MethodPost, "/api/v1/messages", `{"text":"second"}`).Code)
	assert.Equal(t, http.StatusConflict, do(t, s, http.MethodDelete, "/api/v1/conversation", "").Code)

	rec := do(t, s, http.MethodGet, "/api/v1/conversation", "")
	var resp ConversationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Busy)
	assert.Equal(t, "Analyzing your request", resp.PhaseLabel)

	close(release)
	assert.Equal(t, http.StatusOK, <-done)
}

func TestTraceAndReset(t *testing.T) {
	s, orch := newTestServer(t, textReply, Options{})
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/v1/messages", `{"text":"q"}`).Code)

	rec := do(t, s, http.MethodGet, "/api/v1/trace", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Entries []trace.Entry `json:"entries"`
		Count   int           `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "Generate SQL", body.Entries[0].Stage)
	assert.Equal(t, "Bearer test-token", body.Entries[0].Headers["Authorization"])

	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodDelete, "/api/v1/conversation", "").Code)
	assert.Equal(t, 0, orch.State().Len())

	rec = do(t, s, http.MethodGet, "/api/v1/trace", "")
	assert.Contains(t, rec.Body.String(), `"entries":[]`)
}

func TestStreamEvents(t *testing.T) {
	s, orch := newTestServer(t, textReply, Options{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	go func() {
		_ = orch.Submit(context.Background(), "revenue by region")
	}()

	scanner := bufio.NewScanner(resp.Body)
	var types []string
	for scanner.Scan() && len(types) < 3 {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			types = append(types, strings.TrimPrefix(line, "event: "))
		}
	}

	assert.Equal(t, []string{"message-appended", "phase-changed", "trace-appended"}, types)
}
