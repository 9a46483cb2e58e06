// Package capture stores every recorded request of a session as an indented
// JSON file, for replaying conversations as test fixtures.
package capture

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cortexchat/internal/conversation"
	"github.com/cortexchat/internal/trace"
)

// Writer writes trace entries below <dir>/<session>/
type Writer struct {
	dir    string
	secret string
	seq    atomic.Uint64
}

// NewWriter creates a writer for a new session directory under dir. Entries
// have every occurrence of secret replaced before they are written.
func NewWriter(dir, secret string) *Writer {
	sessionID := time.Now().Format("20060102-150405")
	return &Writer{dir: filepath.Join(dir, sessionID), secret: secret}
}

// Dir returns the session directory
func (w *Writer) Dir() string {
	return w.dir
}

// Attach writes every trace entry published on state. The returned function
// detaches the writer.
func (w *Writer) Attach(state *conversation.State) func() {
	return state.Subscribe(func(ev conversation.Event) {
		if ev.Type == conversation.EventTraceAppended && ev.Trace != nil {
			if _, err := w.WriteEntry(*ev.Trace); err != nil {
				log.Warn().Err(err).Str("stage", ev.Trace.Stage).Msg("capture: failed to write entry")
			}
		}
	})
}

// WriteEntry stores one entry and returns the file path
func (w *Writer) WriteEntry(e trace.Entry) (string, error) {
	if w.secret != "" {
		headers := make(map[string]string, len(e.Headers))
		for k, v := range e.Headers {
			headers[k] = strings.ReplaceAll(v, w.secret, "****")
		}
		e.Headers = headers
	}

	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s entry: %w", e.Stage, err)
	}
	return w.writeFile(category(e.Stage), data)
}

func (w *Writer) writeFile(category string, data []byte) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", w.dir, err)
	}

	seq := w.seq.Add(1)
	path := filepath.Join(w.dir, fmt.Sprintf("%04d-%s.json", seq, category))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write file %s: %w", path, err)
	}

	log.Debug().Str("path", path).Msg("capture: wrote entry")
	return path, nil
}

// category turns a stage label into a file name component:
// "Poll Result (in progress, attempt 2)" becomes "poll-result-in-progress-attempt-2"
func category(stage string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(stage) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
