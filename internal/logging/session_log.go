package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cortexchat/internal/conversation"
	"github.com/cortexchat/internal/trace"
)

// SessionLog mirrors request trace entries of one chat session into a plain
// text file, one section per entry. Credentials are masked before writing.
type SessionLog struct {
	out       io.WriteCloser
	mutex     sync.Mutex
	startTime time.Time
	secret    string
	now       func() time.Time
}

// OpenSessionLog creates the log file, including missing parent directories
func OpenSessionLog(path, secret string) (*SessionLog, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	return NewSessionLog(f, secret), nil
}

// NewSessionLog writes to out and masks every occurrence of secret
func NewSessionLog(out io.WriteCloser, secret string) *SessionLog {
	s := &SessionLog{
		out:       out,
		startTime: time.Now(),
		secret:    secret,
		now:       time.Now,
	}
	s.writeHeader()
	return s
}

// Attach subscribes the log to a conversation's trace and error events. The
// returned function detaches it.
func (s *SessionLog) Attach(state *conversation.State) func() {
	return state.Subscribe(func(ev conversation.Event) {
		switch ev.Type {
		case conversation.EventTraceAppended:
			if ev.Trace != nil {
				s.LogEntry(*ev.Trace)
			}
		case conversation.EventMessageAppended:
			if ev.Message != nil && ev.Message.Kind == conversation.KindError {
				s.Log("ERROR %s", ev.Message.Text)
			}
		case conversation.EventReset:
			s.Log("Conversation reset")
		}
	})
}

// Log writes one timestamped line
func (s *SessionLog) Log(format string, args ...interface{}) {
	if s == nil {
		return
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.writeLine(fmt.Sprintf(format, args...))
}

// LogEntry writes a trace entry as a section
func (s *SessionLog) LogEntry(e trace.Entry) {
	if s == nil {
		return
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	separator := strings.Repeat("=", 80)
	s.writeLine(separator)
	s.writeLine("= " + e.Stage)
	s.writeLine(separator)
	s.writeLine(fmt.Sprintf("%s %s", e.Method, e.URL))

	keys := make([]string, 0, len(e.Headers))
	for k := range e.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.writeLine(fmt.Sprintf("%s: %s", k, s.mask(e.Headers[k])))
	}

	if e.Body != nil {
		s.writeBlock("BODY", pretty(e.Body))
	}
	if e.Failed() {
		s.writeLine(fmt.Sprintf("ERROR [%s]: %s", e.ErrorKind, s.mask(e.Error)))
		if e.Raw != "" {
			s.writeBlock("RAW", e.Raw)
		}
		return
	}
	s.writeBlock("OUTCOME", pretty(e.Outcome))
}

// Close writes the footer and closes the file
func (s *SessionLog) Close() error {
	if s == nil {
		return nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.out == nil {
		return nil
	}

	s.writeLine(fmt.Sprintf("Session logging completed. Total duration: %v", time.Since(s.startTime).Round(time.Millisecond)))
	err := s.out.Close()
	s.out = nil
	return err
}

func (s *SessionLog) writeHeader() {
	header := fmt.Sprintf(`CORTEXCHAT SESSION LOG
Start Time: %s
Log Format: [HH:MM:SS.mmm] [+duration] message

`, s.startTime.Format("2006-01-02 15:04:05"))
	io.WriteString(s.out, header)
}

func (s *SessionLog) writeLine(msg string) {
	if s.out == nil {
		return
	}
	now := s.now()
	elapsed := now.Sub(s.startTime).Round(time.Millisecond)
	fmt.Fprintf(s.out, "[%s] [+%v] %s\n", now.Format("15:04:05.000"), elapsed, msg)
}

func (s *SessionLog) writeBlock(title, body string) {
	if s.out == nil {
		return
	}
	s.writeLine(fmt.Sprintf("--- %s START ---", title))
	io.WriteString(s.out, s.mask(body)+"\n")
	s.writeLine(fmt.Sprintf("--- %s END ---", title))
}

func (s *SessionLog) mask(text string) string {
	if s.secret == "" {
		return text
	}
	return strings.ReplaceAll(text, s.secret, MaskSecret(s.secret))
}

// MaskSecret keeps the first and last two characters of long secrets
func MaskSecret(value string) string {
	if len(value) <= 8 {
		return "****"
	}
	return value[:2] + "****" + value[len(value)-2:]
}

func pretty(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}
