package trace

import (
	"sync"
	"time"
)

// Entry is a single recorded request and its outcome
type Entry struct {
	Stage     string            `json:"stage"`
	Method    string            `json:"method"`
	URL       string            `json:"url"`
	Headers   map[string]string `json:"headers"`
	Body      interface{}       `json:"body,omitempty"`
	Outcome   interface{}       `json:"outcome"`
	Raw       string            `json:"raw,omitempty"`   // raw response text when the body could not be used
	Error     string            `json:"error,omitempty"` // failure description, empty on success
	ErrorKind string            `json:"error_kind,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Failed reports whether the entry describes a failed request
func (e Entry) Failed() bool {
	return e.Error != ""
}

// Recorder is an append-only log of outbound requests for operator inspection.
// It is safe for concurrent use; only the pipeline writes to it.
type Recorder struct {
	mu      sync.RWMutex
	entries []Entry
	now     func() time.Time
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

// Record stamps the entry with the capture time and appends it
func (r *Recorder) Record(e Entry) Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e.Timestamp = r.now()
	e.Headers = copyHeaders(e.Headers)
	r.entries = append(r.entries, e)
	return e
}

// Entries returns a snapshot of all recorded entries in order
func (r *Recorder) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of recorded entries
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Clear drops every recorded entry
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}

func copyHeaders(h map[string]string) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
