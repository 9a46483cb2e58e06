package conversation

import "github.com/cortexchat/internal/trace"

// EventType names a view-facing notification
type EventType string

const (
	EventMessageAppended EventType = "message-appended"
	EventMessageUpdated  EventType = "message-updated"
	EventPhaseChanged    EventType = "phase-changed"
	EventTraceAppended   EventType = "trace-appended"
	EventReset           EventType = "reset"
)

// Event is published to listeners whenever the conversation changes.
// Only the field matching Type is set.
type Event struct {
	Type    EventType    `json:"type"`
	Message *Message     `json:"message,omitempty"`
	Phase   Phase        `json:"phase,omitempty"`
	Trace   *trace.Entry `json:"trace,omitempty"`
}

// Listener receives conversation events in the order they happen
type Listener func(Event)
