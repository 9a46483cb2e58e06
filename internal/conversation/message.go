package conversation

import "time"

// Role identifies who authored a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Kind identifies how a message is rendered
type Kind string

const (
	KindText  Kind = "text"
	KindTable Kind = "table"
	KindError Kind = "error"
)

// TabularResult is a query result projected into columns and rows
type TabularResult struct {
	Columns []string        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

// Message is one entry of the conversation log
type Message struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Kind      Kind           `json:"kind"`
	Text      string         `json:"text,omitempty"`
	Table     *TabularResult `json:"table,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// UserText builds a user text message
func UserText(text string) Message {
	return Message{Role: RoleUser, Kind: KindText, Text: text}
}

// AssistantText builds an assistant text message
func AssistantText(text string) Message {
	return Message{Role: RoleAssistant, Kind: KindText, Text: text}
}

// AssistantTable builds an assistant table message
func AssistantTable(table TabularResult) Message {
	return Message{Role: RoleAssistant, Kind: KindTable, Table: &table}
}

// AssistantError builds an assistant error message
func AssistantError(text string) Message {
	return Message{Role: RoleAssistant, Kind: KindError, Text: text}
}

// Phase is the pipeline stage currently in flight
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseGeneratingSQL  Phase = "generating_sql"
	PhaseAwaitingResult Phase = "awaiting_result"
	PhaseSummarizing    Phase = "summarizing"
)

// Busy reports whether a network operation is in flight
func (p Phase) Busy() bool {
	return p != PhaseIdle && p != ""
}

// Label is the loading indicator text shown while the phase is active
func (p Phase) Label() string {
	switch p {
	case PhaseGeneratingSQL:
		return "Analyzing your request"
	case PhaseAwaitingResult:
		return "Analyzing your final result, give me some time"
	case PhaseSummarizing:
		return "Generating summary insights"
	default:
		return ""
	}
}
