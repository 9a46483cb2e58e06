// Package snowflake holds the request and response shapes of the Cortex
// Analyst, SQL API and Cortex inference endpoints.
package snowflake

const (
	AnalystPath    = "/api/v2/cortex/analyst/message"
	StatementsPath = "/api/v2/statements"
	InferencePath  = "/api/v2/cortex/inference:complete"

	OperationSQLGeneration = "sql_generation"

	ContentTypeText = "text"
	ContentTypeSQL  = "sql"
)

// AnalystContent is one typed content item of an analyst message
type AnalystContent struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	Statement string `json:"statement,omitempty"`
}

// AnalystMessage is one turn sent to or received from Cortex Analyst
type AnalystMessage struct {
	Role    string           `json:"role"`
	Content []AnalystContent `json:"content"`
}

// AnalystRequest asks Cortex Analyst to turn a question into SQL.
// Strem is a fixed request parameter the service ignores; it is sent as-is.
type AnalystRequest struct {
	Messages          []AnalystMessage `json:"messages"`
	SemanticModelFile string           `json:"semantic_model_file"`
	Warehouse         string           `json:"warehouse"`
	Operation         string           `json:"operation"`
	Strem             bool             `json:"strem"`
}

// AnalystResponse is the non-streamed analyst reply
type AnalystResponse struct {
	Message   AnalystMessage `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
}

// NewAnalystRequest builds the SQL generation request for a single user question
func NewAnalystRequest(question, semanticModelFile, warehouse string) AnalystRequest {
	return AnalystRequest{
		Messages: []AnalystMessage{{
			Role:    "user",
			Content: []AnalystContent{{Type: ContentTypeText, Text: question}},
		}},
		SemanticModelFile: semanticModelFile,
		Warehouse:         warehouse,
		Operation:         OperationSQLGeneration,
		Strem:             false,
	}
}
