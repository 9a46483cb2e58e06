package snowflake

import (
	"encoding/json"
	"net/http"
)

// StatementRequest submits a SQL statement for execution
type StatementRequest struct {
	Statement string `json:"statement"`
	Timeout   int    `json:"timeout"`
	Database  string `json:"database"`
	Schema    string `json:"schema"`
	Warehouse string `json:"warehouse"`
	Role      string `json:"role"`
}

// StatementResponse carries the handle used to fetch the statement result
type StatementResponse struct {
	Code               string `json:"code,omitempty"`
	SQLState           string `json:"sqlState,omitempty"`
	Message            string `json:"message,omitempty"`
	StatementHandle    string `json:"statementHandle,omitempty"`
	StatementStatusURL string `json:"statementStatusUrl,omitempty"`
	RequestID          string `json:"requestId,omitempty"`
}

// HasPollTarget reports whether the response names both a status URL and a request id
func (r StatementResponse) HasPollTarget() bool {
	return r.StatementStatusURL != "" && r.RequestID != ""
}

// InProgress reports whether a status poll answered with "asynchronous execution in progress"
func InProgress(statusCode int) bool {
	return statusCode == http.StatusAccepted
}

// MetadataFields are the envelope keys removed before a result is shown or summarized
var MetadataFields = []string{
	"code",
	"sqlState",
	"statementHandle",
	"statementStatusUrl",
	"message",
	"requestId",
	"createdOn",
}

// StripMetadata returns a copy of the result envelope without transport metadata.
// The input map is left untouched.
func StripMetadata(envelope map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(envelope))
	for k, v := range envelope {
		out[k] = v
	}
	for _, field := range MetadataFields {
		delete(out, field)
	}
	return out
}

// ResultSet is the typed view of a stripped statement result
type ResultSet struct {
	ResultSetMetaData struct {
		NumRows int64 `json:"numRows"`
		RowType []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"rowType"`
	} `json:"resultSetMetaData"`
	Data [][]interface{} `json:"data"`
}

// Columns returns the column names in result order
func (r ResultSet) Columns() []string {
	cols := make([]string, 0, len(r.ResultSetMetaData.RowType))
	for _, col := range r.ResultSetMetaData.RowType {
		cols = append(cols, col.Name)
	}
	return cols
}

// DecodeResultSet reads the typed result set out of a generic envelope
func DecodeResultSet(envelope map[string]interface{}) (ResultSet, error) {
	var rs ResultSet
	raw, err := json.Marshal(envelope)
	if err != nil {
		return rs, err
	}
	if err := json.Unmarshal(raw, &rs); err != nil {
		return rs, err
	}
	return rs, nil
}
