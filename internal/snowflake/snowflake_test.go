package snowflake

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAnalystRequest_WireShape(t *testing.T) {
	req := NewAnalystRequest("show me revenue by month", "@DB.SCHEMA.STAGE/model.yaml", "COMPUTE_WH")

	raw, err := json.Marshal(req)
	require.NoError(t, err)

	var wire map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &wire))
	assert.Equal(t, "sql_generation", wire["operation"])
	assert.Equal(t, false, wire["strem"])
	assert.Equal(t, "@DB.SCHEMA.STAGE/model.yaml", wire["semantic_model_file"])
	assert.Contains(t, string(raw), `"content":[{"type":"text","text":"show me revenue by month"}]`)
}

func TestStripMetadata_IsPureProjection(t *testing.T) {
	envelope := map[string]interface{}{
		"code":               "090001",
		"sqlState":           "00000",
		"statementHandle":    "01b2",
		"statementStatusUrl": "/api/v2/statements/01b2",
		"message":            "Statement executed successfully.",
		"requestId":          "r-1",
		"createdOn":          json.Number("1718000000000"),
		"data":               []interface{}{[]interface{}{"1"}},
	}

	stripped := StripMetadata(envelope)

	for _, field := range MetadataFields {
		assert.NotContains(t, stripped, field)
		assert.Contains(t, envelope, field, "source must not be mutated")
	}
	assert.Contains(t, stripped, "data")
}

func TestDecodeResultSet(t *testing.T) {
	envelope := map[string]interface{}{
		"resultSetMetaData": map[string]interface{}{
			"numRows": 2,
			"rowType": []interface{}{
				map[string]interface{}{"name": "MONTH", "type": "date"},
				map[string]interface{}{"name": "REVENUE", "type": "fixed"},
			},
		},
		"data": []interface{}{
			[]interface{}{"2024-01", "100"},
			[]interface{}{"2024-02", "112"},
		},
	}

	rs, err := DecodeResultSet(envelope)
	require.NoError(t, err)
	assert.Equal(t, []string{"MONTH", "REVENUE"}, rs.Columns())
	assert.Len(t, rs.Data, 2)
	assert.Equal(t, "112", rs.Data[1][1])
}

func TestSummaryPrompt(t *testing.T) {
	prompt, err := SummaryPrompt(map[string]interface{}{"data": []interface{}{}})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(prompt, summaryInstruction+"\n\n{"))
	assert.Contains(t, prompt, "\n  \"data\": []")
}

func TestStatementResponse_HasPollTarget(t *testing.T) {
	assert.True(t, StatementResponse{StatementStatusURL: "/x", RequestID: "r"}.HasPollTarget())
	assert.False(t, StatementResponse{StatementStatusURL: "/x"}.HasPollTarget())
	assert.False(t, StatementResponse{RequestID: "r"}.HasPollTarget())
	assert.True(t, InProgress(202))
	assert.False(t, InProgress(200))
}
