package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/cortexchat/internal/conversation"
	"github.com/cortexchat/internal/retry"
	"github.com/cortexchat/internal/snowflake"
	"github.com/cortexchat/internal/stream"
	"github.com/cortexchat/internal/transport"
)

// pollTarget is what a successful submission hands to the polling stage
type pollTarget struct {
	StatusURL string
	RequestID string
}

func rawOf(resp *transport.Response) []byte {
	if resp == nil {
		return nil
	}
	return resp.Raw
}

// generateSQL asks Cortex Analyst for SQL. Text items become assistant
// messages in order; the chain stops quietly when no SQL comes back.
func (o *Orchestrator) generateSQL(ctx context.Context, question string) stageResult {
	req := transport.Request{
		Method: http.MethodPost,
		URL:    o.settings.AnalystURL,
		Body:   snowflake.NewAnalystRequest(question, o.settings.SemanticModelFile, o.settings.AnalystWarehouse),
	}

	resp, err := o.client.Send(ctx, req)
	if err != nil {
		o.record(stageGenerateSQL.String(), req, nil, rawOf(resp), err)
		return failed(err)
	}

	var reply snowflake.AnalystResponse
	if err := resp.Decode(&reply); err != nil {
		o.record(stageGenerateSQL.String(), req, nil, resp.Raw, err)
		return failed(err)
	}
	o.record(stageGenerateSQL.String(), req, resp.Data, nil, nil)

	var statement string
	for _, item := range reply.Message.Content {
		switch item.Type {
		case snowflake.ContentTypeText:
			o.state.Append(conversation.AssistantText(item.Text))
		case snowflake.ContentTypeSQL:
			statement = item.Statement
		default:
			log.Debug().Str("type", item.Type).Msg("Ignoring analyst content item")
		}
	}

	if strings.TrimSpace(statement) == "" {
		log.Debug().Msg("Analyst returned no SQL, ending chain")
		return finished()
	}
	return proceed(stageSubmitSQL, statement)
}

// submitSQL sends the generated statement to the SQL API
func (o *Orchestrator) submitSQL(ctx context.Context, statement string) stageResult {
	stmt := o.settings.Statement
	req := transport.Request{
		Method: http.MethodPost,
		URL:    o.settings.StatementsURL,
		Body: snowflake.StatementRequest{
			Statement: statement,
			Timeout:   stmt.Timeout,
			Database:  stmt.Database,
			Schema:    stmt.Schema,
			Warehouse: stmt.Warehouse,
			Role:      stmt.Role,
		},
	}

	resp, err := o.client.Send(ctx, req)
	if err != nil {
		o.record(stageSubmitSQL.String(), req, nil, rawOf(resp), err)
		return failed(err)
	}

	var reply snowflake.StatementResponse
	if err := resp.Decode(&reply); err != nil {
		o.record(stageSubmitSQL.String(), req, nil, resp.Raw, err)
		return failed(err)
	}
	if !reply.HasPollTarget() {
		err := &MissingPollTargetError{Raw: string(resp.Raw)}
		o.record(stageSubmitSQL.String(), req, nil, resp.Raw, err)
		return failed(err)
	}

	statusURL, err := o.settings.resolveStatusURL(reply.StatementStatusURL)
	if err != nil {
		err = &MissingPollTargetError{Raw: string(resp.Raw)}
		o.record(stageSubmitSQL.String(), req, nil, resp.Raw, err)
		return failed(err)
	}

	o.record(stageSubmitSQL.String(), req, resp.Data, nil, nil)
	log.Debug().
		Str("request_id", reply.RequestID).
		Str("statement_handle", reply.StatementHandle).
		Msg("Statement submitted")

	return proceed(stagePollResult, pollTarget{StatusURL: statusURL, RequestID: reply.RequestID})
}

// pollResult fetches the statement result. A 202 means the statement is still
// running and is polled again with backoff; the first 200 is authoritative.
func (o *Orchestrator) pollResult(ctx context.Context, target pollTarget) stageResult {
	req := transport.Request{Method: http.MethodGet, URL: target.StatusURL}

	var envelope map[string]interface{}
	var lastRaw []byte
	result, err := retry.Until(ctx, o.settings.Poll, func(attempt int) (bool, error) {
		resp, err := o.client.Send(ctx, req)
		lastRaw = rawOf(resp)
		if err != nil {
			return false, err
		}

		if snowflake.InProgress(resp.StatusCode) {
			o.record(fmt.Sprintf("%s (in progress, attempt %d)", stagePollResult, attempt), req, resp.Data, nil, nil)
			return false, nil
		}

		env, ok := resp.Data.(map[string]interface{})
		if !ok {
			return false, &transport.ParseError{Raw: string(resp.Raw), Err: errors.New("result is not a JSON object")}
		}
		envelope = env
		return true, nil
	})
	if err != nil {
		if errors.Is(err, retry.ErrExhausted) {
			err = fmt.Errorf("statement still running after %d polls: %w", result.Attempts, err)
		}
		o.record(stagePollResult.String(), req, nil, lastRaw, err)
		return failed(err)
	}

	stripped := snowflake.StripMetadata(envelope)
	table, err := buildTable(stripped)
	if err != nil {
		err = &transport.ParseError{Raw: string(lastRaw), Err: err}
		o.record(stagePollResult.String(), req, nil, lastRaw, err)
		return failed(err)
	}

	o.record(stagePollResult.String(), req, stripped, nil, nil)
	o.state.Append(conversation.AssistantTable(table))

	return proceed(stageSummarize, stripped)
}

// summarize streams a plain-language summary of the result into a message
// that grows in place as deltas arrive
func (o *Orchestrator) summarize(ctx context.Context, result map[string]interface{}) stageResult {
	prompt, err := snowflake.SummaryPrompt(result)
	if err != nil {
		return failed(err)
	}

	summary := o.settings.Summary
	req := transport.Request{
		Method:  http.MethodPost,
		URL:     o.settings.InferenceURL,
		Headers: map[string]string{"Accept": "text/event-stream"},
		Body:    snowflake.NewCompletionRequest(summary.Model, prompt, summary.Temperature, summary.MaxTokens),
	}

	resp, err := o.client.Stream(ctx, req)
	if err != nil {
		o.record(stageSummarize.String(), req, nil, nil, err)
		return failed(err)
	}
	defer resp.Body.Close()

	msg := o.state.OpenStream()
	defer o.state.CloseStream(msg.ID)

	var text strings.Builder
	decoder := stream.NewDecoder(resp.Body)
	for delta, err := range decoder.Fragments() {
		if err != nil {
			err = &transport.TransportError{Method: req.Method, URL: req.URL, Err: err}
			o.record(stageSummarize.String(), req, nil, []byte(text.String()), err)
			return failed(err)
		}

		text.WriteString(delta)
		if _, err := o.state.UpdateByID(msg.ID, text.String()); err != nil {
			log.Warn().Err(err).Str("message_id", msg.ID).Msg("Streaming message no longer open")
		}
	}

	if skipped := decoder.Skipped(); skipped > 0 {
		log.Warn().Int("skipped_frames", skipped).Msg("Summary stream contained malformed frames")
	}
	o.record(stageSummarize.String(), req, text.String(), nil, nil)
	return finished()
}

// buildTable projects a stripped result into columns and rows
func buildTable(result map[string]interface{}) (conversation.TabularResult, error) {
	rs, err := snowflake.DecodeResultSet(result)
	if err != nil {
		return conversation.TabularResult{}, fmt.Errorf("unexpected result shape: %w", err)
	}

	rows := rs.Data
	if rows == nil {
		rows = [][]interface{}{}
	}
	return conversation.TabularResult{Columns: rs.Columns(), Rows: rows}, nil
}
