// Package pipeline chains the four remote calls that answer a question:
// SQL generation, statement submission, result polling and the streamed summary.
package pipeline

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/cortexchat/internal/conversation"
	"github.com/cortexchat/internal/trace"
	"github.com/cortexchat/internal/transport"
)

// Sender is the transport the orchestrator talks through
type Sender interface {
	Send(ctx context.Context, req transport.Request) (*transport.Response, error)
	Stream(ctx context.Context, req transport.Request) (*transport.StreamResponse, error)
	EffectiveHeaders(req transport.Request) map[string]string
}

type stage int

const (
	stageGenerateSQL stage = iota
	stageSubmitSQL
	stagePollResult
	stageSummarize
	stageDone
)

func (s stage) String() string {
	switch s {
	case stageGenerateSQL:
		return "Generate SQL"
	case stageSubmitSQL:
		return "Submit SQL"
	case stagePollResult:
		return "Poll Result"
	case stageSummarize:
		return "Summarize (streamed)"
	default:
		return "Done"
	}
}

func (s stage) phase() conversation.Phase {
	switch s {
	case stageGenerateSQL:
		return conversation.PhaseGeneratingSQL
	case stageSubmitSQL, stagePollResult:
		return conversation.PhaseAwaitingResult
	case stageSummarize:
		return conversation.PhaseSummarizing
	default:
		return conversation.PhaseIdle
	}
}

// failureText is the user-visible error message for a failed stage
func (s stage) failureText(err error) string {
	switch s {
	case stageGenerateSQL:
		return "Error generating SQL: " + err.Error()
	case stageSubmitSQL:
		return "Error submitting SQL: " + err.Error()
	case stagePollResult:
		return "Error in final result: " + err.Error()
	default:
		return "Error generating summary: " + err.Error()
	}
}

// stageResult is what every stage hands back to the driver loop: either the
// next stage with its input, or the error that ends the chain.
type stageResult struct {
	next    stage
	payload interface{}
	err     error
}

func proceed(next stage, payload interface{}) stageResult {
	return stageResult{next: next, payload: payload}
}

func finished() stageResult {
	return stageResult{next: stageDone}
}

func failed(err error) stageResult {
	return stageResult{err: err}
}

// Orchestrator runs one question at a time through the four stages, writing
// messages and phase changes to the conversation and every call to the trace.
type Orchestrator struct {
	client   Sender
	state    *conversation.State
	recorder *trace.Recorder
	settings Settings
	running  atomic.Bool
}

// New creates an orchestrator
func New(client Sender, state *conversation.State, recorder *trace.Recorder, settings Settings) *Orchestrator {
	return &Orchestrator{
		client:   client,
		state:    state,
		recorder: recorder,
		settings: settings.withEndpoints(),
	}
}

// State returns the conversation the orchestrator writes to
func (o *Orchestrator) State() *conversation.State {
	return o.state
}

// Recorder returns the trace the orchestrator writes to
func (o *Orchestrator) Recorder() *trace.Recorder {
	return o.recorder
}

// Busy reports whether a chain is running
func (o *Orchestrator) Busy() bool {
	return o.running.Load()
}

// Submit appends the user's question and runs the chain to completion. It
// returns ErrBusy without side effects while another chain is running. A
// failed chain returns its *StageError after the error message was appended.
func (o *Orchestrator) Submit(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}
	if !o.running.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer o.running.Store(false)

	o.state.Append(conversation.UserText(text))
	return o.run(ctx, text)
}

// Reset empties the conversation and the trace together
func (o *Orchestrator) Reset() error {
	if !o.running.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer o.running.Store(false)

	o.recorder.Clear()
	o.state.Clear()
	log.Debug().Msg("Conversation reset")
	return nil
}

func (o *Orchestrator) run(ctx context.Context, question string) error {
	defer o.state.SetPhase(conversation.PhaseIdle)

	current, input := stageGenerateSQL, interface{}(question)
	for current != stageDone {
		o.state.SetPhase(current.phase())

		res := o.runStage(ctx, current, input)
		if res.err != nil {
			log.Error().Err(res.err).Str("stage", current.String()).Msg("Pipeline stage failed")
			o.state.Append(conversation.AssistantError(current.failureText(res.err)))
			return &StageError{Stage: current.String(), Err: res.err}
		}

		log.Debug().Str("stage", current.String()).Str("next", res.next.String()).Msg("Pipeline stage completed")
		current, input = res.next, res.payload
	}
	return nil
}

func (o *Orchestrator) runStage(ctx context.Context, s stage, input interface{}) stageResult {
	switch s {
	case stageGenerateSQL:
		return o.generateSQL(ctx, input.(string))
	case stageSubmitSQL:
		return o.submitSQL(ctx, input.(string))
	case stagePollResult:
		return o.pollResult(ctx, input.(pollTarget))
	case stageSummarize:
		return o.summarize(ctx, input.(map[string]interface{}))
	default:
		return finished()
	}
}

// record appends a trace entry and publishes it. A non-nil err turns the
// entry into a failure record whose outcome is the failure description.
func (o *Orchestrator) record(label string, req transport.Request, outcome interface{}, raw []byte, err error) {
	entry := trace.Entry{
		Stage:   label,
		Method:  req.Method,
		URL:     req.URL,
		Headers: o.client.EffectiveHeaders(req),
		Body:    req.Body,
		Outcome: outcome,
	}
	if err != nil {
		entry.Stage = label + " Error"
		entry.Error = err.Error()
		entry.ErrorKind = ErrorKind(err)
		entry.Outcome = err.Error()
		if len(raw) > 0 {
			entry.Raw = string(raw)
		}
	}

	entry = o.recorder.Record(entry)
	o.state.Notify(conversation.Event{Type: conversation.EventTraceAppended, Trace: &entry})
}
