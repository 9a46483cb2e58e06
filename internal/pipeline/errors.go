package pipeline

import (
	"errors"
	"fmt"

	"github.com/cortexchat/internal/retry"
	"github.com/cortexchat/internal/transport"
)

var (
	// ErrBusy is returned when a chain is already running
	ErrBusy = errors.New("a request is already in progress")
	// ErrEmptyInput is returned for blank submissions
	ErrEmptyInput = errors.New("message is empty")
)

// Error kinds recorded on failed trace entries
const (
	KindTransport         = "TransportError"
	KindHTTPStatus        = "HttpStatusError"
	KindParse             = "ParseError"
	KindMissingPollTarget = "MissingPollTarget"
	KindPollExhausted     = "PollExhausted"
)

// MissingPollTargetError reports a statement submission whose response lacks
// the status URL or request id needed to fetch the result
type MissingPollTargetError struct {
	Raw string
}

func (e *MissingPollTargetError) Error() string {
	return "missing statementStatusUrl or requestId in statement response"
}

// StageError is the terminal error of a chain, naming the stage that failed
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ErrorKind classifies err into one of the trace error kinds
func ErrorKind(err error) string {
	var missing *MissingPollTargetError
	var status *transport.HTTPStatusError
	var parse *transport.ParseError

	switch {
	case errors.As(err, &missing):
		return KindMissingPollTarget
	case errors.Is(err, retry.ErrExhausted):
		return KindPollExhausted
	case errors.As(err, &status):
		return KindHTTPStatus
	case errors.As(err, &parse):
		return KindParse
	default:
		return KindTransport
	}
}
