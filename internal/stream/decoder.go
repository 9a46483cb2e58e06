// Package stream decodes server-sent completion frames into text deltas.
package stream

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

const (
	// FrameMarker prefixes every payload line of the stream
	FrameMarker = "data: "
	// DeltaPath locates the incremental text inside a frame payload
	DeltaPath = "choices.0.delta.content"

	doneSentinel = "[DONE]"
)

// DecodeError describes a frame whose payload was not valid JSON.
// It is logged and skipped, never returned to the caller.
type DecodeError struct {
	Line string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid stream frame: %q", truncate(e.Line, 120))
}

// Decoder turns a chunked byte stream of `data: <json>` lines into text deltas.
// A decoder is bound to one stream and cannot be reused.
type Decoder struct {
	reader  *bufio.Reader
	done    bool
	skipped int
}

// NewDecoder creates a decoder reading from src
func NewDecoder(src io.Reader) *Decoder {
	return &Decoder{reader: bufio.NewReader(src)}
}

// Next returns the next non-empty delta. It returns io.EOF once the source is
// exhausted; any other error comes from reading the source.
func (d *Decoder) Next() (string, error) {
	for !d.done {
		line, err := d.reader.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				d.done = true
				return "", fmt.Errorf("read stream: %w", err)
			}
			// last line may arrive without a trailing newline
			d.done = true
			if line == "" {
				break
			}
		}

		delta, stop := d.decodeLine(line)
		if stop {
			d.done = true
			break
		}
		if delta != "" {
			return delta, nil
		}
	}
	return "", io.EOF
}

// Fragments returns the lazy sequence of deltas. Iteration stops at end of
// stream or after yielding a read error.
func (d *Decoder) Fragments() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			delta, err := d.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(delta, err) || err != nil {
				return
			}
		}
	}
}

// Skipped returns how many malformed frames were dropped so far
func (d *Decoder) Skipped() int {
	return d.skipped
}

func (d *Decoder) decodeLine(line string) (delta string, stop bool) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, FrameMarker) {
		return "", false
	}

	payload := strings.TrimSpace(strings.TrimPrefix(line, FrameMarker))
	if payload == doneSentinel {
		return "", true
	}
	if !gjson.Valid(payload) {
		d.skipped++
		log.Warn().Err(&DecodeError{Line: line}).Msg("Skipping malformed stream frame")
		return "", false
	}

	return gjson.Get(payload, DeltaPath).String(), false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
