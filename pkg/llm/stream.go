package llm

import (
	"context"
	"iter"
	"strings"
)

// StreamStatus identifies what a StreamResult carries.
type StreamStatus int

const (
	// StreamFragment carries the next piece of generated text.
	StreamFragment StreamStatus = iota
	// StreamCompleted signals that the stream finished normally.
	StreamCompleted
	// StreamFailed signals that the stream terminated with Err.
	StreamFailed
)

func (s StreamStatus) String() string {
	switch s {
	case StreamFragment:
		return "fragment"
	case StreamCompleted:
		return "completed"
	case StreamFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StreamResult is a single element of a completion stream.
type StreamResult struct {
	Status StreamStatus
	Text   string // set when Status == StreamFragment
	Err    error  // set when Status == StreamFailed
}

// Fragment returns a fragment result.
func Fragment(text string) StreamResult {
	return StreamResult{Status: StreamFragment, Text: text}
}

// Completed returns the terminal success result.
func Completed() StreamResult {
	return StreamResult{Status: StreamCompleted}
}

// Failed returns the terminal failure result.
func Failed(err error) StreamResult {
	return StreamResult{Status: StreamFailed, Err: err}
}

// Stream is a lazy, finite, forward-only sequence of results. Providers yield
// zero or more fragments followed by exactly one Completed or Failed result.
// Breaking out of a range loop releases the underlying connection.
type Stream = iter.Seq[StreamResult]

// Provider is a streaming text-generation backend.
type Provider interface {
	// Name returns the provider identifier, e.g. "gemini".
	Name() string

	// Stream starts a completion. Errors that happen before any text is
	// produced (auth, bad request, network) are yielded as a Failed result.
	Stream(ctx context.Context, req *ChatRequest) Stream
}

// FailedStream returns a stream holding only a Failed result.
func FailedStream(err error) Stream {
	return func(yield func(StreamResult) bool) {
		yield(Failed(err))
	}
}

// Collect drains a stream and returns the accumulated text along with the
// terminal error, if any.
func Collect(stream Stream) (string, error) {
	var sb strings.Builder
	for res := range stream {
		switch res.Status {
		case StreamFragment:
			sb.WriteString(res.Text)
		case StreamFailed:
			return sb.String(), res.Err
		}
	}

	return sb.String(), nil
}
