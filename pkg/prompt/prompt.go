// Package prompt models a pending request for a new question. A front end
// opens a Request for a parent node, shows its own input widget, and later
// resolves it with Submit or Cancel; nothing blocks while the user types.
package prompt

import (
	"context"
	"errors"
	"sync"
)

// ErrCanceled is returned by Response when the request was canceled.
var ErrCanceled = errors.New("prompt canceled")

// Request is a question being composed for ParentID. It resolves at most
// once: the first Submit or Cancel wins and later calls are no-ops.
type Request struct {
	ParentID string

	once sync.Once
	done chan struct{}
	text string
	err  error
}

// New opens a request for a question under parentID.
func New(parentID string) *Request {
	return &Request{
		ParentID: parentID,
		done:     make(chan struct{}),
	}
}

// Submit resolves the request with text. It reports whether this call
// resolved the request.
func (r *Request) Submit(text string) bool {
	return r.resolve(text, nil)
}

// Cancel resolves the request without a question.
func (r *Request) Cancel() bool {
	return r.resolve("", ErrCanceled)
}

func (r *Request) resolve(text string, err error) bool {
	resolved := false
	r.once.Do(func() {
		r.text = text
		r.err = err
		close(r.done)
		resolved = true
	})
	return resolved
}

// Done is closed once the request is resolved.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Response waits for the request to resolve and returns the submitted text,
// ErrCanceled, or ctx's error.
func (r *Request) Response(ctx context.Context) (string, error) {
	select {
	case <-r.done:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
