package session_test

import (
	"context"
	"sync"

	"github.com/papercomputeco/branches/pkg/llm"
)

// scriptedProvider replays fixed results and records every request. When
// gate is set, each result waits for a value on gate first.
type scriptedProvider struct {
	results []llm.StreamResult
	gate    chan struct{}

	// afterYield runs after each result is consumed.
	afterYield func(res llm.StreamResult)

	mu       sync.Mutex
	requests []*llm.ChatRequest
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Stream(ctx context.Context, req *llm.ChatRequest) llm.Stream {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	return func(yield func(llm.StreamResult) bool) {
		for _, res := range p.results {
			if p.gate != nil {
				select {
				case <-p.gate:
				case <-ctx.Done():
					yield(llm.Failed(ctx.Err()))
					return
				}
			}
			if !yield(res) {
				return
			}
			if p.afterYield != nil {
				p.afterYield(res)
			}
		}
	}
}

func (p *scriptedProvider) Requests() []*llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*llm.ChatRequest(nil), p.requests...)
}
