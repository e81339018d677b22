// Package mock provides a test double for the llm.Provider interface.
//
// Provider returns Response (or Err) for every call, or delegates to
// CompleteFunc when it is set. Every request is recorded.
//
// Example:
//
//	p := &mock.Provider{Response: &llm.CompletionResponse{Content: `{"category":"meaningful"}`}}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/hearken/pkg/provider/llm"
)

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// Response is returned by Complete when CompleteFunc is nil.
	Response *llm.CompletionResponse

	// Err, if non-nil, is returned by Complete when CompleteFunc is nil.
	Err error

	// CompleteFunc, if set, computes the response.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// Requests records every CompletionRequest in order.
	Requests []llm.CompletionRequest
}

// Complete records req and returns the configured response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.Requests = append(p.Requests, req)
	fn, resp, err := p.CompleteFunc, p.Response, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return &llm.CompletionResponse{}, nil
	}
	return resp, nil
}

// CallCount returns the number of Complete calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Requests)
}

var _ llm.Provider = (*Provider)(nil)
