package resilience

import (
	"context"

	"github.com/MrWong99/hearken/pkg/audio"
	"github.com/MrWong99/hearken/pkg/provider/embedding"
	"github.com/MrWong99/hearken/pkg/provider/llm"
	"github.com/MrWong99/hearken/pkg/provider/stt"
)

// Embedder guards an [embedding.Service] with a breaker.
type Embedder struct {
	svc     embedding.Service
	breaker *CircuitBreaker
}

var _ embedding.Service = (*Embedder)(nil)

// GuardEmbedding wraps svc.
func GuardEmbedding(svc embedding.Service, cfg CircuitBreakerConfig) *Embedder {
	return &Embedder{svc: svc, breaker: NewCircuitBreaker(cfg)}
}

// ExtractAndCompare implements [embedding.Service].
func (e *Embedder) ExtractAndCompare(ctx context.Context, seg audio.Segment, centroid []float32, opts embedding.Options) (embedding.Result, error) {
	var res embedding.Result
	err := e.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		res, err = e.svc.ExtractAndCompare(ctx, seg, centroid, opts)
		return err
	})
	return res, err
}

// Breaker exposes the breaker for health reporting.
func (e *Embedder) Breaker() *CircuitBreaker { return e.breaker }

// Transcriber guards an [stt.Transcriber] with a breaker.
type Transcriber struct {
	t       stt.Transcriber
	breaker *CircuitBreaker
}

var _ stt.Transcriber = (*Transcriber)(nil)

// GuardTranscriber wraps t.
func GuardTranscriber(t stt.Transcriber, cfg CircuitBreakerConfig) *Transcriber {
	return &Transcriber{t: t, breaker: NewCircuitBreaker(cfg)}
}

// Transcribe implements [stt.Transcriber].
func (g *Transcriber) Transcribe(ctx context.Context, seg audio.Segment) (stt.Transcript, error) {
	var tr stt.Transcript
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		tr, err = g.t.Transcribe(ctx, seg)
		return err
	})
	return tr, err
}

// Breaker exposes the breaker for health reporting.
func (g *Transcriber) Breaker() *CircuitBreaker { return g.breaker }

// LLM guards an [llm.Provider] with a breaker.
type LLM struct {
	p       llm.Provider
	breaker *CircuitBreaker
}

var _ llm.Provider = (*LLM)(nil)

// GuardLLM wraps p.
func GuardLLM(p llm.Provider, cfg CircuitBreakerConfig) *LLM {
	return &LLM{p: p, breaker: NewCircuitBreaker(cfg)}
}

// Complete implements [llm.Provider].
func (g *LLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var resp *llm.CompletionResponse
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		resp, err = g.p.Complete(ctx, req)
		return err
	})
	return resp, err
}

// Breaker exposes the breaker for health reporting.
func (g *LLM) Breaker() *CircuitBreaker { return g.breaker }

// CheckClosed returns a health check that fails while b is open.
func CheckClosed(b *CircuitBreaker) func(context.Context) error {
	return func(context.Context) error {
		if b.State() == StateOpen {
			return ErrCircuitOpen
		}
		return nil
	}
}
