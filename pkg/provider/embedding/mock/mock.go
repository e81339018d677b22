// Package mock provides a test double for embedding.Service.
//
// Service returns Embedding for every call. The reported similarity is the
// fixed Similarity value, or the real cosine against the centroid when
// Cosine is set. Calls are recorded for inspection.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/hearken/pkg/audio"
	"github.com/MrWong99/hearken/pkg/provider/embedding"
	"github.com/MrWong99/hearken/pkg/vecmath"
)

// Call records one ExtractAndCompare invocation.
type Call struct {
	Segment  audio.Segment
	Centroid []float32
	Opts     embedding.Options
}

// Service is a mock implementation of embedding.Service.
type Service struct {
	mu sync.Mutex

	// Embedding is returned by every successful call.
	Embedding []float32

	// Similarity is reported when Cosine is false.
	Similarity float64

	// Cosine computes the similarity between Embedding and the centroid.
	Cosine bool

	// Err, if non-nil, is returned by every call.
	Err error

	// Delay is waited out before returning; cancellation of ctx ends it.
	Delay time.Duration

	// Calls records every invocation in order.
	Calls []Call
}

// ExtractAndCompare records the call and returns the configured result.
func (s *Service) ExtractAndCompare(ctx context.Context, seg audio.Segment, centroid []float32, opts embedding.Options) (embedding.Result, error) {
	s.mu.Lock()
	s.Calls = append(s.Calls, Call{Segment: seg, Centroid: centroid, Opts: opts})
	emb, sim, useCos, err, delay := s.Embedding, s.Similarity, s.Cosine, s.Err, s.Delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return embedding.Result{}, ctx.Err()
		}
	}
	if err != nil {
		return embedding.Result{}, err
	}
	if useCos {
		sim = vecmath.Cosine(emb, centroid)
	}
	return embedding.Result{Embedding: emb, Similarity: sim, ProcessingTime: delay}, nil
}

// CallCount returns the number of recorded calls.
func (s *Service) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Calls)
}

var _ embedding.Service = (*Service)(nil)
