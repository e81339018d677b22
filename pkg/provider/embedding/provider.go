// Package embedding defines the Service interface for speaker-embedding
// backends.
//
// A speaker-embedding service maps a voice segment to a fixed-length vector
// (ECAPA-TDNN produces 192 dimensions) and scores it against a reference
// centroid. All vectors produced by one Service share the same space; mixing
// vectors from different models is meaningless.
//
// Implementations must be safe for concurrent use.
package embedding

import (
	"context"
	"time"

	"github.com/MrWong99/hearken/pkg/audio"
)

// Options tune a single extraction.
type Options struct {
	// Preprocess asks the service to band-pass, trim silence and normalise
	// the audio before embedding.
	Preprocess bool
}

// Result is the outcome of ExtractAndCompare.
type Result struct {
	// Embedding is the raw voice vector for the segment.
	Embedding []float32

	// Similarity is the cosine similarity to the supplied centroid, or 0 when
	// no centroid was supplied.
	Similarity float64

	// ProcessingTime is the wall time the service spent.
	ProcessingTime time.Duration
}

// Service extracts a voice embedding and compares it to a centroid.
type Service interface {
	// ExtractAndCompare embeds seg and, when centroid is non-nil, scores the
	// embedding against it.
	ExtractAndCompare(ctx context.Context, seg audio.Segment, centroid []float32, opts Options) (Result, error)
}
