package resilience

import (
	"context"

	"github.com/MrWong99/hearken/pkg/audio"
	"github.com/MrWong99/hearken/pkg/provider/stt"
)

// STTFallback implements [stt.Transcriber] over an ordered list of backends,
// e.g. a hosted streaming recogniser backed by a local whisper server. Each
// backend has its own breaker.
type STTFallback struct {
	group *FallbackGroup[stt.Transcriber]
}

var _ stt.Transcriber = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred
// backend.
func NewSTTFallback(primaryName string, primary stt.Transcriber, cfg CircuitBreakerConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primaryName, primary, cfg)}
}

// AddFallback registers another backend, tried after those already added.
func (f *STTFallback) AddFallback(name string, t stt.Transcriber) {
	f.group.Add(name, t)
}

// Backends returns the backend names in try order.
func (f *STTFallback) Backends() []string { return f.group.Names() }

// Transcribe sends seg to the first healthy backend.
func (f *STTFallback) Transcribe(ctx context.Context, seg audio.Segment) (stt.Transcript, error) {
	return Do(ctx, f.group, func(ctx context.Context, t stt.Transcriber) (stt.Transcript, error) {
		return t.Transcribe(ctx, seg)
	})
}
