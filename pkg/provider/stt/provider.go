// Package stt defines the Transcriber interface for speech-to-text backends.
//
// The listening pipeline hands a transcriber one complete speech segment at a
// time and waits for the result, so every backend is driven in batch mode
// even when the underlying service streams (Deepgram). A transcriber never
// retries on its own; retries and fallbacks belong to the caller.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"

	"github.com/MrWong99/hearken/pkg/audio"
)

// Transcript is the recognised text of one segment.
type Transcript struct {
	// Text is the recognised speech, trimmed. Empty when nothing was heard.
	Text string

	// Confidence in [0, 1]. Backends that do not report one return 1.
	Confidence float64

	// Language is the BCP-47 code the backend recognised or was told to use.
	Language string
}

// Transcriber converts a speech segment into text.
type Transcriber interface {
	// Transcribe recognises seg. It honours ctx cancellation and deadlines.
	Transcribe(ctx context.Context, seg audio.Segment) (Transcript, error)
}
