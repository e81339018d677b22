// Package listening runs the per-user always-on pipeline.
//
// A [Session] owns one audio stream. Chunks enter through [Session.Ingest],
// pass the voice activity detector and accumulate into speech segments. A
// completed segment is processed on its own goroutine: the speaker verifier
// and the transcriber run in parallel, the voice sample is handed to the
// profile learner on a detached [Runner], the transcript joins the rolling
// [ContextWindow], and the relevance filter, wake-word detector and intent
// classifier decide whether it becomes a command, a memory or nothing.
//
// Only one segment is processed at a time. A segment that completes while
// another is still processing is dropped, not queued. A panic inside
// processing moves the session into [StateError] for good; every later call
// returns [ErrSessionFailed].
package listening

import (
	"context"
	"errors"

	"github.com/MrWong99/hearken/internal/profile"
	"github.com/MrWong99/hearken/internal/relevance"
	"github.com/MrWong99/hearken/internal/speaker"
	"github.com/MrWong99/hearken/internal/wakeword"
	"github.com/MrWong99/hearken/pkg/audio"
)

var (
	// ErrSessionFailed is returned by every call on a session in StateError.
	ErrSessionFailed = errors.New("listening: session failed")

	// ErrStopped is returned after Stop.
	ErrStopped = errors.New("listening: session stopped")
)

// State is the session lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateListening
	StateProcessing
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Outcome is the closed set of results a chunk or segment can produce.
type Outcome string

const (
	OutcomeSilence        Outcome = "silence"
	OutcomeSpeechDetected Outcome = "speech_detected"
	OutcomeSpeakerUnknown Outcome = "speaker_unknown"
	OutcomeSpeakerOther   Outcome = "speaker_other"
	OutcomeTranscript     Outcome = "transcript"
	OutcomeCommand        Outcome = "command"
	OutcomeMemoryStored   Outcome = "memory_stored"
	OutcomeIgnored        Outcome = "ignored"
)

// Verifier decides whether a segment was spoken by the session's user.
// It never fails; errors come back as a fail-open identification.
type Verifier interface {
	Identify(ctx context.Context, userID string, seg audio.Segment) speaker.Identification
}

// Learner receives voice samples for online profile adaptation.
type Learner interface {
	Evaluate(ctx context.Context, sub profile.Submission) (profile.Decision, error)
}

// Relevance classifies transcripts.
type Relevance interface {
	Evaluate(ctx context.Context, text string, rc relevance.Context, prefs relevance.Preferences) relevance.Result
}

// WakeWords finds the assistant's name at the start of a transcript.
type WakeWords interface {
	Detect(text string) wakeword.Match
}

var (
	_ Verifier  = (*speaker.Verifier)(nil)
	_ Learner   = (*profile.Learner)(nil)
	_ Relevance = (*relevance.Filter)(nil)
	_ WakeWords = (*wakeword.Detector)(nil)
)
