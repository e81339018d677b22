// Package vad defines the voice activity detection contract used by the
// listening pipeline.
//
// A [Detector] is stateful and bound to one audio stream: it smooths frame
// decisions over time so that [Detector.HasSpeechEnded] only fires after a
// sustained pause. Detectors are created per session by an [Engine] and must
// not be shared between goroutines.
package vad

import "time"

// Result is the verdict for one analysed chunk.
type Result struct {
	// IsSpeech reports whether the chunk contains speech.
	IsSpeech bool

	// Confidence is the detector's certainty in IsSpeech, in [0, 1].
	Confidence float64

	// EnergyLevel is the chunk's normalised RMS energy, in [0, 1].
	EnergyLevel float64
}

// Config holds the parameters for one detector.
type Config struct {
	// SampleRate of the PCM16 chunks passed to Analyze.
	SampleRate int

	// EnergyThreshold is the normalised RMS above which a chunk counts as
	// speech. Typical: 0.01.
	EnergyThreshold float64

	// Hangover is how long energy must stay below the threshold before the
	// detector reports end-of-speech. Typical: 700ms.
	Hangover time.Duration
}

// Detector analyses a single audio stream.
type Detector interface {
	// Analyze classifies chunk, which must be mono PCM16 at the configured
	// sample rate. It must not block.
	Analyze(chunk []byte) (Result, error)

	// HasSpeechEnded reports whether speech was detected and has since been
	// followed by at least the configured hangover of silence.
	HasSpeechEnded() bool

	// Reset clears all smoothing state.
	Reset()
}

// Engine creates detectors. Implementations must be safe for concurrent use.
type Engine interface {
	NewDetector(cfg Config) (Detector, error)
}
