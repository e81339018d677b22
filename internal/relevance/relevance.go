// Package relevance decides whether a transcript is worth acting on.
//
// Stage 1 is a fixed, prioritised table of local rules; the first rule that
// matches produces the result. It is deterministic: the same text and
// context always give the same answer. When no rule matches, or the match is
// not confident enough for the user's sensitivity, Stage 2 asks an LLM
// classifier. Stage 2 fails closed: any error, timeout or unparsable answer
// discards the transcript.
package relevance

import (
	"context"
	"time"
)

// Action is what the pipeline should do with a transcript.
type Action string

const (
	ActionProcess      Action = "process"
	ActionDiscard      Action = "discard"
	ActionAskUser      Action = "ask_user"
	ActionStoreMinimal Action = "store_minimal"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionProcess, ActionDiscard, ActionAskUser, ActionStoreMinimal:
		return true
	}
	return false
}

// Stage-1 categories.
const (
	CategoryEmpty          = "empty"
	CategoryFillerWords    = "filler_words"
	CategorySymbols        = "symbols_only"
	CategoryRepetition     = "repetition"
	CategoryWakeWordOnly   = "wake_word_only"
	CategoryMeaningful     = "meaningful"
	CategoryMedia          = "media_playback"
	CategorySelfTalk       = "self_talk"
	CategoryThirdParty     = "third_party_address"
	CategoryBackground     = "background_speech"
	CategoryClassifierFail = "classifier_failure"
)

// MinStage2Discard is the confidence below which Stage 2 may never discard.
const MinStage2Discard = 0.6

// Result is the filter's verdict.
type Result struct {
	Action     Action
	Category   string
	Confidence float64

	// ContextualRelevance is only set by Stage 2.
	ContextualRelevance float64

	// Stage is 1 or 2.
	Stage int

	// Rule names the Stage-1 rule that matched.
	Rule   string
	Reason string

	// Fallback marks the fail-closed result of a failed Stage-2 call.
	Fallback bool
}

// Utterance is one earlier transcript in the rolling history.
type Utterance struct {
	Text string
	At   time.Time
}

// Context carries everything the filter may look at besides the text. It is
// supplied by the caller so that Stage 1 stays a pure function.
type Context struct {
	// Now is the arrival time of the transcript being classified.
	Now time.Time

	// History holds earlier transcripts, oldest first.
	History []Utterance

	IsContinuation bool
	PreviousText   string
	Summary        string
	ChunkCount     int
	Elapsed        time.Duration

	// SpeakerConfidence is the verifier's confidence that the target user
	// spoke. Ignored unless HasSpeakerConfidence is set.
	SpeakerConfidence    float64
	HasSpeakerConfidence bool
}

// Preferences are per-user filter settings. They can change while a
// session runs.
type Preferences struct {
	// Sensitivity in [0, 1] raises the confidence Stage 1 needs before it
	// resolves without Stage 2.
	Sensitivity float64

	FilterMedia      bool
	FilterSelfTalk   bool
	FilterThirdParty bool
	FilterBackground bool

	// AskOnUncertain turns uncertain discards into ask_user.
	AskOnUncertain bool
}

// DefaultPreferences enables every gated rule at medium sensitivity.
func DefaultPreferences() Preferences {
	return Preferences{
		Sensitivity:      0.5,
		FilterMedia:      true,
		FilterSelfTalk:   true,
		FilterThirdParty: true,
		FilterBackground: true,
	}
}

// Threshold maps Sensitivity onto the Stage-1 confidence threshold,
// 0.5 + 0.4·sensitivity clamped to [0.5, 0.9].
func (p Preferences) Threshold() float64 {
	return max(0.5, min(0.5+0.4*p.Sensitivity, 0.9))
}

// Request is the Stage-2 input.
type Request struct {
	Transcript string
	Context    Context
}

// Classification is the Stage-2 output.
type Classification struct {
	Category            string
	Confidence          float64
	ContextualRelevance float64
	Action              Action
}

// Classifier is the Stage-2 backend.
type Classifier interface {
	Classify(ctx context.Context, req Request) (Classification, error)
}

// WakeWords finds a wake phrase at the start of a transcript.
type WakeWords interface {
	// DetectPrefix reports whether a wake phrase was found and the text after it.
	DetectPrefix(text string) (found bool, remainder string)
}
