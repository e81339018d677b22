// Package speaker decides whether a speech segment was spoken by the
// enrolled user.
//
// The verifier fails open: with no enrolled profile, or when the embedding
// service errors or times out, the segment is attributed to the target user
// with confidence 0.5. Dropping the user's own words costs more than an
// occasional false accept.
package speaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/hearken/internal/profile"
	"github.com/MrWong99/hearken/pkg/audio"
	"github.com/MrWong99/hearken/pkg/provider/embedding"
)

const (
	// FailOpenConfidence is reported when the verifier could not decide.
	FailOpenConfidence = 0.5

	// DefaultThreshold is the routing threshold for segments of 2.5s or more.
	DefaultThreshold = 0.70

	UnknownSpeaker = "unknown"
	OtherSpeaker   = "other"
)

// Identification is the verdict for one segment.
type Identification struct {
	IsTargetUser bool

	// Confidence that the segment is the target user, in [0, 1].
	Confidence float64

	// SpeakerID is the user id for a match, else UnknownSpeaker or
	// OtherSpeaker.
	SpeakerID string

	// Embedding is nil when the verifier failed open.
	Embedding  []float32
	Similarity float64
	Threshold  float64

	// FailOpen reports that no real comparison took place.
	FailOpen bool
	Reason   string
}

// Profiles looks up the enrolled profile of a user.
type Profiles interface {
	ProfileByUser(ctx context.Context, userID string) (*profile.Profile, error)
}

// Negatives finds the closest stored negative example.
type Negatives interface {
	NearestNegative(ctx context.Context, profileID string, emb []float32) (float64, bool, error)
}

// Config tunes the verifier.
type Config struct {
	// Threshold is the base similarity threshold. Zero means DefaultThreshold.
	Threshold float64

	// Timeout bounds the embedding call. Zero means no extra bound.
	Timeout time.Duration

	// Preprocess is forwarded to the embedding service.
	Preprocess bool

	// ContrastiveMargin enables the nearest-negative check when positive: a
	// match is overturned when the embedding is closer to a stored negative
	// than to the centroid by more than this margin.
	ContrastiveMargin float64
}

// Option configures a [Verifier].
type Option func(*Verifier)

// WithNegatives enables the contrastive check against n.
func WithNegatives(n Negatives) Option {
	return func(v *Verifier) { v.negatives = n }
}

// Verifier compares segments against the enrolled centroid. Safe for
// concurrent use.
type Verifier struct {
	embed     embedding.Service
	profiles  Profiles
	negatives Negatives
	cfg       Config
}

// New returns a verifier.
func New(embed embedding.Service, profiles Profiles, cfg Config, opts ...Option) *Verifier {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	v := &Verifier{embed: embed, profiles: profiles, cfg: cfg}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Identify decides whether seg was spoken by userID. It never returns an
// error: every failure resolves to a fail-open verdict.
func (v *Verifier) Identify(ctx context.Context, userID string, seg audio.Segment) Identification {
	p, err := v.profiles.ProfileByUser(ctx, userID)
	switch {
	case errors.Is(err, profile.ErrNotFound):
		return v.failOpen(userID, "no enrolled profile")
	case err != nil:
		slog.Warn("speaker: profile lookup failed, failing open", "user_id", userID, "err", err)
		return v.failOpen(userID, "profile lookup failed: "+err.Error())
	case p.Centroid == nil:
		return v.failOpen(userID, "profile has no centroid")
	}

	if v.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.cfg.Timeout)
		defer cancel()
	}
	res, err := v.embed.ExtractAndCompare(ctx, seg, p.Centroid, embedding.Options{Preprocess: v.cfg.Preprocess})
	if err != nil {
		slog.Warn("speaker: embedding failed, failing open", "user_id", userID, "segment_id", seg.ID, "err", err)
		return v.failOpen(userID, "embedding failed: "+err.Error())
	}

	threshold := AdjustedThreshold(v.cfg.Threshold, seg.Duration)
	id := Identification{
		Confidence: max(0, min(res.Similarity, 1)),
		Embedding:  res.Embedding,
		Similarity: res.Similarity,
		Threshold:  threshold,
	}
	if res.Similarity < threshold {
		id.SpeakerID = UnknownSpeaker
		id.Reason = fmt.Sprintf("similarity %.3f below threshold %.3f", res.Similarity, threshold)
		return id
	}

	id.IsTargetUser = true
	id.SpeakerID = userID
	id.Reason = fmt.Sprintf("similarity %.3f meets threshold %.3f", res.Similarity, threshold)

	if v.negatives != nil && v.cfg.ContrastiveMargin > 0 {
		v.contrast(ctx, p.ID, &id)
	}
	return id
}

// contrast overturns a match that sits closer to a known other voice. Lookup
// errors leave the match in place.
func (v *Verifier) contrast(ctx context.Context, profileID string, id *Identification) {
	neg, ok, err := v.negatives.NearestNegative(ctx, profileID, id.Embedding)
	if err != nil {
		slog.Warn("speaker: nearest negative lookup failed", "profile_id", profileID, "err", err)
		return
	}
	if !ok || neg-id.Similarity <= v.cfg.ContrastiveMargin {
		return
	}
	id.IsTargetUser = false
	id.SpeakerID = OtherSpeaker
	id.Reason = fmt.Sprintf("closer to a stored negative (%.3f) than to the profile (%.3f)", neg, id.Similarity)
}

func (v *Verifier) failOpen(userID, reason string) Identification {
	return Identification{
		IsTargetUser: true,
		Confidence:   FailOpenConfidence,
		SpeakerID:    userID,
		Threshold:    v.cfg.Threshold,
		FailOpen:     true,
		Reason:       reason,
	}
}

// AdjustedThreshold lowers base for short segments, whose embeddings are
// less reliable. The result never exceeds base and never drops below the
// band's floor unless base itself is lower.
//
//	< 1.0s  base − 0.25, floor 0.35
//	< 1.5s  base − 0.20, floor 0.40
//	< 2.5s  base − 0.10, floor 0.50
func AdjustedThreshold(base float64, d time.Duration) float64 {
	switch {
	case d < time.Second:
		return lower(base, 0.25, 0.35)
	case d < 1500*time.Millisecond:
		return lower(base, 0.20, 0.40)
	case d < 2500*time.Millisecond:
		return lower(base, 0.10, 0.50)
	default:
		return base
	}
}

func lower(base, by, floor float64) float64 {
	return min(base, max(base-by, floor))
}
