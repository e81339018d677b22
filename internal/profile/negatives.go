package profile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/hearken/pkg/vecmath"
)

// NegativeStore keeps voice samples confidently not from the profile owner.
// Near-duplicates of recent negatives are skipped and the oldest examples
// are evicted past the retention cap.
type NegativeStore struct {
	store Negatives
	cfg   Config
	now   func() time.Time
}

// NewNegativeStore returns a negative store over s.
func NewNegativeStore(s Negatives, cfg Config) *NegativeStore {
	return &NegativeStore{store: s, cfg: cfg.withDefaults(), now: time.Now}
}

// Add stores emb as a negative for profileID unless it duplicates one of the
// recent negatives.
func (n *NegativeStore) Add(ctx context.Context, profileID string, emb []float32, similarity float64) (Decision, error) {
	d, err := n.add(ctx, profileID, emb, similarity)
	if err != nil {
		return Decision{}, fmt.Errorf("profile: add negative: %w", err)
	}
	return d, nil
}

func (n *NegativeStore) add(ctx context.Context, profileID string, emb []float32, similarity float64) (Decision, error) {
	recent, err := n.store.RecentNegatives(ctx, profileID, n.cfg.NegativeDuplicateWindow)
	if err != nil {
		return Decision{}, err
	}
	for _, r := range recent {
		if s := vecmath.Cosine(emb, r.Embedding); s > n.cfg.NegativeDuplicateSimilarity {
			return Decision{
				Outcome: OutcomeIgnored,
				Reason:  fmt.Sprintf("negative example duplicates %s (similarity %.3f)", r.ID, s),
			}, nil
		}
	}

	neg := NegativeExample{
		ID:                uuid.NewString(),
		ProfileID:         profileID,
		Embedding:         vecmath.Normalize(emb),
		ConfidenceNotUser: clamp01(1 - similarity),
		CapturedAt:        n.now(),
	}
	if neg.Embedding == nil {
		return rejected("negative embedding has zero norm"), nil
	}
	if err := n.store.CreateNegative(ctx, &neg); err != nil {
		return Decision{}, err
	}
	if _, err := n.store.TrimNegatives(ctx, profileID, n.cfg.NegativeRetention); err != nil {
		return Decision{}, err
	}
	return Decision{
		Outcome:  OutcomeNegativeStored,
		Reason:   fmt.Sprintf("similarity %.3f below negative threshold %.2f", similarity, n.cfg.NegativeThreshold),
		SampleID: neg.ID,
	}, nil
}

// Nearest returns the highest similarity between emb and any stored negative
// of profileID.
func (n *NegativeStore) Nearest(ctx context.Context, profileID string, emb []float32) (float64, bool, error) {
	s, ok, err := n.store.NearestNegative(ctx, profileID, emb)
	if err != nil {
		return 0, false, fmt.Errorf("profile: nearest negative: %w", err)
	}
	return s, ok, nil
}
