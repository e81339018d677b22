package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/MrWong99/hearken/pkg/vecmath"
)

// EnrollmentSample is one verified baseline recording.
type EnrollmentSample struct {
	Embedding []float32
	Quality   float64
}

// Enroll creates a complete profile for userID from baseline samples. The
// centroid is the normalised mean of the samples and an initial health check
// is logged.
func (l *Learner) Enroll(ctx context.Context, userID string, samples []EnrollmentSample) (*Profile, error) {
	if len(samples) == 0 {
		return nil, errors.New("profile: enroll: no samples")
	}
	now := l.now()
	p := &Profile{
		ID:              uuid.NewString(),
		UserID:          userID,
		Enrollment:      EnrollmentComplete,
		AdaptiveEnabled: true,
		CreatedAt:       now,
	}

	unlock := l.locks.Lock(p.ID)
	defer unlock()

	active := make([]Sample, 0, len(samples))
	for i, es := range samples {
		emb := vecmath.Normalize(es.Embedding)
		if emb == nil {
			return nil, fmt.Errorf("profile: enroll: sample %d has zero norm", i)
		}
		active = append(active, Sample{
			ID:         uuid.NewString(),
			ProfileID:  p.ID,
			Source:     SourceEnrollment,
			Embedding:  emb,
			Quality:    es.Quality,
			Weight:     1,
			Decay:      1,
			AdmittedAt: now,
			Active:     true,
		})
	}
	centroid, err := weightedCentroid(active)
	if err != nil {
		return nil, fmt.Errorf("profile: enroll: %w", err)
	}
	p.Centroid = centroid

	if err := l.store.CreateProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("profile: enroll: %w", err)
	}
	for i := range active {
		if err := l.store.CreateSample(ctx, &active[i]); err != nil {
			return nil, fmt.Errorf("profile: enroll: %w", err)
		}
	}
	e, err := l.recordHealth(ctx, p.ID, centroid, active, now)
	if err != nil {
		return nil, fmt.Errorf("profile: enroll: %w", err)
	}
	p.HealthScore = e.Score
	if err := l.store.UpdateProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("profile: enroll: %w", err)
	}
	return p, nil
}
