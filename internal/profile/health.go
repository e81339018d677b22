package profile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/hearken/pkg/vecmath"
)

// computeHealth scores centroid against its active samples. history holds
// prior log entries, newest first.
func computeHealth(cfg Config, centroid []float32, samples []Sample, history []HealthLogEntry) HealthLogEntry {
	e := HealthLogEntry{SampleCount: len(samples)}
	if len(samples) > 0 {
		var dist, quality float64
		for _, s := range samples {
			dist += 1 - vecmath.Cosine(s.Embedding, centroid)
			quality += s.Quality
		}
		e.IntraClassVariance = dist / float64(len(samples))
		e.AverageQuality = quality / float64(len(samples))
	}

	score := 1.0
	score -= cfg.VariancePenalty * max(0, e.IntraClassVariance-cfg.VarianceThreshold)
	score += cfg.QualityBonus * max(0, e.AverageQuality-0.5)
	e.Score = clamp01(score)

	e.Trend = trend(e.Score, history, cfg.TrendDelta)
	e.Recommendations = recommend(cfg, e)
	return e
}

func trend(score float64, history []HealthLogEntry, delta float64) Trend {
	if len(history) == 0 {
		return TrendInsufficientData
	}
	var prev float64
	for _, h := range history {
		prev += h.Score
	}
	prev /= float64(len(history))
	switch d := score - prev; {
	case d > delta:
		return TrendImproving
	case d < -delta:
		return TrendDegrading
	default:
		return TrendStable
	}
}

func recommend(cfg Config, e HealthLogEntry) []string {
	var out []string
	if e.IntraClassVariance > cfg.VarianceThreshold {
		out = append(out, fmt.Sprintf("intra-class variance %.3f above %.2f: review recent admissions or roll back",
			e.IntraClassVariance, cfg.VarianceThreshold))
	}
	if e.SampleCount > 0 && e.AverageQuality < 0.5 {
		out = append(out, "average sample quality is low: re-record enrollment in a quieter room")
	}
	if e.SampleCount < cfg.MinBaselineSamples {
		out = append(out, fmt.Sprintf("only %d samples: enroll more before relying on adaptation", e.SampleCount))
	}
	if e.Trend == TrendDegrading {
		out = append(out, "health is degrading: consider rolling back to the latest snapshot")
	}
	if e.Score < cfg.FreezeThreshold {
		out = append(out, "health below freeze threshold: adaptation stopped until rollback or unfreeze")
	}
	return out
}

// recordHealth computes and appends a health log entry. Caller holds the
// profile lock.
func (l *Learner) recordHealth(ctx context.Context, profileID string, centroid []float32, active []Sample, now time.Time) (*HealthLogEntry, error) {
	history, err := l.store.HealthLogs(ctx, profileID, l.cfg.TrendWindow)
	if err != nil {
		return nil, fmt.Errorf("health history: %w", err)
	}
	e := computeHealth(l.cfg, centroid, active, history)
	e.ID = uuid.NewString()
	e.ProfileID = profileID
	e.CreatedAt = now
	if err := l.store.AppendHealthLog(ctx, &e); err != nil {
		return nil, fmt.Errorf("append health log: %w", err)
	}
	return &e, nil
}

// CheckHealth runs a health check on the profile's current state, appends it
// to the log and persists the score. A score below the freeze threshold
// freezes the profile.
func (l *Learner) CheckHealth(ctx context.Context, profileID string) (*HealthLogEntry, error) {
	unlock := l.locks.Lock(profileID)
	defer unlock()

	p, err := l.store.Profile(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("profile: check health: %w", err)
	}
	active, err := l.store.Samples(ctx, profileID, true)
	if err != nil {
		return nil, fmt.Errorf("profile: check health: %w", err)
	}
	e, err := l.recordHealth(ctx, profileID, p.Centroid, active, l.now())
	if err != nil {
		return nil, fmt.Errorf("profile: check health: %w", err)
	}

	p.HealthScore = e.Score
	if e.Score < l.cfg.FreezeThreshold && !p.Frozen {
		p.Frozen = true
		p.FrozenReason = fmt.Sprintf("auto-frozen: health %.2f below %.2f", e.Score, l.cfg.FreezeThreshold)
		slog.Warn("profile: auto-frozen by health check", "profile_id", profileID, "health", e.Score)
	}
	if err := l.store.UpdateProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("profile: check health: %w", err)
	}
	return e, nil
}
