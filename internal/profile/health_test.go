package profile_test

import (
	"context"
	"testing"

	"github.com/MrWong99/hearken/internal/profile"
)

func TestCheckHealth_AppendsLogAndTracksTrend(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 64, profile.Config{})
	ctx := context.Background()

	e, err := f.learner.CheckHealth(ctx, f.profile.ID)
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if e.Score < 0.9 {
		t.Errorf("score = %f, want a healthy profile", e.Score)
	}
	if e.SampleCount != 12 {
		t.Errorf("SampleCount = %d, want 12", e.SampleCount)
	}
	if e.Trend != profile.TrendStable {
		t.Errorf("trend = %s, want stable against the enrollment check", e.Trend)
	}

	logs, err := f.store.HealthLogs(ctx, f.profile.ID, 0)
	if err != nil {
		t.Fatalf("HealthLogs: %v", err)
	}
	// Enrollment plus this check.
	if len(logs) != 2 || logs[0].ID != e.ID {
		t.Errorf("logs = %d, newest %q; want 2, newest %q", len(logs), logs[0].ID, e.ID)
	}
}

func TestCheckHealth_FreezesUnhealthyProfile(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 64, profile.Config{VarianceThreshold: 0.001, VariancePenalty: 50})

	e, err := f.learner.CheckHealth(context.Background(), f.profile.ID)
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if e.Score >= 0.5 {
		t.Fatalf("score = %f, want < 0.5", e.Score)
	}
	if len(e.Recommendations) == 0 {
		t.Error("no recommendations for an unhealthy profile")
	}
	if p := f.current(t); !p.Frozen {
		t.Error("profile not frozen")
	}
}

func TestCheckHealth_UnknownProfile(t *testing.T) {
	t.Parallel()
	l := profile.NewLearner(profile.NewMemStore(), profile.Config{})
	if _, err := l.CheckHealth(context.Background(), "nope"); err == nil {
		t.Error("expected error")
	}
}
