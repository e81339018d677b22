package profile

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Store lookups that match nothing.
var ErrNotFound = errors.New("profile: not found")

// Profiles persists profile rows.
type Profiles interface {
	ProfileByUser(ctx context.Context, userID string) (*Profile, error)
	Profile(ctx context.Context, id string) (*Profile, error)
	CreateProfile(ctx context.Context, p *Profile) error
	UpdateProfile(ctx context.Context, p *Profile) error
}

// Samples persists profile samples. Samples are never deleted.
type Samples interface {
	Samples(ctx context.Context, profileID string, activeOnly bool) ([]Sample, error)
	CreateSample(ctx context.Context, s *Sample) error
	DeactivateSamples(ctx context.Context, profileID string, ids []string, reason string, at time.Time) error
	UpdateDecay(ctx context.Context, profileID string, decay map[string]float64) error
}

// Snapshots persists rollback points. Append-only.
type Snapshots interface {
	CreateSnapshot(ctx context.Context, s *Snapshot) error
	Snapshot(ctx context.Context, profileID, id string) (*Snapshot, error)
	LatestSnapshot(ctx context.Context, profileID string) (*Snapshot, error)
}

// HealthLogs persists health check results. Append-only.
type HealthLogs interface {
	AppendHealthLog(ctx context.Context, e *HealthLogEntry) error

	// HealthLogs returns up to limit entries, newest first.
	HealthLogs(ctx context.Context, profileID string, limit int) ([]HealthLogEntry, error)
}

// Negatives persists negative examples.
type Negatives interface {
	CreateNegative(ctx context.Context, n *NegativeExample) error

	// RecentNegatives returns up to limit examples, newest first.
	RecentNegatives(ctx context.Context, profileID string, limit int) ([]NegativeExample, error)

	// TrimNegatives deletes the oldest examples beyond keep and returns how
	// many were removed.
	TrimNegatives(ctx context.Context, profileID string, keep int) (int, error)

	// NearestNegative returns the highest cosine similarity between emb and
	// any stored negative. found is false when the profile has none.
	NearestNegative(ctx context.Context, profileID string, emb []float32) (sim float64, found bool, err error)
}

// Store is the full persistence contract of the profile subsystem.
type Store interface {
	Profiles
	Samples
	Snapshots
	HealthLogs
	Negatives
}
