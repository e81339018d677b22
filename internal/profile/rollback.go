package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

// RollbackResult describes what a rollback changed.
type RollbackResult struct {
	SnapshotID  string
	Deactivated []string

	// NoOp is true when the profile already matched the snapshot.
	NoOp bool
}

// Rollback restores the profile to snapshotID, or to the latest snapshot
// when snapshotID is empty. Adaptive samples admitted at or after the
// snapshot that are not part of it are deactivated, the centroid and health
// are restored, and the profile is unfrozen. Repeating a rollback to the
// same snapshot changes nothing.
func (l *Learner) Rollback(ctx context.Context, profileID, snapshotID string) (RollbackResult, error) {
	unlock := l.locks.Lock(profileID)
	defer unlock()

	p, err := l.store.Profile(ctx, profileID)
	if err != nil {
		return RollbackResult{}, fmt.Errorf("profile: rollback: %w", err)
	}

	var snap *Snapshot
	if snapshotID == "" {
		snap, err = l.store.LatestSnapshot(ctx, profileID)
	} else {
		snap, err = l.store.Snapshot(ctx, profileID, snapshotID)
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return RollbackResult{}, fmt.Errorf("profile: rollback: snapshot: %w", err)
		}
		return RollbackResult{}, fmt.Errorf("profile: rollback: %w", err)
	}

	active, err := l.store.Samples(ctx, profileID, true)
	if err != nil {
		return RollbackResult{}, fmt.Errorf("profile: rollback: %w", err)
	}
	res := RollbackResult{SnapshotID: snap.ID}
	for _, s := range active {
		if s.Source != SourceAdaptive || slices.Contains(snap.SampleIDs, s.ID) {
			continue
		}
		if !s.AdmittedAt.Before(snap.CreatedAt) {
			res.Deactivated = append(res.Deactivated, s.ID)
		}
	}

	if len(res.Deactivated) == 0 &&
		slices.Equal(p.Centroid, snap.Centroid) &&
		p.HealthScore == snap.HealthScore &&
		!p.Frozen {
		res.NoOp = true
		return res, nil
	}

	now := l.now()
	if len(res.Deactivated) > 0 {
		reason := "rolled back to snapshot " + snap.ID
		if err := l.store.DeactivateSamples(ctx, profileID, res.Deactivated, reason, now); err != nil {
			return RollbackResult{}, fmt.Errorf("profile: rollback: %w", err)
		}
	}

	p.Centroid = slices.Clone(snap.Centroid)
	p.HealthScore = snap.HealthScore
	p.Frozen = false
	p.FrozenReason = ""
	p.LastUpdated = now
	p.UpdateCount++
	if err := l.store.UpdateProfile(ctx, p); err != nil {
		return RollbackResult{}, fmt.Errorf("profile: rollback: %w", err)
	}

	slog.Info("profile: rolled back",
		"profile_id", profileID,
		"snapshot_id", snap.ID,
		"deactivated", len(res.Deactivated),
	)
	return res, nil
}

// Freeze stops adaptation for the profile until Unfreeze or Rollback.
func (l *Learner) Freeze(ctx context.Context, profileID, reason string) error {
	if reason == "" {
		reason = "frozen manually"
	}
	return l.setFrozen(ctx, profileID, true, reason)
}

// Unfreeze re-enables adaptation.
func (l *Learner) Unfreeze(ctx context.Context, profileID string) error {
	return l.setFrozen(ctx, profileID, false, "")
}

func (l *Learner) setFrozen(ctx context.Context, profileID string, frozen bool, reason string) error {
	unlock := l.locks.Lock(profileID)
	defer unlock()

	p, err := l.store.Profile(ctx, profileID)
	if err != nil {
		return fmt.Errorf("profile: set frozen: %w", err)
	}
	p.Frozen = frozen
	p.FrozenReason = reason
	if err := l.store.UpdateProfile(ctx, p); err != nil {
		return fmt.Errorf("profile: set frozen: %w", err)
	}
	slog.Info("profile: frozen state changed", "profile_id", profileID, "frozen", frozen, "reason", reason)
	return nil
}
