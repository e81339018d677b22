package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/hearken/internal/profile"
)

// Compile-time interface assertion.
var _ profile.Store = (*Store)(nil)

// Store is the PostgreSQL-backed profile store. Safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn, registers the pgvector types on every connection
// and runs [Migrate].
//
// embeddingDimensions must match the speaker-embedding model (192 for
// ECAPA-TDNN). Changing it after the first migration needs a manual schema
// change.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("profile postgres: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("profile postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("profile postgres: ping: %w", err)
	}
	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("profile postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Pool exposes the connection pool so other stores and readiness checks can
// share it.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// ── Profiles ──────────────────────────────────────────────────────────────────

const profileColumns = `id, user_id, centroid, enrollment, health_score, frozen, frozen_reason,
	adaptive_enabled, last_updated, update_count, created_at`

func (s *Store) ProfileByUser(ctx context.Context, userID string) (*profile.Profile, error) {
	return s.queryProfile(ctx, `SELECT `+profileColumns+` FROM speaker_profiles WHERE user_id = $1`, userID)
}

func (s *Store) Profile(ctx context.Context, id string) (*profile.Profile, error) {
	return s.queryProfile(ctx, `SELECT `+profileColumns+` FROM speaker_profiles WHERE id = $1`, id)
}

func (s *Store) queryProfile(ctx context.Context, q string, arg string) (*profile.Profile, error) {
	var (
		p           profile.Profile
		centroid    *pgvector.Vector
		enrollment  string
		lastUpdated *time.Time
	)
	err := s.pool.QueryRow(ctx, q, arg).Scan(
		&p.ID, &p.UserID, &centroid, &enrollment, &p.HealthScore, &p.Frozen, &p.FrozenReason,
		&p.AdaptiveEnabled, &lastUpdated, &p.UpdateCount, &p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, profile.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("profile postgres: get profile: %w", err)
	}
	if centroid != nil {
		p.Centroid = centroid.Slice()
	}
	if lastUpdated != nil {
		p.LastUpdated = *lastUpdated
	}
	p.Enrollment = profile.EnrollmentState(enrollment)
	return &p, nil
}

func (s *Store) CreateProfile(ctx context.Context, p *profile.Profile) error {
	const q = `INSERT INTO speaker_profiles (` + profileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := s.pool.Exec(ctx, q,
		p.ID, p.UserID, vectorOrNil(p.Centroid), string(p.Enrollment), p.HealthScore, p.Frozen, p.FrozenReason,
		p.AdaptiveEnabled, timeOrNil(p.LastUpdated), p.UpdateCount, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("profile postgres: create profile: %w", err)
	}
	return nil
}

func (s *Store) UpdateProfile(ctx context.Context, p *profile.Profile) error {
	const q = `UPDATE speaker_profiles SET
		centroid = $2, enrollment = $3, health_score = $4, frozen = $5, frozen_reason = $6,
		adaptive_enabled = $7, last_updated = $8, update_count = $9
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q,
		p.ID, vectorOrNil(p.Centroid), string(p.Enrollment), p.HealthScore, p.Frozen, p.FrozenReason,
		p.AdaptiveEnabled, timeOrNil(p.LastUpdated), p.UpdateCount,
	)
	if err != nil {
		return fmt.Errorf("profile postgres: update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return profile.ErrNotFound
	}
	return nil
}

// ── Samples ───────────────────────────────────────────────────────────────────

func (s *Store) Samples(ctx context.Context, profileID string, activeOnly bool) ([]profile.Sample, error) {
	q := `SELECT id, profile_id, source, embedding, quality, admission_similarity, cross_validation,
		weight, decay, admitted_at, active, deactivated_reason, deactivated_at
		FROM profile_samples WHERE profile_id = $1`
	if activeOnly {
		q += ` AND active`
	}
	q += ` ORDER BY admitted_at, id`

	rows, err := s.pool.Query(ctx, q, profileID)
	if err != nil {
		return nil, fmt.Errorf("profile postgres: list samples: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (profile.Sample, error) {
		var (
			smp         profile.Sample
			source      string
			vec         pgvector.Vector
			deactivated *time.Time
		)
		err := row.Scan(&smp.ID, &smp.ProfileID, &source, &vec, &smp.Quality, &smp.AdmissionSimilarity,
			&smp.CrossValidation, &smp.Weight, &smp.Decay, &smp.AdmittedAt, &smp.Active,
			&smp.DeactivatedReason, &deactivated)
		smp.Source = profile.SampleSource(source)
		smp.Embedding = vec.Slice()
		if deactivated != nil {
			smp.DeactivatedAt = *deactivated
		}
		return smp, err
	})
	if err != nil {
		return nil, fmt.Errorf("profile postgres: scan samples: %w", err)
	}
	return out, nil
}

func (s *Store) CreateSample(ctx context.Context, smp *profile.Sample) error {
	const q = `INSERT INTO profile_samples
		(id, profile_id, source, embedding, quality, admission_similarity, cross_validation,
		 weight, decay, admitted_at, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := s.pool.Exec(ctx, q,
		smp.ID, smp.ProfileID, string(smp.Source), pgvector.NewVector(smp.Embedding), smp.Quality,
		smp.AdmissionSimilarity, smp.CrossValidation, smp.Weight, smp.Decay, smp.AdmittedAt, smp.Active,
	)
	if err != nil {
		return fmt.Errorf("profile postgres: create sample: %w", err)
	}
	return nil
}

func (s *Store) DeactivateSamples(ctx context.Context, profileID string, ids []string, reason string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	const q = `UPDATE profile_samples
		SET active = false, deactivated_reason = $3, deactivated_at = $4
		WHERE profile_id = $1 AND id = ANY($2) AND active`
	if _, err := s.pool.Exec(ctx, q, profileID, ids, reason, at); err != nil {
		return fmt.Errorf("profile postgres: deactivate samples: %w", err)
	}
	return nil
}

func (s *Store) UpdateDecay(ctx context.Context, profileID string, decay map[string]float64) error {
	if len(decay) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for id, d := range decay {
		batch.Queue(`UPDATE profile_samples SET decay = $3 WHERE profile_id = $1 AND id = $2`, profileID, id, d)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("profile postgres: update decay: %w", err)
	}
	return nil
}

// ── Snapshots ─────────────────────────────────────────────────────────────────

const snapshotColumns = `id, profile_id, centroid, sample_ids, enrollment_count, adaptive_count,
	health_score, reason, created_at`

func (s *Store) CreateSnapshot(ctx context.Context, snap *profile.Snapshot) error {
	const q = `INSERT INTO profile_snapshots (` + snapshotColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	ids := snap.SampleIDs
	if ids == nil {
		ids = []string{}
	}
	_, err := s.pool.Exec(ctx, q,
		snap.ID, snap.ProfileID, vectorOrNil(snap.Centroid), ids, snap.EnrollmentCount,
		snap.AdaptiveCount, snap.HealthScore, snap.Reason, snap.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("profile postgres: create snapshot: %w", err)
	}
	return nil
}

func (s *Store) Snapshot(ctx context.Context, profileID, id string) (*profile.Snapshot, error) {
	return s.querySnapshot(ctx,
		`SELECT `+snapshotColumns+` FROM profile_snapshots WHERE profile_id = $1 AND id = $2`,
		profileID, id)
}

func (s *Store) LatestSnapshot(ctx context.Context, profileID string) (*profile.Snapshot, error) {
	return s.querySnapshot(ctx,
		`SELECT `+snapshotColumns+` FROM profile_snapshots WHERE profile_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		profileID)
}

func (s *Store) querySnapshot(ctx context.Context, q string, args ...any) (*profile.Snapshot, error) {
	var (
		snap     profile.Snapshot
		centroid *pgvector.Vector
	)
	err := s.pool.QueryRow(ctx, q, args...).Scan(
		&snap.ID, &snap.ProfileID, &centroid, &snap.SampleIDs, &snap.EnrollmentCount,
		&snap.AdaptiveCount, &snap.HealthScore, &snap.Reason, &snap.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, profile.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("profile postgres: get snapshot: %w", err)
	}
	if centroid != nil {
		snap.Centroid = centroid.Slice()
	}
	return &snap, nil
}

// ── Health log ────────────────────────────────────────────────────────────────

func (s *Store) AppendHealthLog(ctx context.Context, e *profile.HealthLogEntry) error {
	const q = `INSERT INTO profile_health_log
		(id, profile_id, score, intra_class_variance, sample_count, average_quality, trend,
		 recommendations, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	recs := e.Recommendations
	if recs == nil {
		recs = []string{}
	}
	_, err := s.pool.Exec(ctx, q,
		e.ID, e.ProfileID, e.Score, e.IntraClassVariance, e.SampleCount, e.AverageQuality,
		string(e.Trend), recs, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("profile postgres: append health log: %w", err)
	}
	return nil
}

func (s *Store) HealthLogs(ctx context.Context, profileID string, limit int) ([]profile.HealthLogEntry, error) {
	q := `SELECT id, profile_id, score, intra_class_variance, sample_count, average_quality, trend,
		recommendations, created_at
		FROM profile_health_log WHERE profile_id = $1 ORDER BY created_at DESC, id DESC`
	args := []any{profileID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("profile postgres: health logs: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (profile.HealthLogEntry, error) {
		var (
			e     profile.HealthLogEntry
			trend string
		)
		err := row.Scan(&e.ID, &e.ProfileID, &e.Score, &e.IntraClassVariance, &e.SampleCount,
			&e.AverageQuality, &trend, &e.Recommendations, &e.CreatedAt)
		e.Trend = profile.Trend(trend)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("profile postgres: scan health logs: %w", err)
	}
	return out, nil
}

// ── Negatives ─────────────────────────────────────────────────────────────────

func (s *Store) CreateNegative(ctx context.Context, n *profile.NegativeExample) error {
	const q = `INSERT INTO negative_examples (id, profile_id, embedding, confidence_not_user, captured_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := s.pool.Exec(ctx, q, n.ID, n.ProfileID, pgvector.NewVector(n.Embedding), n.ConfidenceNotUser, n.CapturedAt)
	if err != nil {
		return fmt.Errorf("profile postgres: create negative: %w", err)
	}
	return nil
}

func (s *Store) RecentNegatives(ctx context.Context, profileID string, limit int) ([]profile.NegativeExample, error) {
	q := `SELECT id, profile_id, embedding, confidence_not_user, captured_at
		FROM negative_examples WHERE profile_id = $1 ORDER BY captured_at DESC, id DESC`
	args := []any{profileID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("profile postgres: recent negatives: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (profile.NegativeExample, error) {
		var (
			n   profile.NegativeExample
			vec pgvector.Vector
		)
		err := row.Scan(&n.ID, &n.ProfileID, &vec, &n.ConfidenceNotUser, &n.CapturedAt)
		n.Embedding = vec.Slice()
		return n, err
	})
	if err != nil {
		return nil, fmt.Errorf("profile postgres: scan negatives: %w", err)
	}
	return out, nil
}

func (s *Store) TrimNegatives(ctx context.Context, profileID string, keep int) (int, error) {
	const q = `DELETE FROM negative_examples WHERE id IN (
		SELECT id FROM negative_examples WHERE profile_id = $1
		ORDER BY captured_at DESC, id DESC OFFSET $2)`
	tag, err := s.pool.Exec(ctx, q, profileID, max(keep, 0))
	if err != nil {
		return 0, fmt.Errorf("profile postgres: trim negatives: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) NearestNegative(ctx context.Context, profileID string, emb []float32) (float64, bool, error) {
	const q = `SELECT 1 - (embedding <=> $2) FROM negative_examples
		WHERE profile_id = $1 ORDER BY embedding <=> $2 LIMIT 1`
	var sim float64
	err := s.pool.QueryRow(ctx, q, profileID, pgvector.NewVector(emb)).Scan(&sim)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("profile postgres: nearest negative: %w", err)
	}
	return sim, true, nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

func vectorOrNil(v []float32) any {
	if v == nil {
		return nil
	}
	return pgvector.NewVector(slices.Clone(v))
}

func timeOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
