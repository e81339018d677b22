// Package postgres is the PostgreSQL implementation of [profile.Store].
//
// Embeddings are stored in pgvector columns so that nearest-negative lookups
// run inside the database with the cosine-distance operator. Snapshots and
// health logs are append-only; samples are soft-deactivated, never deleted.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 192)
//	if err != nil { … }
//	learner := profile.NewLearner(store, cfg)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddl returns the schema with the embedding dimension baked into the vector
// column types.
func ddl(dim int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,

		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS speaker_profiles (
    id                TEXT         PRIMARY KEY,
    user_id           TEXT         NOT NULL UNIQUE,
    centroid          vector(%d),
    enrollment        TEXT         NOT NULL DEFAULT 'pending',
    health_score      DOUBLE PRECISION NOT NULL DEFAULT 0,
    frozen            BOOLEAN      NOT NULL DEFAULT false,
    frozen_reason     TEXT         NOT NULL DEFAULT '',
    adaptive_enabled  BOOLEAN      NOT NULL DEFAULT true,
    last_updated      TIMESTAMPTZ,
    update_count      INTEGER      NOT NULL DEFAULT 0,
    created_at        TIMESTAMPTZ  NOT NULL DEFAULT now()
)`, dim),

		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS profile_samples (
    id                    TEXT         PRIMARY KEY,
    profile_id            TEXT         NOT NULL REFERENCES speaker_profiles (id),
    source                TEXT         NOT NULL,
    embedding             vector(%d)   NOT NULL,
    quality               DOUBLE PRECISION NOT NULL DEFAULT 0,
    admission_similarity  DOUBLE PRECISION NOT NULL DEFAULT 0,
    cross_validation      DOUBLE PRECISION NOT NULL DEFAULT 0,
    weight                DOUBLE PRECISION NOT NULL DEFAULT 1,
    decay                 DOUBLE PRECISION NOT NULL DEFAULT 1,
    admitted_at           TIMESTAMPTZ  NOT NULL,
    active                BOOLEAN      NOT NULL DEFAULT true,
    deactivated_reason    TEXT         NOT NULL DEFAULT '',
    deactivated_at        TIMESTAMPTZ
)`, dim),
		`CREATE INDEX IF NOT EXISTS idx_profile_samples_active
    ON profile_samples (profile_id, active)`,

		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS profile_snapshots (
    id                TEXT         PRIMARY KEY,
    profile_id        TEXT         NOT NULL REFERENCES speaker_profiles (id),
    centroid          vector(%d),
    sample_ids        TEXT[]       NOT NULL DEFAULT '{}',
    enrollment_count  INTEGER      NOT NULL DEFAULT 0,
    adaptive_count    INTEGER      NOT NULL DEFAULT 0,
    health_score      DOUBLE PRECISION NOT NULL DEFAULT 0,
    reason            TEXT         NOT NULL DEFAULT '',
    created_at        TIMESTAMPTZ  NOT NULL
)`, dim),
		`CREATE INDEX IF NOT EXISTS idx_profile_snapshots_created
    ON profile_snapshots (profile_id, created_at DESC)`,

		`
CREATE TABLE IF NOT EXISTS profile_health_log (
    id                    TEXT         PRIMARY KEY,
    profile_id            TEXT         NOT NULL REFERENCES speaker_profiles (id),
    score                 DOUBLE PRECISION NOT NULL,
    intra_class_variance  DOUBLE PRECISION NOT NULL,
    sample_count          INTEGER      NOT NULL,
    average_quality       DOUBLE PRECISION NOT NULL,
    trend                 TEXT         NOT NULL,
    recommendations       TEXT[]       NOT NULL DEFAULT '{}',
    created_at            TIMESTAMPTZ  NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_profile_health_log_created
    ON profile_health_log (profile_id, created_at DESC)`,

		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS negative_examples (
    id                   TEXT         PRIMARY KEY,
    profile_id           TEXT         NOT NULL,
    embedding            vector(%d)   NOT NULL,
    confidence_not_user  DOUBLE PRECISION NOT NULL,
    captured_at          TIMESTAMPTZ  NOT NULL
)`, dim),
		`CREATE INDEX IF NOT EXISTS idx_negative_examples_captured
    ON negative_examples (profile_id, captured_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_negative_examples_embedding
    ON negative_examples USING hnsw (embedding vector_cosine_ops)`,
	}
}

// Migrate creates the profile tables if they do not exist. Safe to run on
// every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	for _, stmt := range ddl(embeddingDimensions) {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
