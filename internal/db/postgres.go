package db

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"github.com/airtrace/probelink-engine/pkg/models"
)

// schemaSQL is compiled into the binary at build time so schema init works
// in runtime images that do not ship the source tree.
//
//go:embed schema.sql
var schemaSQL string

// PostgresStore persists clustering runs and their validation records.
// The store is optional: the engine runs fully without one.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool using pgx.
func Connect(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping failed: %w", err)
	}

	log.Info("connected to PostgreSQL result store")
	return &PostgresStore{pool: pool}, nil
}

// Close gracefully closes the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema executes the embedded schema.sql DDL statements.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema migrations: %w", err)
	}
	log.Info("result store schema initialized")
	return nil
}

// RunInfo describes the parameters of one clustering run.
type RunInfo struct {
	Dataset      string
	Mode         string
	NGramSize    int
	Threshold    float64
	Fingerprints bool
}

// SaveValidationRecord persists one run and its record atomically, and
// returns the run id. Re-saving a run id upserts the record.
func (s *PostgresStore) SaveValidationRecord(ctx context.Context, info RunInfo, rec *models.ValidationRecord) (uuid.UUID, error) {
	runID := uuid.New()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	insertRunSQL := `
		INSERT INTO clustering_runs (run_id, dataset, mode, ngram_size, threshold, fingerprints)
		VALUES ($1, $2, $3, $4, $5, $6);
	`
	_, err = tx.Exec(ctx, insertRunSQL,
		runID, info.Dataset, info.Mode, info.NGramSize, info.Threshold, info.Fingerprints)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert clustering run: %w", err)
	}

	insertRecordSQL := `
		INSERT INTO validation_records
			(run_id, tp, fp, tn, fn, tpr, fpr, accuracy, clusters,
			 over_horizon_identities, median_over_horizon_secs, ari, vi)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (run_id) DO UPDATE SET
			tp = EXCLUDED.tp, fp = EXCLUDED.fp, tn = EXCLUDED.tn, fn = EXCLUDED.fn,
			tpr = EXCLUDED.tpr, fpr = EXCLUDED.fpr, accuracy = EXCLUDED.accuracy,
			clusters = EXCLUDED.clusters,
			over_horizon_identities = EXCLUDED.over_horizon_identities,
			median_over_horizon_secs = EXCLUDED.median_over_horizon_secs,
			ari = EXCLUDED.ari, vi = EXCLUDED.vi,
			recorded_at = NOW();
	`
	_, err = tx.Exec(ctx, insertRecordSQL,
		runID,
		rec.TruePositives, rec.FalsePositives, rec.TrueNegatives, rec.FalseNegatives,
		rec.TruePositiveRate, rec.FalsePositiveRate, rec.Accuracy,
		rec.ClusterCount, rec.OverHorizonIdentities, rec.MedianOverHorizonSecs,
		rec.AdjustedRandIndex, rec.VariationOfInformation)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert validation record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, err
	}
	return runID, nil
}

// RunSummary is one stored run joined with its record, for listing.
type RunSummary struct {
	RunID    uuid.UUID `json:"runId"`
	Dataset  string    `json:"dataset"`
	Mode     string    `json:"mode"`
	Accuracy float64   `json:"accuracy"`
	Clusters int       `json:"clusters"`
}

// ListRuns returns the most recent runs for a dataset, newest first.
func (s *PostgresStore) ListRuns(ctx context.Context, dataset string, limit int) ([]RunSummary, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	sql := `
		SELECT r.run_id, r.dataset, r.mode, v.accuracy, v.clusters
		FROM clustering_runs r
		JOIN validation_records v ON v.run_id = r.run_id
		WHERE r.dataset = $1
		ORDER BY r.started_at DESC
		LIMIT $2;
	`
	rows, err := s.pool.Query(ctx, sql, dataset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]RunSummary, 0)
	for rows.Next() {
		var rs RunSummary
		if err := rows.Scan(&rs.RunID, &rs.Dataset, &rs.Mode, &rs.Accuracy, &rs.Clusters); err != nil {
			return nil, err
		}
		summaries = append(summaries, rs)
	}
	return summaries, rows.Err()
}
