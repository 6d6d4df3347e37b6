// Package store persists anchor construction runs and aggregator picks to
// SQLite behind a thin typed accessor over *sql.DB, with migrations run
// once at Open. The core packages (candidate, coverage, sampling, bandit,
// anchor, aggregator) never import this package — only the API and CLI
// do, so the statistical core stays storage-agnostic.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/anchorlab/anchorengine/internal/domain"
)

// Migrations returns the schema migration statements. Each string is one
// statement, executed in order; CREATE TABLE/INDEX use IF NOT EXISTS so
// Open is idempotent across restarts.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS anchor_runs (
			id                TEXT PRIMARY KEY,
			label             INTEGER NOT NULL,
			features_json     TEXT NOT NULL,
			precision         REAL NOT NULL,
			sampled_size      INTEGER NOT NULL,
			positive_samples  INTEGER NOT NULL,
			coverage          REAL,
			is_anchor         INTEGER NOT NULL DEFAULT 0,
			rounds_searched   INTEGER NOT NULL DEFAULT 0,
			search_duration_ms   INTEGER NOT NULL DEFAULT 0,
			sampling_duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at        TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_anchor_runs_created ON anchor_runs(created_at)`,

		`CREATE TABLE IF NOT EXISTS aggregator_passes (
			id              TEXT PRIMARY KEY,
			picker          TEXT NOT NULL,
			requested_count INTEGER NOT NULL,
			importance_mode TEXT,
			atom_identity   TEXT,
			created_at      TEXT NOT NULL DEFAULT (datetime('now'))
		)`,

		`CREATE TABLE IF NOT EXISTS aggregator_picks (
			pass_id    TEXT NOT NULL,
			run_id     TEXT NOT NULL,
			rank       INTEGER NOT NULL,
			PRIMARY KEY (pass_id, rank)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_aggregator_picks_pass ON aggregator_picks(pass_id)`,
	}
}

// DB wraps a SQLite connection. Keep this type out of any value that gets
// serialized for cross-process execution: rebuild it from Open on the far
// side instead of carrying the handle across.
type DB struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and runs
// every migration.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	sqlDB.SetMaxOpenConns(1) // modernc.org/sqlite: one writer at a time

	d := &DB{db: sqlDB}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) migrate() error {
	for _, stmt := range Migrations() {
		if _, err := d.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close closes the underlying connection.
func (d *DB) Close() error { return d.db.Close() }

// ─── Anchor runs ────────────────────────────────────────────────────────────

// StoredResult is a domain.AnchorResult as persisted: the instance itself
// is not stored (callers own instance identity), only its derived
// statistics and feature set.
type StoredResult struct {
	ID               string
	Label            int
	Features         []int
	Precision        float64
	SampledSize      uint64
	PositiveSamples  uint64
	Coverage         *float64
	IsAnchor         bool
	RoundsSearched   int
	SearchDuration   time.Duration
	SamplingDuration time.Duration
	CreatedAt        time.Time
}

// Store provides the domain-level persistence operations the API and CLI
// layers use on top of a *DB.
type Store struct {
	db *DB
}

// NewStore wraps an already-open DB.
func NewStore(db *DB) *Store { return &Store{db: db} }

// RecordResult persists one construction run's final AnchorResult under id.
func (s *Store) RecordResult(ctx context.Context, id string, result domain.AnchorResult) error {
	features, err := json.Marshal(result.Candidate.Features)
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}
	_, err = s.db.db.ExecContext(ctx, `
		INSERT INTO anchor_runs (
			id, label, features_json, precision, sampled_size, positive_samples,
			coverage, is_anchor, rounds_searched, search_duration_ms, sampling_duration_ms
		) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		id, result.Label, string(features), result.Candidate.Precision(),
		result.Candidate.N, result.Candidate.K, result.Candidate.Coverage, result.IsAnchor,
		result.RoundsSearched, result.SearchDuration.Milliseconds(), result.SamplingDuration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record result %s: %w", id, err)
	}
	return nil
}

// GetResult loads a previously recorded run by id.
func (s *Store) GetResult(ctx context.Context, id string) (*StoredResult, error) {
	row := s.db.db.QueryRowContext(ctx, `
		SELECT id, label, features_json, precision, sampled_size, positive_samples,
		       coverage, is_anchor, rounds_searched, search_duration_ms, sampling_duration_ms, created_at
		FROM anchor_runs WHERE id = ?`, id)
	return scanResult(row)
}

// ListResults returns the most recently recorded runs, newest first,
// bounded by limit (0 means unbounded).
func (s *Store) ListResults(ctx context.Context, limit int) ([]StoredResult, error) {
	query := `SELECT id, label, features_json, precision, sampled_size, positive_samples,
	                 coverage, is_anchor, rounds_searched, search_duration_ms, sampling_duration_ms, created_at
	          FROM anchor_runs ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var out []StoredResult
	for rows.Next() {
		r, err := scanResultRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanResult(row scannable) (*StoredResult, error) {
	return scanResultRow(row)
}

func scanResultRow(row scannable) (*StoredResult, error) {
	var (
		r                    StoredResult
		featuresJSON         string
		createdAt            string
		isAnchor             int
		searchMS, samplingMS int64
	)
	if err := row.Scan(&r.ID, &r.Label, &featuresJSON, &r.Precision, &r.SampledSize,
		&r.PositiveSamples, &r.Coverage, &isAnchor, &r.RoundsSearched,
		&searchMS, &samplingMS, &createdAt); err != nil {
		return nil, fmt.Errorf("scan result: %w", err)
	}
	if err := json.Unmarshal([]byte(featuresJSON), &r.Features); err != nil {
		return nil, fmt.Errorf("unmarshal features: %w", err)
	}
	r.IsAnchor = isAnchor != 0
	r.SearchDuration = time.Duration(searchMS) * time.Millisecond
	r.SamplingDuration = time.Duration(samplingMS) * time.Millisecond
	if t, err := time.Parse("2006-01-02 15:04:05", createdAt); err == nil {
		r.CreatedAt = t
	}
	return &r, nil
}

// ─── Aggregator passes ──────────────────────────────────────────────────────

// RecordPick persists one aggregator pass and the ordered run IDs it
// selected (the global picker's output, by rank).
func (s *Store) RecordPick(ctx context.Context, passID, picker string, requested int, importanceMode, atomIdentity string, runIDs []string) error {
	tx, err := s.db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record pick: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO aggregator_passes (id, picker, requested_count, importance_mode, atom_identity)
		VALUES (?,?,?,?,?)`, passID, picker, requested, importanceMode, atomIdentity); err != nil {
		return fmt.Errorf("record pass %s: %w", passID, err)
	}
	for rank, runID := range runIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO aggregator_picks (pass_id, run_id, rank) VALUES (?,?,?)`,
			passID, runID, rank); err != nil {
			return fmt.Errorf("record pick %s/%d: %w", passID, rank, err)
		}
	}
	return tx.Commit()
}

// ListPicks returns the run IDs selected by pass passID, in rank order.
func (s *Store) ListPicks(ctx context.Context, passID string) ([]string, error) {
	rows, err := s.db.db.QueryContext(ctx, `
		SELECT run_id FROM aggregator_picks WHERE pass_id = ? ORDER BY rank ASC`, passID)
	if err != nil {
		return nil, fmt.Errorf("list picks %s: %w", passID, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pick: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
