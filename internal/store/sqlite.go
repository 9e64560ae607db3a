package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/peterkovacs/vanity/internal/experiment"
)

// SQLiteStore keeps definitions, counters, assignments and flags in a
// single SQLite file. Participant and conversion dedup is enforced by
// unique indexes, so replayed events never double-increment; assignment
// persistence is INSERT OR IGNORE, giving first-writer-wins under
// concurrent first assignments.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS experiments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    experiment_id TEXT UNIQUE NOT NULL,
    name TEXT UNIQUE NOT NULL,
    version INTEGER NOT NULL DEFAULT 0,
    alternatives TEXT NOT NULL,
    weights TEXT,
    metrics TEXT,
    default_index INTEGER NOT NULL DEFAULT 0,
    enabled INTEGER NOT NULL DEFAULT 1,
    completed INTEGER NOT NULL DEFAULT 0,
    outcome INTEGER,
    created_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE TABLE IF NOT EXISTS participants (
    experiment_id TEXT NOT NULL,
    alternative INTEGER NOT NULL,
    identity TEXT NOT NULL,
    created_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_participants_dedup
    ON participants(experiment_id, identity);
CREATE INDEX IF NOT EXISTS idx_participants_counts
    ON participants(experiment_id, alternative);

CREATE TABLE IF NOT EXISTS conversions (
    experiment_id TEXT NOT NULL,
    alternative INTEGER NOT NULL,
    identity TEXT NOT NULL,
    count INTEGER NOT NULL DEFAULT 1,
    created_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_conversions_dedup
    ON conversions(experiment_id, identity);
CREATE INDEX IF NOT EXISTS idx_conversions_counts
    ON conversions(experiment_id, alternative);

CREATE TABLE IF NOT EXISTS assignments (
    experiment_id TEXT NOT NULL,
    identity TEXT NOT NULL,
    alternative INTEGER NOT NULL,
    created_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_dedup
    ON assignments(experiment_id, identity);

CREATE TABLE IF NOT EXISTS experiment_flags (
    experiment_id TEXT PRIMARY KEY,
    enabled INTEGER NOT NULL DEFAULT 1,
    outcome INTEGER,
    created_at INTEGER,
    completed_at INTEGER
);
`

func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for diagnostics (server health).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) SaveExperiment(ctx context.Context, e *experiment.Experiment) error {
	values := make([]any, len(e.Alternatives))
	for i := range e.Alternatives {
		values[i] = e.Alternatives[i].Value
	}
	valuesJSON, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to marshal alternatives: %w", err)
	}

	var weightsJSON []byte
	if len(e.Weights) > 0 {
		if weightsJSON, err = json.Marshal(e.Weights); err != nil {
			return fmt.Errorf("failed to marshal weights: %w", err)
		}
	}
	metricsJSON, err := json.Marshal(e.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	var outcome sql.NullInt64
	if e.Outcome != nil {
		outcome = sql.NullInt64{Int64: int64(*e.Outcome), Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO experiments (experiment_id, name, version, alternatives, weights, metrics, default_index, enabled, completed, outcome, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(experiment_id) DO UPDATE SET
		   alternatives = excluded.alternatives,
		   weights = excluded.weights,
		   metrics = excluded.metrics,
		   default_index = excluded.default_index,
		   enabled = excluded.enabled,
		   completed = excluded.completed,
		   outcome = excluded.outcome`,
		e.ID(), e.Name, e.Version, string(valuesJSON), nullableString(weightsJSON),
		string(metricsJSON), e.DefaultIndex(), boolInt(e.Enabled), boolInt(e.Completed),
		outcome, e.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save experiment: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetExperiment(ctx context.Context, name string) (*experiment.Experiment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, version, alternatives, weights, metrics, default_index, enabled, completed, outcome, created_at
		 FROM experiments WHERE name = ? OR experiment_id = ?`, name, name)
	return scanExperiment(row)
}

func (s *SQLiteStore) ListExperiments(ctx context.Context) ([]*experiment.Experiment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, version, alternatives, weights, metrics, default_index, enabled, completed, outcome, created_at
		 FROM experiments ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	var experiments []*experiment.Experiment
	for rows.Next() {
		e, err := scanExperiment(rows)
		if err != nil {
			return nil, err
		}
		experiments = append(experiments, e)
	}
	return experiments, rows.Err()
}

func (s *SQLiteStore) DeleteExperiment(ctx context.Context, name string) error {
	e, err := s.GetExperiment(ctx, name)
	if err != nil {
		return err
	}
	if err := s.Destroy(ctx, e.ID()); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM experiments WHERE name = ?`, e.Name); err != nil {
		return fmt.Errorf("failed to delete experiment: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExperiment(row rowScanner) (*experiment.Experiment, error) {
	var (
		name                    string
		version, defaultIndex   int
		valuesJSON, metricsJSON string
		weightsJSON             sql.NullString
		enabled, completed      int
		outcome                 sql.NullInt64
		createdAt               int64
	)
	err := row.Scan(&name, &version, &valuesJSON, &weightsJSON, &metricsJSON,
		&defaultIndex, &enabled, &completed, &outcome, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}

	var values []any
	if err := json.Unmarshal([]byte(valuesJSON), &values); err != nil {
		return nil, fmt.Errorf("failed to unmarshal alternatives: %w", err)
	}

	e := experiment.New(name, values...)
	e.Version = version
	e.Enabled = enabled != 0
	e.Completed = completed != 0
	e.CreatedAt = time.Unix(createdAt, 0)

	if weightsJSON.Valid && weightsJSON.String != "" {
		if err := json.Unmarshal([]byte(weightsJSON.String), &e.Weights); err != nil {
			return nil, fmt.Errorf("failed to unmarshal weights: %w", err)
		}
	}
	if metricsJSON != "" {
		if err := json.Unmarshal([]byte(metricsJSON), &e.Metrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
		}
	}
	if outcome.Valid {
		o := int(outcome.Int64)
		e.Outcome = &o
	}
	if err := e.SetDefaultIndex(defaultIndex); err != nil {
		return nil, err
	}
	if _, err := e.Save(); err != nil {
		return nil, fmt.Errorf("stored experiment definition invalid: %w", err)
	}
	return e, nil
}

func (s *SQLiteStore) Counts(ctx context.Context, experimentID string, alternative int) (experiment.Counts, error) {
	var c experiment.Counts
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM participants WHERE experiment_id = ? AND alternative = ?`,
		experimentID, alternative).Scan(&c.Participants)
	if err != nil {
		return experiment.Counts{}, fmt.Errorf("failed to count participants: %w", err)
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(count), 0) FROM conversions WHERE experiment_id = ? AND alternative = ?`,
		experimentID, alternative).Scan(&c.Converted, &c.Conversions)
	if err != nil {
		return experiment.Counts{}, fmt.Errorf("failed to count conversions: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) AddParticipant(ctx context.Context, experimentID string, alternative int, identity string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO participants (experiment_id, alternative, identity) VALUES (?, ?, ?)`,
		experimentID, alternative, identity)
	if err != nil {
		return fmt.Errorf("failed to record participant: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AddConversion(ctx context.Context, experimentID string, alternative int, identity string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversions (experiment_id, alternative, identity, count) VALUES (?, ?, ?, 1)
		 ON CONFLICT(experiment_id, identity) DO UPDATE SET count = count + 1`,
		experimentID, alternative, identity)
	if err != nil {
		return fmt.Errorf("failed to record conversion: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Assignment(ctx context.Context, experimentID, identity string) (int, bool, error) {
	var index int
	err := s.db.QueryRowContext(ctx,
		`SELECT alternative FROM assignments WHERE experiment_id = ? AND identity = ?`,
		experimentID, identity).Scan(&index)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up assignment: %w", err)
	}
	return index, true, nil
}

func (s *SQLiteStore) SetAssignment(ctx context.Context, experimentID, identity string, alternative int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO assignments (experiment_id, identity, alternative) VALUES (?, ?, ?)`,
		experimentID, identity, alternative)
	if err != nil {
		return fmt.Errorf("failed to persist assignment: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Enabled(ctx context.Context, experimentID string) (bool, error) {
	var enabled int
	err := s.db.QueryRowContext(ctx,
		`SELECT enabled FROM experiment_flags WHERE experiment_id = ?`, experimentID).Scan(&enabled)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read enabled flag: %w", err)
	}
	return enabled != 0, nil
}

func (s *SQLiteStore) SetEnabled(ctx context.Context, experimentID string, enabled bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO experiment_flags (experiment_id, enabled) VALUES (?, ?)
		 ON CONFLICT(experiment_id) DO UPDATE SET enabled = excluded.enabled`,
		experimentID, boolInt(enabled))
	if err != nil {
		return fmt.Errorf("failed to set enabled flag: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreatedAt(ctx context.Context, experimentID string) (time.Time, bool, error) {
	return s.flagTime(ctx, experimentID, "created_at")
}

func (s *SQLiteStore) SetCreatedAt(ctx context.Context, experimentID string, t time.Time) error {
	return s.setFlagTime(ctx, experimentID, "created_at", t)
}

func (s *SQLiteStore) CompletedAt(ctx context.Context, experimentID string) (time.Time, bool, error) {
	return s.flagTime(ctx, experimentID, "completed_at")
}

func (s *SQLiteStore) SetCompletedAt(ctx context.Context, experimentID string, t time.Time) error {
	return s.setFlagTime(ctx, experimentID, "completed_at", t)
}

func (s *SQLiteStore) flagTime(ctx context.Context, experimentID, column string) (time.Time, bool, error) {
	var ts sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT `+column+` FROM experiment_flags WHERE experiment_id = ?`, experimentID).Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read %s: %w", column, err)
	}
	if !ts.Valid {
		return time.Time{}, false, nil
	}
	return time.Unix(ts.Int64, 0), true, nil
}

func (s *SQLiteStore) setFlagTime(ctx context.Context, experimentID, column string, t time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO experiment_flags (experiment_id, `+column+`) VALUES (?, ?)
		 ON CONFLICT(experiment_id) DO UPDATE SET `+column+` = excluded.`+column,
		experimentID, t.Unix())
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", column, err)
	}
	return nil
}

func (s *SQLiteStore) Outcome(ctx context.Context, experimentID string) (int, bool, error) {
	var outcome sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT outcome FROM experiment_flags WHERE experiment_id = ?`, experimentID).Scan(&outcome)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read outcome: %w", err)
	}
	if !outcome.Valid {
		return 0, false, nil
	}
	return int(outcome.Int64), true, nil
}

func (s *SQLiteStore) SetOutcome(ctx context.Context, experimentID string, alternative int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO experiment_flags (experiment_id, outcome) VALUES (?, ?)
		 ON CONFLICT(experiment_id) DO UPDATE SET outcome = excluded.outcome`,
		experimentID, alternative)
	if err != nil {
		return fmt.Errorf("failed to set outcome: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Destroy(ctx context.Context, experimentID string) error {
	for _, table := range []string{"participants", "conversions", "assignments", "experiment_flags"} {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE experiment_id = ?`, experimentID); err != nil {
			return fmt.Errorf("failed to destroy %s: %w", table, err)
		}
	}
	return nil
}

func nullableString(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
