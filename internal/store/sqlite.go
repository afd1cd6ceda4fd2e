// Package store archives finished investigations in SQLite so reports
// and outcomes survive process restarts and are queryable from the
// serve-mode API.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)
)

var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS investigations (
    id               TEXT PRIMARY KEY,
    target           TEXT NOT NULL,
    context          TEXT NOT NULL DEFAULT '',
    phase            TEXT NOT NULL,
    iterations       INTEGER NOT NULL DEFAULT 0,
    finding_count    INTEGER NOT NULL DEFAULT 0,
    risk_count       INTEGER NOT NULL DEFAULT 0,
    connection_count INTEGER NOT NULL DEFAULT 0,
    risk_score       REAL NOT NULL DEFAULT 0.0,
    risk_level       TEXT NOT NULL DEFAULT 'LOW',
    report           TEXT NOT NULL DEFAULT '',
    error_count      INTEGER NOT NULL DEFAULT 0,
    started_at       DATETIME NOT NULL,
    completed_at     DATETIME
);
CREATE INDEX IF NOT EXISTS idx_investigations_target ON investigations(target);
CREATE INDEX IF NOT EXISTS idx_investigations_started_at ON investigations(started_at DESC);
`,
	},
}

// InvestigationRecord is one archived investigation.
type InvestigationRecord struct {
	ID              string
	Target          string
	Context         string
	Phase           string
	Iterations      int
	FindingCount    int
	RiskCount       int
	ConnectionCount int
	RiskScore       float64
	RiskLevel       string
	Report          string
	ErrorCount      int
	StartedAt       time.Time
	CompletedAt     time.Time
}

// Store is the investigation archive.
type Store interface {
	SaveInvestigation(ctx context.Context, rec *InvestigationRecord) error
	GetInvestigation(ctx context.Context, id string) (*InvestigationRecord, error)
	ListInvestigations(ctx context.Context, limit, offset int) ([]*InvestigationRecord, error)
	DeleteInvestigation(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Close() error
}

type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given
// path and runs pending migrations. Pass ":memory:" for an in-memory
// store.
func NewSQLiteStore(path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	s := &sqliteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *sqliteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count); err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// SaveInvestigation inserts or replaces a record by ID.
func (s *sqliteStore) SaveInvestigation(ctx context.Context, rec *InvestigationRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("investigation record requires an ID")
	}

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO investigations (
            id, target, context, phase, iterations,
            finding_count, risk_count, connection_count,
            risk_score, risk_level, report, error_count,
            started_at, completed_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            phase = excluded.phase,
            iterations = excluded.iterations,
            finding_count = excluded.finding_count,
            risk_count = excluded.risk_count,
            connection_count = excluded.connection_count,
            risk_score = excluded.risk_score,
            risk_level = excluded.risk_level,
            report = excluded.report,
            error_count = excluded.error_count,
            completed_at = excluded.completed_at`,
		rec.ID, rec.Target, rec.Context, rec.Phase, rec.Iterations,
		rec.FindingCount, rec.RiskCount, rec.ConnectionCount,
		rec.RiskScore, rec.RiskLevel, rec.Report, rec.ErrorCount,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		rec.CompletedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save investigation %s: %w", rec.ID, err)
	}
	return nil
}

func (s *sqliteStore) GetInvestigation(ctx context.Context, id string) (*InvestigationRecord, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, target, context, phase, iterations,
               finding_count, risk_count, connection_count,
               risk_score, risk_level, report, error_count,
               started_at, completed_at
        FROM investigations WHERE id = ?`, id)

	rec, err := scanInvestigation(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("investigation %s not found", id)
	}
	return rec, err
}

func (s *sqliteStore) ListInvestigations(ctx context.Context, limit, offset int) ([]*InvestigationRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT id, target, context, phase, iterations,
               finding_count, risk_count, connection_count,
               risk_score, risk_level, report, error_count,
               started_at, completed_at
        FROM investigations
        ORDER BY started_at DESC
        LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list investigations: %w", err)
	}
	defer rows.Close()

	var out []*InvestigationRecord
	for rows.Next() {
		rec, err := scanInvestigation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqliteStore) DeleteInvestigation(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM investigations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete investigation %s: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvestigation(row rowScanner) (*InvestigationRecord, error) {
	var rec InvestigationRecord
	var startedAt, completedAt string

	err := row.Scan(
		&rec.ID, &rec.Target, &rec.Context, &rec.Phase, &rec.Iterations,
		&rec.FindingCount, &rec.RiskCount, &rec.ConnectionCount,
		&rec.RiskScore, &rec.RiskLevel, &rec.Report, &rec.ErrorCount,
		&startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	if rec.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if rec.CompletedAt, err = parseTime(completedAt); err != nil {
		return nil, fmt.Errorf("parse completed_at: %w", err)
	}
	return &rec, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Parse("2006-01-02 15:04:05", s)
	}
	return t, nil
}
