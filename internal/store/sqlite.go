package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/yys/safewalk-cli/internal/analysis"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS analysis_runs (
	id           TEXT PRIMARY KEY,
	region_name  TEXT NOT NULL,
	method       TEXT NOT NULL,
	region_count INTEGER NOT NULL,
	high_count   INTEGER NOT NULL DEFAULT 0,
	medium_count INTEGER NOT NULL DEFAULT 0,
	low_count    INTEGER NOT NULL DEFAULT 0,
	result       TEXT NOT NULL,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_analysis_runs_created ON analysis_runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_analysis_runs_region ON analysis_runs(region_name);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveAnalysis(ctx context.Context, r *analysis.Result) (string, error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	resultJSON, err := json.Marshal(r)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal result")
	}

	high, medium, low := tierCounts(r)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analysis_runs (id, region_name, method, region_count, high_count, medium_count, low_count, result, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.RegionName, r.Method, r.Statistics.Count, high, medium, low, string(resultJSON), time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: insert analysis %s", r.ID)
	}
	return r.ID, nil
}

func (s *SQLiteStore) GetAnalysis(ctx context.Context, id string) (*analysis.Result, error) {
	var resultJSON string
	err := s.db.QueryRowContext(ctx, `SELECT result FROM analysis_runs WHERE id = ?`, id).Scan(&resultJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get analysis %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get analysis %s", id)
	}

	var r analysis.Result
	if err := json.Unmarshal([]byte(resultJSON), &r); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal result")
	}
	r.ID = id
	return &r, nil
}

func (s *SQLiteStore) ListAnalyses(ctx context.Context, filter RunFilter) ([]RunSummary, error) {
	query := `SELECT id, region_name, method, region_count, high_count, medium_count, low_count, created_at
		FROM analysis_runs WHERE 1=1`
	var args []any

	if filter.Method != "" {
		query += ` AND method = ?`
		args = append(args, filter.Method)
	}
	if filter.RegionName != "" {
		query += ` AND region_name = ?`
		args = append(args, filter.RegionName)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, defaultLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list analyses")
	}
	defer rows.Close() //nolint:errcheck

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.ID, &r.RegionName, &r.Method, &r.RegionCount, &r.High, &r.Medium, &r.Low, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan analysis")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list analyses iterate")
}
