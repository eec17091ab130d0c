package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/yys/safewalk-cli/internal/analysis"
	"github.com/yys/safewalk-cli/internal/datasync"
	"github.com/yys/safewalk-cli/internal/db"
)

// PostgresStore implements Store on safewalk.analysis_runs.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool; Close leaves the pool open.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// Migrate applies the shared safewalk schema migrations, which include
// analysis_runs.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return eris.Wrap(datasync.Migrate(ctx, s.pool), "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveAnalysis(ctx context.Context, r *analysis.Result) (string, error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	resultJSON, err := json.Marshal(r)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal result")
	}

	high, medium, low := tierCounts(r)
	_, err = s.pool.Exec(ctx,
		`INSERT INTO safewalk.analysis_runs (id, region_name, method, region_count, high_count, medium_count, low_count, result, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.RegionName, r.Method, r.Statistics.Count, high, medium, low, resultJSON, time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: insert analysis %s", r.ID)
	}
	return r.ID, nil
}

func (s *PostgresStore) GetAnalysis(ctx context.Context, id string) (*analysis.Result, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get analysis %s", id)
	}

	var resultJSON []byte
	err := s.pool.QueryRow(ctx, `SELECT result FROM safewalk.analysis_runs WHERE id = $1`, id).Scan(&resultJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get analysis %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get analysis %s", id)
	}

	var r analysis.Result
	if err := json.Unmarshal(resultJSON, &r); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal result")
	}
	r.ID = id
	return &r, nil
}

func (s *PostgresStore) ListAnalyses(ctx context.Context, filter RunFilter) ([]RunSummary, error) {
	query := `SELECT id::text, region_name, method, region_count, high_count, medium_count, low_count, created_at
		FROM safewalk.analysis_runs
		WHERE ($1 = '' OR method = $1) AND ($2 = '' OR region_name = $2)
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4`

	rows, err := s.pool.Query(ctx, query, filter.Method, filter.RegionName, defaultLimit(filter.Limit), max(filter.Offset, 0))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list analyses")
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.ID, &r.RegionName, &r.Method, &r.RegionCount, &r.High, &r.Medium, &r.Low, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan analysis")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list analyses iterate")
}
