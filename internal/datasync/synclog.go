package datasync

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/yys/safewalk-cli/internal/db"
)

// Sync run statuses.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// SyncEntry is one row of safewalk.sync_log.
type SyncEntry struct {
	ID          int64          `json:"id"`
	Dataset     string         `json:"dataset"`
	Status      string         `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	RowsSynced  int64          `json:"rows_synced"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Duration returns how long the run took, or zero while it is running.
func (e SyncEntry) Duration() time.Duration {
	if e.CompletedAt == nil {
		return 0
	}
	return e.CompletedAt.Sub(e.StartedAt)
}

// SyncLog reads and writes safewalk.sync_log.
type SyncLog struct {
	pool db.Pool
}

// NewSyncLog creates a SyncLog backed by pool.
func NewSyncLog(pool db.Pool) *SyncLog {
	return &SyncLog{pool: pool}
}

// LastSuccess returns when the most recent complete run of dataset started,
// or nil if it never completed.
func (s *SyncLog) LastSuccess(ctx context.Context, dataset string) (*time.Time, error) {
	var t time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT started_at FROM safewalk.sync_log
		 WHERE dataset = $1 AND status = 'complete'
		 ORDER BY started_at DESC LIMIT 1`,
		dataset,
	).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "synclog: last success for %s", dataset)
	}
	return &t, nil
}

// Start records a running entry and returns its ID.
func (s *SyncLog) Start(ctx context.Context, dataset string) (int64, error) {
	var id int64
	if err := s.pool.QueryRow(ctx,
		`INSERT INTO safewalk.sync_log (dataset, status, started_at)
		 VALUES ($1, 'running', now()) RETURNING id`,
		dataset,
	).Scan(&id); err != nil {
		return 0, eris.Wrapf(err, "synclog: start %s", dataset)
	}
	return id, nil
}

// Complete marks a run finished with its row count and optional metadata.
func (s *SyncLog) Complete(ctx context.Context, id, rows int64, metadata map[string]any) error {
	var meta []byte
	if len(metadata) > 0 {
		var err error
		if meta, err = json.Marshal(metadata); err != nil {
			return eris.Wrap(err, "synclog: marshal metadata")
		}
	}

	if _, err := s.pool.Exec(ctx,
		`UPDATE safewalk.sync_log
		 SET status = 'complete', completed_at = now(), rows_synced = $1, metadata = $2
		 WHERE id = $3`,
		rows, meta, id,
	); err != nil {
		return eris.Wrapf(err, "synclog: complete %d", id)
	}
	return nil
}

// Fail marks a run failed.
func (s *SyncLog) Fail(ctx context.Context, id int64, msg string) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE safewalk.sync_log
		 SET status = 'failed', completed_at = now(), error = $1
		 WHERE id = $2`,
		msg, id,
	); err != nil {
		return eris.Wrapf(err, "synclog: fail %d", id)
	}
	return nil
}

// Recent returns up to limit entries, newest first. limit <= 0 returns all.
func (s *SyncLog) Recent(ctx context.Context, limit int) ([]SyncEntry, error) {
	if limit > 0 {
		return s.list(ctx, " ORDER BY started_at DESC LIMIT $1", limit)
	}
	return s.list(ctx, " ORDER BY started_at DESC")
}

// Since returns the entries started at or after t, newest first.
func (s *SyncLog) Since(ctx context.Context, t time.Time) ([]SyncEntry, error) {
	return s.list(ctx, " WHERE started_at >= $1 ORDER BY started_at DESC", t)
}

func (s *SyncLog) list(ctx context.Context, tail string, args ...any) ([]SyncEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, dataset, status, started_at, completed_at, rows_synced, error, metadata
		 FROM safewalk.sync_log`+tail,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "synclog: list")
	}
	defer rows.Close()

	var entries []SyncEntry
	for rows.Next() {
		var (
			e    SyncEntry
			msg  *string
			meta []byte
		)
		if err := rows.Scan(&e.ID, &e.Dataset, &e.Status, &e.StartedAt, &e.CompletedAt, &e.RowsSynced, &msg, &meta); err != nil {
			return nil, eris.Wrap(err, "synclog: scan entry")
		}
		if msg != nil {
			e.Error = *msg
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, eris.Wrapf(err, "synclog: decode metadata of %d", e.ID)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
