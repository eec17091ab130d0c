package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CopyFrom bulk-inserts rows with the COPY protocol. table may be
// schema-qualified ("safewalk.emd_data").
func CopyFrom(ctx context.Context, pool Pool, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := pool.CopyFrom(ctx, Ident(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}
	return n, nil
}

// Truncate empties table before a full reload.
func Truncate(ctx context.Context, pool Pool, table string) error {
	if _, err := pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s", Ident(table).Sanitize())); err != nil {
		return eris.Wrapf(err, "db: truncate %s", table)
	}
	return nil
}

// BatchResult counts the outcome of a fallback insert.
type BatchResult struct {
	Inserted int64
	Failed   int
}

// CopyBatches inserts rows in batches of batchSize. A batch that fails is
// retried one row at a time so a single bad record only loses itself.
func CopyBatches(ctx context.Context, pool Pool, table string, columns []string, rows [][]any, batchSize int) (BatchResult, error) {
	var res BatchResult
	if batchSize <= 0 {
		batchSize = 100
	}

	for start := 0; start < len(rows); start += batchSize {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		end := min(start+batchSize, len(rows))
		batch := rows[start:end]

		n, err := CopyFrom(ctx, pool, table, columns, batch)
		if err == nil {
			res.Inserted += n
			continue
		}

		zap.L().Warn("db: batch insert failed, retrying rows individually",
			zap.String("table", table),
			zap.Int("offset", start),
			zap.Int("size", len(batch)),
			zap.Error(err),
		)
		for i, row := range batch {
			n, err := CopyFrom(ctx, pool, table, columns, [][]any{row})
			if err != nil {
				zap.L().Debug("db: row insert failed", zap.String("table", table), zap.Int("row", start+i), zap.Error(err))
				res.Failed++
				continue
			}
			res.Inserted += n
		}
	}
	return res, nil
}

// Replace swaps the contents of table for rows in one transaction, so
// readers never see the table empty.
func Replace(ctx context.Context, pool Pool, table string, columns []string, rows [][]any) (int64, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrapf(err, "db: replace %s: begin tx", table)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := Truncate(ctx, tx, table); err != nil {
		return 0, err
	}
	n, err := CopyFrom(ctx, tx, table, columns, rows)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrapf(err, "db: replace %s: commit", table)
	}
	return n, nil
}
