package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig describes a bulk upsert.
type UpsertConfig struct {
	Table        string   // target table, optionally schema-qualified
	Columns      []string // columns present in each row
	ConflictKeys []string // unique key columns
	UpdateCols   []string // columns overwritten on conflict; nil = every non-key column
}

func (c UpsertConfig) updateCols() []string {
	if c.UpdateCols != nil {
		return c.UpdateCols
	}
	keys := make(map[string]bool, len(c.ConflictKeys))
	for _, k := range c.ConflictKeys {
		keys[k] = true
	}
	var out []string
	for _, col := range c.Columns {
		if !keys[col] {
			out = append(out, col)
		}
	}
	return out
}

// BulkUpsert stages rows in a temp table, drops duplicate keys (the last
// occurrence wins) and merges into the target with INSERT ... ON CONFLICT.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return 0, eris.New("db: upsert: no conflict keys specified")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tmp := pgx.Identifier{"_tmp_upsert_" + strings.ReplaceAll(cfg.Table, ".", "_")}
	target := Ident(cfg.Table).Sanitize()

	if _, err := tx.Exec(ctx, fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		tmp.Sanitize(), target,
	)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: create temp table for %s", cfg.Table)
	}

	if _, err := tx.CopyFrom(ctx, tmp, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: COPY into temp table for %s", cfg.Table)
	}

	if _, err := tx.Exec(ctx, dedupSQL(tmp.Sanitize(), cfg.ConflictKeys)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: dedup staged rows for %s", cfg.Table)
	}

	cols := quoteAndJoin(cfg.Columns)
	conflict := fmt.Sprintf("ON CONFLICT (%s) DO NOTHING", quoteAndJoin(cfg.ConflictKeys))
	if upd := cfg.updateCols(); len(upd) > 0 {
		sets := make([]string, len(upd))
		for i, c := range upd {
			q := pgx.Identifier{c}.Sanitize()
			sets[i] = q + " = EXCLUDED." + q
		}
		conflict = fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", quoteAndJoin(cfg.ConflictKeys), strings.Join(sets, ", "))
	}

	tag, err := tx.Exec(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s %s",
		target, cols, cols, tmp.Sanitize(), conflict,
	))
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: INSERT ON CONFLICT for %s", cfg.Table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}
	return tag.RowsAffected(), nil
}

func dedupSQL(tmp string, keys []string) string {
	conds := make([]string, len(keys))
	for i, k := range keys {
		q := pgx.Identifier{k}.Sanitize()
		conds[i] = fmt.Sprintf("a.%s IS NOT DISTINCT FROM b.%s", q, q)
	}
	return fmt.Sprintf("DELETE FROM %s a USING %s b WHERE a.ctid < b.ctid AND %s",
		tmp, tmp, strings.Join(conds, " AND "))
}
