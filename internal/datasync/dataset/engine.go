package dataset

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/yys/safewalk-cli/internal/datasync"
	"github.com/yys/safewalk-cli/internal/db"
	"github.com/yys/safewalk-cli/internal/fetcher"
)

// Observer is told about every finished sync attempt.
type Observer func(dataset string, rows int64, elapsed time.Duration, err error)

// Engine orchestrates dataset sync runs.
type Engine struct {
	pool    db.Pool
	fetcher fetcher.Fetcher
	syncLog *datasync.SyncLog
	reg     *Registry
	tempDir string
	observe Observer
}

// RunOpts configures which datasets to sync and how.
type RunOpts struct {
	Phase    *Phase   // restrict to a specific phase
	Datasets []string // restrict to specific dataset names
	Force    bool     // ignore ShouldRun() scheduling
	Full     bool     // full reload instead of incremental
}

// Summary counts the outcome of a Run.
type Summary struct {
	Synced  int   `json:"synced"`
	Skipped int   `json:"skipped"`
	Failed  int   `json:"failed"`
	Rows    int64 `json:"rows"`
}

// NewEngine creates a new sync engine.
func NewEngine(pool db.Pool, f fetcher.Fetcher, syncLog *datasync.SyncLog, reg *Registry, tempDir string) *Engine {
	return &Engine{
		pool:    pool,
		fetcher: f,
		syncLog: syncLog,
		reg:     reg,
		tempDir: tempDir,
	}
}

// SetObserver registers o for every sync attempt.
func (e *Engine) SetObserver(o Observer) {
	e.observe = o
}

// Run iterates over the selected datasets, checks if each needs syncing,
// and runs the sync. Results are recorded in the sync log. A failing
// dataset is logged and counted; the run goes on with the next one.
func (e *Engine) Run(ctx context.Context, opts RunOpts) (Summary, error) {
	log := zap.L().With(zap.String("component", "datasync.engine"))
	now := time.Now().UTC()
	var sum Summary

	datasets, err := e.reg.Select(opts.Phase, opts.Datasets)
	if err != nil {
		return sum, err
	}

	if len(datasets) == 0 {
		log.Info("no datasets selected")
		return sum, nil
	}

	log.Info("selected datasets", zap.Int("count", len(datasets)))

	for _, ds := range datasets {
		select {
		case <-ctx.Done():
			return sum, ctx.Err()
		default:
		}

		dsLog := log.With(zap.String("dataset", ds.Name()), zap.String("phase", ds.Phase().String()))

		if !opts.Force {
			lastSync, err := e.syncLog.LastSuccess(ctx, ds.Name())
			if err != nil {
				return sum, eris.Wrapf(err, "engine: check last sync for %s", ds.Name())
			}

			if !ds.ShouldRun(now, lastSync) {
				dsLog.Debug("skipping (not due)")
				sum.Skipped++
				continue
			}
		}

		dsLog.Info("starting sync", zap.Bool("full", opts.Full))
		syncID, err := e.syncLog.Start(ctx, ds.Name())
		if err != nil {
			return sum, eris.Wrapf(err, "engine: start sync log for %s", ds.Name())
		}

		start := time.Now()
		result, err := e.sync(ctx, ds, opts.Full)
		elapsed := time.Since(start)

		if err != nil {
			dsLog.Error("sync failed", zap.Error(err), zap.Duration("elapsed", elapsed))
			if logErr := e.syncLog.Fail(ctx, syncID, err.Error()); logErr != nil {
				dsLog.Error("failed to record sync failure", zap.Error(logErr))
			}
			e.notify(ds.Name(), 0, elapsed, err)
			sum.Failed++
			continue
		}

		if err := e.syncLog.Complete(ctx, syncID, result.RowsSynced, result.Metadata); err != nil {
			dsLog.Error("failed to record sync completion", zap.Error(err))
		}
		e.notify(ds.Name(), result.RowsSynced, elapsed, nil)

		dsLog.Info("sync complete",
			zap.Int64("rows", result.RowsSynced),
			zap.Duration("elapsed", elapsed),
		)
		sum.Synced++
		sum.Rows += result.RowsSynced
	}

	log.Info("engine run complete",
		zap.Int("synced", sum.Synced),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed),
	)
	return sum, nil
}

func (e *Engine) sync(ctx context.Context, ds Dataset, full bool) (*SyncResult, error) {
	var (
		res *SyncResult
		err error
	)
	if r, ok := ds.(Reloader); ok && full {
		res, err = r.SyncFull(ctx, e.pool, e.fetcher, e.tempDir)
	} else {
		res, err = ds.Sync(ctx, e.pool, e.fetcher, e.tempDir)
	}
	if err == nil && res == nil {
		res = &SyncResult{}
	}
	return res, err
}

func (e *Engine) notify(name string, rows int64, elapsed time.Duration, err error) {
	if e.observe != nil {
		e.observe(name, rows, elapsed, err)
	}
}
