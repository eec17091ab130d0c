package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/yys/safewalk-cli/internal/datasync"
	"github.com/yys/safewalk-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of system health.
type MetricsSnapshot struct {
	// Analysis runs saved within the lookback window.
	AnalysesTotal     int            `json:"analyses_total"`
	AnalysesByMethod  map[string]int `json:"analyses_by_method"`
	RegionsClassified int            `json:"regions_classified"`

	// Dataset syncs started within the lookback window.
	SyncTotal      int      `json:"sync_total"`
	SyncComplete   int      `json:"sync_complete"`
	SyncFailed     int      `json:"sync_failed"`
	SyncRunning    int      `json:"sync_running"`
	RowsSynced     int64    `json:"rows_synced"`
	FailedDatasets []string `json:"failed_datasets,omitempty"`

	// Running syncs older than the stall window.
	SyncStalled     int      `json:"sync_stalled"`
	StalledDatasets []string `json:"stalled_datasets,omitempty"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// SyncLogQuerier abstracts the SyncLog methods needed by the collector.
type SyncLogQuerier interface {
	Since(ctx context.Context, t time.Time) ([]datasync.SyncEntry, error)
}

// Collector gathers metrics from the store and sync log. Either may be nil.
type Collector struct {
	store      store.Store
	syncLog    SyncLogQuerier
	stallAfter time.Duration
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store, syncLog SyncLogQuerier) *Collector {
	return &Collector{store: st, syncLog: syncLog}
}

// WithStallAfter makes Collect count running syncs started more than d ago
// as stalled. Zero turns the check off.
func (c *Collector) WithStallAfter(d time.Duration) *Collector {
	c.stallAfter = d
	return c
}

// Collect gathers a snapshot of system metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := time.Now().UTC()
	snap := &MetricsSnapshot{
		AnalysesByMethod: make(map[string]int),
		LookbackHours:    lookbackHours,
		CollectedAt:      now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	if c.store != nil {
		runs, err := c.store.ListAnalyses(ctx, store.RunFilter{Limit: 10000})
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: list analyses")
		}
		for _, r := range runs {
			if r.CreatedAt.Before(cutoff) {
				continue
			}
			snap.AnalysesTotal++
			snap.AnalysesByMethod[r.Method]++
			snap.RegionsClassified += r.RegionCount
		}
	}

	if c.syncLog != nil {
		entries, err := c.syncLog.Since(ctx, cutoff)
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: list sync entries")
		}
		failed := make(map[string]bool)
		stalled := make(map[string]bool)
		for _, e := range entries {
			snap.SyncTotal++
			switch e.Status {
			case datasync.StatusComplete:
				snap.SyncComplete++
				snap.RowsSynced += e.RowsSynced
			case datasync.StatusFailed:
				snap.SyncFailed++
				if !failed[e.Dataset] {
					failed[e.Dataset] = true
					snap.FailedDatasets = append(snap.FailedDatasets, e.Dataset)
				}
			case datasync.StatusRunning:
				snap.SyncRunning++
				if c.stallAfter > 0 && now.Sub(e.StartedAt) > c.stallAfter {
					snap.SyncStalled++
					if !stalled[e.Dataset] {
						stalled[e.Dataset] = true
						snap.StalledDatasets = append(snap.StalledDatasets, e.Dataset)
					}
				}
			}
		}
	}

	return snap, nil
}
