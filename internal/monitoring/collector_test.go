package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yys/safewalk-cli/internal/analysis"
	"github.com/yys/safewalk-cli/internal/datasync"
	"github.com/yys/safewalk-cli/internal/store"
)

// mockStore implements store.Store for testing.
type mockStore struct {
	runs    []store.RunSummary
	listErr error
}

func (m *mockStore) ListAnalyses(_ context.Context, filter store.RunFilter) ([]store.RunSummary, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []store.RunSummary
	for _, r := range m.runs {
		if filter.Method != "" && r.Method != filter.Method {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *mockStore) SaveAnalysis(context.Context, *analysis.Result) (string, error) { return "", nil }
func (m *mockStore) GetAnalysis(context.Context, string) (*analysis.Result, error)  { return nil, nil }
func (m *mockStore) Migrate(context.Context) error                                  { return nil }
func (m *mockStore) Ping(context.Context) error                                     { return nil }
func (m *mockStore) Close() error                                                   { return nil }

type mockSyncLog struct {
	entries []datasync.SyncEntry
	err     error
	since   time.Time
}

func (m *mockSyncLog) Since(_ context.Context, t time.Time) ([]datasync.SyncEntry, error) {
	m.since = t
	return m.entries, m.err
}

func TestCollector_Collect(t *testing.T) {
	now := time.Now().UTC()
	st := &mockStore{runs: []store.RunSummary{
		{ID: "1", Method: "adaptive", RegionCount: 13, CreatedAt: now.Add(-time.Hour)},
		{ID: "2", Method: "adaptive", RegionCount: 22, CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "3", Method: "equal", RegionCount: 13, CreatedAt: now.Add(-3 * time.Hour)},
		{ID: "4", Method: "quartile", RegionCount: 9, CreatedAt: now.Add(-48 * time.Hour)},
	}}
	sl := &mockSyncLog{entries: []datasync.SyncEntry{
		{Dataset: "risk_areas", Status: datasync.StatusComplete, RowsSynced: 120},
		{Dataset: "pedestrian_hotspots", Status: datasync.StatusFailed},
		{Dataset: "pedestrian_hotspots", Status: datasync.StatusFailed},
		{Dataset: "visitor_boom", Status: datasync.StatusComplete, RowsSynced: 30},
		{Dataset: "koroad_hotspots", Status: datasync.StatusRunning},
	}}

	snap, err := NewCollector(st, sl).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 3, snap.AnalysesTotal)
	assert.Equal(t, map[string]int{"adaptive": 2, "equal": 1}, snap.AnalysesByMethod)
	assert.Equal(t, 48, snap.RegionsClassified)

	assert.Equal(t, 5, snap.SyncTotal)
	assert.Equal(t, 2, snap.SyncComplete)
	assert.Equal(t, 2, snap.SyncFailed)
	assert.Equal(t, 1, snap.SyncRunning)
	assert.Equal(t, int64(150), snap.RowsSynced)
	assert.Equal(t, []string{"pedestrian_hotspots"}, snap.FailedDatasets)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.WithinDuration(t, now.Add(-24*time.Hour), sl.since, time.Minute)
}

func TestCollector_StalledSyncs(t *testing.T) {
	now := time.Now().UTC()
	sl := &mockSyncLog{entries: []datasync.SyncEntry{
		{Dataset: "koroad_hotspots", Status: datasync.StatusRunning, StartedAt: now.Add(-5 * time.Hour)},
		{Dataset: "koroad_hotspots", Status: datasync.StatusRunning, StartedAt: now.Add(-4 * time.Hour)},
		{Dataset: "emd_shapefile", Status: datasync.StatusRunning, StartedAt: now.Add(-30 * time.Minute)},
		{Dataset: "risk_areas", Status: datasync.StatusComplete, StartedAt: now.Add(-6 * time.Hour)},
	}}

	snap, err := NewCollector(nil, sl).WithStallAfter(2*time.Hour).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.SyncRunning)
	assert.Equal(t, 2, snap.SyncStalled)
	assert.Equal(t, []string{"koroad_hotspots"}, snap.StalledDatasets)

	snap, err = NewCollector(nil, sl).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Zero(t, snap.SyncStalled)
}

func TestCollector_NilSources(t *testing.T) {
	snap, err := NewCollector(nil, nil).Collect(context.Background(), 1)
	require.NoError(t, err)
	assert.Zero(t, snap.AnalysesTotal)
	assert.Zero(t, snap.SyncTotal)
}

func TestCollector_Errors(t *testing.T) {
	_, err := NewCollector(&mockStore{listErr: errors.New("locked")}, nil).Collect(context.Background(), 24)
	assert.ErrorContains(t, err, "monitoring: list analyses")

	_, err = NewCollector(nil, &mockSyncLog{err: errors.New("down")}).Collect(context.Background(), 24)
	assert.ErrorContains(t, err, "monitoring: list sync entries")
}
