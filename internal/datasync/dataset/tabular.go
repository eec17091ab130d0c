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

// Tabular loads one CSV or XLSX file through a Mapping.
type Tabular struct {
	m       *Mapping
	lookups map[string]map[string]string
	source  string
}

// NewTabular builds the dataset for mapping name. source overrides the
// mapping's default location when non-empty.
func NewTabular(cat *Catalog, name, source string) (*Tabular, error) {
	m, err := cat.Mapping(name)
	if err != nil {
		return nil, err
	}
	if source == "" {
		source = m.Source
	}
	return &Tabular{m: m, lookups: cat.Lookups, source: source}, nil
}

func (d *Tabular) Name() string      { return d.m.Name }
func (d *Tabular) Table() string     { return datasync.Schema + "." + d.m.Table }
func (d *Tabular) Cadence() Cadence  { return d.m.Cadence }
func (d *Tabular) Source() string    { return d.source }
func (d *Tabular) Mapping() *Mapping { return d.m }

func (d *Tabular) Phase() Phase {
	p, _ := ParsePhase(d.m.Phase)
	return p
}

func (d *Tabular) ShouldRun(now time.Time, lastSync *time.Time) bool {
	return CadenceDue(d.m.Cadence, d.m.Release(), now, lastSync)
}

func (d *Tabular) Sync(ctx context.Context, pool db.Pool, f fetcher.Fetcher, tempDir string) (*SyncResult, error) {
	log := zap.L().With(zap.String("dataset", d.Name()))
	log.Info("loading", zap.String("source", d.source), zap.String("mode", d.m.Mode))

	s, err := openRecords(ctx, f, d.source, tempDir, d.m)
	if err != nil {
		return nil, err
	}
	rows, read, dropped, err := readRows(ctx, s, d.m, d.lookups, nil)
	if err != nil {
		return nil, err
	}
	if dropped > 0 {
		log.Warn("dropped rows missing required columns", zap.Int("dropped", dropped))
	}

	n, err := load(ctx, pool, d.Table(), d.m, rows)
	if err != nil {
		return nil, err
	}

	return &SyncResult{
		RowsSynced: n,
		Metadata: map[string]any{
			"source":  d.source,
			"read":    read,
			"dropped": dropped,
		},
	}, nil
}

// load writes rows according to the mapping's mode.
func load(ctx context.Context, pool db.Pool, table string, m *Mapping, rows [][]any) (int64, error) {
	cols := m.Targets()
	switch m.Mode {
	case ModeReplace:
		if len(rows) == 0 {
			return 0, eris.Errorf("%s: source has no usable rows, keeping current table", m.Name)
		}
		return db.Replace(ctx, pool, table, cols, dedupeRows(rows, m.keyIndexes()))
	case ModeUpsert:
		return db.BulkUpsert(ctx, pool, db.UpsertConfig{
			Table:        table,
			Columns:      cols,
			ConflictKeys: m.ConflictKeys,
		}, rows)
	default:
		return db.CopyFrom(ctx, pool, table, cols, rows)
	}
}
