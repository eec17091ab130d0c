package dataset

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yys/safewalk-cli/internal/config"
	"github.com/yys/safewalk-cli/internal/datasync"
	"github.com/yys/safewalk-cli/internal/db"
	"github.com/yys/safewalk-cli/internal/fetcher"
)

const (
	popularSpotsFile = "csv/20250817000730_세대별 인기관광지(전체).csv"
	hotPlacesFile    = "csv/20250817000736_세대별 핫플레이스(전체).csv"
	popularSpotsDir  = "한국관광데이터랩/관광지데이터/인기관광지"
	centralSpotsDir  = "한국관광데이터랩/관광지데이터/중심관광지"
)

// TouristSpots loads the generation rankings of popular spots and hot places
// plus the per-province ranking exports of the tourism data lab.
type TouristSpots struct {
	m       *Mapping
	lookups map[string]map[string]string
	popular string
	hot     string
	dirs    []string
}

// NewTouristSpots builds the dataset. Locations can be overridden with the
// data.sources keys tourist_spots, tourist_spots_hot,
// tourist_spots_popular_dir and tourist_spots_central_dir.
func NewTouristSpots(cat *Catalog, cfg *config.Config) (*TouristSpots, error) {
	m, err := cat.Mapping("tourist_spots")
	if err != nil {
		return nil, err
	}
	return &TouristSpots{
		m:       m,
		lookups: cat.Lookups,
		popular: cfg.Data.Source("tourist_spots", m.Source),
		hot:     cfg.Data.Source("tourist_spots_hot", hotPlacesFile),
		dirs: []string{
			cfg.Data.Source("tourist_spots_popular_dir", popularSpotsDir),
			cfg.Data.Source("tourist_spots_central_dir", centralSpotsDir),
		},
	}, nil
}

func (d *TouristSpots) Name() string     { return "tourist_spots" }
func (d *TouristSpots) Table() string    { return datasync.Schema + ".popular_tourist_spots" }
func (d *TouristSpots) Phase() Phase     { return PhaseTourism }
func (d *TouristSpots) Cadence() Cadence { return Monthly }

func (d *TouristSpots) ShouldRun(now time.Time, lastSync *time.Time) bool {
	return MonthlySchedule(now, lastSync)
}

// Sync replaces the rows of every (spot_name, source_file) pair it reads.
func (d *TouristSpots) Sync(ctx context.Context, pool db.Pool, f fetcher.Fetcher, tempDir string) (*SyncResult, error) {
	return d.sync(ctx, pool, f, tempDir, false)
}

// SyncFull truncates the table before loading.
func (d *TouristSpots) SyncFull(ctx context.Context, pool db.Pool, f fetcher.Fetcher, tempDir string) (*SyncResult, error) {
	return d.sync(ctx, pool, f, tempDir, true)
}

// spotSource is one file with the values it forces onto its rows.
type spotSource struct {
	src string
	set map[string]any
}

type spotBatch struct {
	spotSource
	rows    [][]any
	dropped int
}

func (d *TouristSpots) sources(f fetcher.Fetcher) []spotSource {
	out := []spotSource{
		{src: d.popular, set: map[string]any{
			"sido_name":       "제주특별자치도",
			"sigungu_name":    "제주시",
			"base_year_month": nil,
			"growth_rate":     nil,
			"source_file":     "세대별 인기관광지(전체)",
		}},
		{src: d.hot, set: map[string]any{
			"ratio":       0.0,
			"source_file": "세대별 핫플레이스(전체)",
		}},
	}

	res, ok := f.(fetcher.Resolver)
	for _, dir := range d.dirs {
		if !ok || !fetcher.IsLocal(dir) {
			zap.L().Warn("tourist_spots: directory sources must be local", zap.String("dir", dir))
			continue
		}
		local := res.Resolve(dir)
		entries, err := os.ReadDir(local)
		if err != nil {
			zap.L().Warn("tourist_spots: skip directory", zap.String("dir", local), zap.Error(err))
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
				continue
			}
			set, ok := rankingFileValues(e.Name())
			if !ok {
				zap.L().Warn("tourist_spots: unexpected file name", zap.String("file", e.Name()))
				continue
			}
			out = append(out, spotSource{src: path.Join(dir, e.Name()), set: set})
		}
	}
	return out
}

// rankingFileValues reads "YYYYMMDDhhmmss_{sido}_{mode}_전체.csv".
func rankingFileValues(name string) (map[string]any, bool) {
	parts := strings.Split(strings.TrimSuffix(name, filepath.Ext(name)), "_")
	if len(parts) < 3 || len(parts[0]) < 6 {
		return nil, false
	}
	return map[string]any{
		"base_year_month": parts[0][:6],
		"sido_name":       parts[1],
		"mode":            parts[2],
		"source_file":     parts[2] + "(전체)",
	}, true
}

func (d *TouristSpots) sync(ctx context.Context, pool db.Pool, f fetcher.Fetcher, tempDir string, full bool) (*SyncResult, error) {
	log := zap.L().With(zap.String("dataset", d.Name()))
	srcs := d.sources(f)

	batches := make([]spotBatch, len(srcs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, s := range srcs {
		g.Go(func() error {
			stream, err := openRecords(gctx, f, s.src, tempDir, d.m)
			if err != nil {
				return err
			}
			rows, _, dropped, err := readRows(gctx, stream, d.m, d.lookups, s.set)
			if err != nil {
				return eris.Wrapf(err, "tourist_spots: %s", s.src)
			}
			batches[i] = spotBatch{spotSource: s, rows: rows, dropped: dropped}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var (
		total   int64
		dropped int
		all     [][]any
	)
	cols := d.m.Targets()
	for _, b := range batches {
		dropped += b.dropped
		if full {
			all = append(all, b.rows...)
			continue
		}
		n, err := d.replacePairs(ctx, pool, cols, b.rows)
		if err != nil {
			return nil, eris.Wrapf(err, "tourist_spots: load %s", b.src)
		}
		log.Debug("file loaded", zap.String("source", b.src), zap.Int64("rows", n))
		total += n
	}

	if full {
		if len(all) == 0 {
			return nil, eris.New("tourist_spots: sources have no usable rows, keeping current table")
		}
		n, err := db.Replace(ctx, pool, d.Table(), cols, all)
		if err != nil {
			return nil, err
		}
		total = n
	}

	log.Info("tourist spots loaded", zap.Int("files", len(batches)), zap.Int64("rows", total), zap.Bool("full", full))
	return &SyncResult{
		RowsSynced: total,
		Metadata:   map[string]any{"files": len(batches), "dropped": dropped, "full": full},
	}, nil
}

const deleteSpotPairsSQL = `DELETE FROM safewalk.popular_tourist_spots t
USING unnest($1::text[], $2::text[]) AS k(spot_name, source_file)
WHERE t.spot_name = k.spot_name AND t.source_file = k.source_file`

// replacePairs deletes the stored rows of every (spot_name, source_file)
// pair in rows and inserts rows, in one transaction.
func (d *TouristSpots) replacePairs(ctx context.Context, pool db.Pool, cols []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	nameIdx := slices.Index(cols, "spot_name")
	srcIdx := slices.Index(cols, "source_file")

	seen := make(map[[2]string]bool)
	var names, files []string
	for _, r := range rows {
		name, _ := r[nameIdx].(string)
		file, _ := r[srcIdx].(string)
		k := [2]string{name, file}
		if seen[k] {
			continue
		}
		seen[k] = true
		names = append(names, name)
		files = append(files, file)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "tourist_spots: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, deleteSpotPairsSQL, names, files); err != nil {
		return 0, eris.Wrap(err, "tourist_spots: delete existing pairs")
	}
	n, err := db.CopyFrom(ctx, tx, d.Table(), cols, rows)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "tourist_spots: commit")
	}
	return n, nil
}
