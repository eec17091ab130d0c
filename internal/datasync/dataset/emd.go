package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/yys/safewalk-cli/internal/datasync"
	"github.com/yys/safewalk-cli/internal/db"
	"github.com/yys/safewalk-cli/internal/fetcher"
	"github.com/yys/safewalk-cli/internal/geo"
)

const (
	emdGeoJSONSource   = "geojson/emd.json"
	emdShapefileSource = "shp/emd.zip"
	emdBatchSize       = 100
)

var emdColumns = []string{"emd_cd", "emd_eng_nm", "emd_kor_nm", "polygon", "geom", "latitude", "longitude"}

// emdRow builds an emd_data row. Geometry that cannot be converted leaves
// geom and the centre NULL; the raw polygon is kept.
func emdRow(code, eng, kor string, polygon []byte, g geom.T) []any {
	var (
		ewkb     any
		lat, lng any
	)
	if g != nil {
		if mp, err := geo.ToMultiPolygon(g); err == nil {
			if b, err := geo.EWKB(mp); err == nil {
				ewkb = b
			}
		}
		if la, ln, ok := geo.Center(g); ok {
			lat, lng = la, ln
		}
	}
	var poly any
	if len(polygon) > 0 {
		poly = string(polygon)
	}
	return []any{code, eng, kor, poly, ewkb, lat, lng}
}

// EMDGeoJSON loads eup/myeon/dong boundaries from a GeoJSON
// FeatureCollection.
type EMDGeoJSON struct {
	source string
}

func (d *EMDGeoJSON) Name() string     { return "emd_geojson" }
func (d *EMDGeoJSON) Table() string    { return datasync.Schema + ".emd_data" }
func (d *EMDGeoJSON) Phase() Phase     { return PhaseReference }
func (d *EMDGeoJSON) Cadence() Cadence { return Annual }

func (d *EMDGeoJSON) ShouldRun(now time.Time, lastSync *time.Time) bool {
	return AnnualAfter(now, lastSync, time.January)
}

type geoFeature struct {
	Properties map[string]any  `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

func propString(props map[string]any, key string) string {
	v, ok := props[key]
	if !ok || v == nil {
		return ""
	}
	if f, ok := v.(float64); ok {
		return fmt.Sprintf("%.0f", f)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// Sync replaces emd_data with the features of the source. Rows go in batches
// of 100; a failing batch is retried row by row.
func (d *EMDGeoJSON) Sync(ctx context.Context, pool db.Pool, f fetcher.Fetcher, tempDir string) (*SyncResult, error) {
	log := zap.L().With(zap.String("dataset", d.Name()))

	rc, err := f.Download(ctx, d.source)
	if err != nil {
		return nil, eris.Wrapf(err, "emd_geojson: open %s", d.source)
	}
	defer rc.Close() //nolint:errcheck

	featCh, errCh := fetcher.DecodeJSONField[geoFeature](ctx, rc, "features")

	var (
		rows    [][]any
		read    int
		skipped int
	)
	for feat := range featCh {
		read++
		code := propString(feat.Properties, "EMD_CD")
		eng := propString(feat.Properties, "EMD_ENG_NM")
		kor := propString(feat.Properties, "EMD_KOR_NM")
		if code == "" || eng == "" || kor == "" {
			skipped++
			continue
		}

		var (
			g   geom.T
			raw []byte
		)
		if len(feat.Geometry) > 0 && string(feat.Geometry) != "null" {
			raw = feat.Geometry
			if parsed, err := geo.ParseGeoJSON(raw); err == nil {
				g = parsed
			} else {
				log.Debug("unusable geometry", zap.String("emd_cd", code), zap.Error(err))
			}
		}
		rows = append(rows, emdRow(code, eng, kor, raw, g))
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrap(err, "emd_geojson: decode features")
	}
	if len(rows) == 0 {
		return nil, eris.Errorf("emd_geojson: no usable features in %s", d.source)
	}

	if err := db.Truncate(ctx, pool, d.Table()); err != nil {
		return nil, err
	}
	res, err := db.CopyBatches(ctx, pool, d.Table(), emdColumns, rows, emdBatchSize)
	if err != nil {
		return nil, eris.Wrap(err, "emd_geojson: insert")
	}

	log.Info("emd boundaries loaded",
		zap.Int("features", read),
		zap.Int64("inserted", res.Inserted),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", skipped),
	)
	return &SyncResult{
		RowsSynced: res.Inserted,
		Metadata:   map[string]any{"features": read, "failed": res.Failed, "skipped": skipped},
	}, nil
}

// EMDShapefile loads boundaries from a zipped shapefile with CP949
// attributes and upserts them on emd_cd.
type EMDShapefile struct {
	source string
}

func (d *EMDShapefile) Name() string     { return "emd_shapefile" }
func (d *EMDShapefile) Table() string    { return datasync.Schema + ".emd_data" }
func (d *EMDShapefile) Phase() Phase     { return PhaseReference }
func (d *EMDShapefile) Cadence() Cadence { return Annual }

func (d *EMDShapefile) ShouldRun(now time.Time, lastSync *time.Time) bool {
	return AnnualAfter(now, lastSync, time.January)
}

func (d *EMDShapefile) Sync(ctx context.Context, pool db.Pool, f fetcher.Fetcher, tempDir string) (*SyncResult, error) {
	log := zap.L().With(zap.String("dataset", d.Name()))

	local, err := fetcher.LocalCopy(ctx, f, d.source, tempDir)
	if err != nil {
		return nil, eris.Wrap(err, "emd_shapefile: fetch")
	}

	shpPath := local
	if strings.EqualFold(filepath.Ext(local), ".zip") {
		paths, err := fetcher.Unzip(local, filepath.Join(tempDir, "emd_shapefile"))
		if err != nil {
			return nil, eris.Wrap(err, "emd_shapefile: extract")
		}
		p, ok := fetcher.FindExt(paths, ".shp")
		if !ok {
			return nil, eris.Errorf("emd_shapefile: no .shp in %s", d.source)
		}
		shpPath = p
	}

	features, err := geo.ReadShapefile(shpPath, fetcher.EncodingCP949)
	if err != nil {
		return nil, err
	}

	var (
		rows    [][]any
		skipped int
	)
	for _, ft := range features {
		code := strings.TrimSpace(ft.Attrs["EMD_CD"])
		eng := strings.TrimSpace(ft.Attrs["EMD_ENG_NM"])
		kor := strings.TrimSpace(ft.Attrs["EMD_KOR_NM"])
		if code == "" || kor == "" {
			skipped++
			continue
		}
		if eng == "" {
			eng = kor
		}
		poly, err := geo.MarshalGeoJSON(ft.Geometry)
		if err != nil {
			poly = nil
		}
		rows = append(rows, emdRow(code, eng, kor, poly, ft.Geometry))
	}

	n, err := db.BulkUpsert(ctx, pool, db.UpsertConfig{
		Table:        d.Table(),
		Columns:      emdColumns,
		ConflictKeys: []string{"emd_cd"},
	}, rows)
	if err != nil {
		return nil, eris.Wrap(err, "emd_shapefile: upsert")
	}

	log.Info("emd shapefile loaded", zap.Int("features", len(features)), zap.Int64("rows", n), zap.Int("skipped", skipped))
	return &SyncResult{
		RowsSynced: n,
		Metadata:   map[string]any{"features": len(features), "skipped": skipped},
	}, nil
}
