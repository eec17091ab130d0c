package geo

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/yys/safewalk-cli/internal/fetcher"
)

// Feature is one shapefile record: its attributes, keyed by upper-case field
// name, and its geometry.
type Feature struct {
	Attrs    map[string]string
	Geometry geom.T
}

// ReadShapefile reads every record of shpPath. Attribute text is decoded with
// enc (Korean boundary files ship CP949 .dbf tables). Records without a
// usable geometry are skipped.
func ReadShapefile(shpPath string, enc fetcher.Encoding) ([]Feature, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: open shapefile %s", shpPath)
	}
	defer reader.Close() //nolint:errcheck

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.ToUpper(strings.TrimRight(f.String(), "\x00"))
	}

	var (
		out     []Feature
		skipped int
	)
	for reader.Next() {
		_, shape := reader.Shape()
		g := FromShape(shape)
		if g == nil {
			skipped++
			continue
		}

		attrs := make(map[string]string, len(names))
		for i, name := range names {
			v := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			attrs[name] = fetcher.DecodeString(v, enc)
		}
		out = append(out, Feature{Attrs: attrs, Geometry: g})
	}

	if skipped > 0 {
		zap.L().Debug("geo: skipped shapefile records without geometry",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}
	return out, nil
}

// FromShape converts a go-shp shape to a go-geom geometry with SRID set.
// Polygons become MultiPolygons and polylines MultiLineStrings. Unsupported
// or empty shapes return nil.
func FromShape(shape shp.Shape) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}).SetSRID(SRID)
	case *shp.Polygon:
		return multiPolygon(s.Parts, s.Points)
	case *shp.PolyLine:
		return multiLineString(s.Parts, s.Points)
	}
	return nil
}

// parts splits points at the part offsets.
func parts(offsets []int32, points []shp.Point) [][]float64 {
	out := make([][]float64, 0, len(offsets))
	for i, start := range offsets {
		end := int32(len(points))
		if i+1 < len(offsets) {
			end = offsets[i+1]
		}
		if start < 0 || start >= end || int(end) > len(points) {
			continue
		}
		flat := make([]float64, 0, 2*(end-start))
		for _, p := range points[start:end] {
			flat = append(flat, p.X, p.Y)
		}
		out = append(out, flat)
	}
	return out
}

func multiPolygon(offsets []int32, points []shp.Point) geom.T {
	mp := geom.NewMultiPolygon(geom.XY).SetSRID(SRID)
	for _, ring := range parts(offsets, points) {
		if len(ring) < 8 {
			continue
		}
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(geom.NewLinearRingFlat(geom.XY, ring)); err != nil {
			continue
		}
		if err := mp.Push(poly); err != nil {
			continue
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

func multiLineString(offsets []int32, points []shp.Point) geom.T {
	mls := geom.NewMultiLineString(geom.XY).SetSRID(SRID)
	for _, line := range parts(offsets, points) {
		if len(line) < 4 {
			continue
		}
		if err := mls.Push(geom.NewLineStringFlat(geom.XY, line)); err != nil {
			continue
		}
	}
	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}
