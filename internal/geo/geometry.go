// Package geo converts boundary and hotspot geometries between GeoJSON,
// shapefile shapes and PostGIS EWKB.
package geo

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// SRID of every stored geometry (WGS 84).
const SRID = 4326

// Korea bounding box used to reject misplaced coordinates.
const (
	MinLat = 33.0
	MaxLat = 43.0
	MinLng = 124.0
	MaxLng = 132.0
)

// InKorea reports whether a point lies inside the Korea bounding box.
func InKorea(lat, lng float64) bool {
	return lat >= MinLat && lat <= MaxLat && lng >= MinLng && lng <= MaxLng
}

// ParseGeoJSON decodes a GeoJSON geometry object.
func ParseGeoJSON(raw []byte) (geom.T, error) {
	var g geom.T
	if err := geojson.Unmarshal(raw, &g); err != nil {
		return nil, eris.Wrap(err, "geo: decode geojson")
	}
	if g == nil {
		return nil, eris.New("geo: empty geojson geometry")
	}
	return g, nil
}

// MarshalGeoJSON encodes g as a GeoJSON geometry object.
func MarshalGeoJSON(g geom.T) ([]byte, error) {
	b, err := geojson.Marshal(g)
	if err != nil {
		return nil, eris.Wrap(err, "geo: encode geojson")
	}
	return b, nil
}

// ToMultiPolygon promotes a Polygon to a MultiPolygon and tags it with SRID.
func ToMultiPolygon(g geom.T) (*geom.MultiPolygon, error) {
	switch v := g.(type) {
	case *geom.MultiPolygon:
		return v.SetSRID(SRID), nil
	case *geom.Polygon:
		mp := geom.NewMultiPolygon(v.Layout()).SetSRID(SRID)
		if err := mp.Push(v); err != nil {
			return nil, eris.Wrap(err, "geo: promote polygon")
		}
		return mp, nil
	}
	return nil, eris.Errorf("geo: expected polygon, got %T", g)
}

// EWKB encodes g in little-endian EWKB.
func EWKB(g geom.T) ([]byte, error) {
	b, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geo: encode ewkb")
	}
	return b, nil
}

// PolygonEWKB turns a GeoJSON polygon string, as stored in the hotspot and
// boundary tables, into MultiPolygon EWKB. Blank input yields nil.
func PolygonEWKB(raw string) ([]byte, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	g, err := ParseGeoJSON([]byte(raw))
	if err != nil {
		return nil, err
	}
	mp, err := ToMultiPolygon(g)
	if err != nil {
		return nil, err
	}
	return EWKB(mp)
}

// Center returns the middle of g's bounding box.
func Center(g geom.T) (lat, lng float64, ok bool) {
	if g == nil {
		return 0, 0, false
	}
	b := g.Bounds()
	if b == nil || b.IsEmpty() {
		return 0, 0, false
	}
	return (b.Min(1) + b.Max(1)) / 2, (b.Min(0) + b.Max(0)) / 2, true
}

// PointEWKB encodes a lng/lat point.
func PointEWKB(lat, lng float64) ([]byte, error) {
	return EWKB(geom.NewPointFlat(geom.XY, []float64{lng, lat}).SetSRID(SRID))
}
