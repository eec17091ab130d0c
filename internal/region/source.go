package region

import (
	"context"
	"regexp"

	"github.com/rotisserie/eris"
)

// Source produces the records of one analysis run.
type Source interface {
	// Name labels the region set in reports and saved results.
	Name() string
	Load(ctx context.Context) ([]Record, error)
}

// Bounds is a map viewport given by its south-west and north-east corners.
type Bounds struct {
	SWLat float64 `json:"swLat"`
	SWLng float64 `json:"swLng"`
	NELat float64 `json:"neLat"`
	NELng float64 `json:"neLng"`
}

// KoreaBounds covers the whole country.
var KoreaBounds = Bounds{SWLat: 33.0, SWLng: 124.0, NELat: 38.9, NELng: 132.0}

// KoreaName labels a nationwide query.
const KoreaName = "대한민국 전국"

// Validate requires the south-west corner to lie below and left of the
// north-east one.
func (b Bounds) Validate() error {
	if b.SWLat >= b.NELat || b.SWLng >= b.NELng {
		return eris.Errorf("region: invalid bounds sw(%g, %g) ne(%g, %g)", b.SWLat, b.SWLng, b.NELat, b.NELng)
	}
	if b.SWLat < -90 || b.NELat > 90 || b.SWLng < -180 || b.NELng > 180 {
		return eris.Errorf("region: bounds out of range sw(%g, %g) ne(%g, %g)", b.SWLat, b.SWLng, b.NELat, b.NELng)
	}
	return nil
}

var sidoCodeRe = regexp.MustCompile(`^\d{4}$`)

// ValidateSidoCode checks a 4-digit city/province code prefix such as "4713".
func ValidateSidoCode(code string) error {
	if !sidoCodeRe.MatchString(code) {
		return eris.Errorf("region: sido code must be 4 digits, got %q", code)
	}
	return nil
}

// SidoLabel is the default name of a sido query.
func SidoLabel(code string) string {
	return "시도코드_" + code
}

// Lookup answers region queries. The region API client and the database
// store both implement it.
type Lookup interface {
	InBounds(ctx context.Context, b Bounds) ([]Record, error)
	InSido(ctx context.Context, code string) ([]Record, error)
}

// Query selects records either by bounds or, when SidoCode is set, by sido.
type Query struct {
	Bounds   Bounds
	SidoCode string
	Label    string
}

// Name returns Label, or the default label for the query kind.
func (q Query) Name() string {
	switch {
	case q.Label != "":
		return q.Label
	case q.SidoCode != "":
		return SidoLabel(q.SidoCode)
	case q.Bounds == KoreaBounds:
		return KoreaName
	}
	return "사용자 지정 영역"
}

// Validate checks whichever selector is in use.
func (q Query) Validate() error {
	if q.SidoCode != "" {
		return ValidateSidoCode(q.SidoCode)
	}
	return q.Bounds.Validate()
}

// LookupSource runs one Query against a Lookup.
type LookupSource struct {
	Lookup Lookup
	Query  Query
}

// Name implements Source.
func (s LookupSource) Name() string { return s.Query.Name() }

// Load implements Source. Duplicate name+code rows are dropped.
func (s LookupSource) Load(ctx context.Context) ([]Record, error) {
	if err := s.Query.Validate(); err != nil {
		return nil, err
	}
	var (
		recs []Record
		err  error
	)
	if s.Query.SidoCode != "" {
		recs, err = s.Lookup.InSido(ctx, s.Query.SidoCode)
	} else {
		recs, err = s.Lookup.InBounds(ctx, s.Query.Bounds)
	}
	if err != nil {
		return nil, err
	}
	return Dedupe(recs), nil
}
