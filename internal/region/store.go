package region

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/yys/safewalk-cli/internal/db"
)

// Per-EMD accident totals come from the pedestrian hotspots whose legal dong
// code shares the EMD's first eight digits. Coordinates come from the
// administrative dong table joined on the same prefix.
const (
	boundsSQL = `
SELECT e.emd_cd, e.emd_kor_nm, a.latitude::float8, a.longitude::float8,
       COALESCE((SELECT SUM(p.accident_count)
                 FROM safewalk.pedestrian_accident_hotspots p
                 WHERE p.sido_code LIKE substr(e.emd_cd, 1, 8) || '%'), 0)::bigint AS total_accident
FROM safewalk.emd_data e
LEFT JOIN safewalk.administrative_legal_dongs a ON substr(e.emd_cd, 1, 8) = substr(a.code, 1, 8)
WHERE a.latitude BETWEEN $1 AND $2
  AND a.longitude BETWEEN $3 AND $4
ORDER BY e.emd_cd`

	sidoSQL = `
SELECT e.emd_cd, e.emd_kor_nm, a.latitude::float8, a.longitude::float8,
       COALESCE(SUM(p.accident_count), 0)::bigint AS total_accident
FROM safewalk.emd_data e
LEFT JOIN safewalk.administrative_legal_dongs a ON substr(e.emd_cd, 1, 8) = substr(a.code, 1, 8)
LEFT JOIN safewalk.pedestrian_accident_hotspots p ON substr(e.emd_cd, 1, 8) = substr(p.sido_code, 1, 8)
WHERE substr(e.emd_cd, 1, 4) = $1
GROUP BY e.emd_cd, e.emd_kor_nm, a.latitude, a.longitude
ORDER BY e.emd_cd`
)

// Store answers region queries from the accident database.
type Store struct {
	pool db.Pool
}

// NewStore creates a Store.
func NewStore(pool db.Pool) *Store {
	return &Store{pool: pool}
}

// InBounds returns the EMDs whose administrative dong center lies in b.
func (s *Store) InBounds(ctx context.Context, b Bounds) ([]Record, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return s.query(ctx, boundsSQL, b.SWLat, b.NELat, b.SWLng, b.NELng)
}

// InSido returns the EMDs whose code starts with code.
func (s *Store) InSido(ctx context.Context, code string) ([]Record, error) {
	if err := ValidateSidoCode(code); err != nil {
		return nil, err
	}
	return s.query(ctx, sidoSQL, code)
}

func (s *Store) query(ctx context.Context, sql string, args ...any) ([]Record, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "region: query emd totals")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec      Record
			total    int64
			lat, lng *float64
		)
		if err := rows.Scan(&rec.Code, &rec.Name, &lat, &lng, &total); err != nil {
			return nil, eris.Wrap(err, "region: scan emd row")
		}
		rec.AccidentCount = int(total)
		rec.Latitude, rec.Longitude = lat, lng
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "region: iterate emd rows")
	}
	return Dedupe(out), nil
}
