package koroad

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultYears are the survey years the hotspot endpoints serve.
var DefaultYears = []string{"2017", "2018", "2019", "2020", "2021", "2022", "2023"}

// HotspotStore persists collected hotspots.
type HotspotStore interface {
	// Collected reports whether region/year was already stored for cat.
	Collected(ctx context.Context, cat Category, year string, r Region) (bool, error)
	// SaveHotspots stores valid items and returns how many rows were written.
	SaveHotspots(ctx context.Context, cat Category, year string, r Region, items []Hotspot) (int64, error)
}

// Stats counts the outcome of collecting one category.
type Stats struct {
	Category  Category  `json:"category"`
	Collected int64     `json:"collected"`
	Skipped   int       `json:"skipped"`
	Invalid   int       `json:"invalid"`
	Errors    int       `json:"errors"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// Duration is how long the category took.
func (s Stats) Duration() time.Duration { return s.EndedAt.Sub(s.StartedAt) }

// Collector walks categories x regions x years and stores what the API
// returns. Region/year pairs already stored are skipped.
type Collector struct {
	Client     Client
	Store      HotspotStore
	Regions    []Region
	Years      []string
	Categories []Category
	// Refresh re-fetches region/year pairs that are already stored.
	Refresh bool
}

// Collect runs every category in turn. A failing region/year is counted and
// logged; only context cancellation stops the run early.
func (c *Collector) Collect(ctx context.Context) ([]Stats, error) {
	cats := c.Categories
	if len(cats) == 0 {
		cats = Categories
	}
	var out []Stats
	for _, cat := range cats {
		st, err := c.CollectCategory(ctx, cat)
		out = append(out, st)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// CollectCategory collects one category.
func (c *Collector) CollectCategory(ctx context.Context, cat Category) (Stats, error) {
	log := zap.L().With(zap.String("component", "koroad.collector"), zap.String("category", string(cat)))
	years := c.Years
	if len(years) == 0 {
		years = DefaultYears
	}

	st := Stats{Category: cat, StartedAt: time.Now().UTC()}
	total := len(c.Regions) * len(years)
	log.Info("collecting "+cat.Label(), zap.Int("regions", len(c.Regions)), zap.Int("years", len(years)))

	processed := 0
	for _, r := range c.Regions {
		for _, year := range years {
			if err := ctx.Err(); err != nil {
				st.EndedAt = time.Now().UTC()
				return st, err
			}
			processed++

			if !c.Refresh {
				done, err := c.Store.Collected(ctx, cat, year, r)
				if err != nil {
					st.EndedAt = time.Now().UTC()
					return st, eris.Wrapf(err, "koroad: check %s %s", r, year)
				}
				if done {
					st.Skipped++
					continue
				}
			}

			items, err := c.Client.Hotspots(ctx, cat, Query{Year: year, SiDo: r.SiDo, GuGun: r.GuGun})
			if err != nil {
				if ctx.Err() != nil {
					st.EndedAt = time.Now().UTC()
					return st, ctx.Err()
				}
				st.Errors++
				log.Warn("koroad: fetch failed", zap.String("region", r.String()), zap.String("year", year), zap.Error(err))
				continue
			}

			valid := items[:0]
			for _, it := range items {
				if it.Valid() {
					valid = append(valid, it)
				}
			}
			st.Invalid += len(items) - len(valid)

			n, err := c.Store.SaveHotspots(ctx, cat, year, r, valid)
			if err != nil {
				st.Errors++
				log.Warn("koroad: save failed", zap.String("region", r.String()), zap.String("year", year), zap.Error(err))
				continue
			}
			st.Collected += n

			if processed%100 == 0 {
				log.Info("progress", zap.Int("done", processed), zap.Int("total", total))
			}
		}
	}

	st.EndedAt = time.Now().UTC()
	log.Info("collection complete",
		zap.Int64("collected", st.Collected),
		zap.Int("skipped", st.Skipped),
		zap.Int("invalid", st.Invalid),
		zap.Int("errors", st.Errors),
		zap.Duration("elapsed", st.Duration()),
	)
	return st, nil
}
