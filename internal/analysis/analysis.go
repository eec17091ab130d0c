// Package analysis runs the statistics engine and classifier over a region
// source and renders the outcome.
package analysis

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yys/safewalk-cli/internal/region"
	"github.com/yys/safewalk-cli/internal/riskclass"
	"github.com/yys/safewalk-cli/internal/riskstats"
)

// Result is one complete analysis of a region set.
type Result struct {
	ID                string             `json:"id,omitempty"`
	RegionName        string             `json:"region_name"`
	AnalysisDate      time.Time          `json:"analysis_date"`
	Method            string             `json:"method"`
	Criteria          riskclass.Criteria `json:"criteria"`
	Statistics        riskstats.Snapshot `json:"statistics"`
	ClassifiedRegions riskclass.Groups   `json:"classified_regions"`
	Summary           riskclass.Summary  `json:"summary"`
}

// Counts returns the number of regions per tier.
func (r *Result) Counts() map[riskclass.Level]int {
	return map[riskclass.Level]int{
		riskclass.Low:    len(r.ClassifiedRegions.Low),
		riskclass.Medium: len(r.ClassifiedRegions.Medium),
		riskclass.High:   len(r.ClassifiedRegions.High),
	}
}

// now is replaced in tests.
var now = time.Now

// Analyze computes statistics, criteria and tiers for records.
func Analyze(name string, records []region.Record, method string) (*Result, error) {
	if err := region.ValidateAll(records); err != nil {
		return nil, err
	}
	snap, err := riskstats.Compute(region.Counts(records))
	if err != nil {
		return nil, err
	}
	crit, err := riskclass.Generate(method, snap)
	if err != nil {
		return nil, err
	}
	return &Result{
		RegionName:        name,
		AnalysisDate:      now(),
		Method:            method,
		Criteria:          crit,
		Statistics:        snap,
		ClassifiedRegions: riskclass.Classify(records, crit),
		Summary:           riskclass.Summarize(name, snap, crit),
	}, nil
}

// Run loads src and analyzes it with method.
func Run(ctx context.Context, src region.Source, method string) (*Result, error) {
	log := zap.L().With(zap.String("component", "analysis"), zap.String("region", src.Name()))

	records, err := src.Load(ctx)
	if err != nil {
		return nil, eris.Wrapf(err, "analysis: load %s", src.Name())
	}
	log.Debug("records loaded", zap.Int("count", len(records)))

	res, err := Analyze(src.Name(), records, method)
	if err != nil {
		return nil, eris.Wrapf(err, "analysis: analyze %s", src.Name())
	}

	c := res.Counts()
	log.Info("analysis complete",
		zap.String("method", method),
		zap.Int("regions", res.Statistics.Count),
		zap.Int("high", c[riskclass.High]),
		zap.Int("medium", c[riskclass.Medium]),
		zap.Int("low", c[riskclass.Low]),
	)
	return res, nil
}

// RunAll analyzes several sources with at most concurrency in flight.
// Results keep the order of srcs; the first failure cancels the rest.
func RunAll(ctx context.Context, srcs []region.Source, method string, concurrency int) ([]*Result, error) {
	if concurrency <= 0 {
		concurrency = 4
	}
	out := make([]*Result, len(srcs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, src := range srcs {
		g.Go(func() error {
			res, err := Run(gctx, src, method)
			if err != nil {
				return err
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
