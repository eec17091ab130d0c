package riskclass

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/yys/safewalk-cli/internal/region"
	"github.com/yys/safewalk-cli/internal/riskstats"
)

// Level is a risk tier.
type Level int

const (
	Low Level = iota
	Medium
	High
)

// Levels in report order, highest first.
var Levels = []Level{High, Medium, Low}

// String returns "low", "medium" or "high".
func (l Level) String() string {
	switch l {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return "unknown"
	}
}

// Korean returns the Korean label of the tier.
func (l Level) Korean() string {
	switch l {
	case Low:
		return "저위험"
	case Medium:
		return "중위험"
	case High:
		return "고위험"
	default:
		return "알 수 없음"
	}
}

// Label returns the tier label for locale ("ko" or anything else for English).
func (l Level) Label(locale string) string {
	if locale == "ko" {
		return l.Korean()
	}
	return l.String()
}

// MarshalText encodes the level as its English name.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText accepts English or Korean labels.
func (l *Level) UnmarshalText(b []byte) error {
	switch string(b) {
	case "low", "저위험":
		*l = Low
	case "medium", "중위험":
		*l = Medium
	case "high", "고위험":
		*l = High
	default:
		return eris.Errorf("riskclass: unknown level %q", string(b))
	}
	return nil
}

// Of returns the tier of a single count. Counts below Low.Min are low and
// counts above Medium.Max are high regardless of High.Max.
func (c Criteria) Of(count int) Level {
	switch {
	case count <= c.Low.Max:
		return Low
	case count <= c.Medium.Max:
		return Medium
	default:
		return High
	}
}

// Classified is a region annotated with its risk tier.
type Classified struct {
	region.Record
	RiskLevel Level
}

// MarshalJSON emits the region fields plus riskLevel.
func (c Classified) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(c.Record)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(base, &m); err != nil {
		return nil, err
	}
	m["riskLevel"] = c.RiskLevel.String()
	return json.Marshal(m)
}

// UnmarshalJSON reads a region with its riskLevel.
func (c *Classified) UnmarshalJSON(data []byte) error {
	var rec region.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	var lvl Level
	if raw, ok := rec.Extra["riskLevel"].(string); ok {
		if err := lvl.UnmarshalText([]byte(raw)); err != nil {
			return err
		}
		delete(rec.Extra, "riskLevel")
		if len(rec.Extra) == 0 {
			rec.Extra = nil
		}
	}
	*c = Classified{Record: rec, RiskLevel: lvl}
	return nil
}

// Groups holds classified regions per tier, each in input order.
type Groups struct {
	Low    []Classified `json:"low"`
	Medium []Classified `json:"medium"`
	High   []Classified `json:"high"`
}

// Get returns the regions of one tier.
func (g Groups) Get(l Level) []Classified {
	switch l {
	case Low:
		return g.Low
	case Medium:
		return g.Medium
	default:
		return g.High
	}
}

// Total returns the number of classified regions.
func (g Groups) Total() int {
	return len(g.Low) + len(g.Medium) + len(g.High)
}

// Classify assigns every record to exactly one tier.
func Classify(records []region.Record, c Criteria) Groups {
	g := Groups{
		Low:    []Classified{},
		Medium: []Classified{},
		High:   []Classified{},
	}
	for _, r := range records {
		lvl := c.Of(r.AccidentCount)
		cr := Classified{Record: r, RiskLevel: lvl}
		switch lvl {
		case Low:
			g.Low = append(g.Low, cr)
		case Medium:
			g.Medium = append(g.Medium, cr)
		default:
			g.High = append(g.High, cr)
		}
	}
	return g
}

// Summary describes generated criteria alongside the distribution they came from.
type Summary struct {
	RegionName   string       `json:"region_name"`
	TotalRegions int          `json:"total_regions"`
	Criteria     Criteria     `json:"criteria"`
	Statistics   SummaryStats `json:"statistics"`
	Distribution Distribution `json:"distribution_analysis"`
}

// SummaryStats is the subset of statistics shown with criteria.
type SummaryStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Distribution carries the shape measures.
type Distribution struct {
	Skewness float64 `json:"skewness"`
	CV       float64 `json:"coefficient_of_variation"`
	Type     string  `json:"distribution_type"`
}

// Summarize builds a Summary for criteria generated from s.
func Summarize(name string, s riskstats.Snapshot, c Criteria) Summary {
	return Summary{
		RegionName:   name,
		TotalRegions: s.Count,
		Criteria:     c,
		Statistics: SummaryStats{
			Mean:   s.Mean,
			Median: s.Median,
			Std:    s.Std,
			Min:    s.Min,
			Max:    s.Max,
		},
		Distribution: Distribution{
			Skewness: s.Skewness,
			CV:       s.CV,
			Type:     riskstats.DistributionType(s),
		},
	}
}
