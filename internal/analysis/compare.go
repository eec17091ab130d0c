package analysis

import (
	"github.com/yys/safewalk-cli/internal/region"
	"github.com/yys/safewalk-cli/internal/riskclass"
	"github.com/yys/safewalk-cli/internal/riskstats"
)

// MethodComparison is the outcome of one method over a shared record set.
type MethodComparison struct {
	Method      string             `json:"method"`
	DisplayName string             `json:"display_name"`
	Criteria    riskclass.Criteria `json:"criteria"`
	Low         int                `json:"low"`
	Medium      int                `json:"medium"`
	High        int                `json:"high"`
}

// Compare classifies records with every method in riskclass.Methods.
func Compare(records []region.Record) ([]MethodComparison, error) {
	if err := region.ValidateAll(records); err != nil {
		return nil, err
	}
	snap, err := riskstats.Compute(region.Counts(records))
	if err != nil {
		return nil, err
	}

	out := make([]MethodComparison, 0, len(riskclass.Methods))
	for _, m := range riskclass.Methods {
		crit, err := riskclass.Generate(m, snap)
		if err != nil {
			return nil, err
		}
		g := riskclass.Classify(records, crit)
		out = append(out, MethodComparison{
			Method:      m,
			DisplayName: riskclass.DisplayName(m),
			Criteria:    crit,
			Low:         len(g.Low),
			Medium:      len(g.Medium),
			High:        len(g.High),
		})
	}
	return out, nil
}

// Move is a region whose tier differs between two classifications.
type Move struct {
	Name  string          `json:"name"`
	Count int             `json:"totalAccident"`
	From  riskclass.Level `json:"from"`
	To    riskclass.Level `json:"to"`
}

// LegacyComparison contrasts the basic thresholds with the adaptive ones.
type LegacyComparison struct {
	RegionName   string  `json:"region_name"`
	Basic        *Result `json:"old_result"`
	Adaptive     *Result `json:"new_result"`
	LowMaxDelta  int     `json:"low_max_delta"`
	HighMinDelta int     `json:"high_min_delta"`
	Moves        []Move  `json:"moves"`
}

// CompareLegacy analyzes records with the basic and adaptive methods and
// lists every region that changes tier.
func CompareLegacy(name string, records []region.Record) (*LegacyComparison, error) {
	basic, err := Analyze(name, records, riskclass.MethodBasic)
	if err != nil {
		return nil, err
	}
	adaptive, err := Analyze(name, records, riskclass.MethodAdaptive)
	if err != nil {
		return nil, err
	}

	cmp := &LegacyComparison{
		RegionName:   name,
		Basic:        basic,
		Adaptive:     adaptive,
		LowMaxDelta:  adaptive.Criteria.Low.Max - basic.Criteria.Low.Max,
		HighMinDelta: adaptive.Criteria.High.Min - basic.Criteria.High.Min,
		Moves:        []Move{},
	}
	for _, r := range records {
		from := basic.Criteria.Of(r.AccidentCount)
		to := adaptive.Criteria.Of(r.AccidentCount)
		if from != to {
			cmp.Moves = append(cmp.Moves, Move{Name: r.Name, Count: r.AccidentCount, From: from, To: to})
		}
	}
	return cmp, nil
}
