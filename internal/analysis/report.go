package analysis

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/yys/safewalk-cli/internal/riskclass"
	"github.com/yys/safewalk-cli/internal/riskstats"
)

type labels struct {
	title       string
	overview    string
	regionCount string
	span        string
	total       string
	stats       string
	mean        string
	median      string
	std         string
	cv          string
	skew        string
	dist        string
	quantiles   string
	q1          string
	q3          string
	p90         string
	criteria    string
	orMore      string
	breakdown   string
	lists       string
	regions     string
	unit        string
	each        string
	method      string
	compare     string
	legacy      string
	lowMax      string
	highMin     string
	moved       string
}

var koLabels = labels{
	title:       "%s 교통사고 위험도 분석 보고서",
	overview:    "지역 개요",
	regionCount: "총 법정동 수",
	span:        "사고 범위",
	total:       "총 사고 건수",
	stats:       "통계 분석",
	mean:        "평균",
	median:      "중앙값",
	std:         "표준편차",
	cv:          "변동계수",
	skew:        "왜도",
	dist:        "분포 유형",
	quantiles:   "분위수 분석",
	q1:          "1사분위(Q1)",
	q3:          "3사분위(Q3)",
	p90:         "90백분위",
	criteria:    "%s 맞춤형 위험도 기준 (%s)",
	orMore:      "이상",
	breakdown:   "위험도별 분류 결과",
	lists:       "위험도별 지역 목록",
	regions:     "%s 지역",
	unit:        "건",
	each:        "개",
	method:      "방식",
	compare:     "%s 분류 방식 비교",
	legacy:      "%s 분석 방식 비교 (기본 → 적응형)",
	lowMax:      "저위험 상한",
	highMin:     "고위험 하한",
	moved:       "등급 변경 지역",
}

var enLabels = labels{
	title:       "%s pedestrian accident risk report",
	overview:    "Overview",
	regionCount: "Regions",
	span:        "Accident range",
	total:       "Total accidents",
	stats:       "Statistics",
	mean:        "Mean",
	median:      "Median",
	std:         "Std deviation",
	cv:          "Coefficient of variation",
	skew:        "Skewness",
	dist:        "Distribution",
	quantiles:   "Quantiles",
	q1:          "Q1",
	q3:          "Q3",
	p90:         "P90",
	criteria:    "%s risk criteria (%s)",
	orMore:      "or more",
	breakdown:   "Regions per level",
	lists:       "Regions by level",
	regions:     "%s regions",
	unit:        "",
	each:        "",
	method:      "method",
	compare:     "%s method comparison",
	legacy:      "%s basic vs adaptive",
	lowMax:      "Low max",
	highMin:     "High min",
	moved:       "Regions changing level",
}

func labelsFor(locale string) labels {
	if locale == "ko" {
		return koLabels
	}
	return enLabels
}

func methodLabel(method, locale string) string {
	if locale == "ko" {
		return riskclass.DisplayName(method)
	}
	return method
}

func banner(title string) string {
	bar := strings.Repeat("=", 15)
	return bar + " " + title + " " + bar
}

// sortedForReport orders regions by accident count, highest first, with
// ties broken by Korean collation of the name.
func sortedForReport(cs []riskclass.Classified) []riskclass.Classified {
	out := slices.Clone(cs)
	col := collate.New(language.Korean)
	slices.SortStableFunc(out, func(a, b riskclass.Classified) int {
		if a.AccidentCount != b.AccidentCount {
			return b.AccidentCount - a.AccidentCount
		}
		return col.CompareString(a.Name, b.Name)
	})
	return out
}

// WriteReport renders r as a plain-text report in locale ("ko" or "en").
func WriteReport(w io.Writer, r *Result, locale string) error {
	l := labelsFor(locale)
	s := r.Statistics
	c := r.Criteria
	var b strings.Builder

	fmt.Fprintf(&b, "\n%s\n", banner(fmt.Sprintf(l.title, r.RegionName)))

	fmt.Fprintf(&b, "\n%s:\n", l.overview)
	fmt.Fprintf(&b, "  • %s: %d%s\n", l.regionCount, s.Count, l.each)
	fmt.Fprintf(&b, "  • %s: %.0f%s ~ %.0f%s\n", l.span, s.Min, l.unit, s.Max, l.unit)
	fmt.Fprintf(&b, "  • %s: %.0f%s\n", l.total, s.Sum, l.unit)

	fmt.Fprintf(&b, "\n%s:\n", l.stats)
	fmt.Fprintf(&b, "  • %s: %.1f%s\n", l.mean, s.Mean, l.unit)
	fmt.Fprintf(&b, "  • %s: %.1f%s\n", l.median, s.Median, l.unit)
	fmt.Fprintf(&b, "  • %s: %.1f%s\n", l.std, s.Std, l.unit)
	fmt.Fprintf(&b, "  • %s: %.2f\n", l.cv, s.CV)
	fmt.Fprintf(&b, "  • %s: %.2f\n", l.skew, s.Skewness)
	if locale == "ko" {
		fmt.Fprintf(&b, "  • %s: %s\n", l.dist, riskstats.DistributionType(s))
	}

	fmt.Fprintf(&b, "\n%s:\n", l.quantiles)
	fmt.Fprintf(&b, "  • %s: %.1f%s\n", l.q1, s.Q1, l.unit)
	fmt.Fprintf(&b, "  • %s: %.1f%s\n", l.q3, s.Q3, l.unit)
	fmt.Fprintf(&b, "  • %s: %.1f%s\n", l.p90, s.P90, l.unit)

	fmt.Fprintf(&b, "\n%s:\n", fmt.Sprintf(l.criteria, r.RegionName, methodLabel(r.Method, locale)))
	fmt.Fprintf(&b, "  • %s: %d ~ %d%s\n", riskclass.Low.Label(locale), c.Low.Min, c.Low.Max, l.unit)
	fmt.Fprintf(&b, "  • %s: %d ~ %d%s\n", riskclass.Medium.Label(locale), c.Medium.Min, c.Medium.Max, l.unit)
	fmt.Fprintf(&b, "  • %s: %d%s %s\n", riskclass.High.Label(locale), c.High.Min, l.unit, l.orMore)

	counts := r.Counts()
	fmt.Fprintf(&b, "\n%s:\n", l.breakdown)
	for _, lvl := range []riskclass.Level{riskclass.Low, riskclass.Medium, riskclass.High} {
		pct := 0.0
		if s.Count > 0 {
			pct = float64(counts[lvl]) / float64(s.Count) * 100
		}
		fmt.Fprintf(&b, "  • %s: %d%s (%.1f%%)\n", lvl.Label(locale), counts[lvl], l.each, pct)
	}

	fmt.Fprintf(&b, "\n%s:\n", l.lists)
	for _, lvl := range riskclass.Levels {
		regions := sortedForReport(r.ClassifiedRegions.Get(lvl))
		if len(regions) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n  %s:\n", fmt.Sprintf(l.regions, lvl.Label(locale)))
		for _, reg := range regions {
			fmt.Fprintf(&b, "    - %s: %d%s\n", reg.Name, reg.AccidentCount, l.unit)
		}
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return eris.Wrap(err, "analysis: write report")
	}
	return nil
}

// WriteComparison renders a per-method summary table.
func WriteComparison(w io.Writer, name string, cmps []MethodComparison, locale string) error {
	l := labelsFor(locale)
	var b strings.Builder

	fmt.Fprintf(&b, "\n%s\n", banner(fmt.Sprintf(l.compare, name)))
	for _, m := range cmps {
		c := m.Criteria
		fmt.Fprintf(&b, "\n[%s %s]\n", methodLabel(m.Method, locale), l.method)
		fmt.Fprintf(&b, "  %s: %d-%d%s (%d)\n", riskclass.Low.Label(locale), c.Low.Min, c.Low.Max, l.unit, m.Low)
		fmt.Fprintf(&b, "  %s: %d-%d%s (%d)\n", riskclass.Medium.Label(locale), c.Medium.Min, c.Medium.Max, l.unit, m.Medium)
		fmt.Fprintf(&b, "  %s: %d-%d%s (%d)\n", riskclass.High.Label(locale), c.High.Min, c.High.Max, l.unit, m.High)
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return eris.Wrap(err, "analysis: write comparison")
	}
	return nil
}

func signed(n int) string {
	if n > 0 {
		return fmt.Sprintf("+%d", n)
	}
	return fmt.Sprintf("%d", n)
}

// WriteLegacy renders the basic vs adaptive threshold shift.
func WriteLegacy(w io.Writer, cmp *LegacyComparison, locale string) error {
	l := labelsFor(locale)
	old, cur := cmp.Basic.Criteria, cmp.Adaptive.Criteria
	var b strings.Builder

	fmt.Fprintf(&b, "\n%s\n", banner(fmt.Sprintf(l.legacy, cmp.RegionName)))
	for _, c := range []riskclass.Criteria{old, cur} {
		fmt.Fprintf(&b, "\n[%s]\n", methodLabel(c.Method, locale))
		fmt.Fprintf(&b, "  %s: %d ~ %d%s\n", riskclass.Low.Label(locale), c.Low.Min, c.Low.Max, l.unit)
		fmt.Fprintf(&b, "  %s: %d ~ %d%s\n", riskclass.Medium.Label(locale), c.Medium.Min, c.Medium.Max, l.unit)
		fmt.Fprintf(&b, "  %s: %d%s %s\n", riskclass.High.Label(locale), c.High.Min, l.unit, l.orMore)
	}
	fmt.Fprintf(&b, "\n  %s: %d → %d (%s)\n", l.lowMax, old.Low.Max, cur.Low.Max, signed(cmp.LowMaxDelta))
	fmt.Fprintf(&b, "  %s: %d → %d (%s)\n", l.highMin, old.High.Min, cur.High.Min, signed(cmp.HighMinDelta))

	if len(cmp.Moves) > 0 {
		fmt.Fprintf(&b, "\n%s:\n", l.moved)
		for _, m := range cmp.Moves {
			fmt.Fprintf(&b, "  - %s (%d%s): %s → %s\n", m.Name, m.Count, l.unit, m.From.Label(locale), m.To.Label(locale))
		}
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return eris.Wrap(err, "analysis: write comparison")
	}
	return nil
}
