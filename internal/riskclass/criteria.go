// Package riskclass derives low/medium/high accident-count bands from a
// statistics snapshot and assigns regions to them.
package riskclass

import (
	"fmt"

	"github.com/yys/safewalk-cli/internal/riskstats"
)

// Method names accepted by Generate.
const (
	MethodAdaptive   = "adaptive"
	MethodBasic      = "basic"
	MethodEqual      = "equal"
	MethodPercentile = "percentile"
	MethodQuartile   = "quartile"
)

// Methods lists every supported method in comparison order.
var Methods = []string{MethodEqual, MethodPercentile, MethodQuartile, MethodBasic, MethodAdaptive}

// Band is an inclusive integer range of accident counts.
type Band struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Criteria partitions [min, max] into three contiguous bands.
type Criteria struct {
	Method string `json:"method"`
	Low    Band   `json:"low"`
	Medium Band   `json:"medium"`
	High   Band   `json:"high"`
}

// UnsupportedMethodError is returned by Generate for an unknown method name.
type UnsupportedMethodError struct {
	Method string
}

func (e *UnsupportedMethodError) Error() string {
	return fmt.Sprintf("riskclass: unsupported method %q", e.Method)
}

// Generate builds criteria from s using the named method.
func Generate(method string, s riskstats.Snapshot) (Criteria, error) {
	var low, high int
	switch method {
	case MethodAdaptive:
		return Adaptive(s), nil
	case MethodEqual:
		step := (s.Max - s.Min) / 3
		low, high = int(s.Min+step), int(s.Min+2*step)
	case MethodPercentile:
		low, high = int(s.P33), int(s.P67)
	case MethodQuartile:
		low, high = int(s.Q1), int(s.Q3)
	case MethodBasic:
		low = max(int(s.Median), int(s.Mean*0.5))
		high = max(int(s.Mean*1.3), int(s.Q3))
	default:
		return Criteria{}, &UnsupportedMethodError{Method: method}
	}
	return bands(method, s, low, high), nil
}

// Adaptive derives thresholds from the distribution shape and the sample
// size, then repairs a collapsed medium band.
func Adaptive(s riskstats.Snapshot) Criteria {
	medianThreshold := max(int(s.Median), 1)
	meanBasedLow := max(int(s.Mean*0.4), 1)
	meanBasedHigh := max(int(s.Mean*1.2), int(s.Q3))

	var low, high int
	switch {
	case s.Skewness > 1.0:
		low = max(medianThreshold, int(s.P33))
		high = min(meanBasedHigh, int(s.P90))
	case s.CV > 1.5:
		low = max(int(s.Q1), 1)
		high = int(s.Q3)
	default:
		low = max(medianThreshold, meanBasedLow)
		high = meanBasedHigh
	}

	switch {
	case s.Count < 20:
		low = max(1, int(float64(low)*0.8))
		high = max(low+2, int(float64(high)*0.9))
	case s.Count > 100:
		low = int(float64(low) * 1.1)
		high = int(float64(high) * 1.1)
	}

	if high <= low {
		high = low + max(2, int(s.Std*0.5))
	}

	return bands(MethodAdaptive, s, low, high)
}

func bands(method string, s riskstats.Snapshot, low, high int) Criteria {
	return Criteria{
		Method: method,
		Low:    Band{Min: int(s.Min), Max: low},
		Medium: Band{Min: low + 1, Max: high},
		High:   Band{Min: high + 1, Max: int(s.Max)},
	}
}

// DisplayName returns the Korean name of a method.
func DisplayName(method string) string {
	switch method {
	case MethodEqual:
		return "균등분할"
	case MethodPercentile:
		return "백분위"
	case MethodQuartile:
		return "사분위수"
	case MethodAdaptive:
		return "적응형"
	case MethodBasic:
		return "기본"
	default:
		return method
	}
}
