// Package riskstats computes descriptive statistics over per-region
// accident counts.
package riskstats

import (
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

// Snapshot holds the descriptive statistics of one batch of accident counts.
type Snapshot struct {
	Count    int     `json:"count"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Sum      float64 `json:"sum"`
	Mean     float64 `json:"mean"`
	Median   float64 `json:"median"`
	Std      float64 `json:"std"`
	Variance float64 `json:"variance"`
	Q1       float64 `json:"q1"`
	Q3       float64 `json:"q3"`
	IQR      float64 `json:"iqr"`
	P10      float64 `json:"p10"`
	P33      float64 `json:"p33"`
	P67      float64 `json:"p67"`
	P90      float64 `json:"p90"`
	Skewness float64 `json:"skewness"`
	CV       float64 `json:"cv"`

	IQROutlier float64 `json:"iqr_outlier_threshold"`
	StdOutlier float64 `json:"std_outlier_threshold"`
}

// EmptyInputError is returned when statistics are requested for no data.
type EmptyInputError struct{}

func (e *EmptyInputError) Error() string {
	return "riskstats: empty input"
}

// InvalidCountError is returned for a negative accident count.
type InvalidCountError struct {
	Index int
	Value int
}

func (e *InvalidCountError) Error() string {
	return fmt.Sprintf("riskstats: negative count %d at index %d", e.Value, e.Index)
}

// Compute builds a Snapshot from accident counts. The input is not modified.
func Compute(counts []int) (Snapshot, error) {
	if len(counts) == 0 {
		return Snapshot{}, &EmptyInputError{}
	}

	data := make([]float64, len(counts))
	for i, c := range counts {
		if c < 0 {
			return Snapshot{}, &InvalidCountError{Index: i, Value: c}
		}
		data[i] = float64(c)
	}
	sort.Float64s(data)

	s := Snapshot{Count: len(data)}
	s.Min = data[0]
	s.Max = data[len(data)-1]

	var err error
	if s.Sum, err = stats.Sum(data); err != nil {
		return Snapshot{}, err
	}
	if s.Mean, err = stats.Mean(data); err != nil {
		return Snapshot{}, err
	}
	if s.Variance, err = stats.PopulationVariance(data); err != nil {
		return Snapshot{}, err
	}
	s.Std = math.Sqrt(s.Variance)

	s.Median = Percentile(data, 50)
	s.Q1 = Percentile(data, 25)
	s.Q3 = Percentile(data, 75)
	s.IQR = s.Q3 - s.Q1
	s.P10 = Percentile(data, 10)
	s.P33 = Percentile(data, 33.33)
	s.P67 = Percentile(data, 66.67)
	s.P90 = Percentile(data, 90)

	s.Skewness = skewness(data, s.Std)
	if s.Mean != 0 {
		s.CV = s.Std / s.Mean
	}

	s.IQROutlier = s.Q3 + 1.5*s.IQR
	s.StdOutlier = s.Mean + 2*s.Std

	return s, nil
}

// Percentile returns the p-th percentile (0..100) of sorted data using
// linear interpolation between the closest ranks (rank = p/100*(n-1)).
// data must be sorted ascending and non-empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(n-1)
	if rank <= 0 {
		return sorted[0]
	}
	if rank >= float64(n-1) {
		return sorted[n-1]
	}
	lo := int(math.Floor(rank))
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// skewness is the population third standardized moment. Zero for fewer
// than three samples or zero spread.
func skewness(data []float64, std float64) float64 {
	if len(data) < 3 || std == 0 {
		return 0
	}
	return stat.Moment(3, data, nil) / (std * std * std)
}

// DistributionType describes the shape of the distribution in Korean.
func DistributionType(s Snapshot) string {
	switch {
	case math.Abs(s.Skewness) < 0.5 && s.CV < 0.5:
		return "정규분포에 가까운 안정적 분포"
	case s.Skewness > 1:
		return "심하게 치우친 분포 (극값 존재)"
	case s.CV > 1.5:
		return "변동성이 큰 분포"
	case s.Skewness > 0.5:
		return "우측으로 치우친 분포"
	default:
		return "일반적인 분포"
	}
}

// Outliers returns the counts above the IQR outlier threshold, in input order.
func Outliers(counts []int, s Snapshot) []int {
	var out []int
	for _, c := range counts {
		if float64(c) > s.IQROutlier {
			out = append(out, c)
		}
	}
	return out
}
