package riskclass

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yys/safewalk-cli/internal/region"
)

func gyeongjuRecords() []region.Record {
	return []region.Record{
		{Name: "동부동", AccidentCount: 2, Code: "47130101"},
		{Name: "외동읍", AccidentCount: 3},
		{Name: "시래동", AccidentCount: 3},
		{Name: "감포읍", AccidentCount: 4},
		{Name: "현곡면", AccidentCount: 4},
		{Name: "노동동", AccidentCount: 5},
		{Name: "안강읍", AccidentCount: 7},
		{Name: "황성동", AccidentCount: 8},
		{Name: "사정동", AccidentCount: 12},
		{Name: "노서동", AccidentCount: 13},
		{Name: "황오동", AccidentCount: 38},
		{Name: "성동동", AccidentCount: 53},
		{Name: "성건동", AccidentCount: 58},
	}
}

func names(cs []Classified) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Name
	}
	return out
}

func TestClassify_Gyeongju(t *testing.T) {
	recs := gyeongjuRecords()
	c := Adaptive(gyeongjuSnapshot(t))
	g := Classify(recs, c)

	assert.Equal(t, []string{"동부동", "외동읍", "시래동", "감포읍", "현곡면", "노동동"}, names(g.Low))
	assert.Equal(t, []string{"안강읍", "황성동", "사정동", "노서동"}, names(g.Medium))
	assert.Equal(t, []string{"황오동", "성동동", "성건동"}, names(g.High))
	assert.Equal(t, len(recs), g.Total())

	for _, l := range Levels {
		for _, cr := range g.Get(l) {
			assert.Equal(t, l, cr.RiskLevel)
		}
	}
	assert.Equal(t, "47130101", g.Low[0].Code)
}

func TestClassify_Completeness(t *testing.T) {
	recs := gyeongjuRecords()
	for _, m := range Methods {
		c, err := Generate(m, gyeongjuSnapshot(t))
		require.NoError(t, err)

		g := Classify(recs, c)
		seen := map[string]int{}
		for _, l := range Levels {
			for _, cr := range g.Get(l) {
				seen[cr.Name]++
			}
		}
		assert.Len(t, seen, len(recs), m)
		for name, n := range seen {
			assert.Equal(t, 1, n, "%s classified %d times by %s", name, n, m)
		}
	}
}

func TestClassify_Empty(t *testing.T) {
	g := Classify(nil, Criteria{})
	assert.Equal(t, 0, g.Total())
	assert.NotNil(t, g.Low)
}

func TestCriteriaOf_Boundaries(t *testing.T) {
	c := Criteria{
		Low:    Band{Min: 2, Max: 5},
		Medium: Band{Min: 6, Max: 17},
		High:   Band{Min: 18, Max: 58},
	}
	assert.Equal(t, Low, c.Of(c.Low.Max))
	assert.Equal(t, Medium, c.Of(c.Low.Max+1))
	assert.Equal(t, Medium, c.Of(c.Medium.Max))
	assert.Equal(t, High, c.Of(c.Medium.Max+1))
	assert.Equal(t, High, c.Of(1000), "above the recorded max stays high")
	assert.Equal(t, Low, c.Of(0), "below the recorded min stays low")
}

func TestLevel_Labels(t *testing.T) {
	assert.Equal(t, "low", Low.String())
	assert.Equal(t, "medium", Medium.String())
	assert.Equal(t, "high", High.String())
	assert.Equal(t, "저위험", Low.Label("ko"))
	assert.Equal(t, "중위험", Medium.Korean())
	assert.Equal(t, "고위험", High.Korean())
	assert.Equal(t, "high", High.Label("en"))
	assert.Equal(t, "unknown", Level(9).String())

	var l Level
	require.NoError(t, l.UnmarshalText([]byte("고위험")))
	assert.Equal(t, High, l)
	assert.Error(t, l.UnmarshalText([]byte("extreme")))
}

func TestClassified_JSON(t *testing.T) {
	cr := Classified{
		Record: region.Record{
			Name:          "황오동",
			AccidentCount: 38,
			Code:          "47130115",
			Latitude:      region.Float(35.84),
			Longitude:     region.Float(129.22),
			Extra:         map[string]any{"sigungu": "경주시"},
		},
		RiskLevel: High,
	}

	data, err := json.Marshal(cr)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "황오동", m["name"])
	assert.Equal(t, 38.0, m["totalAccident"])
	assert.Equal(t, "47130115", m["EMD_CD"])
	assert.Equal(t, "high", m["riskLevel"])
	assert.Equal(t, "경주시", m["sigungu"])

	var back Classified
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, cr, back)
}

func TestSummarize(t *testing.T) {
	s := gyeongjuSnapshot(t)
	c := Adaptive(s)
	sum := Summarize("경주시", s, c)

	assert.Equal(t, "경주시", sum.RegionName)
	assert.Equal(t, 13, sum.TotalRegions)
	assert.Equal(t, c, sum.Criteria)
	assert.Equal(t, 7.0, sum.Statistics.Median)
	assert.Equal(t, "심하게 치우친 분포 (극값 존재)", sum.Distribution.Type)

	data, err := json.Marshal(sum)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"distribution_analysis"`)
	assert.Contains(t, string(data), `"coefficient_of_variation"`)
}
