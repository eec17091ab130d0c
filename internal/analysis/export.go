package analysis

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/yys/safewalk-cli/internal/riskclass"
)

// FileName is the default JSON file name for a region.
func FileName(regionName string) string {
	return "region_risk_analysis_" + strings.ReplaceAll(regionName, " ", "_") + ".json"
}

// SaveJSON writes r to dir under FileName and returns the path.
func SaveJSON(dir string, r *Result) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "analysis: create %s", dir)
	}
	path := filepath.Join(dir, FileName(r.RegionName))

	f, err := os.Create(path)
	if err != nil {
		return "", eris.Wrapf(err, "analysis: create %s", path)
	}
	if err := WriteJSON(f, r); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", eris.Wrapf(err, "analysis: close %s", path)
	}
	return path, nil
}

// WriteJSON encodes r as indented JSON with Korean text left unescaped.
func WriteJSON(w io.Writer, r *Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return eris.Wrap(err, "analysis: encode json")
	}
	return nil
}

// LoadJSON reads a result written by SaveJSON.
func LoadJSON(path string) (*Result, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "analysis: read %s", path)
	}
	var r Result
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, eris.Wrapf(err, "analysis: decode %s", path)
	}
	return &r, nil
}

type csvRegion struct {
	Name      string   `csv:"name"`
	Code      string   `csv:"EMD_CD"`
	Accidents int      `csv:"totalAccident"`
	RiskLevel string   `csv:"riskLevel"`
	Label     string   `csv:"riskLabel"`
	Latitude  *float64 `csv:"latitude,omitempty"`
	Longitude *float64 `csv:"longitude,omitempty"`
}

// WriteCSV exports the classified regions of each result, high tier first,
// under a single header.
func WriteCSV(w io.Writer, results ...*Result) error {
	var rows []csvRegion
	for _, r := range results {
		for _, lvl := range riskclass.Levels {
			for _, c := range sortedForReport(r.ClassifiedRegions.Get(lvl)) {
				rows = append(rows, csvRegion{
					Name:      c.Name,
					Code:      c.Code,
					Accidents: c.AccidentCount,
					RiskLevel: c.RiskLevel.String(),
					Label:     c.RiskLevel.Korean(),
					Latitude:  c.Latitude,
					Longitude: c.Longitude,
				})
			}
		}
	}

	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if len(rows) == 0 {
		if err := enc.EncodeHeader(csvRegion{}); err != nil {
			return eris.Wrap(err, "analysis: encode csv header")
		}
	} else if err := enc.Encode(rows); err != nil {
		return eris.Wrap(err, "analysis: encode csv")
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "analysis: flush csv")
	}
	return nil
}
