// Package region loads administrative-region accident records from files,
// the region API and the accident database.
package region

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"

	"github.com/rotisserie/eris"
)

// Record is one administrative sub-area with its accident count. Any field
// other than AccidentCount is carried through untouched.
type Record struct {
	Name          string
	AccidentCount int
	Code          string
	Latitude      *float64
	Longitude     *float64
	Extra         map[string]any
}

const (
	keyName      = "name"
	keyAccidents = "totalAccident"
	keyCode      = "EMD_CD"
	keyLat       = "latitude"
	keyLng       = "longitude"
)

// MarshalJSON flattens Extra next to the known keys.
func (r Record) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Extra)+5)
	for k, v := range r.Extra {
		m[k] = v
	}
	m[keyName] = r.Name
	m[keyAccidents] = r.AccidentCount
	if r.Code != "" {
		m[keyCode] = r.Code
	}
	if r.Latitude != nil {
		m[keyLat] = *r.Latitude
	}
	if r.Longitude != nil {
		m[keyLng] = *r.Longitude
	}
	return json.Marshal(m)
}

// UnmarshalJSON accepts the region API item shape; unknown keys land in Extra.
// totalAccident is required and must be a whole JSON number.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return eris.Wrap(err, "region: decode record")
	}

	if _, ok := raw[keyAccidents]; !ok {
		return eris.Errorf("region: record missing %s", keyAccidents)
	}

	out := Record{}
	for k, v := range raw {
		var err error
		switch k {
		case keyName:
			err = json.Unmarshal(v, &out.Name)
		case keyAccidents:
			out.AccidentCount, err = jsonCount(v)
		case keyCode:
			out.Code, err = jsonString(v)
		case keyLat:
			out.Latitude, err = jsonFloatPtr(v)
		case keyLng:
			out.Longitude, err = jsonFloatPtr(v)
		default:
			var val any
			if err = json.Unmarshal(v, &val); err == nil {
				if out.Extra == nil {
					out.Extra = make(map[string]any)
				}
				out.Extra[k] = val
			}
		}
		if err != nil {
			return eris.Wrapf(err, "region: decode field %s", k)
		}
	}
	*r = out
	return nil
}

// Validate checks the fields classification depends on.
func (r Record) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return eris.New("region: record has empty name")
	}
	if r.AccidentCount < 0 {
		return eris.Errorf("region: %s has negative accident count %d", r.Name, r.AccidentCount)
	}
	return nil
}

// Counts returns the accident counts of records, in order.
func Counts(records []Record) []int {
	out := make([]int, len(records))
	for i, r := range records {
		out[i] = r.AccidentCount
	}
	return out
}

// Dedupe drops records whose name and code were already seen, keeping the first.
func Dedupe(records []Record) []Record {
	seen := make(map[string]bool, len(records))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		key := r.Name + "\x00" + r.Code
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

// ValidateAll returns the first validation error in records, if any.
func ValidateAll(records []Record) error {
	for i, r := range records {
		if err := r.Validate(); err != nil {
			return eris.Wrapf(err, "region: record %d", i)
		}
	}
	return nil
}

// EMD codes arrive as strings or numbers depending on the producer.
func jsonString(v json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

// jsonCount reads an accident count. 12 and 12.0 are accepted; null, strings
// and fractional values are not.
func jsonCount(v json.RawMessage) (int, error) {
	v = bytes.TrimSpace(v)
	if len(v) == 0 || string(v) == "null" {
		return 0, eris.New("accident count is null")
	}
	if v[0] == '"' {
		return 0, eris.Errorf("accident count %s is not a number", v)
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		return 0, err
	}
	if i, err := n.Int64(); err == nil {
		return int(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, eris.Wrapf(err, "accident count %s", n)
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, eris.Errorf("accident count %s is not a whole number", n)
	}
	return int(f), nil
}

func jsonFloatPtr(v json.RawMessage) (*float64, error) {
	if string(v) == "null" {
		return nil, nil
	}
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Float returns a pointer to f, for building records in code.
func Float(f float64) *float64 { return &f }
