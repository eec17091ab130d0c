package dataset

import (
	_ "embed"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/yys/safewalk-cli/internal/fetcher"
	"github.com/yys/safewalk-cli/internal/geo"
	"github.com/yys/safewalk-cli/pkg/koroad"
)

//go:embed mappings.yaml
var mappingsYAML []byte

// ColumnType selects how a source cell is coerced.
type ColumnType string

const (
	TypeText      ColumnType = "text"
	TypeInt       ColumnType = "int"    // invalid → 0
	TypeBigInt    ColumnType = "bigint" // invalid → 0
	TypeFloat     ColumnType = "float"  // invalid → 0
	TypeNullFloat ColumnType = "nfloat" // invalid → NULL
	TypeYear      ColumnType = "year"
	TypeJSON      ColumnType = "json" // invalid → NULL
)

// Derived column kinds.
const (
	KindLookup    = "lookup"
	KindLegalDong = "legal_dong"
	KindEWKB      = "ewkb"
	KindConst     = "const"
)

// Load modes.
const (
	ModeReplace = "replace"
	ModeUpsert  = "upsert"
	ModeAppend  = "append"
)

// Column maps one source header to one target column.
type Column struct {
	Source   string     `yaml:"source"`
	Alias    []string   `yaml:"alias"`
	Target   string     `yaml:"target"`
	Type     ColumnType `yaml:"type"`
	Required bool       `yaml:"required"`
}

func (c Column) raw(rec fetcher.Record) string {
	if v := rec.Get(c.Source); v != "" {
		return v
	}
	for _, a := range c.Alias {
		if v := rec.Get(a); v != "" {
			return v
		}
	}
	return ""
}

// Derived computes a target column from an already mapped one.
type Derived struct {
	Target string `yaml:"target"`
	Kind   string `yaml:"kind"`
	From   string `yaml:"from"`
	Lookup string `yaml:"lookup"`
	Prefix string `yaml:"prefix"`
	Value  string `yaml:"value"`
}

// Mapping describes a tabular source and how it lands in its table.
type Mapping struct {
	Name         string    `yaml:"-"`
	Table        string    `yaml:"table"`
	Source       string    `yaml:"source"`
	Format       string    `yaml:"format"` // csv | xlsx; empty picks by extension
	Encoding     string    `yaml:"encoding"`
	Sheet        string    `yaml:"sheet"`
	Phase        string    `yaml:"phase"`
	Cadence      Cadence   `yaml:"cadence"`
	ReleaseMonth int       `yaml:"release_month"`
	Mode         string    `yaml:"mode"`
	ConflictKeys []string  `yaml:"conflict_keys"`
	Columns      []Column  `yaml:"columns"`
	Derived      []Derived `yaml:"derived"`
}

// Catalog is the parsed mappings file.
type Catalog struct {
	Lookups  map[string]map[string]string `yaml:"lookups"`
	Datasets map[string]*Mapping          `yaml:"datasets"`
}

// LoadCatalog parses the embedded mappings.
func LoadCatalog() (*Catalog, error) {
	return parseCatalog(mappingsYAML)
}

func parseCatalog(b []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, eris.Wrap(err, "dataset: parse mappings")
	}
	names := make([]string, 0, len(c.Datasets))
	for name := range c.Datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m := c.Datasets[name]
		m.Name = name
		if err := m.validate(c.Lookups); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// Mapping returns the named mapping.
func (c *Catalog) Mapping(name string) (*Mapping, error) {
	m, ok := c.Datasets[name]
	if !ok {
		return nil, eris.Errorf("dataset: no mapping named %q", name)
	}
	return m, nil
}

func (m *Mapping) validate(lookups map[string]map[string]string) error {
	fail := func(format string, args ...any) error {
		return eris.Errorf("dataset: mapping %s: %s", m.Name, fmt.Sprintf(format, args...))
	}
	if m.Table == "" {
		return fail("table is required")
	}
	if _, err := ParsePhase(m.Phase); err != nil {
		return fail("%v", err)
	}
	switch m.Mode {
	case ModeReplace, ModeAppend:
	case ModeUpsert:
		if len(m.ConflictKeys) == 0 {
			return fail("upsert needs conflict_keys")
		}
	default:
		return fail("unknown mode %q", m.Mode)
	}
	if _, err := fetcher.ParseEncoding(m.Encoding); err != nil {
		return fail("%v", err)
	}

	seen := make(map[string]bool)
	for _, c := range m.Columns {
		switch c.Type {
		case "":
		case TypeText, TypeInt, TypeBigInt, TypeFloat, TypeNullFloat, TypeYear, TypeJSON:
		default:
			return fail("column %s: unknown type %q", c.Target, c.Type)
		}
		if c.Source == "" || c.Target == "" {
			return fail("column needs source and target")
		}
		if seen[c.Target] {
			return fail("duplicate target %s", c.Target)
		}
		seen[c.Target] = true
	}
	for _, d := range m.Derived {
		if seen[d.Target] {
			return fail("duplicate target %s", d.Target)
		}
		switch d.Kind {
		case KindConst:
		case KindLookup:
			if _, ok := lookups[d.Lookup]; !ok {
				return fail("unknown lookup %q", d.Lookup)
			}
			fallthrough
		case KindLegalDong, KindEWKB:
			if !seen[d.From] {
				return fail("%s derives from unmapped column %q", d.Target, d.From)
			}
		default:
			return fail("unknown derived kind %q", d.Kind)
		}
		seen[d.Target] = true
	}
	for _, k := range m.ConflictKeys {
		if !seen[k] {
			return fail("conflict key %s is not a column", k)
		}
	}
	return nil
}

// Targets lists the output columns: mapped columns first, then derived ones.
func (m *Mapping) Targets() []string {
	out := make([]string, 0, len(m.Columns)+len(m.Derived))
	for _, c := range m.Columns {
		out = append(out, c.Target)
	}
	for _, d := range m.Derived {
		out = append(out, d.Target)
	}
	return out
}

// Release is the month an annual dataset is published.
func (m *Mapping) Release() time.Month {
	return time.Month(m.ReleaseMonth)
}

// Row converts rec into the Targets order. Values in set replace computed
// ones. ok is false when a required column is blank or not parseable.
func (m *Mapping) Row(rec fetcher.Record, lookups map[string]map[string]string, set map[string]any) ([]any, bool) {
	vals := make(map[string]any, len(m.Columns)+len(m.Derived))
	raw := make(map[string]string, len(m.Columns))

	for _, c := range m.Columns {
		s := c.raw(rec)
		v, valid := coerce(s, c.Type)
		if c.Required && (s == "" || !valid) {
			return nil, false
		}
		vals[c.Target] = v
		raw[c.Target] = s
	}

	for _, d := range m.Derived {
		vals[d.Target] = m.derive(d, raw, vals, lookups)
	}
	for k, v := range set {
		vals[k] = v
	}

	targets := m.Targets()
	row := make([]any, len(targets))
	for i, t := range targets {
		row[i] = vals[t]
	}
	return row, true
}

func (m *Mapping) derive(d Derived, raw map[string]string, vals map[string]any, lookups map[string]map[string]string) any {
	switch d.Kind {
	case KindLookup:
		if name, ok := lookups[d.Lookup][raw[d.From]]; ok {
			return d.Prefix + name
		}
		return nil
	case KindLegalDong:
		return nullable(koroad.LegalDong(raw[d.From]))
	case KindEWKB:
		s, ok := vals[d.From].(string)
		if !ok {
			return nil
		}
		b, err := geo.PolygonEWKB(s)
		if err != nil || b == nil {
			return nil
		}
		return b
	default:
		return nullable(d.Value)
	}
}

// coerce converts s to the column type. valid is false when s could not be
// parsed; the returned value then follows the type's fallback.
func coerce(s string, t ColumnType) (any, bool) {
	switch t {
	case TypeInt:
		v, ok := parseInt64(s)
		return int(v), ok
	case TypeBigInt:
		v, ok := parseInt64(s)
		return v, ok
	case TypeFloat:
		v, ok := parseFloat(s)
		return v, ok
	case TypeNullFloat:
		v, ok := parseFloat(s)
		if !ok {
			return nil, false
		}
		return v, true
	case TypeYear:
		return parseYear(s)
	case TypeJSON:
		v := validJSON(s)
		return v, v != nil
	default:
		return nullable(s), true
	}
}

// keyIndexes returns the positions of keys within the mapping's targets.
func (m *Mapping) keyIndexes() []int {
	targets := m.Targets()
	idx := make([]int, 0, len(m.ConflictKeys))
	for _, k := range m.ConflictKeys {
		idx = append(idx, slices.Index(targets, k))
	}
	return idx
}

// dedupeRows keeps the last row for every key, in first-seen order.
func dedupeRows(rows [][]any, keyIdx []int) [][]any {
	if len(keyIdx) == 0 {
		return rows
	}
	pos := make(map[string]int, len(rows))
	out := make([][]any, 0, len(rows))
	for _, r := range rows {
		parts := make([]string, len(keyIdx))
		for i, k := range keyIdx {
			parts[i] = fmt.Sprint(r[k])
		}
		key := strings.Join(parts, "\x00")
		if i, ok := pos[key]; ok {
			out[i] = r
			continue
		}
		pos[key] = len(out)
		out = append(out, r)
	}
	return out
}
