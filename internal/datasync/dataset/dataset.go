// Package dataset loads the accident, tourism and boundary datasets into the
// safewalk schema and runs them through a scheduled sync engine.
package dataset

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/yys/safewalk-cli/internal/db"
	"github.com/yys/safewalk-cli/internal/fetcher"
)

// Phase groups datasets that are loaded together.
type Phase int

const (
	PhaseReference Phase = iota + 1 // legal dong codes, EMD boundaries
	PhaseAccidents                  // accident statistics, hotspots, risk areas
	PhaseTourism                    // visitor surges, popular spots
	PhaseCollect                    // KOROAD OpenAPI collection
)

// String returns the phase name used on the command line.
func (p Phase) String() string {
	switch p {
	case PhaseReference:
		return "reference"
	case PhaseAccidents:
		return "accidents"
	case PhaseTourism:
		return "tourism"
	case PhaseCollect:
		return "collect"
	default:
		return "unknown"
	}
}

// ParsePhase converts a phase name into a Phase.
func ParsePhase(s string) (Phase, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "reference", "ref":
		return PhaseReference, nil
	case "accidents", "accident":
		return PhaseAccidents, nil
	case "tourism":
		return PhaseTourism, nil
	case "collect", "koroad":
		return PhaseCollect, nil
	default:
		return 0, eris.Errorf("unknown phase: %q (valid: reference, accidents, tourism, collect)", s)
	}
}

// Cadence describes how often a dataset is refreshed upstream.
type Cadence string

const (
	Daily   Cadence = "daily"
	Weekly  Cadence = "weekly"
	Monthly Cadence = "monthly"
	Annual  Cadence = "annual"
)

// SyncResult holds the outcome of a dataset sync.
type SyncResult struct {
	RowsSynced int64          `json:"rows_synced"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Dataset is one importable source.
type Dataset interface {
	// Name returns the unique identifier, e.g. "risk_areas".
	Name() string

	// Table returns the target table, e.g. "safewalk.risk_areas".
	Table() string

	Phase() Phase
	Cadence() Cadence

	// ShouldRun decides if the dataset needs syncing given the current time
	// and the start of the last successful sync (nil if never synced).
	ShouldRun(now time.Time, lastSync *time.Time) bool

	// Sync downloads, parses and loads the dataset. tempDir is scratch space.
	Sync(ctx context.Context, pool db.Pool, f fetcher.Fetcher, tempDir string) (*SyncResult, error)
}

// Reloader is implemented by datasets whose normal sync is incremental and
// which can also rebuild their table from scratch.
type Reloader interface {
	SyncFull(ctx context.Context, pool db.Pool, f fetcher.Fetcher, tempDir string) (*SyncResult, error)
}
