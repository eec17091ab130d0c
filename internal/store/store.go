// Package store persists analysis runs.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/yys/safewalk-cli/internal/analysis"
	"github.com/yys/safewalk-cli/internal/config"
	"github.com/yys/safewalk-cli/internal/riskclass"
)

// ErrNotFound is returned by GetAnalysis for an unknown id.
var ErrNotFound = eris.New("store: analysis not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Method     string `json:"method,omitempty"`
	RegionName string `json:"region_name,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Offset     int    `json:"offset,omitempty"`
}

// RunSummary is the listing view of a saved run.
type RunSummary struct {
	ID          string    `json:"id"`
	RegionName  string    `json:"region_name"`
	Method      string    `json:"method"`
	RegionCount int       `json:"region_count"`
	High        int       `json:"high"`
	Medium      int       `json:"medium"`
	Low         int       `json:"low"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store defines the persistence interface for analysis runs.
type Store interface {
	// SaveAnalysis stores r, assigning r.ID when empty, and returns the id.
	SaveAnalysis(ctx context.Context, r *analysis.Result) (string, error)
	GetAnalysis(ctx context.Context, id string) (*analysis.Result, error)
	ListAnalyses(ctx context.Context, filter RunFilter) ([]RunSummary, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Open connects the store selected by cfg.Driver and migrates it.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "", "sqlite":
		path := cfg.SQLitePath
		if path == "" {
			path = "safewalk.db"
		}
		s, err = NewSQLite(path)
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, eris.New("store: store.database_url is required for the postgres driver")
		}
		s, err = NewPostgres(ctx, cfg.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func defaultLimit(n int) int {
	if n <= 0 {
		return 100
	}
	return n
}

func tierCounts(r *analysis.Result) (high, medium, low int) {
	c := r.Counts()
	return c[riskclass.High], c[riskclass.Medium], c[riskclass.Low]
}
