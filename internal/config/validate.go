package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
)

var knownMethods = []string{"adaptive", "basic", "equal", "percentile", "quartile"}

// DataDatabaseURL returns the accident database URL, falling back to the
// store URL when the store is Postgres.
func (c *Config) DataDatabaseURL() string {
	if c.Data.DatabaseURL != "" {
		return c.Data.DatabaseURL
	}
	return c.Store.DatabaseURL
}

// Validate checks the settings a command mode depends on. Modes: analyze,
// data, collect, serve.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "analyze":
	case "data":
		errs = append(errs, c.validateData()...)
	case "collect":
		errs = append(errs, c.validateData()...)
		errs = append(errs, c.validateKoroad()...)
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Server.SyncSchedule != "" {
			if _, err := cron.ParseStandard(c.Server.SyncSchedule); err != nil {
				errs = append(errs, fmt.Sprintf("server.sync_schedule is invalid: %v", err))
			}
			errs = append(errs, c.validateData()...)
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	errs = append(errs, c.validateCommon()...)

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateCommon() []string {
	var errs []string
	switch c.Store.Driver {
	case "sqlite":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}
	if c.Analysis.Concurrency < 1 || c.Analysis.Concurrency > 32 {
		errs = append(errs, "analysis.concurrency must be between 1 and 32")
	}
	if c.Analysis.DefaultMethod != "" && !slices.Contains(knownMethods, c.Analysis.DefaultMethod) {
		errs = append(errs, fmt.Sprintf("analysis.default_method %q is not one of %s", c.Analysis.DefaultMethod, strings.Join(knownMethods, ", ")))
	}
	if c.Analysis.Locale != "" && c.Analysis.Locale != "ko" && c.Analysis.Locale != "en" {
		errs = append(errs, "analysis.locale must be ko or en")
	}
	return errs
}

func (c *Config) validateData() []string {
	var errs []string
	if c.DataDatabaseURL() == "" {
		errs = append(errs, "data.database_url (or store.database_url) is required")
	}
	for name, spec := range c.Data.Schedules {
		if _, err := cron.ParseStandard(spec); err != nil {
			errs = append(errs, fmt.Sprintf("data.schedules.%s is invalid: %v", name, err))
		}
	}
	return errs
}

func (c *Config) validateKoroad() []string {
	var errs []string
	if c.Koroad.APIKey == "" {
		errs = append(errs, "koroad.api_key is required")
	}
	if c.Koroad.PageSize < 1 || c.Koroad.PageSize > 1000 {
		errs = append(errs, "koroad.page_size must be between 1 and 1000")
	}
	if c.Koroad.RequestsPerSecond <= 0 {
		errs = append(errs, "koroad.requests_per_second must be > 0")
	}
	for _, r := range c.Koroad.Regions {
		if _, _, ok := strings.Cut(r, ":"); !ok {
			errs = append(errs, fmt.Sprintf("koroad.regions entry %q must be sido:gugun", r))
		}
	}
	return errs
}
