package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/yys/safewalk-cli/internal/fetcher"
	"github.com/yys/safewalk-cli/internal/resilience"
)

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Accident database import",
	Long:  "Imports administrative codes, EMD boundaries, accident statistics, hotspots and tourism datasets into safewalk.* Postgres tables, and collects hotspots from the KOROAD OpenAPI.",
}

func init() {
	rootCmd.AddCommand(dataCmd)
}

// dataPool creates a pgxpool.Pool for the accident database.
// Uses cfg.Data.DatabaseURL, falling back to cfg.Store.DatabaseURL.
func dataPool(ctx context.Context) (*pgxpool.Pool, error) {
	dsn := cfg.DataDatabaseURL()
	if dsn == "" {
		return nil, eris.New("data: no database_url configured (set data.database_url or store.database_url)")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, eris.Wrap(err, "data: create connection pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "data: ping database")
	}

	fmt.Fprintln(os.Stderr, "Connected to database")
	return pool, nil
}

// newFetcher routes dataset sources to the local, HTTP and FTP fetchers.
func newFetcher() *fetcher.Router {
	return fetcher.NewRouter(
		fetcher.NewFileFetcher(cfg.Data.DataDir),
		fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent: cfg.Koroad.UserAgent,
			Policy:    resilience.PolicyFromConfig(cfg.Resilience).WithLogging("fetcher"),
		}),
		fetcher.NewFTPFetcher(fetcher.FTPOptions{}),
	)
}
