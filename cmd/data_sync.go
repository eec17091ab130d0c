package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yys/safewalk-cli/internal/datasync"
	"github.com/yys/safewalk-cli/internal/datasync/dataset"
	"github.com/yys/safewalk-cli/internal/db"
	"github.com/yys/safewalk-cli/internal/monitoring"
)

var dataSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Import accident datasets",
	Long: `Import accident datasets into safewalk.* tables.

By default, syncs all datasets whose ShouldRun() returns true.
Use --phase to restrict to a specific phase, or --datasets for specific datasets.
Use --force to ignore ShouldRun() scheduling logic.
Use --full to perform a full reload instead of incremental sync.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "data.sync"))

		if err := cfg.Validate("data"); err != nil {
			return err
		}

		opts, err := parseSyncOpts(cmd)
		if err != nil {
			return err
		}

		pool, err := dataPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		// Ensure migrations are current.
		if err := datasync.Migrate(ctx, pool); err != nil {
			return eris.Wrap(err, "data sync: migrate")
		}

		log.Info("starting data sync",
			zap.Any("phase", opts.Phase),
			zap.Strings("datasets", opts.Datasets),
			zap.Bool("force", opts.Force),
			zap.Bool("full", opts.Full),
		)

		sum, err := runDataSync(ctx, pool, opts, nil)
		if err != nil {
			return eris.Wrap(err, "data sync")
		}

		fmt.Fprintf(os.Stdout, "Sync complete: %d synced, %d skipped, %d failed, %d rows\n",
			sum.Synced, sum.Skipped, sum.Failed, sum.Rows)
		if sum.Failed > 0 {
			return eris.Errorf("data sync: %d dataset(s) failed, see 'data status'", sum.Failed)
		}
		return nil
	},
}

func init() {
	dataSyncCmd.Flags().String("phase", "", "restrict to phase: reference, accidents, tourism, collect")
	dataSyncCmd.Flags().String("datasets", "", "comma-separated dataset names (e.g., legal_dongs,risk_areas)")
	dataSyncCmd.Flags().Bool("force", false, "ignore ShouldRun() scheduling logic")
	dataSyncCmd.Flags().Bool("full", false, "full reload instead of incremental sync")
	dataCmd.AddCommand(dataSyncCmd)
}

// runDataSync builds the registry and engine from cfg and runs one pass.
// m may be nil.
func runDataSync(ctx context.Context, pool db.Pool, opts dataset.RunOpts, m *monitoring.Metrics) (dataset.Summary, error) {
	tempDir := cfg.Data.TempDir
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return dataset.Summary{}, eris.Wrapf(err, "data sync: create temp dir %s", tempDir)
	}

	reg, err := dataset.NewRegistry(cfg)
	if err != nil {
		return dataset.Summary{}, err
	}
	engine := dataset.NewEngine(pool, newFetcher(), datasync.NewSyncLog(pool), reg, tempDir)
	if m != nil {
		reg.ObserveKoroad(m.ObserveKoroad)
		engine.SetObserver(m.ObserveSync)
	}
	return engine.Run(ctx, opts)
}

// parseSyncOpts extracts dataset.RunOpts from the cobra command flags.
func parseSyncOpts(cmd *cobra.Command) (dataset.RunOpts, error) {
	phaseStr, _ := cmd.Flags().GetString("phase")
	datasetsStr, _ := cmd.Flags().GetString("datasets")
	force, _ := cmd.Flags().GetBool("force")
	full, _ := cmd.Flags().GetBool("full")

	opts := dataset.RunOpts{
		Force: force,
		Full:  full,
	}

	if phaseStr != "" {
		p, err := dataset.ParsePhase(phaseStr)
		if err != nil {
			return dataset.RunOpts{}, err
		}
		opts.Phase = &p
	}

	if datasetsStr != "" {
		for _, name := range strings.Split(datasetsStr, ",") {
			if name = strings.TrimSpace(name); name != "" {
				opts.Datasets = append(opts.Datasets, name)
			}
		}
	}

	return opts, nil
}
