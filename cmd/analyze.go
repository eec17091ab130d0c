package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yys/safewalk-cli/internal/analysis"
	"github.com/yys/safewalk-cli/internal/store"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Classify regions into risk tiers",
	Long: `Loads per-region accident counts, derives risk criteria from their
distribution and prints the classification report.

Regions come from a CSV/JSON file (--file), the region API (--source api) or
the accident database (--source db). Several --sido codes are analyzed
concurrently, one report each.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "analyze"))

		if err := cfg.Validate("analyze"); err != nil {
			return err
		}

		method, _ := cmd.Flags().GetString("method")
		if method == "" {
			method = cfg.Analysis.DefaultMethod
		}
		locale, _ := cmd.Flags().GetString("locale")
		if locale == "" {
			locale = cfg.Analysis.Locale
		}

		srcs, cleanup, err := buildSources(ctx, readSourceOpts(cmd))
		if err != nil {
			return err
		}
		defer cleanup()

		results, err := analysis.RunAll(ctx, srcs, method, cfg.Analysis.Concurrency)
		if err != nil {
			return eris.Wrap(err, "analyze")
		}

		for i, r := range results {
			if i > 0 {
				fmt.Fprintln(os.Stdout)
			}
			if err := analysis.WriteReport(os.Stdout, r, locale); err != nil {
				return err
			}
		}

		if err := exportResults(cmd, results); err != nil {
			return err
		}

		noSave, _ := cmd.Flags().GetBool("no-save")
		if noSave {
			return nil
		}
		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			log.Warn("analysis not saved", zap.Error(err))
			return nil
		}
		defer st.Close() //nolint:errcheck
		ids, err := saveResults(ctx, st, results)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintf(os.Stderr, "Saved run %s\n", id)
		}
		return nil
	},
}

func init() {
	addSourceFlags(analyzeCmd)
	analyzeCmd.Flags().String("method", "", "criteria method: adaptive, basic, equal, percentile, quartile (default analysis.default_method)")
	analyzeCmd.Flags().String("locale", "", "report language: ko or en (default analysis.locale)")
	analyzeCmd.Flags().Bool("json", false, "write region_risk_analysis_<name>.json into analysis.output_dir")
	analyzeCmd.Flags().String("csv", "", "write the classified regions to this CSV file")
	analyzeCmd.Flags().Bool("no-save", false, "do not record the run in the store")
	rootCmd.AddCommand(analyzeCmd)
}

// exportResults honours --json and --csv.
func exportResults(cmd *cobra.Command, results []*analysis.Result) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	csvPath, _ := cmd.Flags().GetString("csv")

	if asJSON {
		for _, r := range results {
			path, err := analysis.SaveJSON(cfg.Analysis.OutputDir, r)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Wrote %s\n", path)
		}
	}

	if csvPath != "" {
		f, err := os.Create(csvPath)
		if err != nil {
			return eris.Wrapf(err, "analyze: create %s", csvPath)
		}
		defer f.Close() //nolint:errcheck
		if err := analysis.WriteCSV(f, results...); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Wrote %s\n", csvPath)
	}
	return nil
}

// saveResults stores each result and returns the run ids.
func saveResults(ctx context.Context, st store.Store, results []*analysis.Result) ([]string, error) {
	ids := make([]string, 0, len(results))
	for _, r := range results {
		id, err := st.SaveAnalysis(ctx, r)
		if err != nil {
			return ids, eris.Wrapf(err, "analyze: save %s", r.RegionName)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
