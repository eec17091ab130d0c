package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/yys/safewalk-cli/internal/analysis"
	"github.com/yys/safewalk-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect saved analysis runs",
	Long:  "Commands for listing and viewing analysis runs recorded by 'analyze' and the HTTP API.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List analysis runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		method, _ := cmd.Flags().GetString("method")
		name, _ := cmd.Flags().GetString("region")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListAnalyses(ctx, store.RunFilter{
			Method:     method,
			RegionName: name,
			Limit:      limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a saved run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetAnalysis(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(run)
		}
		locale, _ := cmd.Flags().GetString("locale")
		if locale == "" {
			locale = cfg.Analysis.Locale
		}
		return analysis.WriteReport(os.Stdout, run, locale)
	},
}

func init() {
	runsListCmd.Flags().String("method", "", "filter by method (adaptive, basic, equal, percentile, quartile)")
	runsListCmd.Flags().String("region", "", "filter by region set name")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsShowCmd.Flags().Bool("json", false, "print the stored result as JSON")
	runsShowCmd.Flags().String("locale", "", "report language: ko or en (default analysis.locale)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []store.RunSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tREGION\tMETHOD\tREGIONS\tHIGH\tMEDIUM\tLOW\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t------\t------\t-------\t----\t------\t---\t-------")

	for _, r := range runs {
		name := []rune(r.RegionName)
		if len(name) > 20 {
			name = append(name[:17], []rune("...")...)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			truncateID(r.ID),
			string(name),
			r.Method,
			r.RegionCount,
			r.High,
			r.Medium,
			r.Low,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
