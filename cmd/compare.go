package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/yys/safewalk-cli/internal/analysis"
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare classification methods on one region set",
	Long:  "Prints the criteria and tier sizes of every method, then how the fixed legacy thresholds differ from the adaptive ones.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		locale, _ := cmd.Flags().GetString("locale")
		if locale == "" {
			locale = cfg.Analysis.Locale
		}

		o := readSourceOpts(cmd)
		if len(o.Sidos) > 1 {
			return eris.New("compare: give at most one --sido")
		}
		srcs, cleanup, err := buildSources(ctx, o)
		if err != nil {
			return err
		}
		defer cleanup()

		src := srcs[0]
		records, err := src.Load(ctx)
		if err != nil {
			return eris.Wrapf(err, "compare: load %s", src.Name())
		}

		cmps, err := analysis.Compare(records)
		if err != nil {
			return eris.Wrap(err, "compare")
		}
		if err := analysis.WriteComparison(os.Stdout, src.Name(), cmps, locale); err != nil {
			return err
		}

		legacy, err := analysis.CompareLegacy(src.Name(), records)
		if err != nil {
			return eris.Wrap(err, "compare: legacy")
		}
		fmt.Fprintln(os.Stdout)
		return analysis.WriteLegacy(os.Stdout, legacy, locale)
	},
}

func init() {
	addSourceFlags(compareCmd)
	compareCmd.Flags().String("locale", "", "report language: ko or en (default analysis.locale)")
	rootCmd.AddCommand(compareCmd)
}
