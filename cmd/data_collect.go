package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yys/safewalk-cli/internal/datasync"
	"github.com/yys/safewalk-cli/internal/datasync/dataset"
	"github.com/yys/safewalk-cli/pkg/koroad"
)

var dataCollectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect accident hotspots from the KOROAD OpenAPI",
	Long: `Walks hotspot categories x regions x years against the KOROAD OpenAPI and
upserts the results into safewalk.koroad_accident_hotspots.

Region/year pairs that are already stored are skipped unless --refresh is set.
Use --check to probe the API without collecting anything.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "data.collect"))

		check, _ := cmd.Flags().GetBool("check")
		if check {
			if cfg.Koroad.APIKey == "" {
				return eris.New("data collect: koroad.api_key is not configured")
			}
			h := dataset.NewKoroadClient(cfg, nil).Health(ctx)
			fmt.Fprintf(os.Stdout, "available=%t latency=%s %s\n", h.Available, h.Latency.Round(time.Millisecond), h.Error)
			if !h.Available {
				return eris.New("data collect: KOROAD API unavailable")
			}
			return nil
		}

		if err := cfg.Validate("collect"); err != nil {
			return err
		}

		collector, err := buildCollector(cmd)
		if err != nil {
			return err
		}

		pool, err := dataPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := datasync.Migrate(ctx, pool); err != nil {
			return eris.Wrap(err, "data collect: migrate")
		}
		collector.Client = dataset.NewKoroadClient(cfg, nil)
		collector.Store = dataset.NewHotspotStore(pool)

		log.Info("starting collection",
			zap.Int("regions", len(collector.Regions)),
			zap.Strings("years", collector.Years),
			zap.Bool("refresh", collector.Refresh),
		)

		stats, err := collector.Collect(ctx)
		formatCollectStats(os.Stdout, stats)
		if err != nil {
			return eris.Wrap(err, "data collect")
		}
		return nil
	},
}

func init() {
	dataCollectCmd.Flags().StringSlice("category", nil, "hotspot categories: pedestrian, elderly, local_government, holiday (default all)")
	dataCollectCmd.Flags().StringSlice("years", nil, "survey years (default koroad.years)")
	dataCollectCmd.Flags().StringSlice("regions", nil, "sido:gugun pairs, e.g. 11:680 (default koroad.regions)")
	dataCollectCmd.Flags().Bool("refresh", false, "re-fetch region/year pairs that are already stored")
	dataCollectCmd.Flags().Bool("check", false, "probe the API and exit")
	dataCmd.AddCommand(dataCollectCmd)
}

// buildCollector reads the flags into a Collector without Client and Store.
func buildCollector(cmd *cobra.Command) (*koroad.Collector, error) {
	catNames, _ := cmd.Flags().GetStringSlice("category")
	years, _ := cmd.Flags().GetStringSlice("years")
	pairs, _ := cmd.Flags().GetStringSlice("regions")
	refresh, _ := cmd.Flags().GetBool("refresh")

	var cats []koroad.Category
	for _, name := range catNames {
		c, ok := koroad.ParseCategory(name)
		if !ok {
			return nil, eris.Errorf("data collect: unknown category %q", name)
		}
		cats = append(cats, c)
	}

	if len(years) == 0 {
		years = cfg.Koroad.Years
	}
	if len(pairs) == 0 {
		pairs = cfg.Koroad.Regions
	}
	regions := dataset.KoroadRegions(pairs)
	if len(regions) == 0 {
		return nil, eris.New("data collect: no valid regions")
	}

	return &koroad.Collector{
		Regions:    regions,
		Years:      years,
		Categories: cats,
		Refresh:    refresh,
	}, nil
}

// formatCollectStats writes one line per category.
func formatCollectStats(out io.Writer, stats []koroad.Stats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CATEGORY\tCOLLECTED\tSKIPPED\tINVALID\tERRORS\tDURATION")
	for _, s := range stats {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%s\n",
			s.Category, s.Collected, s.Skipped, s.Invalid, s.Errors, s.Duration().Round(time.Second))
	}
	_ = w.Flush()
}
