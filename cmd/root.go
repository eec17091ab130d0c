package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yys/safewalk-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "safewalk",
	Short: "Pedestrian accident risk analysis toolkit",
	Long:  "Classifies Korean eup/myeon/dong regions into low, medium and high pedestrian-accident risk tiers from their accident distribution, and keeps the accident database behind it up to date.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
