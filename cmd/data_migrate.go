package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yys/safewalk-cli/internal/datasync"
)

var dataMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply accident database migrations",
	Long:  "Applies all pending SQL migrations to the safewalk schema in lexicographic order.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := dataPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := datasync.Migrate(ctx, pool); err != nil {
			return eris.Wrap(err, "data migrate")
		}

		zap.L().Info("all migrations applied successfully")
		return nil
	},
}

func init() {
	dataCmd.AddCommand(dataMigrateCmd)
}
