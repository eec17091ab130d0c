package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yys/safewalk-cli/internal/datasync"
	"github.com/yys/safewalk-cli/internal/datasync/dataset"
	"github.com/yys/safewalk-cli/internal/db"
	"github.com/yys/safewalk-cli/internal/monitoring"
	"github.com/yys/safewalk-cli/internal/region"
	"github.com/yys/safewalk-cli/internal/resilience"
	"github.com/yys/safewalk-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the region and risk analysis API",
	Long: `Serves the region API (/api/v1/emd), on-demand risk analysis
(/api/v1/risk), saved runs, a monitoring snapshot and Prometheus metrics.

With data.database_url set, EMD queries read the accident database, and
server.sync_schedule (cron) keeps it up to date in the background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		log := zap.L().With(zap.String("command", "serve"))

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		metrics, err := monitoring.NewMetrics(prometheus.DefaultRegisterer)
		if err != nil {
			return err
		}
		metrics.Init()

		srv := &apiServer{
			metrics:       metrics,
			lookbackHours: cfg.Monitoring.LookbackWindowHours,
			defaultMethod: cfg.Analysis.DefaultMethod,
		}

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			log.Warn("store unavailable, runs will not be saved", zap.Error(err))
		} else {
			defer st.Close() //nolint:errcheck
			srv.store = st
		}

		var syncLog *datasync.SyncLog
		if cfg.DataDatabaseURL() != "" {
			pool, err := dataPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := datasync.Migrate(ctx, pool); err != nil {
				return eris.Wrap(err, "serve: migrate")
			}
			srv.lookup = region.NewStore(pool)
			syncLog = datasync.NewSyncLog(pool)

			if cfg.Server.SyncSchedule != "" {
				c, err := scheduleSync(ctx, cfg.Server.SyncSchedule, pool, metrics)
				if err != nil {
					return err
				}
				c.Start()
				defer c.Stop()
			}
		}

		var querier monitoring.SyncLogQuerier
		if syncLog != nil {
			querier = syncLog
		}
		srv.collector = monitoring.NewCollector(srv.store, querier)
		if syncLog != nil {
			alerter := monitoring.NewAlerter(cfg.Monitoring, resilience.PolicyFromConfig(cfg.Resilience))
			checker := monitoring.NewChecker(srv.collector, alerter, cfg.Monitoring, metrics)
			go checker.Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srv.routes(cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			log.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()

		log.Info("starting server", zap.Int("port", port))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// scheduleSync runs a data sync pass on spec. A pass still running when the
// next one is due is skipped.
func scheduleSync(ctx context.Context, spec string, pool db.Pool, m *monitoring.Metrics) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := c.AddFunc(spec, func() {
		log := zap.L().With(zap.String("component", "serve.sync"))
		sum, err := runDataSync(ctx, pool, dataset.RunOpts{}, m)
		if err != nil {
			log.Error("scheduled sync failed", zap.Error(err))
			return
		}
		log.Info("scheduled sync complete",
			zap.Int("synced", sum.Synced),
			zap.Int("skipped", sum.Skipped),
			zap.Int("failed", sum.Failed),
			zap.Int64("rows", sum.Rows),
		)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "serve: schedule sync %q", spec)
	}
	return c, nil
}
