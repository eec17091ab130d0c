package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/yys/safewalk-cli/internal/config"
)

// Checker periodically snapshots the sync log and posts sync alerts.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	metrics   *Metrics
	interval  time.Duration
	lookback  int
}

// CheckResult is the outcome of one pass.
type CheckResult struct {
	Triggered int
	Sent      int
}

// NewChecker wires a checker from cfg. The collector's stall window is set
// from cfg.SyncStallMins. m may be nil.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig, m *Metrics) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	lookback := cfg.LookbackWindowHours
	if lookback <= 0 {
		lookback = 24
	}
	collector.WithStallAfter(time.Duration(cfg.SyncStallMins) * time.Minute)
	return &Checker{
		collector: collector,
		alerter:   alerter,
		metrics:   m,
		interval:  interval,
		lookback:  lookback,
	}
}

// Interval is the time between passes.
func (c *Checker) Interval() time.Duration { return c.interval }

// Run checks once per interval until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting sync alert checker",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookback),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("sync alert checker stopped")
			return
		case <-ticker.C:
			if _, err := c.Check(ctx); err != nil {
				log.Error("monitoring: check failed", zap.Error(err))
			}
		}
	}
}

// Check runs one pass: collect, evaluate, send. Every alert is counted in
// the metrics with its delivery result.
func (c *Checker) Check(ctx context.Context) (CheckResult, error) {
	var res CheckResult
	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		return res, err
	}

	alerts := c.alerter.Evaluate(snap)
	res.Triggered = len(alerts)
	for _, a := range alerts {
		if !c.alerter.Enabled() {
			c.metrics.ObserveAlert(a.Type, errNoWebhook)
			continue
		}
		err := c.alerter.Send(ctx, a)
		c.metrics.ObserveAlert(a.Type, err)
		if err != nil {
			zap.L().Warn("monitoring: alert not delivered",
				zap.String("type", string(a.Type)),
				zap.Strings("datasets", a.Datasets),
				zap.Error(err),
			)
			continue
		}
		res.Sent++
	}
	if res.Triggered > 0 {
		zap.L().Info("monitoring: sync alerts",
			zap.Int("triggered", res.Triggered),
			zap.Int("sent", res.Sent),
			zap.Int("failed_syncs", snap.SyncFailed),
			zap.Int("stalled_syncs", snap.SyncStalled),
		)
	}
	return res, nil
}
