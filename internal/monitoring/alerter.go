package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/yys/safewalk-cli/internal/config"
	"github.com/yys/safewalk-cli/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertSyncFailure AlertType = "sync_failure"
	AlertSyncStalled AlertType = "sync_stalled"
)

var errNoWebhook = eris.New("monitoring: no webhook configured")

// Alert is the webhook payload for one dataset sync problem.
type Alert struct {
	Service       string    `json:"service"`
	Type          AlertType `json:"type"`
	Severity      string    `json:"severity"`
	Message       string    `json:"message"`
	Datasets      []string  `json:"datasets,omitempty"`
	Count         int       `json:"count"`
	LookbackHours int       `json:"lookback_hours"`
	RaisedAt      time.Time `json:"raised_at"`
}

// Alerter turns a MetricsSnapshot into sync alerts and posts them to a
// webhook.
type Alerter struct {
	webhook   string
	threshold int
	client    *http.Client
	policy    resilience.Policy
}

// NewAlerter creates an Alerter. Webhook posts are retried with p; 5xx and
// 429 responses count as temporary.
func NewAlerter(cfg config.MonitoringConfig, p resilience.Policy) *Alerter {
	threshold := cfg.SyncFailureThreshold
	if threshold <= 0 {
		threshold = 1
	}
	return &Alerter{
		webhook:   cfg.WebhookURL,
		threshold: threshold,
		client:    &http.Client{Timeout: 10 * time.Second},
		policy:    p.WithLogging("alert-webhook"),
	}
}

// Enabled reports whether a webhook is configured.
func (a *Alerter) Enabled() bool { return a.webhook != "" }

// Evaluate returns the alerts the snapshot raises.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if snap.SyncFailed >= a.threshold {
		alerts = append(alerts, Alert{
			Service:  "safewalk",
			Type:     AlertSyncFailure,
			Severity: "high",
			Message: fmt.Sprintf("%d dataset sync(s) failed in last %dh: %s",
				snap.SyncFailed, snap.LookbackHours, strings.Join(snap.FailedDatasets, ", ")),
			Datasets:      snap.FailedDatasets,
			Count:         snap.SyncFailed,
			LookbackHours: snap.LookbackHours,
			RaisedAt:      now,
		})
	}

	if snap.SyncStalled > 0 {
		alerts = append(alerts, Alert{
			Service:  "safewalk",
			Type:     AlertSyncStalled,
			Severity: "medium",
			Message: fmt.Sprintf("%d dataset sync(s) still running past the stall window: %s",
				snap.SyncStalled, strings.Join(snap.StalledDatasets, ", ")),
			Datasets:      snap.StalledDatasets,
			Count:         snap.SyncStalled,
			LookbackHours: snap.LookbackHours,
			RaisedAt:      now,
		})
	}

	return alerts
}

// Send posts one alert, retrying temporary failures.
func (a *Alerter) Send(ctx context.Context, alert Alert) error {
	if a.webhook == "" {
		return errNoWebhook
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}
	return resilience.Retry(ctx, a.policy, func(ctx context.Context) error {
		return a.post(ctx, payload)
	})
}

func (a *Alerter) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.webhook, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	if resp.StatusCode >= 400 {
		err = eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
		if resilience.RetryableStatus(resp.StatusCode) {
			return resilience.Temporary(err, resp.StatusCode)
		}
		return err
	}
	return nil
}
