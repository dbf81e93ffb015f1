package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ttsites/facturemanager/internal/config"
)

// AlertConfig holds alerting configuration.
type AlertConfig struct {
	// WebhookURL is a Slack, Discord or custom endpoint.
	WebhookURL string
	// WebhookType selects the payload format: "slack", "discord" or "generic".
	WebhookType string
	// MinDriftedBills is the number of drifted bills needed to raise an alert.
	MinDriftedBills int
	Timeout         time.Duration

	SendGridAPIKey string
	// SendGridHost overrides the SendGrid API host.
	SendGridHost string
	EmailFrom    string
	EmailTo      []string
}

// FromConfig builds an AlertConfig from the application configuration,
// detecting the webhook type from the URL when it is not set.
func FromConfig(c config.AlertingConfig) AlertConfig {
	cfg := AlertConfig{
		WebhookURL:      c.WebhookURL,
		WebhookType:     c.WebhookType,
		MinDriftedBills: c.MinDriftedBills,
		Timeout:         10 * time.Second,
		SendGridAPIKey:  c.SendGridAPIKey,
		EmailFrom:       c.EmailFrom,
		EmailTo:         c.EmailTo,
	}
	if cfg.WebhookType == "" {
		switch {
		case strings.Contains(cfg.WebhookURL, "slack.com"):
			cfg.WebhookType = "slack"
		case strings.Contains(cfg.WebhookURL, "discord.com"):
			cfg.WebhookType = "discord"
		default:
			cfg.WebhookType = "generic"
		}
	}
	if cfg.MinDriftedBills < 1 {
		cfg.MinDriftedBills = 1
	}
	return cfg
}

func (c AlertConfig) webhookEnabled() bool { return c.WebhookURL != "" }

func (c AlertConfig) emailEnabled() bool {
	return c.SendGridAPIKey != "" && c.EmailFrom != "" && len(c.EmailTo) > 0
}

// Enabled reports whether at least one channel is configured.
func (c AlertConfig) Enabled() bool { return c.webhookEnabled() || c.emailEnabled() }

// Alerter sends audit alerts to the configured channels.
type Alerter struct {
	cfg    AlertConfig
	client *http.Client
	log    *zap.Logger
}

func NewAlerter(cfg AlertConfig, log *zap.Logger) *Alerter {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log.Named("alerting"),
	}
}

// DriftAlert reports bills whose stored amount no longer matches a
// recomputation with the current settings.
type DriftAlert struct {
	JobName      string
	CheckedCount int
	Tolerance    float64
	Duration     time.Duration
	Drifted      []DriftedBill
	Timestamp    time.Time
}

// DriftedBill is one bill flagged by the audit.
type DriftedBill struct {
	BillID     string  `json:"bill_id"`
	MeterID    string  `json:"meter_id"`
	Regime     string  `json:"regime"`
	Stored     float64 `json:"stored_amount"`
	Recomputed float64 `json:"recomputed_amount"`
}

// Difference is the recomputed amount minus the stored one.
func (d DriftedBill) Difference() float64 { return d.Recomputed - d.Stored }

// SendDriftAlert notifies every configured channel. It is a no-op when
// alerting is disabled or the drift is below threshold.
func (a *Alerter) SendDriftAlert(ctx context.Context, alert DriftAlert) error {
	if !a.cfg.Enabled() {
		a.log.Debug("alerts disabled, skipping")
		return nil
	}
	if len(alert.Drifted) < a.cfg.MinDriftedBills {
		a.log.Info("drift below alert threshold",
			zap.Int("drifted", len(alert.Drifted)),
			zap.Int("threshold", a.cfg.MinDriftedBills))
		return nil
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}

	var errs []error
	if a.cfg.webhookEnabled() {
		if err := a.sendWebhook(ctx, alert); err != nil {
			errs = append(errs, fmt.Errorf("webhook: %w", err))
		}
	}
	if a.cfg.emailEnabled() {
		if err := a.sendEmail(ctx, alert); err != nil {
			errs = append(errs, fmt.Errorf("email: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	a.log.Info("sent drift alert", zap.Int("drifted", len(alert.Drifted)))
	return nil
}

func (a *Alerter) sendWebhook(ctx context.Context, alert DriftAlert) error {
	var payload []byte
	var err error
	switch a.cfg.WebhookType {
	case "slack":
		payload, err = buildSlackPayload(alert)
	case "discord":
		payload, err = buildDiscordPayload(alert)
	default:
		payload, err = buildGenericPayload(alert)
	}
	if err != nil {
		return fmt.Errorf("build payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func summary(alert DriftAlert) string {
	return fmt.Sprintf("%d/%d bills differ from a recomputation by more than %g",
		len(alert.Drifted), alert.CheckedCount, alert.Tolerance)
}

func driftLines(alert DriftAlert, bold string) string {
	var b strings.Builder
	for _, d := range alert.Drifted {
		fmt.Fprintf(&b, "• %s%s%s (%s, meter %s): stored %.3f, recomputed %.3f\n",
			bold, d.BillID, bold, d.Regime, d.MeterID, d.Stored, d.Recomputed)
	}
	return b.String()
}

func buildSlackPayload(alert DriftAlert) ([]byte, error) {
	payload := map[string]interface{}{
		"blocks": []map[string]interface{}{
			{
				"type": "header",
				"text": map[string]string{
					"type": "plain_text",
					"text": fmt.Sprintf(":warning: Bill audit: %s", alert.JobName),
				},
			},
			{
				"type": "section",
				"fields": []map[string]string{
					{"type": "mrkdwn", "text": fmt.Sprintf("*Drifted:*\n%d/%d", len(alert.Drifted), alert.CheckedCount)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Duration:*\n%s", alert.Duration.Round(time.Millisecond))},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Tolerance:*\n%g", alert.Tolerance)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Timestamp:*\n%s", alert.Timestamp.Format(time.RFC3339))},
				},
			},
			{
				"type": "section",
				"text": map[string]string{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*Bills:*\n%s", driftLines(alert, "*")),
				},
			},
		},
	}
	return json.Marshal(payload)
}

func buildDiscordPayload(alert DriftAlert) ([]byte, error) {
	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"title":       fmt.Sprintf("Bill audit: %s", alert.JobName),
				"description": summary(alert),
				"color":       16776960,
				"fields": []map[string]interface{}{
					{"name": "Checked", "value": fmt.Sprintf("%d", alert.CheckedCount), "inline": true},
					{"name": "Drifted", "value": fmt.Sprintf("%d", len(alert.Drifted)), "inline": true},
					{"name": "Duration", "value": alert.Duration.Round(time.Millisecond).String(), "inline": true},
					{"name": "Bills", "value": driftLines(alert, "**"), "inline": false},
				},
				"timestamp": alert.Timestamp.Format(time.RFC3339),
			},
		},
	}
	return json.Marshal(payload)
}

func buildGenericPayload(alert DriftAlert) ([]byte, error) {
	payload := map[string]interface{}{
		"alert_type":    "bill_amount_drift",
		"job_name":      alert.JobName,
		"checked_count": alert.CheckedCount,
		"drifted_count": len(alert.Drifted),
		"tolerance":     alert.Tolerance,
		"duration_ms":   alert.Duration.Milliseconds(),
		"timestamp":     alert.Timestamp.Format(time.RFC3339),
		"drifted_bills": alert.Drifted,
	}
	return json.Marshal(payload)
}
