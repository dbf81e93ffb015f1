package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ttsites/facturemanager/internal/alerting"
	"github.com/ttsites/facturemanager/internal/metrics"
	"github.com/ttsites/facturemanager/internal/storage"
	"github.com/ttsites/facturemanager/internal/tariff"
)

const (
	JobName = "bill_audit"
	lockKey int64 = 7305

	DefaultTolerance = 0.001
	defaultInterval  = time.Hour
)

// SettingsSource supplies the tariff settings bills are recomputed with.
type SettingsSource interface {
	Get(ctx context.Context) (tariff.Settings, error)
}

// Notifier receives drift alerts.
type Notifier interface {
	SendDriftAlert(ctx context.Context, alert alerting.DriftAlert) error
}

// Config drives the audit. Schedule is a number of seconds or a standard
// five-field cron expression.
type Config struct {
	Schedule  string
	Tolerance float64
	// PollInterval is how often the control loop checks whether a run is due.
	PollInterval time.Duration
}

// Report summarises one audit pass.
type Report struct {
	Checked int                    `json:"checked"`
	Skipped int                    `json:"skipped"`
	Drifted []alerting.DriftedBill `json:"drifted"`
	Failed  []Failure              `json:"failed,omitempty"`
}

// Failure is a bill that could not be recomputed.
type Failure struct {
	BillID string `json:"bill_id"`
	Error  string `json:"error"`
}

// Auditor recomputes stored bills with the current settings and flags those
// whose stored amount has drifted.
type Auditor struct {
	cfg      Config
	store    storage.Storage
	settings SettingsSource
	notifier Notifier
	log      *zap.Logger
}

// New validates the schedule and returns an Auditor. notifier may be nil.
func New(cfg Config, st storage.Storage, settings SettingsSource, notifier Notifier, log *zap.Logger) (*Auditor, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = strconv.Itoa(int(defaultInterval.Seconds()))
	}
	if _, err := ParseSchedule(cfg.Schedule); err != nil {
		return nil, err
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultTolerance
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	return &Auditor{
		cfg:      cfg,
		store:    st,
		settings: settings,
		notifier: notifier,
		log:      log.Named("audit"),
	}, nil
}

// ParseSchedule accepts a positive number of seconds or a cron expression.
func ParseSchedule(setting string) (cron.Schedule, error) {
	setting = strings.TrimSpace(setting)
	if v, err := strconv.Atoi(setting); err == nil {
		if v <= 0 {
			return nil, fmt.Errorf("audit schedule must be positive, got %d", v)
		}
		return cron.ConstantDelaySchedule{Delay: time.Duration(v) * time.Second}, nil
	}
	sched, err := cron.ParseStandard(setting)
	if err != nil {
		return nil, fmt.Errorf("invalid audit schedule %q: %w", setting, err)
	}
	return sched, nil
}

// NextRun returns the next run after last, falling back to an hourly run for
// an unparseable setting.
func NextRun(setting string, last time.Time) time.Time {
	sched, err := ParseSchedule(setting)
	if err != nil {
		return last.Add(defaultInterval)
	}
	return sched.Next(last)
}

// RunOnce recomputes every bill whose amount was not entered by hand.
func (a *Auditor) RunOnce(ctx context.Context) (Report, error) {
	var rep Report
	s, err := a.settings.Get(ctx)
	if err != nil {
		return rep, fmt.Errorf("load settings: %w", err)
	}
	bills, err := a.store.ListBills(ctx, "")
	if err != nil {
		return rep, fmt.Errorf("list bills: %w", err)
	}

	for _, b := range bills {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if b.AmountOverridden {
			rep.Skipped++
			continue
		}
		var in tariff.BillCalculationInput
		if err := json.Unmarshal(b.Input, &in); err != nil {
			rep.Failed = append(rep.Failed, Failure{BillID: b.ID, Error: fmt.Sprintf("decode input: %v", err)})
			continue
		}
		res, err := tariff.Calculate(in, s)
		if err != nil {
			rep.Failed = append(rep.Failed, Failure{BillID: b.ID, Error: err.Error()})
			continue
		}
		rep.Checked++
		if math.Abs(res.AmountDue-b.AmountDue) > a.cfg.Tolerance {
			rep.Drifted = append(rep.Drifted, alerting.DriftedBill{
				BillID:     b.ID,
				MeterID:    b.MeterID,
				Regime:     b.Regime,
				Stored:     b.AmountDue,
				Recomputed: res.AmountDue,
			})
		}
	}

	metrics.AuditCheckedBills.Set(float64(rep.Checked))
	metrics.AuditDriftedBills.Set(float64(len(rep.Drifted)))
	return rep, nil
}

// Run repeats RunOnce on the configured schedule until ctx is done. The first
// pass starts immediately. An advisory lock keeps replicas from auditing
// concurrently.
func (a *Auditor) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	nextRun := time.Now()
	a.log.Info("audit worker starting", zap.String("schedule", a.cfg.Schedule), zap.Float64("tolerance", a.cfg.Tolerance))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if time.Now().Before(nextRun) {
				continue
			}
			a.tick(ctx)
			nextRun = NextRun(a.cfg.Schedule, time.Now())
		}
	}
}

func (a *Auditor) tick(ctx context.Context) {
	started := time.Now()

	ok, err := a.store.AcquireAdvisoryLock(ctx, lockKey)
	if err != nil {
		a.log.Error("acquire advisory lock failed", zap.Error(err))
		metrics.UpdateJobMetrics(JobName, started, err)
		return
	}
	if !ok {
		a.log.Info("advisory lock held by another worker, skipping run")
		return
	}

	var rep Report
	var runErr error
	func() {
		defer func() {
			released, err := a.store.ReleaseAdvisoryLock(context.WithoutCancel(ctx), lockKey)
			switch {
			case err != nil:
				a.log.Error("release advisory lock failed", zap.Error(err))
			case !released:
				a.log.Warn("advisory lock was not held at release", zap.Int64("key", lockKey))
			}
		}()
		rep, runErr = a.RunOnce(ctx)
	}()

	metrics.UpdateJobMetrics(JobName, started, runErr)
	dur := time.Since(started)
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	if err := a.store.UpdateScheduledJob(ctx, JobName, started, dur, runErr == nil, errMsg); err != nil {
		a.log.Error("update scheduled job failed", zap.Error(err))
	}

	if runErr != nil {
		a.log.Error("audit failed", zap.Error(runErr), zap.Duration("duration", dur))
		return
	}
	a.log.Info("audit completed",
		zap.Int("checked", rep.Checked),
		zap.Int("skipped", rep.Skipped),
		zap.Int("drifted", len(rep.Drifted)),
		zap.Int("failed", len(rep.Failed)),
		zap.Duration("duration", dur))

	if len(rep.Drifted) > 0 && a.notifier != nil {
		err := a.notifier.SendDriftAlert(ctx, alerting.DriftAlert{
			JobName:      JobName,
			CheckedCount: rep.Checked,
			Tolerance:    a.cfg.Tolerance,
			Duration:     dur,
			Drifted:      rep.Drifted,
			Timestamp:    time.Now(),
		})
		if err != nil {
			a.log.Error("send drift alert failed", zap.Error(err))
		}
	}
}
