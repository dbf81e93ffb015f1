package audit

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ttsites/facturemanager/internal/alerting"
	"github.com/ttsites/facturemanager/internal/settings"
	"github.com/ttsites/facturemanager/internal/storage"
	"github.com/ttsites/facturemanager/internal/tariff"
)

type captureNotifier struct {
	mu     sync.Mutex
	alerts []alerting.DriftAlert
}

func (c *captureNotifier) SendDriftAlert(ctx context.Context, alert alerting.DriftAlert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, alert)
	return nil
}

func (c *captureNotifier) snapshot() []alerting.DriftAlert {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]alerting.DriftAlert(nil), c.alerts...)
}

var flatRateInput = tariff.BillCalculationInput{
	Regime: tariff.RegimeMediumVoltageFlatRate,
	FlatRate: &tariff.FlatRateInput{
		Reading: tariff.MeterReading{PreviousIndex: 1483440, CurrentIndex: 1489924},
	},
}

func expectedAmount(t *testing.T) float64 {
	t.Helper()
	res, err := tariff.Calculate(flatRateInput, tariff.DefaultSettings())
	require.NoError(t, err)
	return res.AmountDue
}

func saveBill(t *testing.T, st storage.Storage, id string, amount float64, overridden bool) {
	t.Helper()
	raw, err := json.Marshal(flatRateInput)
	require.NoError(t, err)
	require.NoError(t, st.SaveBill(context.Background(), storage.Bill{
		ID:               id,
		MeterID:          "mt-1",
		Regime:           string(flatRateInput.Regime),
		Input:            raw,
		AmountDue:        amount,
		AmountOverridden: overridden,
	}))
}

func newAuditor(t *testing.T, st storage.Storage, cfg Config, n Notifier) *Auditor {
	t.Helper()
	prov := settings.NewProvider(settings.Config{}, st, zap.NewNop())
	a, err := New(cfg, st, prov, n, zap.NewNop())
	require.NoError(t, err)
	return a
}

func TestRunOnce_FlagsDriftedBills(t *testing.T) {
	st := storage.NewMemory()
	want := expectedAmount(t)
	saveBill(t, st, "ok", want, false)
	saveBill(t, st, "within-tolerance", want+0.0005, false)
	saveBill(t, st, "drifted", want+1.5, false)
	saveBill(t, st, "manual", 12, true)

	rep, err := newAuditor(t, st, Config{}, nil).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, rep.Checked)
	assert.Equal(t, 1, rep.Skipped)
	require.Len(t, rep.Drifted, 1)
	d := rep.Drifted[0]
	assert.Equal(t, "drifted", d.BillID)
	assert.Equal(t, "mt-1", d.MeterID)
	assert.InDelta(t, want, d.Recomputed, 1e-9)
	assert.InDelta(t, -1.5, d.Difference(), 1e-9)
}

func TestRunOnce_RecordsUndecodableBills(t *testing.T) {
	st := storage.NewMemory()
	require.NoError(t, st.SaveBill(context.Background(), storage.Bill{
		ID:     "broken",
		Regime: "basse_tension",
		Input:  []byte(`{"regime":"basse_tension"}`),
	}))

	rep, err := newAuditor(t, st, Config{}, nil).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rep.Checked)
	require.Len(t, rep.Failed, 1)
	assert.Equal(t, "broken", rep.Failed[0].BillID)
}

func TestRunOnce_UsesCurrentSettings(t *testing.T) {
	st := storage.NewMemory()
	saveBill(t, st, "b-1", expectedAmount(t), false)

	prov := settings.NewProvider(settings.Config{}, st, zap.NewNop())
	s := tariff.DefaultSettings()
	s.MoyenTensionForfaitaire.UnitPrice += 0.01
	require.NoError(t, prov.Update(context.Background(), s))

	a, err := New(Config{}, st, prov, nil, zap.NewNop())
	require.NoError(t, err)
	rep, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Len(t, rep.Drifted, 1)
}

func TestParseSchedule(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, base.Add(90*time.Second), NextRun("90", base))
	assert.Equal(t, time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC), NextRun("0 2 * * *", base))
	assert.Equal(t, base.Add(time.Hour), NextRun("whenever", base))

	_, err := ParseSchedule("-5")
	assert.Error(t, err)
	_, err = ParseSchedule("not a cron")
	assert.Error(t, err)
}

func TestNew_RejectsBadSchedule(t *testing.T) {
	_, err := New(Config{Schedule: "every day"}, storage.NewMemory(), nil, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestRun_RecordsJobAndAlertsOnDrift(t *testing.T) {
	st := storage.NewMemory()
	saveBill(t, st, "drifted", expectedAmount(t)+3, false)
	n := &captureNotifier{}
	a := newAuditor(t, st, Config{Schedule: "3600", PollInterval: 5 * time.Millisecond}, n)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return len(n.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	job, err := st.GetScheduledJob(context.Background(), JobName)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 1, job.LastSuccess)
	assert.Empty(t, job.LastError)

	alert := n.snapshot()[0]
	assert.Equal(t, JobName, alert.JobName)
	assert.Equal(t, 1, alert.CheckedCount)
	assert.Equal(t, DefaultTolerance, alert.Tolerance)
}

func TestRun_SkipsWhileLockHeld(t *testing.T) {
	st := storage.NewMemory()
	saveBill(t, st, "drifted", 1, false)
	ok, err := st.AcquireAdvisoryLock(context.Background(), lockKey)
	require.NoError(t, err)
	require.True(t, ok)

	n := &captureNotifier{}
	a := newAuditor(t, st, Config{Schedule: "1", PollInterval: 5 * time.Millisecond}, n)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = a.Run(ctx)

	assert.Empty(t, n.snapshot())
	job, err := st.GetScheduledJob(context.Background(), JobName)
	require.NoError(t, err)
	assert.Nil(t, job)
}

// lostLockStore reports every release as not held, as postgres does when the
// unlock runs on a session other than the one that locked.
type lostLockStore struct {
	*storage.MemoryStorage
}

func (lostLockStore) ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	return false, nil
}

func TestRun_WarnsWhenReleaseFindsNoLock(t *testing.T) {
	st := lostLockStore{storage.NewMemory()}
	core, logs := observer.New(zap.WarnLevel)
	prov := settings.NewProvider(settings.Config{}, st, zap.NewNop())
	a, err := New(Config{Schedule: "3600", PollInterval: 5 * time.Millisecond}, st, prov, nil, zap.New(core))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		return logs.FilterMessage("advisory lock was not held at release").Len() == 1
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
