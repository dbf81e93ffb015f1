package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

func backends(t *testing.T) map[string]Storage {
	t.Helper()
	g, err := NewGormStorage("sqlite", filepath.Join(t.TempDir(), "facture.db"), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, g.Migrate(context.Background()))
	t.Cleanup(func() { g.Close() })

	return map[string]Storage{
		"memory": NewMemory(),
		"gorm":   g,
	}
}

func TestStorage_NotFoundReturnsNil(t *testing.T) {
	ctx := context.Background()
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			snap, err := st.LatestSettingsSnapshot(ctx)
			require.NoError(t, err)
			assert.Nil(t, snap)

			m, err := st.GetMeter(ctx, "nope")
			require.NoError(t, err)
			assert.Nil(t, m)

			b, err := st.GetBill(ctx, "nope")
			require.NoError(t, err)
			assert.Nil(t, b)

			pt, err := st.GetPowerTier(ctx, "nope")
			require.NoError(t, err)
			assert.Nil(t, pt)
		})
	}
}

func TestStorage_LatestSnapshotWins(t *testing.T) {
	ctx := context.Background()
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			base := time.Now().Add(-time.Hour)
			require.NoError(t, st.SaveSettingsSnapshot(ctx, SettingsSnapshot{
				Payload: datatypes.JSON(`{"v":1}`), Source: "defaults", CreatedAt: base,
			}))
			require.NoError(t, st.SaveSettingsSnapshot(ctx, SettingsSnapshot{
				Payload: datatypes.JSON(`{"v":2}`), Source: "update", CreatedAt: base.Add(time.Minute),
			}))

			snap, err := st.LatestSettingsSnapshot(ctx)
			require.NoError(t, err)
			require.NotNil(t, snap)
			assert.Equal(t, "update", snap.Source)
			assert.JSONEq(t, `{"v":2}`, string(snap.Payload))
		})
	}
}

func TestStorage_MeterAndPowerTierUpsert(t *testing.T) {
	ctx := context.Background()
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, st.UpsertMeter(ctx, Meter{ID: "M-1", Label: "Chaufferie", Regime: "mt_horaire"}))
			require.NoError(t, st.UpsertMeter(ctx, Meter{
				ID: "M-1", Label: "Chaufferie B", Regime: "mt_horaire",
				PreviousIndexes: datatypes.JSON(`{"jour_previous_index":120}`),
			}))

			m, err := st.GetMeter(ctx, "M-1")
			require.NoError(t, err)
			require.NotNil(t, m)
			assert.Equal(t, "Chaufferie B", m.Label)
			assert.JSONEq(t, `{"jour_previous_index":120}`, string(m.PreviousIndexes))

			list, err := st.ListMeters(ctx)
			require.NoError(t, err)
			assert.Len(t, list, 1)

			require.NoError(t, st.UpsertPowerTier(ctx, PowerTier{MeterID: "M-1", PPH: 100, PJ: 80}))
			require.NoError(t, st.UpsertPowerTier(ctx, PowerTier{MeterID: "M-1", PPH: 120, PJ: 80}))
			pt, err := st.GetPowerTier(ctx, "M-1")
			require.NoError(t, err)
			require.NotNil(t, pt)
			assert.Equal(t, 120.0, pt.PPH)
			assert.Equal(t, 80.0, pt.PJ)
		})
	}
}

func TestStorage_BillsLastWriterWins(t *testing.T) {
	ctx := context.Background()
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, st.SaveBill(ctx, Bill{ID: "b1", MeterID: "M-1", Regime: "basse_tension", AmountDue: 10}))
			require.NoError(t, st.SaveBill(ctx, Bill{ID: "b2", MeterID: "M-2", Regime: "basse_tension", AmountDue: 20}))
			require.NoError(t, st.SaveBill(ctx, Bill{ID: "b1", MeterID: "M-1", Regime: "basse_tension", AmountDue: 11, AmountOverridden: true}))

			b, err := st.GetBill(ctx, "b1")
			require.NoError(t, err)
			require.NotNil(t, b)
			assert.Equal(t, 11.0, b.AmountDue)
			assert.True(t, b.AmountOverridden)

			all, err := st.ListBills(ctx, "")
			require.NoError(t, err)
			assert.Len(t, all, 2)

			mine, err := st.ListBills(ctx, "M-2")
			require.NoError(t, err)
			require.Len(t, mine, 1)
			assert.Equal(t, "b2", mine[0].ID)
		})
	}
}

func TestStorage_ScheduledJobs(t *testing.T) {
	ctx := context.Background()
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			started := time.Now().Truncate(time.Second)
			require.NoError(t, st.UpdateScheduledJob(ctx, "audit", started, 1500*time.Millisecond, false, "boom"))
			require.NoError(t, st.UpdateScheduledJob(ctx, "audit", started, 2*time.Second, true, ""))

			job, err := st.GetScheduledJob(ctx, "audit")
			require.NoError(t, err)
			require.NotNil(t, job)
			assert.Equal(t, int64(2000), job.LastDurationMs)
			assert.Equal(t, 1, job.LastSuccess)
			assert.Empty(t, job.LastError)

			ok, err := st.AcquireAdvisoryLock(ctx, 42)
			require.NoError(t, err)
			assert.True(t, ok)
			_, err = st.ReleaseAdvisoryLock(ctx, 42)
			require.NoError(t, err)
		})
	}
}

func TestStorage_AdvisoryLockIsExclusive(t *testing.T) {
	ctx := context.Background()
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ok, err := st.AcquireAdvisoryLock(ctx, 7)
			require.NoError(t, err)
			assert.True(t, ok)
			ok, _ = st.AcquireAdvisoryLock(ctx, 7)
			assert.False(t, ok)

			// other keys are independent
			ok, _ = st.AcquireAdvisoryLock(ctx, 8)
			assert.True(t, ok)

			released, err := st.ReleaseAdvisoryLock(ctx, 7)
			require.NoError(t, err)
			assert.True(t, released)
			released, _ = st.ReleaseAdvisoryLock(ctx, 7)
			assert.False(t, released, "releasing a lock that is not held")

			ok, _ = st.AcquireAdvisoryLock(ctx, 7)
			assert.True(t, ok)
		})
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mongo"}, zap.NewNop())
	assert.Error(t, err)
}

func TestOpen_SqliteAutoMigrates(t *testing.T) {
	ctx := context.Background()
	st, err := Open(ctx, Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "auto.db"), AutoMigrate: true}, zap.NewNop())
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.Ping(ctx))
	require.NoError(t, st.SaveBill(ctx, Bill{ID: "x", MeterID: "m"}))
}
