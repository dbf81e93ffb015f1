package storage

import (
	"context"
	"time"
)

// Storage abstracts persistence for tariff settings, the meter directory and
// saved bills. Lookups return nil, nil when the record does not exist.
type Storage interface {
	// Tariff settings
	LatestSettingsSnapshot(ctx context.Context) (*SettingsSnapshot, error)
	SaveSettingsSnapshot(ctx context.Context, snap SettingsSnapshot) error

	// Meter directory
	ListMeters(ctx context.Context) ([]Meter, error)
	GetMeter(ctx context.Context, id string) (*Meter, error)
	UpsertMeter(ctx context.Context, m Meter) error
	GetPowerTier(ctx context.Context, meterID string) (*PowerTier, error)
	UpsertPowerTier(ctx context.Context, pt PowerTier) error

	// Bills. SaveBill is last-writer-wins on ID.
	SaveBill(ctx context.Context, b Bill) error
	GetBill(ctx context.Context, id string) (*Bill, error)
	ListBills(ctx context.Context, meterID string) ([]Bill, error)

	// Scheduled jobs
	AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error)
	ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error)
	UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error
	GetScheduledJob(ctx context.Context, name string) (*ScheduledJob, error)

	Ping(ctx context.Context) error
	// Close releases any resources (no-op for in-memory).
	Close() error
}
