package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ttsites/facturemanager/internal/logger"
)

type GormStorage struct {
	db *gorm.DB

	// locks maps held advisory lock keys to the connection that holds them.
	// Session locks belong to one postgres connection, so that connection is
	// kept out of the pool until the lock is released. On sqlite the entry is
	// nil and the lock is process-local.
	lockMu sync.Mutex
	locks  map[int64]*sql.Conn
}

func NewGormStorage(driver, dsn string, log *zap.Logger) (*GormStorage, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.NewGormLogger(log),
	})
	if err != nil {
		return nil, err
	}
	return &GormStorage{db: db, locks: make(map[int64]*sql.Conn)}, nil
}

// Migrate creates or updates every table. Deployments that manage the schema
// with goose can skip it.
func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&SettingsSnapshot{},
		&Meter{},
		&PowerTier{},
		&Bill{},
		&ScheduledJob{},
	)
}

// first loads one record into dst, mapping not-found to false.
func first(q *gorm.DB, dst interface{}, conds ...interface{}) (bool, error) {
	if err := q.First(dst, conds...).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Settings snapshots

func (s *GormStorage) LatestSettingsSnapshot(ctx context.Context) (*SettingsSnapshot, error) {
	var snap SettingsSnapshot
	ok, err := first(s.db.WithContext(ctx).Order("created_at desc, id desc"), &snap)
	if !ok {
		return nil, err
	}
	return &snap, nil
}

func (s *GormStorage) SaveSettingsSnapshot(ctx context.Context, snap SettingsSnapshot) error {
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now()
	}
	return s.db.WithContext(ctx).Create(&snap).Error
}

// Meters

func (s *GormStorage) ListMeters(ctx context.Context) ([]Meter, error) {
	var meters []Meter
	result := s.db.WithContext(ctx).Order("id").Find(&meters)
	return meters, result.Error
}

func (s *GormStorage) GetMeter(ctx context.Context, id string) (*Meter, error) {
	var m Meter
	ok, err := first(s.db.WithContext(ctx), &m, "id = ?", id)
	if !ok {
		return nil, err
	}
	return &m, nil
}

func (s *GormStorage) UpsertMeter(ctx context.Context, m Meter) error {
	m.UpdatedAt = time.Now()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&m).Error
}

func (s *GormStorage) GetPowerTier(ctx context.Context, meterID string) (*PowerTier, error) {
	var pt PowerTier
	ok, err := first(s.db.WithContext(ctx), &pt, "meter_id = ?", meterID)
	if !ok {
		return nil, err
	}
	return &pt, nil
}

func (s *GormStorage) UpsertPowerTier(ctx context.Context, pt PowerTier) error {
	pt.UpdatedAt = time.Now()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "meter_id"}},
		UpdateAll: true,
	}).Create(&pt).Error
}

// Bills

func (s *GormStorage) SaveBill(ctx context.Context, b Bill) error {
	now := time.Now()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"meter_id", "regime", "period", "input", "consumption_kwh", "amount_due",
			"consumption_overridden", "amount_overridden", "rollover", "updated_at",
		}),
	}).Create(&b).Error
}

func (s *GormStorage) GetBill(ctx context.Context, id string) (*Bill, error) {
	var b Bill
	ok, err := first(s.db.WithContext(ctx), &b, "id = ?", id)
	if !ok {
		return nil, err
	}
	return &b, nil
}

func (s *GormStorage) ListBills(ctx context.Context, meterID string) ([]Bill, error) {
	var bills []Bill
	q := s.db.WithContext(ctx).Order("created_at, id")
	if meterID != "" {
		q = q.Where("meter_id = ?", meterID)
	}
	result := q.Find(&bills)
	return bills, result.Error
}

// Close & Ping

func (s *GormStorage) Close() error {
	s.lockMu.Lock()
	for key, conn := range s.locks {
		if conn != nil {
			conn.Close()
		}
		delete(s.locks, key)
	}
	s.lockMu.Unlock()

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStorage) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Scheduled Jobs & Locking

func (s *GormStorage) AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	if _, held := s.locks[key]; held {
		return false, nil
	}
	if s.db.Dialector.Name() != "postgres" {
		// sqlite is single instance
		s.locks[key] = nil
		return true, nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return false, err
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("reserve lock connection: %w", err)
	}
	var ok bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok); err != nil {
		conn.Close()
		return false, err
	}
	if !ok {
		conn.Close()
		return false, nil
	}
	s.locks[key] = conn
	return true, nil
}

// ReleaseAdvisoryLock unlocks on the connection that took the lock. It
// reports false when this process did not hold key.
func (s *GormStorage) ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	s.lockMu.Lock()
	conn, held := s.locks[key]
	delete(s.locks, key)
	s.lockMu.Unlock()
	if !held {
		return false, nil
	}
	if conn == nil {
		return true, nil
	}
	defer conn.Close()

	var ok bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&ok); err != nil {
		// discard the session instead of pooling it; postgres drops its locks
		_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		return false, err
	}
	return ok, nil
}

func (s *GormStorage) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	status := 0
	if success {
		status = 1
	}
	job := ScheduledJob{
		Name:           name,
		LastRunAt:      started,
		LastDurationMs: dur.Milliseconds(),
		LastSuccess:    status,
		LastError:      errMsg,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		UpdateAll: true,
	}).Create(&job).Error
}

func (s *GormStorage) GetScheduledJob(ctx context.Context, name string) (*ScheduledJob, error) {
	var job ScheduledJob
	ok, err := first(s.db.WithContext(ctx), &job, "name = ?", name)
	if !ok {
		return nil, err
	}
	return &job, nil
}

var _ Storage = (*GormStorage)(nil)
