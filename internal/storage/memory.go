package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStorage is an in-memory Storage implementation, useful for tests and
// simple single-process deployments.
type MemoryStorage struct {
	mu         sync.RWMutex
	snapshots  []SettingsSnapshot
	meters     map[string]Meter
	powerTiers map[string]PowerTier
	bills      map[string]Bill
	jobs       map[string]ScheduledJob
	locks      map[int64]bool
}

func NewMemory() *MemoryStorage {
	return &MemoryStorage{
		meters:     make(map[string]Meter),
		powerTiers: make(map[string]PowerTier),
		bills:      make(map[string]Bill),
		jobs:       make(map[string]ScheduledJob),
		locks:      make(map[int64]bool),
	}
}

func (m *MemoryStorage) Close() error { return nil }

func (m *MemoryStorage) Ping(ctx context.Context) error { return nil }

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func (m *MemoryStorage) LatestSettingsSnapshot(ctx context.Context) (*SettingsSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.snapshots) == 0 {
		return nil, nil
	}
	cp := m.snapshots[len(m.snapshots)-1]
	cp.Payload = cloneBytes(cp.Payload)
	return &cp, nil
}

func (m *MemoryStorage) SaveSettingsSnapshot(ctx context.Context, snap SettingsSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now()
	}
	snap.ID = uint(len(m.snapshots) + 1)
	snap.Payload = cloneBytes(snap.Payload)
	m.snapshots = append(m.snapshots, snap)
	return nil
}

func (m *MemoryStorage) ListMeters(ctx context.Context) ([]Meter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Meter, 0, len(m.meters))
	for _, mt := range m.meters {
		mt.PreviousIndexes = cloneBytes(mt.PreviousIndexes)
		out = append(out, mt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStorage) GetMeter(ctx context.Context, id string) (*Meter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mt, ok := m.meters[id]
	if !ok {
		return nil, nil
	}
	mt.PreviousIndexes = cloneBytes(mt.PreviousIndexes)
	return &mt, nil
}

func (m *MemoryStorage) UpsertMeter(ctx context.Context, mt Meter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mt.UpdatedAt = time.Now()
	mt.PreviousIndexes = cloneBytes(mt.PreviousIndexes)
	m.meters[mt.ID] = mt
	return nil
}

func (m *MemoryStorage) GetPowerTier(ctx context.Context, meterID string) (*PowerTier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pt, ok := m.powerTiers[meterID]
	if !ok {
		return nil, nil
	}
	return &pt, nil
}

func (m *MemoryStorage) UpsertPowerTier(ctx context.Context, pt PowerTier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pt.UpdatedAt = time.Now()
	m.powerTiers[pt.MeterID] = pt
	return nil
}

func (m *MemoryStorage) SaveBill(ctx context.Context, b Bill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if prev, ok := m.bills[b.ID]; ok {
		b.CreatedAt = prev.CreatedAt
	} else if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	b.Input = cloneBytes(b.Input)
	m.bills[b.ID] = b
	return nil
}

func (m *MemoryStorage) GetBill(ctx context.Context, id string) (*Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bills[id]
	if !ok {
		return nil, nil
	}
	b.Input = cloneBytes(b.Input)
	return &b, nil
}

func (m *MemoryStorage) ListBills(ctx context.Context, meterID string) ([]Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Bill, 0, len(m.bills))
	for _, b := range m.bills {
		if meterID != "" && b.MeterID != meterID {
			continue
		}
		b.Input = cloneBytes(b.Input)
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// AcquireAdvisoryLock emulates a session lock within the process.
func (m *MemoryStorage) AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] {
		return false, nil
	}
	m.locks[key] = true
	return true, nil
}

func (m *MemoryStorage) ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	held := m.locks[key]
	delete(m.locks, key)
	return held, nil
}

func (m *MemoryStorage) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := 0
	if success {
		status = 1
	}
	m.jobs[name] = ScheduledJob{
		Name:           name,
		LastRunAt:      started,
		LastDurationMs: dur.Milliseconds(),
		LastSuccess:    status,
		LastError:      errMsg,
	}
	return nil
}

func (m *MemoryStorage) GetScheduledJob(ctx context.Context, name string) (*ScheduledJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[name]
	if !ok {
		return nil, nil
	}
	return &job, nil
}

var _ Storage = (*MemoryStorage)(nil)
