package devices

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/KevinKickass/EcoShareCore/internal/types"
	"github.com/google/uuid"
)

// MemoryStore keeps devices and usage records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	devices map[string]types.Device
	usage   []types.PowerUsageRecord
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		devices: make(map[string]types.Device),
		now:     time.Now,
	}
}

// NewSeededMemoryStore returns a store holding SeedDevices.
func NewSeededMemoryStore() *MemoryStore {
	s := NewMemoryStore()
	for _, in := range SeedDevices() {
		// Seeds are static and valid.
		_, _ = s.CreateDevice(context.Background(), in)
	}
	return s
}

func (s *MemoryStore) ListDevices(ctx context.Context, filter types.DeviceFilter) ([]types.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Device, 0, len(s.devices))
	for _, d := range s.devices {
		if filter.Match(d) {
			out = append(out, d)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out, nil
}

func (s *MemoryStore) GetDevice(ctx context.Context, id string) (types.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[id]
	if !ok {
		return types.Device{}, ErrNotFound
	}
	return d, nil
}

func (s *MemoryStore) CreateDevice(ctx context.Context, in types.DeviceInput) (types.Device, error) {
	if err := ctx.Err(); err != nil {
		return types.Device{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d := types.NewDevice(uuid.NewString(), in, s.now())
	s.devices[d.ID] = d
	return d, nil
}

func (s *MemoryStore) UpdateDevice(ctx context.Context, id string, upd types.DeviceUpdate) (types.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[id]
	if !ok {
		return types.Device{}, ErrNotFound
	}

	upd.Apply(&d)
	d.UpdatedAt = s.now()
	s.devices[id] = d
	return d, nil
}

func (s *MemoryStore) DeleteDevice(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[id]; !ok {
		return ErrNotFound
	}
	delete(s.devices, id)

	kept := s.usage[:0]
	for _, rec := range s.usage {
		if rec.DeviceID != id {
			kept = append(kept, rec)
		}
	}
	s.usage = kept
	return nil
}

func (s *MemoryStore) RecordPowerUsage(ctx context.Context, rec types.PowerUsageRecord) (types.PowerUsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[rec.DeviceID]; !ok {
		return types.PowerUsageRecord{}, ErrNotFound
	}

	rec.ID = uuid.NewString()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}
	s.usage = append(s.usage, rec)
	return rec, nil
}

func (s *MemoryStore) PowerUsage(ctx context.Context, deviceID string, from, to time.Time) ([]types.PowerUsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.devices[deviceID]; !ok {
		return nil, ErrNotFound
	}

	out := make([]types.PowerUsageRecord, 0)
	for _, rec := range s.usage {
		if rec.DeviceID == deviceID && inRange(rec.Timestamp, from, to) {
			out = append(out, rec)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *MemoryStore) TotalPowerUsage(ctx context.Context, from, to time.Time) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total float64
	for _, rec := range s.usage {
		if inRange(rec.Timestamp, from, to) {
			total += rec.Usage
		}
	}
	return total, nil
}

// inRange treats a zero bound as open.
func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && t.After(to) {
		return false
	}
	return true
}
