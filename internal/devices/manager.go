package devices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/KevinKickass/EcoShareCore/internal/locations"
	"github.com/KevinKickass/EcoShareCore/internal/metrics"
	"github.com/KevinKickass/EcoShareCore/internal/types"
	"go.uber.org/zap"
)

const (
	EventCreated = "device_created"
	EventUpdated = "device_updated"
	EventDeleted = "device_deleted"
)

// Notifier receives device lifecycle events.
type Notifier interface {
	DeviceChanged(event string, device types.Device)
}

// SpotTracker keeps the catalog in step with where devices sit.
type SpotTracker interface {
	Occupy(ctx context.Context, id string) error
	Release(ctx context.Context, id string) error
}

// Manager validates requests, delegates to a Store, and normalises errors
// to ErrNotFound, ErrInvalid or ErrRequestFailed.
type Manager struct {
	store    Store
	spots    SpotTracker
	notifier Notifier
	logger   *zap.Logger
}

func NewManager(store Store, logger *zap.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logger,
	}
}

// SetSpotTracker makes the manager free the spot of a deleted device and
// move the claim when a device changes location.
func (m *Manager) SetSpotTracker(t SpotTracker) {
	m.spots = t
}

// SetNotifier attaches a receiver for device events.
func (m *Manager) SetNotifier(n Notifier) {
	m.notifier = n
}

func (m *Manager) List(ctx context.Context, filter types.DeviceFilter) ([]types.Device, error) {
	list, err := m.store.ListDevices(ctx, filter)
	if err != nil {
		return nil, m.wrap("list devices", err)
	}
	return list, nil
}

func (m *Manager) Get(ctx context.Context, id string) (types.Device, error) {
	d, err := m.store.GetDevice(ctx, id)
	if err != nil {
		return types.Device{}, m.wrap("get device", err)
	}
	return d, nil
}

// Create validates and stores a device. An empty status defaults to inactive.
func (m *Manager) Create(ctx context.Context, in types.DeviceInput) (types.Device, error) {
	if in.Status == "" {
		in.Status = types.DeviceStatusInactive
	}
	if err := in.Validate(); err != nil {
		return types.Device{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	d, err := m.store.CreateDevice(ctx, in)
	if err != nil {
		return types.Device{}, m.wrap("create device", err)
	}

	m.logger.Info("Device created",
		zap.String("id", d.ID),
		zap.String("name", d.Name),
		zap.String("location", d.Location))
	m.notify(EventCreated, d)

	return d, nil
}

func (m *Manager) Update(ctx context.Context, id string, upd types.DeviceUpdate) (types.Device, error) {
	if err := validateUpdate(upd); err != nil {
		return types.Device{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	var from, to string
	if upd.Location != nil && m.spots != nil {
		current, err := m.store.GetDevice(ctx, id)
		if err != nil {
			return types.Device{}, m.wrap("get device", err)
		}
		if current.Location != *upd.Location {
			from, to = current.Location, *upd.Location
		}
	}

	if to != "" {
		if err := m.spots.Occupy(ctx, to); err != nil {
			if errors.Is(err, locations.ErrSpotUnavailable) || errors.Is(err, locations.ErrSpotNotFound) {
				return types.Device{}, fmt.Errorf("%w: location %v", ErrInvalid, err)
			}
			return types.Device{}, m.wrap("claim spot", err)
		}
	}

	d, err := m.store.UpdateDevice(ctx, id, upd)
	if err != nil {
		if to != "" {
			m.releaseSpot(ctx, to)
		}
		return types.Device{}, m.wrap("update device", err)
	}
	if from != "" {
		m.releaseSpot(ctx, from)
	}

	m.logger.Info("Device updated", zap.String("id", d.ID))
	m.notify(EventUpdated, d)

	return d, nil
}

func (m *Manager) UpdateStatus(ctx context.Context, id string, status types.DeviceStatus) (types.Device, error) {
	return m.Update(ctx, id, types.DeviceUpdate{Status: &status})
}

func (m *Manager) Delete(ctx context.Context, id string) error {
	d, err := m.store.GetDevice(ctx, id)
	if err != nil {
		return m.wrap("get device", err)
	}

	if err := m.store.DeleteDevice(ctx, id); err != nil {
		return m.wrap("delete device", err)
	}
	if d.Location != "" && m.spots != nil {
		m.releaseSpot(ctx, d.Location)
	}

	m.logger.Info("Device deleted", zap.String("id", id))
	m.notify(EventDeleted, d)

	return nil
}

func (m *Manager) RecordUsage(ctx context.Context, rec types.PowerUsageRecord) (types.PowerUsageRecord, error) {
	if rec.Usage < 0 || rec.Cost < 0 {
		return types.PowerUsageRecord{}, fmt.Errorf("%w: usage and cost must not be negative", ErrInvalid)
	}

	out, err := m.store.RecordPowerUsage(ctx, rec)
	if err != nil {
		return types.PowerUsageRecord{}, m.wrap("record power usage", err)
	}
	return out, nil
}

func (m *Manager) Usage(ctx context.Context, deviceID string, from, to time.Time) ([]types.PowerUsageRecord, error) {
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return nil, fmt.Errorf("%w: end_time before start_time", ErrInvalid)
	}

	records, err := m.store.PowerUsage(ctx, deviceID, from, to)
	if err != nil {
		return nil, m.wrap("get power usage", err)
	}
	return records, nil
}

func (m *Manager) TotalUsage(ctx context.Context, from, to time.Time) (float64, error) {
	total, err := m.store.TotalPowerUsage(ctx, from, to)
	if err != nil {
		return 0, m.wrap("get total power usage", err)
	}
	return total, nil
}

// releaseSpot frees a spot after the device record changed. A failure is
// logged only, the record change already happened.
func (m *Manager) releaseSpot(ctx context.Context, spot string) {
	err := m.spots.Release(ctx, spot)
	switch {
	case err == nil:
		m.logger.Debug("Spot released", zap.String("spot", spot))
	case errors.Is(err, locations.ErrSpotNotFound):
		m.logger.Debug("Device location is not a catalog spot", zap.String("spot", spot))
	default:
		m.logger.Warn("Failed to release spot", zap.String("spot", spot), zap.Error(err))
	}
}

func (m *Manager) wrap(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return err
	}
	m.logger.Error("Device store request failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%w: %s: %v", ErrRequestFailed, op, err)
}

func (m *Manager) notify(event string, d types.Device) {
	metrics.IncDeviceEvent(event)
	if m.notifier != nil {
		m.notifier.DeviceChanged(event, d)
	}
}

func validateUpdate(upd types.DeviceUpdate) error {
	if upd.Name != nil && *upd.Name == "" {
		return fmt.Errorf("name must not be empty")
	}
	if upd.Type != nil && !upd.Type.Valid() {
		return fmt.Errorf("invalid device type %q", *upd.Type)
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return fmt.Errorf("invalid device status %q", *upd.Status)
	}
	if upd.PowerUsage != nil && *upd.PowerUsage < 0 {
		return fmt.Errorf("power_usage must not be negative")
	}
	return nil
}
