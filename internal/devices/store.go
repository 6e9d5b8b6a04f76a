package devices

import (
	"context"
	"time"

	"github.com/KevinKickass/EcoShareCore/internal/types"
)

// Store is the device persistence contract. MemoryStore and the Postgres
// client both implement it.
type Store interface {
	ListDevices(ctx context.Context, filter types.DeviceFilter) ([]types.Device, error)
	GetDevice(ctx context.Context, id string) (types.Device, error)
	CreateDevice(ctx context.Context, in types.DeviceInput) (types.Device, error)
	UpdateDevice(ctx context.Context, id string, upd types.DeviceUpdate) (types.Device, error)
	DeleteDevice(ctx context.Context, id string) error

	RecordPowerUsage(ctx context.Context, rec types.PowerUsageRecord) (types.PowerUsageRecord, error)
	PowerUsage(ctx context.Context, deviceID string, from, to time.Time) ([]types.PowerUsageRecord, error)
	TotalPowerUsage(ctx context.Context, from, to time.Time) (float64, error)
}

// SeedDevices are the reference devices loaded into an empty store.
func SeedDevices() []types.DeviceInput {
	return []types.DeviceInput{
		{
			DeviceDraft: types.DeviceDraft{
				Name:            "Smart Socket A-101",
				Type:            types.DeviceTypeSocket,
				PowerUsage:      120,
				InstallDate:     types.MustParseDate("2023-06-15"),
				LastMaintenance: types.MustParseDate("2024-01-01"),
				NextMaintenance: types.MustParseDate("2024-04-01"),
			},
			Location: "1F-A",
			Status:   types.DeviceStatusActive,
		},
		{
			DeviceDraft: types.DeviceDraft{
				Name:            "Temperature Sensor B-201",
				Type:            types.DeviceTypeSensor,
				PowerUsage:      5,
				InstallDate:     types.MustParseDate("2023-07-01"),
				LastMaintenance: types.MustParseDate("2024-01-15"),
				NextMaintenance: types.MustParseDate("2024-04-15"),
			},
			Location: "2F-A",
			Status:   types.DeviceStatusMaintenance,
		},
		{
			DeviceDraft: types.DeviceDraft{
				Name:            "Power Controller C-301",
				Type:            types.DeviceTypeController,
				PowerUsage:      50,
				InstallDate:     types.MustParseDate("2023-08-01"),
				LastMaintenance: types.MustParseDate("2024-01-10"),
				NextMaintenance: types.MustParseDate("2024-04-10"),
			},
			Location: "2F-C",
			Status:   types.DeviceStatusActive,
		},
	}
}
