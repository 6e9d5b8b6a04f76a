package interfaces

import (
	"context"

	"github.com/KevinKickass/EcoShareCore/internal/config"
	"github.com/KevinKickass/EcoShareCore/internal/devices"
	"github.com/KevinKickass/EcoShareCore/internal/locations"
	"github.com/KevinKickass/EcoShareCore/internal/onboarding"
	"github.com/KevinKickass/EcoShareCore/internal/settings"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State              string `json:"state"`
	Error              string `json:"error,omitempty"`
	StorageDriver      string `json:"storage_driver"`
	StorageOK          bool   `json:"storage_ok"`
	PairingMode        string `json:"pairing_mode"`
	DeviceCount        int    `json:"device_count"`
	OnboardingSessions int    `json:"onboarding_sessions"`
	ConnectedClients   int    `json:"connected_clients"`
	UptimeSeconds      int64  `json:"uptime_seconds"`
}

type LifecycleManager interface {
	Config() *config.Config
	DeviceManager() *devices.Manager
	Catalog() locations.Catalog
	Onboarding() *onboarding.Registry
	Settings() *settings.Service
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}
