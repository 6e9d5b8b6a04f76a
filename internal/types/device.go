package types

import (
	"fmt"
	"strings"
	"time"
)

type DeviceType string

const (
	DeviceTypeSocket     DeviceType = "socket"
	DeviceTypeSensor     DeviceType = "sensor"
	DeviceTypeController DeviceType = "controller"
)

func (t DeviceType) Valid() bool {
	switch t {
	case DeviceTypeSocket, DeviceTypeSensor, DeviceTypeController:
		return true
	}
	return false
}

type DeviceStatus string

const (
	DeviceStatusActive      DeviceStatus = "active"
	DeviceStatusInactive    DeviceStatus = "inactive"
	DeviceStatusMaintenance DeviceStatus = "maintenance"
)

func (s DeviceStatus) Valid() bool {
	switch s {
	case DeviceStatusActive, DeviceStatusInactive, DeviceStatusMaintenance:
		return true
	}
	return false
}

// DeviceDraft is the basic info collected in the first onboarding step.
type DeviceDraft struct {
	Name            string     `json:"name"`
	Type            DeviceType `json:"type"`
	PowerUsage      float64    `json:"power_usage"`
	InstallDate     Date       `json:"install_date"`
	LastMaintenance Date       `json:"last_maintenance"`
	NextMaintenance Date       `json:"next_maintenance"`
}

// DeviceInput is everything needed to create a device record.
type DeviceInput struct {
	DeviceDraft
	Location   string       `json:"location"`
	Status     DeviceStatus `json:"status"`
	HardwareID string       `json:"hardware_id,omitempty"`
}

type Device struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Type            DeviceType   `json:"type"`
	Location        string       `json:"location"`
	Status          DeviceStatus `json:"status"`
	PowerUsage      float64      `json:"power_usage"`
	InstallDate     Date         `json:"install_date"`
	LastMaintenance Date         `json:"last_maintenance"`
	NextMaintenance Date         `json:"next_maintenance"`
	HardwareID      string       `json:"hardware_id,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// DeviceUpdate is a partial update; nil fields are left untouched.
type DeviceUpdate struct {
	Name            *string       `json:"name,omitempty"`
	Type            *DeviceType   `json:"type,omitempty"`
	Location        *string       `json:"location,omitempty"`
	Status          *DeviceStatus `json:"status,omitempty"`
	PowerUsage      *float64      `json:"power_usage,omitempty"`
	InstallDate     *Date         `json:"install_date,omitempty"`
	LastMaintenance *Date         `json:"last_maintenance,omitempty"`
	NextMaintenance *Date         `json:"next_maintenance,omitempty"`
}

// DeviceFilter narrows List results. Query matches name, location or type.
type DeviceFilter struct {
	Query  string
	Status DeviceStatus
}

func (f DeviceFilter) Match(d Device) bool {
	if f.Status != "" && d.Status != f.Status {
		return false
	}
	if f.Query == "" {
		return true
	}
	q := strings.ToLower(f.Query)
	return strings.Contains(strings.ToLower(d.Name), q) ||
		strings.Contains(strings.ToLower(d.Location), q) ||
		strings.Contains(strings.ToLower(string(d.Type)), q)
}

// NewDevice builds a record from input. ID and timestamps are set by the caller's store.
func NewDevice(id string, in DeviceInput, now time.Time) Device {
	return Device{
		ID:              id,
		Name:            in.Name,
		Type:            in.Type,
		Location:        in.Location,
		Status:          in.Status,
		PowerUsage:      in.PowerUsage,
		InstallDate:     in.InstallDate,
		LastMaintenance: in.LastMaintenance,
		NextMaintenance: in.NextMaintenance,
		HardwareID:      in.HardwareID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Apply merges a partial update into d.
func (u DeviceUpdate) Apply(d *Device) {
	if u.Name != nil {
		d.Name = *u.Name
	}
	if u.Type != nil {
		d.Type = *u.Type
	}
	if u.Location != nil {
		d.Location = *u.Location
	}
	if u.Status != nil {
		d.Status = *u.Status
	}
	if u.PowerUsage != nil {
		d.PowerUsage = *u.PowerUsage
	}
	if u.InstallDate != nil {
		d.InstallDate = *u.InstallDate
	}
	if u.LastMaintenance != nil {
		d.LastMaintenance = *u.LastMaintenance
	}
	if u.NextMaintenance != nil {
		d.NextMaintenance = *u.NextMaintenance
	}
}

// Validate checks the fields a stored device must satisfy.
func (in DeviceInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if !in.Type.Valid() {
		return fmt.Errorf("invalid device type %q", in.Type)
	}
	if in.PowerUsage < 0 {
		return fmt.Errorf("power_usage must not be negative")
	}
	if in.Status != "" && !in.Status.Valid() {
		return fmt.Errorf("invalid device status %q", in.Status)
	}
	return nil
}

// PowerUsageRecord is one metered sample for a device.
type PowerUsageRecord struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	Usage     float64   `json:"usage"`
	Cost      float64   `json:"cost"`
	Timestamp time.Time `json:"timestamp"`
}
