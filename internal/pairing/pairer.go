package pairing

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDeviceID rejects identifiers that cannot be addressed on the
// device transport.
var ErrInvalidDeviceID = errors.New("invalid device id")

// Pairer performs the discovery and handshake with a physical device.
// Pair returns a Result on success, a *Failure when the device refused or
// was unreachable, or ctx.Err() when the caller stopped waiting.
type Pairer interface {
	Pair(ctx context.Context, deviceID string) (Result, error)
}

// Scanner reads a device identifier, e.g. from a QR code.
type Scanner interface {
	Scan(ctx context.Context) (string, error)
}

type Result struct {
	ConfirmedID string `json:"confirmed_id"`
}

type Failure struct {
	DeviceID string
	Reason   string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("pairing %s failed: %s", f.DeviceID, f.Reason)
}

// ValidateDeviceID checks that id can be used as a single MQTT topic level.
func ValidateDeviceID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidDeviceID)
	}
	if i := strings.IndexAny(id, "/+#\x00"); i >= 0 {
		return fmt.Errorf("%w: %q contains %q", ErrInvalidDeviceID, id, id[i])
	}
	return nil
}
