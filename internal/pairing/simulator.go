package pairing

import (
	"context"
	"strings"
	"time"
)

const (
	DefaultLatency     = 2 * time.Second
	DefaultScanLatency = 1 * time.Second
	DefaultScanResult  = "DEVICE_123456"
)

// Simulator stands in for a real handshake. Every attempt takes Latency and
// succeeds unless the identifier is listed in RejectIDs or carries RejectPrefix.
type Simulator struct {
	Latency      time.Duration
	ScanLatency  time.Duration
	ScanResult   string
	RejectIDs    map[string]bool
	RejectPrefix string
}

func NewSimulator(latency time.Duration) *Simulator {
	return &Simulator{
		Latency:     latency,
		ScanLatency: DefaultScanLatency,
		ScanResult:  DefaultScanResult,
		RejectIDs:   make(map[string]bool),
	}
}

// Reject marks ids that should always fail to pair.
func (s *Simulator) Reject(ids ...string) {
	for _, id := range ids {
		s.RejectIDs[id] = true
	}
}

func (s *Simulator) Pair(ctx context.Context, deviceID string) (Result, error) {
	if err := wait(ctx, s.Latency); err != nil {
		return Result{}, err
	}

	if s.RejectIDs[deviceID] || (s.RejectPrefix != "" && strings.HasPrefix(deviceID, s.RejectPrefix)) {
		return Result{}, &Failure{DeviceID: deviceID, Reason: "device unreachable"}
	}

	return Result{ConfirmedID: deviceID}, nil
}

func (s *Simulator) Scan(ctx context.Context) (string, error) {
	if err := wait(ctx, s.ScanLatency); err != nil {
		return "", err
	}
	return s.ScanResult, nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
