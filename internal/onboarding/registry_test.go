package onboarding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/KevinKickass/EcoShareCore/internal/devices"
	"github.com/KevinKickass/EcoShareCore/internal/locations"
	"github.com/KevinKickass/EcoShareCore/internal/pairing"
	"go.uber.org/zap/zaptest"
)

func newTestRegistry(t *testing.T, ttl time.Duration) *Registry {
	t.Helper()
	logger := zaptest.NewLogger(t)
	catalog, err := locations.NewMemoryCatalog(locations.DefaultFloors())
	if err != nil {
		t.Fatalf("NewMemoryCatalog failed: %v", err)
	}
	return NewRegistry(Dependencies{
		Devices: devices.NewManager(devices.NewMemoryStore(), logger),
		Catalog: catalog,
		Pairer:  pairing.NewSimulator(0),
	}, Options{}, ttl, logger)
}

func TestRegistryLifecycle(t *testing.T) {
	r := newTestRegistry(t, time.Minute)

	ctrl := r.Create()
	if ctrl.State() != StateAwaitingBasicInfo {
		t.Errorf("new session should start at basic info, got %s", ctrl.State())
	}

	got, err := r.Get(ctrl.ID())
	if err != nil || got != ctrl {
		t.Fatalf("Get returned %v, %v", got, err)
	}
	if len(r.List()) != 1 {
		t.Errorf("expected one listed session")
	}

	if err := r.Close(ctrl.ID()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if ctrl.State() != StateIdle {
		t.Errorf("closed session not cancelled, state %s", ctrl.State())
	}
	if _, err := r.Get(ctrl.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if err := r.Close(ctrl.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second close: expected ErrSessionNotFound, got %v", err)
	}
}

func TestRegistrySweep(t *testing.T) {
	r := newTestRegistry(t, 10*time.Minute)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	stale := r.Create()
	now = now.Add(8 * time.Minute)
	fresh := r.Create()
	now = now.Add(5 * time.Minute)

	if n := r.Sweep(); n != 1 {
		t.Fatalf("expected 1 expired session, got %d", n)
	}
	if _, err := r.Get(stale.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("stale session survived sweep")
	}
	if _, err := r.Get(fresh.ID()); err != nil {
		t.Errorf("fresh session was swept: %v", err)
	}
}

func TestRegistryPairsEndToEnd(t *testing.T) {
	r := newTestRegistry(t, time.Minute)
	ctx := context.Background()

	ctrl := r.Create()
	if err := ctrl.SubmitBasicInfo(ctx, socketDraft()); err != nil {
		t.Fatalf("SubmitBasicInfo failed: %v", err)
	}
	if err := ctrl.SelectLocation(ctx, "1F-C"); err != nil {
		t.Fatalf("SelectLocation failed: %v", err)
	}
	dev, err := ctrl.AttemptPairing(ctx, "DEVICE_123456")
	if err != nil {
		t.Fatalf("AttemptPairing failed: %v", err)
	}
	if dev.Location != "1F-C" {
		t.Errorf("expected location 1F-C, got %s", dev.Location)
	}

	// A second session can no longer bind the same spot.
	other := r.Create()
	_ = other.SubmitBasicInfo(ctx, socketDraft())
	if err := other.SelectLocation(ctx, "1F-C"); !errors.Is(err, ErrInvalidSelection) {
		t.Errorf("expected ErrInvalidSelection for taken spot, got %v", err)
	}

	r.Shutdown()
	if r.Count() != 0 {
		t.Errorf("expected no sessions after shutdown")
	}
}
