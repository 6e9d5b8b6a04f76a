package devices

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/KevinKickass/EcoShareCore/internal/locations"
	"github.com/KevinKickass/EcoShareCore/internal/types"
	"go.uber.org/zap/zaptest"
)

type recordingNotifier struct {
	events []string
}

func (r *recordingNotifier) DeviceChanged(event string, device types.Device) {
	r.events = append(r.events, event+":"+device.Name)
}

func newTestManager(t *testing.T) (*Manager, *recordingNotifier) {
	t.Helper()
	m := NewManager(NewMemoryStore(), zaptest.NewLogger(t))
	n := &recordingNotifier{}
	m.SetNotifier(n)
	return m, n
}

func socketInput(name string) types.DeviceInput {
	return types.DeviceInput{
		DeviceDraft: types.DeviceDraft{
			Name:        name,
			Type:        types.DeviceTypeSocket,
			PowerUsage:  10,
			InstallDate: types.MustParseDate("2024-01-10"),
		},
		Location: "2F-B",
	}
}

func TestManagerCreateDefaultsStatus(t *testing.T) {
	m, n := newTestManager(t)
	ctx := context.Background()

	d, err := m.Create(ctx, socketInput("Socket A"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if d.ID == "" {
		t.Fatal("expected an id")
	}
	if d.Status != types.DeviceStatusInactive {
		t.Fatalf("expected inactive, got %s", d.Status)
	}

	got, err := m.Get(ctx, d.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != "Socket A" || got.Location != "2F-B" {
		t.Fatalf("unexpected device %+v", got)
	}

	if len(n.events) != 1 || n.events[0] != EventCreated+":Socket A" {
		t.Fatalf("unexpected events %v", n.events)
	}
}

func TestManagerCreateInvalid(t *testing.T) {
	m, n := newTestManager(t)

	tests := []struct {
		name string
		in   types.DeviceInput
	}{
		{"empty name", socketInput("  ")},
		{"bad type", func() types.DeviceInput { in := socketInput("x"); in.Type = "toaster"; return in }()},
		{"negative power", func() types.DeviceInput { in := socketInput("x"); in.PowerUsage = -1; return in }()},
		{"bad status", func() types.DeviceInput { in := socketInput("x"); in.Status = "broken"; return in }()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Create(context.Background(), tt.in); !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}

	if len(n.events) != 0 {
		t.Fatalf("invalid creates must not notify, got %v", n.events)
	}
}

func TestManagerUpdateAndDelete(t *testing.T) {
	m, n := newTestManager(t)
	ctx := context.Background()

	d, _ := m.Create(ctx, socketInput("Socket A"))

	name := "Socket B"
	updated, err := m.Update(ctx, d.ID, types.DeviceUpdate{Name: &name})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Name != "Socket B" || updated.Location != "2F-B" {
		t.Fatalf("partial update lost fields: %+v", updated)
	}

	if _, err := m.UpdateStatus(ctx, d.ID, "bogus"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}

	active, err := m.UpdateStatus(ctx, d.ID, types.DeviceStatusActive)
	if err != nil || active.Status != types.DeviceStatusActive {
		t.Fatalf("UpdateStatus: %+v %v", active, err)
	}

	if err := m.Delete(ctx, d.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := m.Get(ctx, d.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := m.Delete(ctx, d.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}

	want := []string{
		EventCreated + ":Socket A",
		EventUpdated + ":Socket B",
		EventUpdated + ":Socket B",
		EventDeleted + ":Socket B",
	}
	if len(n.events) != len(want) {
		t.Fatalf("expected %v, got %v", want, n.events)
	}
	for i := range want {
		if n.events[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], n.events[i])
		}
	}
}

func TestManagerListFilter(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	m.Create(ctx, socketInput("Kitchen Socket"))
	sensor := socketInput("Hall Sensor")
	sensor.Type = types.DeviceTypeSensor
	sensor.Status = types.DeviceStatusActive
	sensor.Location = "1F-C"
	m.Create(ctx, sensor)

	all, _ := m.List(ctx, types.DeviceFilter{})
	if len(all) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(all))
	}

	tests := []struct {
		filter types.DeviceFilter
		want   int
	}{
		{types.DeviceFilter{Query: "KITCHEN"}, 1},
		{types.DeviceFilter{Query: "1f-c"}, 1},
		{types.DeviceFilter{Query: "sensor"}, 1},
		{types.DeviceFilter{Status: types.DeviceStatusActive}, 1},
		{types.DeviceFilter{Query: "socket", Status: types.DeviceStatusActive}, 0},
	}
	for _, tt := range tests {
		got, err := m.List(ctx, tt.filter)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(got) != tt.want {
			t.Errorf("filter %+v: expected %d, got %d", tt.filter, tt.want, len(got))
		}
	}
}

func TestManagerUsage(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	a, _ := m.Create(ctx, socketInput("A"))
	b, _ := m.Create(ctx, socketInput("B"))

	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	samples := []types.PowerUsageRecord{
		{DeviceID: a.ID, Usage: 1, Cost: 2, Timestamp: day},
		{DeviceID: a.ID, Usage: 2, Cost: 4, Timestamp: day.Add(24 * time.Hour)},
		{DeviceID: b.ID, Usage: 4, Cost: 8, Timestamp: day.Add(48 * time.Hour)},
	}
	for _, rec := range samples {
		if _, err := m.RecordUsage(ctx, rec); err != nil {
			t.Fatalf("RecordUsage failed: %v", err)
		}
	}

	if _, err := m.RecordUsage(ctx, types.PowerUsageRecord{DeviceID: "missing", Usage: 1}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := m.RecordUsage(ctx, types.PowerUsageRecord{DeviceID: a.ID, Usage: -1}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}

	records, err := m.Usage(ctx, a.ID, time.Time{}, time.Time{})
	if err != nil || len(records) != 2 {
		t.Fatalf("expected 2 records, got %d (%v)", len(records), err)
	}

	records, _ = m.Usage(ctx, a.ID, day.Add(time.Hour), time.Time{})
	if len(records) != 1 || records[0].Usage != 2 {
		t.Fatalf("expected one late record, got %+v", records)
	}

	if _, err := m.Usage(ctx, a.ID, day, day.Add(-time.Hour)); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for reversed range, got %v", err)
	}

	total, _ := m.TotalUsage(ctx, time.Time{}, time.Time{})
	if total != 7 {
		t.Fatalf("expected total 7, got %v", total)
	}
	total, _ = m.TotalUsage(ctx, time.Time{}, day.Add(24*time.Hour))
	if total != 3 {
		t.Fatalf("expected bounded total 3, got %v", total)
	}

	// Deleting a device drops its samples.
	m.Delete(ctx, a.ID)
	total, _ = m.TotalUsage(ctx, time.Time{}, time.Time{})
	if total != 4 {
		t.Fatalf("expected total 4 after delete, got %v", total)
	}
}

type failingStore struct {
	*MemoryStore
}

func (failingStore) GetDevice(ctx context.Context, id string) (types.Device, error) {
	return types.Device{}, errors.New("connection reset")
}

func TestManagerWrapsStoreFailures(t *testing.T) {
	m := NewManager(failingStore{NewMemoryStore()}, zaptest.NewLogger(t))

	_, err := m.Get(context.Background(), "x")
	if !errors.Is(err, ErrRequestFailed) {
		t.Fatalf("expected ErrRequestFailed, got %v", err)
	}
}

func TestSeededMemoryStore(t *testing.T) {
	s := NewSeededMemoryStore()
	list, err := s.ListDevices(context.Background(), types.DeviceFilter{})
	if err != nil {
		t.Fatalf("ListDevices failed: %v", err)
	}
	if len(list) != len(SeedDevices()) {
		t.Fatalf("expected %d seeded devices, got %d", len(SeedDevices()), len(list))
	}
}

func TestManagerTracksSpots(t *testing.T) {
	ctx := context.Background()
	catalog, err := locations.NewMemoryCatalog(locations.DefaultFloors())
	if err != nil {
		t.Fatalf("NewMemoryCatalog failed: %v", err)
	}
	m, _ := newTestManager(t)
	m.SetSpotTracker(catalog)

	spotStatus := func(id string) types.SpotStatus {
		t.Helper()
		s, err := catalog.Spot(ctx, id)
		if err != nil {
			t.Fatalf("Spot(%s) failed: %v", id, err)
		}
		return s.Status
	}

	// Onboarding claims the spot before the device is created.
	if err := catalog.Occupy(ctx, "2F-B"); err != nil {
		t.Fatalf("Occupy failed: %v", err)
	}
	d, err := m.Create(ctx, socketInput("Socket A"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	moved := "2F-A"
	if _, err := m.Update(ctx, d.ID, types.DeviceUpdate{Location: &moved}); err != nil {
		t.Fatalf("move failed: %v", err)
	}
	if spotStatus("2F-A") != types.SpotOccupied || spotStatus("2F-B") != types.SpotAvailable {
		t.Fatalf("move did not shift the claim: 2F-A=%s 2F-B=%s", spotStatus("2F-A"), spotStatus("2F-B"))
	}

	taken := "1F-A"
	_, err = m.Update(ctx, d.ID, types.DeviceUpdate{Location: &taken})
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid moving onto an occupied spot, got %v", err)
	}
	if got, _ := m.Get(ctx, d.ID); got.Location != "2F-A" {
		t.Fatalf("rejected move changed location to %s", got.Location)
	}
	if spotStatus("2F-A") != types.SpotOccupied {
		t.Fatal("rejected move released the current spot")
	}

	if err := m.Delete(ctx, d.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if spotStatus("2F-A") != types.SpotAvailable {
		t.Fatal("deleting the device left its spot occupied")
	}
}

func TestManagerDeleteWithUnknownLocation(t *testing.T) {
	ctx := context.Background()
	catalog, err := locations.NewMemoryCatalog(locations.DefaultFloors())
	if err != nil {
		t.Fatalf("NewMemoryCatalog failed: %v", err)
	}
	m, _ := newTestManager(t)
	m.SetSpotTracker(catalog)

	in := socketInput("Garage Socket")
	in.Location = "garage"
	d, err := m.Create(ctx, in)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := m.Delete(ctx, d.ID); err != nil {
		t.Fatalf("Delete should ignore a location outside the catalog, got %v", err)
	}
}
