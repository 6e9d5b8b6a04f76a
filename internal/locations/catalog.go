package locations

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/KevinKickass/EcoShareCore/internal/types"
	"gopkg.in/yaml.v3"
)

var (
	ErrFloorNotFound   = errors.New("floor not found")
	ErrFloorExists     = errors.New("floor already exists")
	ErrSpotNotFound    = errors.New("spot not found")
	ErrSpotExists      = errors.New("spot already exists")
	ErrSpotUnavailable = errors.New("spot is not available")
	ErrInUse           = errors.New("location is occupied")
)

// Catalog is the floors and spots collection. The onboarding workflow only
// reads it and claims spots; the rest is the administrative surface.
type Catalog interface {
	Floors(ctx context.Context) ([]types.Floor, error)
	Spot(ctx context.Context, id string) (types.Spot, error)

	// Occupy marks an available spot occupied. It fails with
	// ErrSpotUnavailable if the spot is already occupied.
	Occupy(ctx context.Context, id string) error
	Release(ctx context.Context, id string) error

	AddFloor(ctx context.Context, label string) error
	DeleteFloor(ctx context.Context, label string) error
	AddSpot(ctx context.Context, floor string, spot types.Spot) (types.Spot, error)
	RenameSpot(ctx context.Context, id, name string) error
	DeleteSpot(ctx context.Context, id string) error
}

// DefaultFloors is the catalog used when no seed file is configured.
func DefaultFloors() []types.Floor {
	return []types.Floor{
		{
			Label: "1F",
			Spots: []types.Spot{
				{ID: "1F-A", Name: "Front Desk", Status: types.SpotOccupied},
				{ID: "1F-B", Name: "Dining Area", Status: types.SpotOccupied},
				{ID: "1F-C", Name: "Outdoor Seating", Status: types.SpotAvailable},
				{ID: "1F-D", Name: "Private Room 1", Status: types.SpotAvailable},
				{ID: "1F-E", Name: "Private Room 2", Status: types.SpotOccupied},
			},
		},
		{
			Label: "2F",
			Spots: []types.Spot{
				{ID: "2F-A", Name: "Meeting Room", Status: types.SpotAvailable},
				{ID: "2F-B", Name: "Lounge", Status: types.SpotAvailable},
				{ID: "2F-C", Name: "Office Area", Status: types.SpotOccupied},
			},
		},
		{
			Label: "B1",
			Spots: []types.Spot{
				{ID: "B1-A", Name: "Warehouse", Status: types.SpotAvailable},
				{ID: "B1-B", Name: "Storage Room", Status: types.SpotOccupied},
				{ID: "B1-C", Name: "Staff Lounge", Status: types.SpotAvailable},
			},
		},
	}
}

type seedFile struct {
	Floors []types.Floor `yaml:"floors"`
}

// LoadSeed reads floors from a YAML file. An empty path yields DefaultFloors.
func LoadSeed(path string) ([]types.Floor, error) {
	if path == "" {
		return DefaultFloors(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog seed: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse catalog seed %s: %w", path, err)
	}

	if err := validateFloors(seed.Floors); err != nil {
		return nil, fmt.Errorf("invalid catalog seed %s: %w", path, err)
	}

	return seed.Floors, nil
}

func validateFloors(floors []types.Floor) error {
	labels := make(map[string]bool)
	ids := make(map[string]bool)

	for i := range floors {
		f := &floors[i]
		if f.Label == "" {
			return fmt.Errorf("floor %d has no label", i)
		}
		if labels[f.Label] {
			return fmt.Errorf("%w: %s", ErrFloorExists, f.Label)
		}
		labels[f.Label] = true

		for j := range f.Spots {
			s := &f.Spots[j]
			if s.ID == "" {
				s.ID = NextSpotID(f.Label, ids)
			}
			if ids[s.ID] {
				return fmt.Errorf("%w: %s", ErrSpotExists, s.ID)
			}
			ids[s.ID] = true

			switch s.Status {
			case "":
				s.Status = types.SpotAvailable
			case types.SpotAvailable, types.SpotOccupied:
			default:
				return fmt.Errorf("spot %s has invalid status %q", s.ID, s.Status)
			}
		}
	}
	return nil
}

// NextSpotID returns the first "<floor>-<letter>" id not present in taken,
// falling back to a numeric suffix once letters run out.
func NextSpotID(floor string, taken map[string]bool) string {
	for c := 'A'; c <= 'Z'; c++ {
		id := fmt.Sprintf("%s-%c", floor, c)
		if !taken[id] {
			return id
		}
	}
	for n := 1; ; n++ {
		id := fmt.Sprintf("%s-%d", floor, n)
		if !taken[id] {
			return id
		}
	}
}
