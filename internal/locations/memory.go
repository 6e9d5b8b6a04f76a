package locations

import (
	"context"
	"fmt"
	"sync"

	"github.com/KevinKickass/EcoShareCore/internal/types"
)

type MemoryCatalog struct {
	mu     sync.RWMutex
	floors []types.Floor
}

func NewMemoryCatalog(floors []types.Floor) (*MemoryCatalog, error) {
	copied := cloneFloors(floors)
	if err := validateFloors(copied); err != nil {
		return nil, err
	}
	return &MemoryCatalog{floors: copied}, nil
}

func (c *MemoryCatalog) Floors(ctx context.Context) ([]types.Floor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneFloors(c.floors), nil
}

func (c *MemoryCatalog) Spot(ctx context.Context, id string) (types.Spot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	fi, si := c.find(id)
	if fi < 0 {
		return types.Spot{}, fmt.Errorf("%w: %s", ErrSpotNotFound, id)
	}
	return c.floors[fi].Spots[si], nil
}

func (c *MemoryCatalog) Occupy(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	fi, si := c.find(id)
	if fi < 0 {
		return fmt.Errorf("%w: %s", ErrSpotNotFound, id)
	}
	spot := &c.floors[fi].Spots[si]
	if !spot.Available() {
		return fmt.Errorf("%w: %s", ErrSpotUnavailable, id)
	}
	spot.Status = types.SpotOccupied
	return nil
}

func (c *MemoryCatalog) Release(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	fi, si := c.find(id)
	if fi < 0 {
		return fmt.Errorf("%w: %s", ErrSpotNotFound, id)
	}
	c.floors[fi].Spots[si].Status = types.SpotAvailable
	return nil
}

func (c *MemoryCatalog) AddFloor(ctx context.Context, label string) error {
	if label == "" {
		return fmt.Errorf("floor label is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.floorIndex(label) >= 0 {
		return fmt.Errorf("%w: %s", ErrFloorExists, label)
	}
	c.floors = append(c.floors, types.Floor{Label: label, Spots: []types.Spot{}})
	return nil
}

func (c *MemoryCatalog) DeleteFloor(ctx context.Context, label string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	fi := c.floorIndex(label)
	if fi < 0 {
		return fmt.Errorf("%w: %s", ErrFloorNotFound, label)
	}
	if c.floors[fi].AvailableCount() != len(c.floors[fi].Spots) {
		return fmt.Errorf("%w: floor %s has occupied spots", ErrInUse, label)
	}
	c.floors = append(c.floors[:fi], c.floors[fi+1:]...)
	return nil
}

func (c *MemoryCatalog) AddSpot(ctx context.Context, floor string, spot types.Spot) (types.Spot, error) {
	if spot.Name == "" {
		return types.Spot{}, fmt.Errorf("spot name is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	fi := c.floorIndex(floor)
	if fi < 0 {
		return types.Spot{}, fmt.Errorf("%w: %s", ErrFloorNotFound, floor)
	}

	taken := c.spotIDs()
	if spot.ID == "" {
		spot.ID = NextSpotID(floor, taken)
	} else if taken[spot.ID] {
		return types.Spot{}, fmt.Errorf("%w: %s", ErrSpotExists, spot.ID)
	}
	if spot.Status == "" {
		spot.Status = types.SpotAvailable
	}

	c.floors[fi].Spots = append(c.floors[fi].Spots, spot)
	return spot, nil
}

func (c *MemoryCatalog) RenameSpot(ctx context.Context, id, name string) error {
	if name == "" {
		return fmt.Errorf("spot name is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	fi, si := c.find(id)
	if fi < 0 {
		return fmt.Errorf("%w: %s", ErrSpotNotFound, id)
	}
	c.floors[fi].Spots[si].Name = name
	return nil
}

func (c *MemoryCatalog) DeleteSpot(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	fi, si := c.find(id)
	if fi < 0 {
		return fmt.Errorf("%w: %s", ErrSpotNotFound, id)
	}
	spots := c.floors[fi].Spots
	if !spots[si].Available() {
		return fmt.Errorf("%w: spot %s", ErrInUse, id)
	}
	c.floors[fi].Spots = append(spots[:si], spots[si+1:]...)
	return nil
}

func (c *MemoryCatalog) find(id string) (int, int) {
	for fi, f := range c.floors {
		for si, s := range f.Spots {
			if s.ID == id {
				return fi, si
			}
		}
	}
	return -1, -1
}

func (c *MemoryCatalog) floorIndex(label string) int {
	for i, f := range c.floors {
		if f.Label == label {
			return i
		}
	}
	return -1
}

func (c *MemoryCatalog) spotIDs() map[string]bool {
	ids := make(map[string]bool)
	for _, f := range c.floors {
		for _, s := range f.Spots {
			ids[s.ID] = true
		}
	}
	return ids
}

func cloneFloors(floors []types.Floor) []types.Floor {
	out := make([]types.Floor, len(floors))
	for i, f := range floors {
		out[i] = types.Floor{Label: f.Label, Spots: append([]types.Spot{}, f.Spots...)}
	}
	return out
}
