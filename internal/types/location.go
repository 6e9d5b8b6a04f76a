package types

type SpotStatus string

const (
	SpotAvailable SpotStatus = "available"
	SpotOccupied  SpotStatus = "occupied"
)

type Spot struct {
	ID     string     `json:"id" yaml:"id"`
	Name   string     `json:"name" yaml:"name"`
	Status SpotStatus `json:"status" yaml:"status"`
}

func (s Spot) Available() bool {
	return s.Status == SpotAvailable
}

// Floor owns an ordered list of spots.
type Floor struct {
	Label string `json:"floor" yaml:"floor"`
	Spots []Spot `json:"spots" yaml:"spots"`
}

// AvailableCount is the number of spots still bindable on the floor.
func (f Floor) AvailableCount() int {
	n := 0
	for _, s := range f.Spots {
		if s.Available() {
			n++
		}
	}
	return n
}

// AvailableOnly returns a copy of floors keeping only bindable spots.
func AvailableOnly(floors []Floor) []Floor {
	out := make([]Floor, 0, len(floors))
	for _, f := range floors {
		spots := make([]Spot, 0, len(f.Spots))
		for _, s := range f.Spots {
			if s.Available() {
				spots = append(spots, s)
			}
		}
		out = append(out, Floor{Label: f.Label, Spots: spots})
	}
	return out
}
