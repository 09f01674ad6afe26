package domain

import (
	"fmt"
	"sort"
)

// VehicleClass is the closed set of vehicle types the planner knows about.
type VehicleClass string

const (
	ClassInternal VehicleClass = "internal"
	ClassCenter   VehicleClass = "center"
	ClassExternal VehicleClass = "external"
	ClassSpecial  VehicleClass = "special"
	ClassRegional VehicleClass = "regional"
)

// ParseVehicleClass validates a class tag against the closed set.
func ParseVehicleClass(s string) (VehicleClass, error) {
	switch VehicleClass(s) {
	case ClassInternal, ClassCenter, ClassExternal, ClassSpecial, ClassRegional:
		return VehicleClass(s), nil
	}
	return "", fmt.Errorf("unknown vehicle class %q", s)
}

// VehicleSpec describes one logical vehicle type. All units of a spec
// share the same limits.
type VehicleSpec struct {
	Class              VehicleClass
	Capacity           int
	Count              int
	MaxDistanceKm      int // 0 = no limit
	MaxTimeHours       int
	ServiceTimeMinutes int
	MaxStops           int // 0 = no limit
	StartTimeMinutes   int // minutes from midnight
	Enabled            bool
	StartDepot         Coordinate
	TSPOrigin          Coordinate // zero value = StartDepot
}

// EffectiveTSPOrigin resolves the TSP origin, defaulting to the start depot.
func (v VehicleSpec) EffectiveTSPOrigin() Coordinate {
	if (v.TSPOrigin == Coordinate{}) {
		return v.StartDepot
	}
	return v.TSPOrigin
}

func (v VehicleSpec) Validate() error {
	if _, err := ParseVehicleClass(string(v.Class)); err != nil {
		return err
	}
	if v.Capacity <= 0 {
		return fmt.Errorf("vehicle %s: capacity must be positive, got %d", v.Class, v.Capacity)
	}
	if v.Count < 0 {
		return fmt.Errorf("vehicle %s: count must not be negative, got %d", v.Class, v.Count)
	}
	if !v.StartDepot.Valid() {
		return fmt.Errorf("vehicle %s: invalid start depot", v.Class)
	}
	return nil
}

// Fleet is the full vehicle specification for a run.
type Fleet []VehicleSpec

// Enabled returns the specs that participate in planning.
func (f Fleet) Enabled() Fleet {
	out := make(Fleet, 0, len(f))
	for _, v := range f {
		if v.Enabled && v.Count > 0 {
			out = append(out, v)
		}
	}
	return out
}

// TotalCapacity is the sum of capacity x count over enabled specs.
func (f Fleet) TotalCapacity() int {
	total := 0
	for _, v := range f.Enabled() {
		total += v.Capacity * v.Count
	}
	return total
}

// MaxSingleCapacity is the largest single-vehicle capacity among enabled specs.
func (f Fleet) MaxSingleCapacity() int {
	max := 0
	for _, v := range f.Enabled() {
		if v.Capacity > max {
			max = v.Capacity
		}
	}
	return max
}

// BuildDepotSet derives the ordered list of unique depot coordinates from
// the central depot and all enabled vehicles' start depots: the central
// depot first, then the other start depots in key order. Matrix indices
// 0..len-1 are reserved for these depots, in this order.
func BuildDepotSet(central Coordinate, fleet Fleet) []Coordinate {
	seen := map[string]Coordinate{central.Key(): central}
	for _, v := range fleet.Enabled() {
		seen[v.StartDepot.Key()] = v.StartDepot
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		if k != central.Key() {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	depots := make([]Coordinate, 0, len(seen))
	depots = append(depots, central)
	for _, k := range keys {
		depots = append(depots, seen[k])
	}
	return depots
}

// DepotIndex finds the depot-set index for a coordinate, falling back to 0
// (the central depot position) when the coordinate is not a known depot.
func DepotIndex(depots []Coordinate, c Coordinate) int {
	key := c.Key()
	for i, d := range depots {
		if d.Key() == key {
			return i
		}
	}
	return 0
}
