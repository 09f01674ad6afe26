// Package allocator decides which customers can be served by the fleet
// at all. Customers that cannot fit stay behind as "warehouse" orders
// so the solver never wastes search time on them.
package allocator

import (
	"log"
	"sort"

	"fleet-route-planner/internal/domain"
)

// Config carries the admission policy knobs.
type Config struct {
	// MaxCustomerVolume is the per-customer policy ceiling: anything
	// larger is routed to the warehouse even if a vehicle could carry it.
	MaxCustomerVolume float64

	// CapacityTolerance scales the fleet's total capacity before the
	// running-total admission check. 1.0 uses the full capacity.
	CapacityTolerance float64

	// CenterZone, when RadiusKm > 0, collects serviceable customers inside
	// the disk into Allocation.CenterZone. The solver derives its own zone
	// flags and does not read this subset.
	CenterZoneCenter   domain.Coordinate
	CenterZoneRadiusKm float64
}

// Allocation partitions the customer list and carries the utilization
// summary.
type Allocation struct {
	Serviceable []domain.Customer
	Warehouse   []domain.Customer

	TotalCapacity   int
	ServedVolume    float64
	WarehouseVolume float64
	Utilization     float64

	// CenterZone is the subset of serviceable customers inside the
	// configured center disk.
	CenterZone []domain.Customer
}

// Allocate partitions customers into serviceable-by-fleet and warehouse
// sets.
//
// Customers are walked sorted by (volume ascending, distance from the
// central depot descending, id ascending): small-and-far first gives the
// router the densest candidate pool while large outliers are refused up
// front. Admission is three-tiered: a customer bigger than the largest
// single vehicle can never fit; a customer above the policy ceiling is
// refused by rule; otherwise it is admitted while the running total
// stays within the (tolerance-scaled) fleet capacity.
func Allocate(customers []domain.Customer, fleet domain.Fleet, centralDepot domain.Coordinate, cfg Config) Allocation {
	tolerance := cfg.CapacityTolerance
	if tolerance <= 0 {
		tolerance = 1.0
	}

	totalCapacity := fleet.TotalCapacity()
	maxSingle := fleet.MaxSingleCapacity()

	alloc := Allocation{TotalCapacity: totalCapacity}

	if maxSingle <= 0 {
		// No usable vehicles: everything is a warehouse order.
		alloc.Warehouse = append([]domain.Customer(nil), customers...)
		alloc.WarehouseVolume = domain.TotalVolume(customers)
		return alloc
	}

	sorted := sortCustomers(customers, centralDepot)

	budget := float64(totalCapacity) * tolerance
	used := 0.0

	for _, c := range sorted {
		switch {
		case c.Volume > float64(maxSingle):
			log.Printf("allocator: customer %s volume %.2f exceeds largest vehicle capacity %d, sending to warehouse",
				c.ID, c.Volume, maxSingle)
			alloc.Warehouse = append(alloc.Warehouse, c)
		case cfg.MaxCustomerVolume > 0 && c.Volume > cfg.MaxCustomerVolume:
			log.Printf("allocator: customer %s volume %.2f above policy ceiling %.2f, sending to warehouse",
				c.ID, c.Volume, cfg.MaxCustomerVolume)
			alloc.Warehouse = append(alloc.Warehouse, c)
		case used+c.Volume <= budget:
			alloc.Serviceable = append(alloc.Serviceable, c)
			used += c.Volume
		default:
			alloc.Warehouse = append(alloc.Warehouse, c)
		}
	}

	alloc.ServedVolume = used
	alloc.WarehouseVolume = domain.TotalVolume(alloc.Warehouse)
	if totalCapacity > 0 {
		alloc.Utilization = used / float64(totalCapacity)
	}

	if cfg.CenterZoneRadiusKm > 0 {
		for _, c := range alloc.Serviceable {
			if c.Coords.InRadiusKm(cfg.CenterZoneCenter, cfg.CenterZoneRadiusKm) {
				alloc.CenterZone = append(alloc.CenterZone, c)
			}
		}
	}

	log.Printf("allocator: %d serviceable, %d warehouse, utilization %.1f%%",
		len(alloc.Serviceable), len(alloc.Warehouse), alloc.Utilization*100)

	return alloc
}

// sortCustomers orders by volume ascending, then distance from the
// central depot descending, then id ascending for determinism.
func sortCustomers(customers []domain.Customer, centralDepot domain.Coordinate) []domain.Customer {
	sorted := append([]domain.Customer(nil), customers...)
	dist := make(map[string]float64, len(sorted))
	for _, c := range sorted {
		dist[c.ID] = domain.HaversineKm(c.Coords, centralDepot)
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Volume != b.Volume {
			return a.Volume < b.Volume
		}
		if dist[a.ID] != dist[b.ID] {
			return dist[a.ID] > dist[b.ID]
		}
		return a.ID < b.ID
	})
	return sorted
}
