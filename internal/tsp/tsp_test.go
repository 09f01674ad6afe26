package tsp

import (
	"testing"
	"time"

	"fleet-route-planner/internal/domain"
)

// A matrix over one depot and four customers laid out on a rectangle, so
// a crossing visit order is measurably worse than the perimeter order.
func rectangleMatrix() (*domain.Matrix, domain.Coordinate) {
	origin := domain.Coordinate{Lat: 42.6900, Lon: 23.3100}
	locs := []domain.Coordinate{
		origin,
		{Lat: 42.7000, Lon: 23.3100}, // node 1: NW
		{Lat: 42.7000, Lon: 23.3300}, // node 2: NE
		{Lat: 42.6950, Lon: 23.3300}, // node 3: SE
		{Lat: 42.6950, Lon: 23.3100}, // node 4: SW
	}
	m := domain.NewMatrix(locs)
	for i := range locs {
		for j := range locs {
			if i == j {
				m.Distances[i][j] = 0
				m.Durations[i][j] = 0
				continue
			}
			meters := int64(domain.HaversineM(locs[i], locs[j]))
			m.Distances[i][j] = meters
			m.Durations[i][j] = meters / 11
		}
	}
	return m, origin
}

func TestOptimizeImprovesCrossingTour(t *testing.T) {
	m, origin := rectangleMatrix()

	crossing := []int{1, 3, 2, 4}
	before := TourLength(origin, crossing, m)

	order := Optimize(origin, crossing, m, time.Second)
	after := TourLength(origin, order, m)

	if after >= before {
		t.Fatalf("optimized tour %d not shorter than crossing tour %d", after, before)
	}

	// Same customer set, just reordered.
	seen := map[int]bool{}
	for _, n := range order {
		seen[n] = true
	}
	for _, n := range crossing {
		if !seen[n] {
			t.Fatalf("customer node %d lost during optimization", n)
		}
	}
}

func TestOptimizeOriginOutsideMatrix(t *testing.T) {
	m, _ := rectangleMatrix()

	// An origin that is not a matrix location falls back to haversine
	// for its arcs.
	foreign := domain.Coordinate{Lat: 42.6800, Lon: 23.3000}
	order := Optimize(foreign, []int{1, 2, 3, 4}, m, time.Second)
	if len(order) != 4 {
		t.Fatalf("order lost nodes: %v", order)
	}
	if l := TourLength(foreign, order, m); l <= 0 {
		t.Fatalf("tour length must be positive, got %d", l)
	}
}

func TestOptimizeShortSequences(t *testing.T) {
	m, origin := rectangleMatrix()

	if got := Optimize(origin, []int{2}, m, time.Second); len(got) != 1 || got[0] != 2 {
		t.Fatalf("single-node order must be unchanged, got %v", got)
	}
	if got := Optimize(origin, nil, m, time.Second); len(got) != 0 {
		t.Fatalf("empty order must stay empty, got %v", got)
	}
}
