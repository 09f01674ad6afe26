package matrix

import (
	"testing"

	"fleet-route-planner/internal/domain"
)

func trafficTestMatrix() *domain.Matrix {
	// Two locations near the city center, one far outside.
	locs := []domain.Coordinate{
		{Lat: 42.6977, Lon: 23.3219},
		{Lat: 42.7050, Lon: 23.3300},
		{Lat: 43.2100, Lon: 23.5500},
	}
	m := domain.NewMatrix(locs)
	for i := range locs {
		for j := range locs {
			if i == j {
				m.Distances[i][j] = 0
				m.Durations[i][j] = 0
				continue
			}
			m.Distances[i][j] = int64(1000 * (i + j))
			m.Durations[i][j] = int64(100 * (i + j))
		}
	}
	return m
}

func sofiaZone() TrafficZone {
	return TrafficZone{
		Center:     domain.Coordinate{Lat: 42.6977, Lon: 23.3219},
		RadiusKm:   10,
		Multiplier: 1.6,
	}
}

func TestApplyTrafficScalesUrbanPairsOnly(t *testing.T) {
	m := trafficTestMatrix()
	ApplyTraffic(m, sofiaZone())

	// Both endpoints urban: scaled.
	if got := m.Dur(0, 1); got != 160 {
		t.Fatalf("urban pair duration = %d, want 160", got)
	}
	if got := m.Dur(1, 0); got != 160 {
		t.Fatalf("urban pair reverse duration = %d, want 160", got)
	}
	// One endpoint outside: untouched.
	if got := m.Dur(0, 2); got != 200 {
		t.Fatalf("mixed pair duration = %d, want 200", got)
	}
	// Distances never change.
	if got := m.Dist(0, 1); got != 1000 {
		t.Fatalf("distance changed to %d", got)
	}
}

// Applying the adjuster twice must equal applying it once.
func TestApplyTrafficIdempotent(t *testing.T) {
	once := trafficTestMatrix()
	ApplyTraffic(once, sofiaZone())

	twice := trafficTestMatrix()
	ApplyTraffic(twice, sofiaZone())
	ApplyTraffic(twice, sofiaZone())

	for i := 0; i < once.Size(); i++ {
		for j := 0; j < once.Size(); j++ {
			if once.Dur(i, j) != twice.Dur(i, j) {
				t.Fatalf("duration (%d,%d) compounded: %d vs %d", i, j, once.Dur(i, j), twice.Dur(i, j))
			}
		}
	}
}

func TestApplyTrafficNoUrbanLocations(t *testing.T) {
	m := trafficTestMatrix()
	zone := sofiaZone()
	zone.Center = domain.Coordinate{Lat: 0, Lon: 0}

	ApplyTraffic(m, zone)
	if m.Dur(0, 1) != 100 {
		t.Fatalf("durations must not change when nothing is inside the disk")
	}
}
