package matrix

import (
	"log"
	"math"

	"fleet-route-planner/internal/domain"
)

// TrafficZone describes the congested urban disk: durations between two
// locations that both fall inside it are scaled by Multiplier.
type TrafficZone struct {
	Center     domain.Coordinate
	RadiusKm   float64
	Multiplier float64
}

// ApplyTraffic scales the durations of every pair whose endpoints both
// lie inside the urban disk. Distances are never touched. The transform
// is applied at most once per matrix: re-running on an already adjusted
// matrix is a no-op, so the multiplier can never compound.
func ApplyTraffic(m *domain.Matrix, zone TrafficZone) {
	if m.TrafficAdjusted {
		return
	}
	m.TrafficAdjusted = true

	if zone.Multiplier <= 1 {
		return
	}

	n := m.Size()
	inUrban := make([]bool, n)
	inside := 0
	for i, loc := range m.Locations {
		inUrban[i] = loc.InRadiusKm(zone.Center, zone.RadiusKm)
		if inUrban[i] {
			inside++
		}
	}
	if inside == 0 {
		return
	}

	adjusted := 0
	for i := 0; i < n; i++ {
		if !inUrban[i] {
			continue
		}
		for j := 0; j < n; j++ {
			if i == j || !inUrban[j] {
				continue
			}
			m.Durations[i][j] = int64(math.Round(float64(m.Durations[i][j]) * zone.Multiplier))
			adjusted++
		}
	}

	log.Printf("traffic adjust: %d locations in urban disk, %d durations scaled x%.2f",
		inside, adjusted, zone.Multiplier)
}
