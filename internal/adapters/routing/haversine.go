package routing

import (
	"context"
	"math"

	"fleet-route-planner/internal/domain"
	"fleet-route-planner/internal/ports"
)

// Average urban driving speed used to derive durations from
// great-circle distances.
const haversineSpeedKmh = 40.0

// HaversineGateway is the last-resort provider: great-circle distance
// and a fixed average speed. It never fails.
type HaversineGateway struct{}

func NewHaversineGateway() HaversineGateway { return HaversineGateway{} }

func (HaversineGateway) ID() string { return "haversine" }

func (HaversineGateway) Matrix(_ context.Context, req ports.MatrixRequest) (ports.MatrixResult, error) {
	sources := req.Sources
	if len(sources) == 0 {
		sources = allIndices(len(req.Locations))
	}
	targets := req.Destinations
	if len(targets) == 0 {
		targets = allIndices(len(req.Locations))
	}

	result := ports.MatrixResult{
		DistancesM:   make([][]int64, len(sources)),
		DurationsSec: make([][]int64, len(sources)),
	}
	for i, si := range sources {
		result.DistancesM[i] = make([]int64, len(targets))
		result.DurationsSec[i] = make([]int64, len(targets))
		for j, tj := range targets {
			meters, seconds := HaversineEstimate(req.Locations[si], req.Locations[tj])
			result.DistancesM[i][j] = meters
			result.DurationsSec[i][j] = seconds
		}
	}
	return result, nil
}

func (HaversineGateway) Geometry(_ context.Context, waypoints []domain.Coordinate) ([]domain.Coordinate, error) {
	// Straight segments are the best a geometric provider can do.
	return append([]domain.Coordinate(nil), waypoints...), nil
}

// HaversineEstimate converts a coordinate pair into (meters, seconds)
// at the fixed fallback speed. Used by the matrix builder to fill
// degraded cells.
func HaversineEstimate(a, b domain.Coordinate) (int64, int64) {
	meters := domain.HaversineM(a, b)
	seconds := meters / (haversineSpeedKmh / 3.6)
	return int64(math.Round(meters)), int64(math.Round(seconds))
}

func allIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
