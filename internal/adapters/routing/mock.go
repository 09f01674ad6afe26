package routing

import (
	"context"
	"sync/atomic"

	"fleet-route-planner/internal/domain"
	"fleet-route-planner/internal/ports"
)

// MockGateway is a deterministic in-memory provider for tests. It serves
// haversine-derived metrics scaled by Factor, so test expectations stay
// reproducible without canned grids. Every cell is computed; there is no
// per-pair override.
type MockGateway struct {
	Name   string
	Factor float64 // multiplier over haversine distances and durations, default 1.0

	// Fail, when set, is returned by every Matrix call.
	Fail error

	// MaxLocations, when positive, makes larger requests fail with
	// ErrRequestTooLarge (exercises the builder's re-chunking path).
	MaxLocations int

	overrides map[string]ports.MatrixResult
	calls     atomic.Int64
}

func NewMockGateway() *MockGateway {
	return &MockGateway{Name: "mock", Factor: 1.0}
}

func (g *MockGateway) ID() string {
	if g.Name == "" {
		return "mock"
	}
	return g.Name
}

// Calls reports how many Matrix requests the mock served. Used by the
// cache round-trip tests to prove the second build issues none.
func (g *MockGateway) Calls() int64 { return g.calls.Load() }

func (g *MockGateway) Matrix(_ context.Context, req ports.MatrixRequest) (ports.MatrixResult, error) {
	g.calls.Add(1)

	if g.Fail != nil {
		return ports.MatrixResult{}, g.Fail
	}
	if g.MaxLocations > 0 && len(req.Locations) > g.MaxLocations {
		return ports.MatrixResult{}, ports.ErrRequestTooLarge
	}

	factor := g.Factor
	if factor == 0 {
		factor = 1.0
	}

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
			result.DistancesM[i][j] = int64(float64(meters) * factor)
			result.DurationsSec[i][j] = int64(float64(seconds) * factor)
		}
	}
	return result, nil
}

func (g *MockGateway) Geometry(_ context.Context, waypoints []domain.Coordinate) ([]domain.Coordinate, error) {
	return append([]domain.Coordinate(nil), waypoints...), nil
}
