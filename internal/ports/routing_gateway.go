package ports

import (
	"context"

	"fleet-route-planner/internal/domain"
)

// MatrixRequest asks a routing provider for distances and durations
// between locations. When Sources/Destinations are nil the full
// all-to-all table is requested; otherwise they index into Locations,
// which lets the matrix builder tile large problems.
type MatrixRequest struct {
	Locations    []domain.Coordinate
	Sources      []int
	Destinations []int

	// DepartureTime is "HH:MM"; honored only by time-dependent providers.
	DepartureTime string
}

// MatrixResult carries len(Sources) x len(Destinations) integer grids.
// Cells the provider could not resolve are -1; a result containing any
// such cell is returned together with a PartialMatrixError.
type MatrixResult struct {
	DistancesM   [][]int64
	DurationsSec [][]int64
}

// RoutingGateway is an abstract source of road-network distance and
// duration data between coordinates.
type RoutingGateway interface {
	// ID identifies the provider for cache keying and diagnostics.
	ID() string

	// Matrix computes the requested (sub)matrix. Failure modes are
	// classified: PartialMatrixError, ErrRequestTooLarge,
	// ErrProviderUnavailable.
	Matrix(ctx context.Context, req MatrixRequest) (MatrixResult, error)

	// Geometry returns the road polyline along the given waypoints.
	Geometry(ctx context.Context, waypoints []domain.Coordinate) ([]domain.Coordinate, error)
}
