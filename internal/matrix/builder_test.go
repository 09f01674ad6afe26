package matrix

import (
	"context"
	"testing"

	"fleet-route-planner/internal/adapters/cache"
	"fleet-route-planner/internal/adapters/routing"
	"fleet-route-planner/internal/domain"
	"fleet-route-planner/internal/ports"
)

func testLocations(n int) []domain.Coordinate {
	locs := make([]domain.Coordinate, n)
	for i := range locs {
		locs[i] = domain.Coordinate{Lat: 42.70 + float64(i)*0.01, Lon: 23.32 + float64(i)*0.005}
	}
	return locs
}

func assertComplete(t *testing.T, m *domain.Matrix) {
	t.Helper()
	for i := 0; i < m.Size(); i++ {
		if m.Dist(i, i) != 0 || m.Dur(i, i) != 0 {
			t.Fatalf("diagonal not zero at %d", i)
		}
		for j := 0; j < m.Size(); j++ {
			if m.Dist(i, j) < 0 || m.Dur(i, j) < 0 {
				t.Fatalf("cell (%d,%d) left unset", i, j)
			}
		}
	}
}

func TestBuildSingleRequest(t *testing.T) {
	gw := routing.NewMockGateway()
	b := NewBuilder(gw, BuilderConfig{})

	locs := testLocations(3)
	m, err := b.Build(context.Background(), locs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertComplete(t, m)
	if gw.Calls() != 1 {
		t.Fatalf("expected 1 provider call, got %d", gw.Calls())
	}
	// Provider values survive within rounding.
	wantDist, _ := routing.HaversineEstimate(locs[0], locs[1])
	if got := m.Dist(0, 1); got < wantDist-1 || got > wantDist+1 {
		t.Fatalf("Dist(0,1) = %d, want about %d", got, wantDist)
	}
	if m.DegradedCells != 0 {
		t.Fatalf("degraded cells = %d, want 0", m.DegradedCells)
	}
}

func TestBuildTiledStitching(t *testing.T) {
	gw := routing.NewMockGateway()
	b := NewBuilder(gw, BuilderConfig{SingleRequestMax: 2, ChunkSize: 2, Workers: 3})

	locs := testLocations(5)
	m, err := b.Build(context.Background(), locs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertComplete(t, m)
	// chunks {0,1},{2,3},{4}: 3x3 = 9 tile requests.
	if gw.Calls() != 9 {
		t.Fatalf("expected 9 tile requests, got %d", gw.Calls())
	}
	if m.DegradedCells != 0 {
		t.Fatalf("degraded cells = %d, want 0", m.DegradedCells)
	}
	// Stitched values match a direct computation regardless of which
	// chunk served the cell.
	for i := 0; i < 5; i++ {
		for j := 0; j < 5; j++ {
			if i == j {
				continue
			}
			want, _ := routing.HaversineEstimate(locs[i], locs[j])
			if got := m.Dist(i, j); got != want {
				t.Fatalf("Dist(%d,%d) = %d, want %d", i, j, got, want)
			}
		}
	}
}

// A provider that rejects oversized requests forces the builder to
// halve chunks until they fit.
func TestBuildRequestTooLargeRechunks(t *testing.T) {
	gw := routing.NewMockGateway()
	gw.MaxLocations = 2
	b := NewBuilder(gw, BuilderConfig{SingleRequestMax: 30, ChunkSize: 80})

	m, err := b.Build(context.Background(), testLocations(4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertComplete(t, m)
	if m.DegradedCells != 0 {
		t.Fatalf("degraded cells = %d, want 0 after re-chunking", m.DegradedCells)
	}
}

// A dead provider degrades tiled cells to haversine instead of failing
// the build.
func TestBuildProviderDownDegrades(t *testing.T) {
	gw := routing.NewMockGateway()
	gw.Fail = ports.ErrProviderUnavailable
	b := NewBuilder(gw, BuilderConfig{SingleRequestMax: 1, ChunkSize: 2})

	locs := testLocations(3)
	m, err := b.Build(context.Background(), locs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertComplete(t, m)
	if m.DegradedCells != 6 {
		t.Fatalf("degraded cells = %d, want 6 (all off-diagonal)", m.DegradedCells)
	}
	wantDist, wantDur := routing.HaversineEstimate(locs[0], locs[2])
	if m.Dist(0, 2) != wantDist || m.Dur(0, 2) != wantDur {
		t.Fatalf("degraded cell should equal haversine estimate")
	}
}

// A failing primary falls back to the alternate provider for the
// single-request strategy.
func TestBuildAlternateProvider(t *testing.T) {
	primary := routing.NewMockGateway()
	primary.Name = "primary"
	primary.Fail = ports.ErrProviderUnavailable
	alternate := routing.NewMockGateway()
	alternate.Name = "alternate"

	b := NewBuilder(primary, BuilderConfig{}, WithAlternateGateway(alternate))

	m, err := b.Build(context.Background(), testLocations(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertComplete(t, m)
	if alternate.Calls() == 0 {
		t.Fatalf("alternate provider was never consulted")
	}
}

// Within the TTL a second build must return identical grids without a
// single provider request.
func TestBuildCacheRoundTrip(t *testing.T) {
	gw := routing.NewMockGateway()
	diskCache := cache.NewDiskMatrixCache(t.TempDir(), 0)
	b := NewBuilder(gw, BuilderConfig{}, WithCache(diskCache))

	locs := testLocations(4)
	first, err := b.Build(context.Background(), locs)
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	callsAfterFirst := gw.Calls()

	// A fresh builder proves the hit comes from the shared cache, not
	// builder memory.
	b2 := NewBuilder(gw, BuilderConfig{}, WithCache(diskCache))
	second, err := b2.Build(context.Background(), locs)
	if err != nil {
		t.Fatalf("second build: %v", err)
	}

	if gw.Calls() != callsAfterFirst {
		t.Fatalf("second build issued %d provider requests, want 0", gw.Calls()-callsAfterFirst)
	}
	for i := range locs {
		for j := range locs {
			if first.Dist(i, j) != second.Dist(i, j) || first.Dur(i, j) != second.Dur(i, j) {
				t.Fatalf("cached matrix differs at (%d,%d)", i, j)
			}
		}
	}
}

func TestCacheKeyStability(t *testing.T) {
	locs := testLocations(3)
	a := CacheKey("osrm:x", "driving", "", locs)
	if a != CacheKey("osrm:x", "driving", "", locs) {
		t.Fatalf("cache key not stable")
	}
	if a == CacheKey("osrm:y", "driving", "", locs) {
		t.Fatalf("provider identity must change the key")
	}
	if a == CacheKey("osrm:x", "driving", "08:00", locs) {
		t.Fatalf("departure time must change the key")
	}
	if a == CacheKey("osrm:x", "driving", "", locs[:2]) {
		t.Fatalf("location list must change the key")
	}
}
