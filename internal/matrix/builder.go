package matrix

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"fleet-route-planner/internal/adapters/routing"
	"fleet-route-planner/internal/domain"
	"fleet-route-planner/internal/platform/obs"
	"fleet-route-planner/internal/ports"
)

// BuilderConfig tunes strategy selection and the fetch pool.
type BuilderConfig struct {
	SingleRequestMax int // largest N served by one table request
	TiledMax         int // largest N served by quadratic tiling
	ChunkSize        int
	Workers          int
	DepartureTime    string
	CostingProfile   string
}

func (c BuilderConfig) withDefaults() BuilderConfig {
	if c.SingleRequestMax <= 0 {
		c.SingleRequestMax = 30
	}
	if c.TiledMax <= 0 {
		c.TiledMax = 500
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 80
	}
	if c.Workers <= 0 {
		c.Workers = 5
	}
	return c
}

// Builder turns a location list into a complete NxN matrix using the
// cheapest strategy that fits N, with caching and a multi-level
// fallback chain: primary provider, alternate provider, haversine.
type Builder struct {
	primary   ports.RoutingGateway
	alternate ports.RoutingGateway // optional
	cache     ports.MatrixCache    // optional
	cfg       BuilderConfig
	reporter  ports.ProgressReporter

	mu        sync.Mutex
	lastLocs  []domain.Coordinate
	lastBuild *domain.Matrix
}

type BuilderOption func(*Builder)

func WithAlternateGateway(gw ports.RoutingGateway) BuilderOption {
	return func(b *Builder) { b.alternate = gw }
}

func WithCache(c ports.MatrixCache) BuilderOption {
	return func(b *Builder) { b.cache = c }
}

func WithReporter(r ports.ProgressReporter) BuilderOption {
	return func(b *Builder) { b.reporter = r }
}

func NewBuilder(primary ports.RoutingGateway, cfg BuilderConfig, opts ...BuilderOption) *Builder {
	b := &Builder{
		primary:  primary,
		cfg:      cfg.withDefaults(),
		reporter: ports.NopReporter{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// CacheKey derives the stable entry key: provider identity, costing
// profile, optional departure time, and the ordered coordinates at
// 6-decimal precision.
func CacheKey(providerID, costingProfile, departureTime string, locations []domain.Coordinate) string {
	h := sha256.New()
	h.Write([]byte(providerID))
	h.Write([]byte{0})
	h.Write([]byte(costingProfile))
	h.Write([]byte{0})
	h.Write([]byte(departureTime))
	h.Write([]byte{0})
	keys := make([]string, len(locations))
	for i, c := range locations {
		keys[i] = c.Key()
	}
	h.Write([]byte(strings.Join(keys, ";")))
	return hex.EncodeToString(h.Sum(nil))
}

// Build produces the complete matrix for the ordered location list.
// Cells no provider could resolve are filled from haversine and counted
// as degraded. The error is non-nil only when not even a degraded
// matrix could be produced.
func (b *Builder) Build(ctx context.Context, locations []domain.Coordinate) (_ *domain.Matrix, err error) {
	defer obs.Time(ctx, "matrix.Build")(&err)

	n := len(locations)
	if n == 0 {
		return nil, errors.New("build matrix: no locations")
	}

	key := CacheKey(b.primary.ID(), b.cfg.CostingProfile, b.cfg.DepartureTime, locations)

	if cached := b.fromCache(ctx, key, locations); cached != nil {
		return cached, nil
	}
	if sliced := b.fromLastBuild(locations); sliced != nil {
		return sliced, nil
	}

	m := domain.NewMatrix(locations)
	if n == 1 {
		m.Distances[0][0] = 0
		m.Durations[0][0] = 0
		return m, nil
	}

	if err := b.fetch(ctx, b.primary, m); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if b.alternate == nil {
			log.Printf("matrix build: provider failed (%v), filling from haversine", err)
		} else {
			log.Printf("matrix build: primary provider failed (%v), trying alternate %s", err, b.alternate.ID())
			if err := b.fetch(ctx, b.alternate, m); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				log.Printf("matrix build: alternate provider failed (%v), filling from haversine", err)
			}
		}
	}

	b.finish(m)

	if b.cache != nil {
		entry := &ports.CachedMatrix{
			Provider:     b.primary.ID(),
			CreatedAt:    time.Now(),
			Size:         n,
			DistancesM:   m.Distances,
			DurationsSec: m.Durations,
		}
		if err := b.cache.Put(ctx, key, entry); err != nil {
			log.Printf("matrix build: cache write failed: %v", err)
		}
	}

	b.mu.Lock()
	b.lastLocs = append([]domain.Coordinate(nil), locations...)
	b.lastBuild = m
	b.mu.Unlock()

	return m, nil
}

func (b *Builder) fromCache(ctx context.Context, key string, locations []domain.Coordinate) *domain.Matrix {
	if b.cache == nil {
		return nil
	}
	entry, err := b.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ports.ErrCacheMiss) {
			// Corrupt or unreadable entries are a warning, then a miss.
			log.Printf("matrix build: cache read: %v", err)
		}
		return nil
	}
	if entry.Size != len(locations) {
		return nil
	}

	m := domain.NewMatrix(locations)
	m.Distances = entry.DistancesM
	m.Durations = entry.DurationsSec
	return m
}

// fromLastBuild slices a submatrix out of the previous in-memory build
// when it covers every requested location, avoiding a re-query for
// nested runs.
func (b *Builder) fromLastBuild(locations []domain.Coordinate) *domain.Matrix {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.lastBuild == nil {
		return nil
	}
	index := make(map[string]int, len(b.lastLocs))
	for i, c := range b.lastLocs {
		index[c.Key()] = i
	}
	mapping := make([]int, len(locations))
	for i, c := range locations {
		j, ok := index[c.Key()]
		if !ok {
			return nil
		}
		mapping[i] = j
	}

	m := domain.NewMatrix(locations)
	for i := range locations {
		for j := range locations {
			m.Distances[i][j] = b.lastBuild.Distances[mapping[i]][mapping[j]]
			m.Durations[i][j] = b.lastBuild.Durations[mapping[i]][mapping[j]]
		}
	}
	// The previous build may already carry the traffic adjustment; the
	// flag must travel with the sliced data or it would be re-applied.
	m.TrafficAdjusted = b.lastBuild.TrafficAdjusted
	return m
}

// fetch runs the strategy tier that fits N against one gateway and
// stitches results into m. Chunk-level failures degrade to haversine;
// only a total failure of the single-request path returns an error, and
// Build then tries the alternate provider before the haversine fill.
func (b *Builder) fetch(ctx context.Context, gw ports.RoutingGateway, m *domain.Matrix) error {
	n := m.Size()

	switch {
	case n <= b.cfg.SingleRequestMax:
		err := b.fetchSingle(ctx, gw, m)
		if errors.Is(err, ports.ErrRequestTooLarge) {
			return b.fetchTiled(ctx, gw, m)
		}
		return err
	case n <= b.cfg.TiledMax:
		return b.fetchTiled(ctx, gw, m)
	default:
		return b.fetchPairwise(ctx, gw, m)
	}
}

func (b *Builder) fetchSingle(ctx context.Context, gw ports.RoutingGateway, m *domain.Matrix) error {
	res, err := gw.Matrix(ctx, ports.MatrixRequest{
		Locations:     m.Locations,
		DepartureTime: b.cfg.DepartureTime,
	})

	var partial *ports.PartialMatrixError
	if errors.As(err, &partial) {
		res = partial.Result
		err = nil
	}
	if err != nil {
		obs.ProviderRequests.WithLabelValues(gw.ID(), "error").Inc()
		return fmt.Errorf("single table request: %w", err)
	}
	obs.ProviderRequests.WithLabelValues(gw.ID(), "ok").Inc()

	for i := range res.DistancesM {
		copy(m.Distances[i], res.DistancesM[i])
		copy(m.Durations[i], res.DurationsSec[i])
	}
	return nil
}

type tileTask struct {
	sources      []int
	destinations []int
}

func (b *Builder) fetchTiled(ctx context.Context, gw ports.RoutingGateway, m *domain.Matrix) error {
	n := m.Size()
	chunks := splitIndices(n, b.cfg.ChunkSize)

	// Row-major enqueue; completion order is irrelevant because results
	// are stitched by absolute indices.
	tasks := make([]tileTask, 0, len(chunks)*len(chunks))
	for _, src := range chunks {
		for _, dst := range chunks {
			tasks = append(tasks, tileTask{sources: src, destinations: dst})
		}
	}

	return b.runPool(ctx, gw, m, tasks)
}

func (b *Builder) fetchPairwise(ctx context.Context, gw ports.RoutingGateway, m *domain.Matrix) error {
	n := m.Size()
	tasks := make([]tileTask, 0, n*n-n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			tasks = append(tasks, tileTask{sources: []int{i}, destinations: []int{j}})
		}
	}
	return b.runPool(ctx, gw, m, tasks)
}

// runPool dispatches tasks over a bounded worker pool. Workers write
// into disjoint cells of the shared matrix, so only the progress counter
// is locked. Cancellation is checked at every chunk boundary.
func (b *Builder) runPool(ctx context.Context, gw ports.RoutingGateway, m *domain.Matrix, tasks []tileTask) error {
	sem := make(chan struct{}, b.cfg.Workers)
	var wg sync.WaitGroup

	var progressMu sync.Mutex
	done := 0

	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			break
		}

		wg.Add(1)
		go func(t tileTask) {
			sem <- struct{}{}
			defer wg.Done()
			defer func() { <-sem }()

			b.fetchTile(ctx, gw, m, t.sources, t.destinations)

			progressMu.Lock()
			done++
			b.reporter.Step("matrix", done, len(tasks))
			progressMu.Unlock()
		}(task)
	}

	wg.Wait()
	return ctx.Err()
}

// fetchTile fetches one sources x destinations block. RequestTooLarge
// splits the block in half and retries; an exhausted provider leaves the
// cells unset for the haversine fill.
func (b *Builder) fetchTile(ctx context.Context, gw ports.RoutingGateway, m *domain.Matrix, sources, destinations []int) {
	locs := make([]domain.Coordinate, 0, len(sources)+len(destinations))
	srcIdx := make([]int, len(sources))
	dstIdx := make([]int, len(destinations))
	for i, s := range sources {
		srcIdx[i] = len(locs)
		locs = append(locs, m.Locations[s])
	}
	for j, d := range destinations {
		dstIdx[j] = len(locs)
		locs = append(locs, m.Locations[d])
	}

	res, err := gw.Matrix(ctx, ports.MatrixRequest{
		Locations:     locs,
		Sources:       srcIdx,
		Destinations:  dstIdx,
		DepartureTime: b.cfg.DepartureTime,
	})

	var partial *ports.PartialMatrixError
	if errors.As(err, &partial) {
		res = partial.Result
		err = nil
	}

	if errors.Is(err, ports.ErrRequestTooLarge) && (len(sources) > 1 || len(destinations) > 1) {
		for _, srcHalf := range halve(sources) {
			for _, dstHalf := range halve(destinations) {
				b.fetchTile(ctx, gw, m, srcHalf, dstHalf)
			}
		}
		return
	}
	if err != nil {
		// Leave the block unset; the degraded fill covers it.
		obs.ProviderRequests.WithLabelValues(gw.ID(), "error").Inc()
		return
	}
	obs.ProviderRequests.WithLabelValues(gw.ID(), "ok").Inc()

	for i, s := range sources {
		for j, d := range destinations {
			m.Distances[s][d] = res.DistancesM[i][j]
			m.Durations[s][d] = res.DurationsSec[i][j]
		}
	}
}

// finish zeroes the diagonal and fills every remaining unset cell from
// haversine, logging the degraded count.
func (b *Builder) finish(m *domain.Matrix) {
	n := m.Size()
	degraded := 0
	for i := 0; i < n; i++ {
		m.Distances[i][i] = 0
		m.Durations[i][i] = 0
		for j := 0; j < n; j++ {
			if m.Distances[i][j] >= 0 && m.Durations[i][j] >= 0 {
				continue
			}
			meters, seconds := routing.HaversineEstimate(m.Locations[i], m.Locations[j])
			if m.Distances[i][j] < 0 {
				m.Distances[i][j] = meters
			}
			if m.Durations[i][j] < 0 {
				m.Durations[i][j] = seconds
			}
			degraded++
		}
	}
	m.DegradedCells = degraded
	if degraded > 0 {
		obs.DegradedCells.Add(float64(degraded))
		log.Printf("matrix build: %d of %d cells degraded to haversine", degraded, n*n)
	}
}

func splitIndices(n, chunkSize int) [][]int {
	var chunks [][]int
	for start := 0; start < n; start += chunkSize {
		end := start + chunkSize
		if end > n {
			end = n
		}
		chunk := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			chunk = append(chunk, i)
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

func halve(indices []int) [][]int {
	if len(indices) <= 1 {
		return [][]int{indices}
	}
	mid := len(indices) / 2
	return [][]int{indices[:mid], indices[mid:]}
}
