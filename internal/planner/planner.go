// Package planner orchestrates the pipeline: validate input, allocate
// customers, build the travel matrix, adjust for urban traffic, solve
// the routing problem and post-optimize each route.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"fleet-route-planner/internal/allocator"
	"fleet-route-planner/internal/config"
	"fleet-route-planner/internal/domain"
	"fleet-route-planner/internal/matrix"
	"fleet-route-planner/internal/platform/obs"
	"fleet-route-planner/internal/ports"
	"fleet-route-planner/internal/solver"
	"fleet-route-planner/internal/tsp"
)

var (
	// ErrInvalidInput means no valid customers survived validation.
	ErrInvalidInput = errors.New("no valid customers")

	// ErrNoSolution means neither backend nor the greedy fallback
	// produced anything usable.
	ErrNoSolution = errors.New("no solution produced")
)

// Planner wires the run-scoped collaborators.
type Planner struct {
	cfg      *config.Config
	builder  *matrix.Builder
	reporter ports.ProgressReporter
}

func New(cfg *config.Config, builder *matrix.Builder, reporter ports.ProgressReporter) *Planner {
	if reporter == nil {
		reporter = ports.NopReporter{}
	}
	return &Planner{cfg: cfg, builder: builder, reporter: reporter}
}

// Result is the full outcome of one planning run.
type Result struct {
	RunID      string
	Solution   *domain.Solution
	Allocation allocator.Allocation
	Matrix     *domain.Matrix
	Elapsed    time.Duration
}

// ValidateRecords turns raw ingest records into customers. Rows with a
// bad coordinate or negative volume are dropped with a warning;
// duplicate ids are rejected likewise. The error is non-nil only when
// nothing valid remains.
func ValidateRecords(records []domain.CustomerRecord) ([]domain.Customer, error) {
	seen := make(map[string]bool, len(records))
	customers := make([]domain.Customer, 0, len(records))

	for _, rec := range records {
		if rec.ID == "" {
			log.Printf("ingest: dropping row with empty id (name=%q)", rec.Name)
			continue
		}
		if seen[rec.ID] {
			log.Printf("ingest: rejecting duplicate customer id %q", rec.ID)
			continue
		}
		coords, err := domain.ParseGPS(rec.GPS)
		if err != nil {
			log.Printf("ingest: dropping customer %q: %v", rec.ID, err)
			continue
		}
		if rec.Volume < 0 {
			log.Printf("ingest: dropping customer %q: negative volume %.2f", rec.ID, rec.Volume)
			continue
		}
		seen[rec.ID] = true
		customers = append(customers, domain.Customer{
			ID:     rec.ID,
			Name:   rec.Name,
			Coords: coords,
			Volume: rec.Volume,
		})
	}

	if len(customers) == 0 {
		return nil, ErrInvalidInput
	}
	return customers, nil
}

// Run executes the full pipeline for a validated customer list.
func (p *Planner) Run(ctx context.Context, customers []domain.Customer) (_ *Result, err error) {
	start := time.Now()
	runID := uuid.NewString()
	ctx = context.WithValue(ctx, obs.RunIDKey, runID)
	defer obs.Time(ctx, "planner.Run")(&err)

	if len(customers) == 0 {
		return nil, ErrInvalidInput
	}

	fleet, err := p.cfg.Fleet()
	if err != nil {
		return nil, fmt.Errorf("fleet config: %w", err)
	}
	depot, err := p.cfg.DepotCoordinate()
	if err != nil {
		return nil, err
	}

	center := depot
	if p.cfg.Locations.CenterLocation != "" {
		center, _ = domain.ParseGPS(p.cfg.Locations.CenterLocation)
	}

	alloc := allocator.Allocate(customers, fleet, depot, allocator.Config{
		MaxCustomerVolume:  p.cfg.Warehouse.MaxCustomerVolume,
		CapacityTolerance:  p.cfg.Warehouse.CapacityTolerance,
		CenterZoneCenter:   center,
		CenterZoneRadiusKm: p.cfg.Locations.CenterZoneRadius,
	})

	p.reporter.Step("allocate", len(alloc.Serviceable), len(customers))

	result := &Result{RunID: runID, Allocation: alloc}

	// No usable fleet or nothing serviceable: an empty solution with
	// everything in the warehouse, not an error.
	if len(alloc.Serviceable) == 0 || len(fleet.Enabled()) == 0 {
		result.Solution = &domain.Solution{ID: uuid.NewString()}
		result.Elapsed = time.Since(start)
		return result, nil
	}

	depots := domain.BuildDepotSet(depot, fleet)
	locations := make([]domain.Coordinate, 0, len(depots)+len(alloc.Serviceable))
	locations = append(locations, depots...)
	for _, c := range alloc.Serviceable {
		locations = append(locations, c.Coords)
	}

	m, err := p.builder.Build(ctx, locations)
	if err != nil {
		return nil, fmt.Errorf("build matrix: %w", err)
	}

	if p.cfg.Locations.EnableCityTrafficAdjustment && p.cfg.Locations.CityCenterCoords != "" {
		cityCenter, err := domain.ParseGPS(p.cfg.Locations.CityCenterCoords)
		if err != nil {
			return nil, fmt.Errorf("city center coords: %w", err)
		}
		matrix.ApplyTraffic(m, matrix.TrafficZone{
			Center:     cityCenter,
			RadiusKm:   p.cfg.Locations.CityTrafficRadiusKm,
			Multiplier: p.cfg.Locations.CityTrafficDurationMultiplier,
		})
	}
	result.Matrix = m
	p.reporter.Step("matrix", m.Size()*m.Size(), m.Size()*m.Size())

	problem, err := solver.BuildProblem(alloc.Serviceable, fleet, depots, m,
		solver.ProfileConfig{
			Center:             center,
			RadiusKm:           p.cfg.Locations.CenterZoneRadius,
			DiscountCenter:     p.cfg.Locations.DiscountCenterBus,
			PenaltyOutOfZone:   p.cfg.Locations.ExternalBusCenterPenalty,
			PenaltyIntoZone:    p.cfg.Locations.InternalBusCenterPenalty,
			EnableRestrictions: p.cfg.Locations.EnableCenterZoneRestrictions,
		},
		solver.DropConfig{
			Allow:        p.cfg.CVRP.AllowCustomerSkipping,
			FixedPenalty: p.cfg.CVRP.DistancePenaltyDisjunction,
			Base:         p.cfg.CVRP.DropPenaltyBase,
			PerVolume:    p.cfg.CVRP.DropPenaltyPerVolume,
		})
	if err != nil {
		return nil, err
	}

	solveRes, err := solver.Solve(ctx, problem, solver.Config{
		Backend:                  p.cfg.CVRP.SolverType,
		TimeLimit:                time.Duration(p.cfg.CVRP.TimeLimitSeconds) * time.Second,
		FirstSolutionStrategy:    p.cfg.CVRP.FirstSolutionStrategy,
		LocalSearchMetaheuristic: p.cfg.CVRP.LocalSearchMetaheuristic,
		Lambda:                   p.cfg.CVRP.SearchLambdaCoefficient,
		LNSTimeLimit:             time.Duration(p.cfg.CVRP.LNSTimeLimitSeconds * float64(time.Second)),
		LNSNumNodes:              p.cfg.CVRP.LNSNumNodes,
		LNSNumArcs:               p.cfg.CVRP.LNSNumArcs,
		EnableParallel:           p.cfg.CVRP.EnableParallelSolving,
		NumWorkers:               p.cfg.CVRP.NumWorkers,
		ParallelStrategies:       p.cfg.CVRP.ParallelFirstSolutionStrategy,
		ParallelMetaheuristics:   p.cfg.CVRP.ParallelLocalSearchMetaheurist,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSolution, err)
	}

	p.reporter.Step("solve", 1, 1)

	p.postOptimize(problem, solveRes.Candidate, depots)

	result.Solution = solver.ToSolution(problem, solveRes.Candidate, solveRes.Degraded)
	result.Elapsed = time.Since(start)

	log.Printf("planner: run=%s routes=%d dropped=%d warehouse=%d fitness=%d degraded=%v elapsed=%s",
		runID, len(result.Solution.Routes), len(result.Solution.Dropped),
		len(alloc.Warehouse), result.Solution.Fitness, result.Solution.Degraded, result.Elapsed)

	return result, nil
}

// postOptimize re-sequences each route against its unit's TSP origin.
// The new order is accepted only when the closed tour from the origin is
// strictly shorter; metrics are recomputed from the matrix afterwards in
// extraction either way.
func (p *Planner) postOptimize(problem *solver.Problem, cand *solver.Candidate, depots []domain.Coordinate) {
	budget := time.Duration(p.cfg.TSP.BudgetSeconds * float64(time.Second))
	if budget <= 0 {
		budget = 2 * time.Second
	}

	for ui := range cand.Routes {
		seq := cand.Routes[ui]
		if len(seq) < 2 {
			continue
		}
		u := &problem.Units[ui]
		origin := u.TSPOrigin
		originDiffers := origin.Key() != depots[u.StartNode].Key()
		if !originDiffers && !p.cfg.CVRP.EnableFinalDepotReconfiguration {
			continue
		}

		reordered := tsp.Optimize(origin, seq, problem.Matrix, budget)
		if tsp.TourLength(origin, reordered, problem.Matrix) < tsp.TourLength(origin, seq, problem.Matrix) {
			if problem.RouteFeasible(u, reordered) {
				cand.Routes[ui] = reordered
			}
		}
	}
	problem.Evaluate(cand)
}
