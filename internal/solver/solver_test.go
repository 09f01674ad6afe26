package solver

import (
	"context"
	"fmt"
	"testing"
	"time"

	"fleet-route-planner/internal/adapters/routing"
	"fleet-route-planner/internal/domain"
)

var testDepot = domain.Coordinate{Lat: 42.6950, Lon: 23.3100}

func haversineMatrix(locs []domain.Coordinate) *domain.Matrix {
	m := domain.NewMatrix(locs)
	for i := range locs {
		for j := range locs {
			if i == j {
				m.Distances[i][j] = 0
				m.Durations[i][j] = 0
				continue
			}
			meters, seconds := routing.HaversineEstimate(locs[i], locs[j])
			m.Distances[i][j] = meters
			m.Durations[i][j] = seconds
		}
	}
	return m
}

func buildTestProblem(t *testing.T, customers []domain.Customer, fleet domain.Fleet, profile ProfileConfig, drop DropConfig) *Problem {
	t.Helper()
	depots := domain.BuildDepotSet(testDepot, fleet)
	locs := append([]domain.Coordinate(nil), depots...)
	for _, c := range customers {
		locs = append(locs, c.Coords)
	}
	p, err := BuildProblem(customers, fleet, depots, haversineMatrix(locs), profile, drop)
	if err != nil {
		t.Fatalf("build problem: %v", err)
	}
	return p
}

func internalSpec(capacity, count int) domain.VehicleSpec {
	return domain.VehicleSpec{
		Class: domain.ClassInternal, Capacity: capacity, Count: count,
		MaxTimeHours: 8, ServiceTimeMinutes: 7, StartTimeMinutes: 480,
		Enabled: true, StartDepot: testDepot,
	}
}

func quickSolve(t *testing.T, p *Problem, cfg Config) *Result {
	t.Helper()
	if cfg.TimeLimit == 0 {
		cfg.TimeLimit = 300 * time.Millisecond
	}
	res, err := Solve(context.Background(), p, cfg)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	return res
}

func assertPartition(t *testing.T, p *Problem, c *Candidate) {
	t.Helper()
	if err := p.Validate(c); err != nil {
		t.Fatalf("solution violates the contract: %v", err)
	}
}

// Three nearby customers and one roomy vehicle: a single route serving
// everyone, nothing dropped, totals equal to the matrix-derived sums.
func TestSolveTrivial(t *testing.T) {
	customers := []domain.Customer{
		{ID: "c1", Coords: domain.Coordinate{Lat: 42.70, Lon: 23.32}, Volume: 10},
		{ID: "c2", Coords: domain.Coordinate{Lat: 42.71, Lon: 23.33}, Volume: 10},
		{ID: "c3", Coords: domain.Coordinate{Lat: 42.72, Lon: 23.34}, Volume: 10},
	}
	fleet := domain.Fleet{internalSpec(100, 1)}
	p := buildTestProblem(t, customers, fleet, ProfileConfig{}, DropConfig{Allow: true, FixedPenalty: 45000})

	res := quickSolve(t, p, Config{Backend: BackendSearch})
	assertPartition(t, p, res.Candidate)

	if res.Candidate.UsedVehicles() != 1 {
		t.Fatalf("expected exactly one route, got %d", res.Candidate.UsedVehicles())
	}
	if len(res.Candidate.Dropped) != 0 {
		t.Fatalf("expected no dropped customers, got %v", res.Candidate.Dropped)
	}

	sol := ToSolution(p, res.Candidate, res.Degraded)
	if len(sol.Routes) != 1 || len(sol.Routes[0].CustomerIDs) != 3 {
		t.Fatalf("route should visit all three customers: %+v", sol.Routes)
	}

	// Round-trip distance equals the matrix-derived arc sum.
	seq := res.Candidate.Routes[0]
	u := &p.Units[0]
	want := int64(0)
	prev := u.StartNode
	for _, node := range seq {
		want += p.Matrix.Dist(prev, node)
		prev = node
	}
	want += p.Matrix.Dist(prev, u.EndNode)
	if sol.Routes[0].TotalDistanceM != want {
		t.Fatalf("route distance %d != matrix sum %d", sol.Routes[0].TotalDistanceM, want)
	}
}

// Capacity dimension: every route stays within its unit's capacity and
// every customer lands in exactly one place.
func TestSolveRespectsCapacity(t *testing.T) {
	var customers []domain.Customer
	for i := 0; i < 8; i++ {
		customers = append(customers, domain.Customer{
			ID:     fmt.Sprintf("c%d", i),
			Coords: domain.Coordinate{Lat: 42.70 + float64(i)*0.008, Lon: 23.32},
			Volume: 30,
		})
	}
	fleet := domain.Fleet{internalSpec(100, 3)}
	p := buildTestProblem(t, customers, fleet, ProfileConfig{}, DropConfig{Allow: true, FixedPenalty: 45000})

	res := quickSolve(t, p, Config{Backend: BackendSearch})
	assertPartition(t, p, res.Candidate)

	for ui, seq := range res.Candidate.Routes {
		demand := int64(0)
		for _, node := range seq {
			demand += p.DemandU[node]
		}
		if demand > p.Units[ui].CapacityU {
			t.Fatalf("unit %d overloaded: %d > %d", ui, demand, p.Units[ui].CapacityU)
		}
	}
}

// Center preference: the in-zone customer goes to the center vehicle,
// the out-of-zone customer to the internal vehicle; swapping would cost
// at least the into-zone surcharge.
func TestSolveCenterZonePreference(t *testing.T) {
	center := domain.Coordinate{Lat: 42.6974, Lon: 23.3238}
	customers := []domain.Customer{
		{ID: "inzone", Coords: domain.Coordinate{Lat: 42.6976, Lon: 23.3240}, Volume: 10},
		{ID: "outzone", Coords: domain.Coordinate{Lat: 42.7500, Lon: 23.4200}, Volume: 10},
	}
	fleet := domain.Fleet{
		{Class: domain.ClassCenter, Capacity: 100, Count: 1, MaxTimeHours: 8,
			ServiceTimeMinutes: 9, StartTimeMinutes: 510, Enabled: true, StartDepot: testDepot},
		internalSpec(100, 1),
	}
	p := buildTestProblem(t, customers, fleet, ProfileConfig{
		Center:             center,
		RadiusKm:           1.7,
		DiscountCenter:     0.5,
		PenaltyOutOfZone:   40000,
		PenaltyIntoZone:    40000,
		EnableRestrictions: true,
	}, DropConfig{})

	res := quickSolve(t, p, Config{Backend: BackendSearch})
	assertPartition(t, p, res.Candidate)

	sol := ToSolution(p, res.Candidate, false)
	for _, r := range sol.Routes {
		for _, id := range r.CustomerIDs {
			switch id {
			case "inzone":
				if r.Class != domain.ClassCenter {
					t.Fatalf("in-zone customer served by %s, want center", r.Class)
				}
			case "outzone":
				if r.Class != domain.ClassInternal {
					t.Fatalf("out-of-zone customer served by %s, want internal", r.Class)
				}
			}
		}
	}
}

// Dropping: one vehicle of capacity 100 against ten customers of
// demand 50 serves exactly two; fitness = route cost + 8 penalties.
func TestSolveDropping(t *testing.T) {
	var customers []domain.Customer
	for i := 0; i < 10; i++ {
		customers = append(customers, domain.Customer{
			ID:     fmt.Sprintf("c%d", i),
			Coords: domain.Coordinate{Lat: 42.700 + float64(i)*0.002, Lon: 23.320},
			Volume: 50,
		})
	}
	fleet := domain.Fleet{internalSpec(100, 1)}
	const penalty = 45000
	p := buildTestProblem(t, customers, fleet, ProfileConfig{}, DropConfig{Allow: true, FixedPenalty: penalty})

	res := quickSolve(t, p, Config{Backend: BackendSearch})
	assertPartition(t, p, res.Candidate)

	served := 0
	for _, seq := range res.Candidate.Routes {
		served += len(seq)
	}
	if served != 2 || len(res.Candidate.Dropped) != 8 {
		t.Fatalf("served=%d dropped=%d, want 2/8", served, len(res.Candidate.Dropped))
	}

	sol := ToSolution(p, res.Candidate, false)
	wantFitness := sol.Routes[0].TotalDistanceM + 8*penalty
	if sol.Fitness != wantFitness {
		t.Fatalf("fitness = %d, want route distance %d + 8x%d = %d",
			sol.Fitness, sol.Routes[0].TotalDistanceM, penalty, wantFitness)
	}
}

// Prize-mode dropping makes big customers more expensive to skip.
func TestDropCostPrizeMode(t *testing.T) {
	drop := DropConfig{Allow: true, Base: 10000, PerVolume: 500}
	small := dropCost(drop, 10)
	big := dropCost(drop, 100)
	if small != 15000 || big != 60000 {
		t.Fatalf("prize costs = %d/%d, want 15000/60000", small, big)
	}
}

// Stops dimension: max two customers per route even with spare capacity.
func TestSolveMaxStops(t *testing.T) {
	var customers []domain.Customer
	for i := 0; i < 5; i++ {
		customers = append(customers, domain.Customer{
			ID:     fmt.Sprintf("c%d", i),
			Coords: domain.Coordinate{Lat: 42.70 + float64(i)*0.004, Lon: 23.32},
			Volume: 5,
		})
	}
	spec := internalSpec(1000, 1)
	spec.MaxStops = 2
	p := buildTestProblem(t, customers, domain.Fleet{spec}, ProfileConfig{}, DropConfig{Allow: true, FixedPenalty: 45000})

	res := quickSolve(t, p, Config{Backend: BackendSearch})
	assertPartition(t, p, res.Candidate)
	for ui, seq := range res.Candidate.Routes {
		if len(seq) > 2 {
			t.Fatalf("unit %d has %d stops, limit 2", ui, len(seq))
		}
	}
}

func TestALNSBackendSatisfiesContract(t *testing.T) {
	var customers []domain.Customer
	for i := 0; i < 6; i++ {
		customers = append(customers, domain.Customer{
			ID:     fmt.Sprintf("c%d", i),
			Coords: domain.Coordinate{Lat: 42.69 + float64(i)*0.006, Lon: 23.31 + float64(i%3)*0.01},
			Volume: 20,
		})
	}
	fleet := domain.Fleet{internalSpec(80, 2)}
	p := buildTestProblem(t, customers, fleet, ProfileConfig{}, DropConfig{Allow: true, FixedPenalty: 45000})

	res := quickSolve(t, p, Config{Backend: BackendALNS})
	assertPartition(t, p, res.Candidate)
}

func TestParallelSolveDeterministicWinner(t *testing.T) {
	var customers []domain.Customer
	for i := 0; i < 5; i++ {
		customers = append(customers, domain.Customer{
			ID:     fmt.Sprintf("c%d", i),
			Coords: domain.Coordinate{Lat: 42.70 + float64(i)*0.005, Lon: 23.32},
			Volume: 10,
		})
	}
	fleet := domain.Fleet{internalSpec(100, 2)}
	p := buildTestProblem(t, customers, fleet, ProfileConfig{}, DropConfig{Allow: true, FixedPenalty: 45000})

	cfg := Config{
		Backend:                BackendSearch,
		EnableParallel:         true,
		NumWorkers:             3,
		TimeLimit:              300 * time.Millisecond,
		ParallelStrategies:     []string{"PARALLEL_CHEAPEST_INSERTION", "SAVINGS", "PATH_CHEAPEST_ARC"},
		ParallelMetaheuristics: []string{"GUIDED_LOCAL_SEARCH", "SIMULATED_ANNEALING"},
	}

	first := quickSolve(t, p, cfg)
	assertPartition(t, p, first.Candidate)

	second := quickSolve(t, p, cfg)
	if first.Candidate.Cost != second.Candidate.Cost {
		t.Fatalf("winner cost changed across runs: %d vs %d", first.Candidate.Cost, second.Candidate.Cost)
	}
}

// Winner selection: minimum fitness wins; full ties resolve by id.
func TestSelectWinnerTieBreaks(t *testing.T) {
	customers := []domain.Customer{
		{ID: "c1", Coords: domain.Coordinate{Lat: 42.70, Lon: 23.32}, Volume: 10},
	}
	fleet := domain.Fleet{internalSpec(100, 2)}
	p := buildTestProblem(t, customers, fleet, ProfileConfig{}, DropConfig{})

	node := p.CustomerNodes()[0]

	a := NewCandidate(p, "worker-a")
	a.Routes[0] = []int{node}
	p.Evaluate(a)

	b := NewCandidate(p, "worker-b")
	b.Routes[1] = []int{node}
	p.Evaluate(b)

	if a.Cost != b.Cost {
		t.Fatalf("setup broken: identical units should cost the same")
	}
	if w := SelectWinner(p, []*Candidate{b, a}); w.ID != "worker-a" {
		t.Fatalf("tie should break to the lexicographically smaller id, got %s", w.ID)
	}

	// A cheaper candidate wins regardless of id order.
	expensive := NewCandidate(p, "aaa")
	expensive.Routes[0] = []int{node}
	p.Evaluate(expensive)
	expensive.Cost += 999

	if w := SelectWinner(p, []*Candidate{expensive, a}); w.ID != "worker-a" {
		t.Fatalf("minimum fitness must win, got %s", w.ID)
	}
}

func TestSelectWinnerSkipsInfeasible(t *testing.T) {
	customers := []domain.Customer{
		{ID: "c1", Coords: domain.Coordinate{Lat: 42.70, Lon: 23.32}, Volume: 200},
	}
	fleet := domain.Fleet{internalSpec(100, 1)}
	p := buildTestProblem(t, customers, fleet, ProfileConfig{}, DropConfig{})

	over := NewCandidate(p, "overloaded")
	over.Routes[0] = []int{p.CustomerNodes()[0]}
	p.Evaluate(over)

	if w := SelectWinner(p, []*Candidate{over}); w != nil {
		t.Fatalf("capacity-violating candidate must not win")
	}
}

// The greedy fallback always yields a valid partition and never
// overloads a unit.
func TestGreedyFallback(t *testing.T) {
	var customers []domain.Customer
	for i := 0; i < 7; i++ {
		customers = append(customers, domain.Customer{
			ID:     fmt.Sprintf("c%d", i),
			Coords: domain.Coordinate{Lat: 42.70 + float64(i)*0.01, Lon: 23.32},
			Volume: float64(20 + i*10),
		})
	}
	fleet := domain.Fleet{internalSpec(90, 2)}
	p := buildTestProblem(t, customers, fleet, ProfileConfig{}, DropConfig{Allow: true, FixedPenalty: 45000})

	cand := GreedyFallback(p, "greedy")
	assertPartition(t, p, cand)
	if cand.UsedVehicles() == 0 {
		t.Fatalf("greedy fallback should place at least one customer")
	}
}

// An empty serviceable set is an empty solution, not an error.
func TestSolveEmptyProblem(t *testing.T) {
	fleet := domain.Fleet{internalSpec(100, 1)}
	p := buildTestProblem(t, nil, fleet, ProfileConfig{}, DropConfig{})

	res := quickSolve(t, p, Config{Backend: BackendSearch})
	if res.Candidate.UsedVehicles() != 0 || len(res.Candidate.Dropped) != 0 {
		t.Fatalf("empty problem should produce an empty candidate")
	}
}

func TestCyclicPairs(t *testing.T) {
	pairs := cyclicPairs(
		[]Strategy{StrategySavings, StrategyPathCheapestArc},
		[]Metaheuristic{MetaGuidedLocalSearch, MetaSimulatedAnnealing, MetaTabuSearch},
		5,
	)
	if pairs[0].strategy != StrategySavings || pairs[1].strategy != StrategyPathCheapestArc ||
		pairs[2].strategy != StrategySavings {
		t.Fatalf("strategies must cycle: %+v", pairs)
	}
	if pairs[3].meta != MetaGuidedLocalSearch || pairs[4].meta != MetaSimulatedAnnealing {
		t.Fatalf("metaheuristics must cycle: %+v", pairs)
	}
}
