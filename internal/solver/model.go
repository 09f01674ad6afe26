// Package solver assigns serviceable customers to fleet vehicle units,
// producing capacity-, distance-, stop- and time-feasible routes. Two
// interchangeable backends satisfy the same contract; a greedy
// assignment backs them up when neither finds a feasible solution.
package solver

import (
	"fmt"
	"math"

	"fleet-route-planner/internal/domain"
)

// Demand and capacity are carried as integer units of a hundredth of a
// volume unit, so fractional volumes stay exact inside the search.
const volumeScale = 100

// noLimit stands in for absent distance/time ceilings.
const noLimit = int64(math.MaxInt64 / 4)

// Unit is one concrete vehicle expanded from a VehicleSpec.
type Unit struct {
	SpecIndex  int
	UnitIndex  int // position within its spec
	Class      domain.VehicleClass
	CapacityU  int64
	MaxDistM   int64 // 0 = no limit
	MaxStops   int   // 0 = no limit
	MaxTimeSec int64
	ServiceSec int64
	StartMin   int
	StartNode  int
	EndNode    int
	TSPOrigin  domain.Coordinate
}

// ProfileConfig encodes the center-zone business rules as arc-cost
// profile parameters.
type ProfileConfig struct {
	Center             domain.Coordinate
	RadiusKm           float64
	DiscountCenter     float64 // center-class discount inside the zone
	PenaltyOutOfZone   int64   // center-class surcharge outside the zone
	PenaltyIntoZone    int64   // other classes' surcharge into the zone
	EnableRestrictions bool
}

// DropConfig sets the cost of omitting a customer.
type DropConfig struct {
	Allow bool

	// FixedPenalty is the simple mode; when PerVolume > 0 the prize mode
	// Base + demand*PerVolume is used instead, making bigger customers
	// harder to drop.
	FixedPenalty int64
	Base         int64
	PerVolume    float64
}

// Problem is the immutable solver input: node layout, adjusted matrix,
// vehicle units and precomputed cost profiles. It is freely shareable
// across solver workers.
type Problem struct {
	Depots    []domain.Coordinate
	Customers []domain.Customer
	Matrix    *domain.Matrix
	Units     []Unit

	DemandU  []int64 // per node; zero for depots
	InZone   []bool  // per node; depots always false
	DropCost []int64 // per node; zero for depots
	Allow    DropConfig

	// Two routing profiles: the center class and everyone else. Each is
	// a full arc-cost table derived from the distance matrix and the
	// zone rules, so backends do plain lookups instead of re-deciding
	// the business rule per arc.
	profileCenter [][]int64
	profileOther  [][]int64
}

// BuildProblem lays out nodes (depots first, then customers in input
// order), expands enabled vehicle specs into units bound to their depot
// indices, and precomputes the per-class cost profiles.
func BuildProblem(
	customers []domain.Customer,
	fleet domain.Fleet,
	depots []domain.Coordinate,
	m *domain.Matrix,
	profile ProfileConfig,
	drop DropConfig,
) (*Problem, error) {
	d := len(depots)
	if m.Size() != d+len(customers) {
		return nil, fmt.Errorf("build problem: matrix size %d does not match %d depots + %d customers",
			m.Size(), d, len(customers))
	}

	p := &Problem{
		Depots:    depots,
		Customers: customers,
		Matrix:    m,
		DemandU:   make([]int64, m.Size()),
		InZone:    make([]bool, m.Size()),
		DropCost:  make([]int64, m.Size()),
		Allow:     drop,
	}

	for i, c := range customers {
		node := d + i
		p.DemandU[node] = int64(math.Round(c.Volume * volumeScale))
		if profile.RadiusKm > 0 {
			p.InZone[node] = c.Coords.InRadiusKm(profile.Center, profile.RadiusKm)
		}
		p.DropCost[node] = dropCost(drop, c.Volume)
	}

	for specIdx, spec := range fleet {
		if !spec.Enabled || spec.Count <= 0 {
			continue
		}
		startNode := domain.DepotIndex(depots, spec.StartDepot)
		maxDist := int64(0)
		if spec.MaxDistanceKm > 0 {
			maxDist = int64(spec.MaxDistanceKm) * 1000
		}
		for unit := 0; unit < spec.Count; unit++ {
			p.Units = append(p.Units, Unit{
				SpecIndex:  specIdx,
				UnitIndex:  unit,
				Class:      spec.Class,
				CapacityU:  int64(spec.Capacity) * volumeScale,
				MaxDistM:   maxDist,
				MaxStops:   spec.MaxStops,
				MaxTimeSec: int64(spec.MaxTimeHours) * 3600,
				ServiceSec: int64(spec.ServiceTimeMinutes) * 60,
				StartMin:   spec.StartTimeMinutes,
				StartNode:  startNode,
				EndNode:    startNode,
				TSPOrigin:  spec.EffectiveTSPOrigin(),
			})
		}
	}

	p.buildProfiles(profile)
	return p, nil
}

func dropCost(drop DropConfig, volume float64) int64 {
	if drop.PerVolume > 0 {
		return drop.Base + int64(math.Round(volume*drop.PerVolume))
	}
	return drop.FixedPenalty
}

// buildProfiles precomputes the two arc-cost tables. The surcharges and
// the discount only apply on arcs whose destination is a customer;
// returning to a depot always costs the plain distance.
func (p *Problem) buildProfiles(cfg ProfileConfig) {
	n := p.Matrix.Size()
	p.profileCenter = make([][]int64, n)
	p.profileOther = make([][]int64, n)

	for from := 0; from < n; from++ {
		p.profileCenter[from] = make([]int64, n)
		p.profileOther[from] = make([]int64, n)
		for to := 0; to < n; to++ {
			base := p.Matrix.Dist(from, to)
			center, other := base, base
			if cfg.EnableRestrictions && to >= len(p.Depots) {
				if p.InZone[to] {
					center = int64(math.Round(float64(base) * cfg.DiscountCenter))
					other = base + cfg.PenaltyIntoZone
				} else {
					center = base + cfg.PenaltyOutOfZone
				}
			}
			p.profileCenter[from][to] = center
			p.profileOther[from][to] = other
		}
	}
}

// ArcCost returns the profile cost of traveling from -> to for a unit's
// class.
func (p *Problem) ArcCost(u *Unit, from, to int) int64 {
	if u.Class == domain.ClassCenter {
		return p.profileCenter[from][to]
	}
	return p.profileOther[from][to]
}

func (p *Problem) NumDepots() int    { return len(p.Depots) }
func (p *Problem) NumCustomers() int { return len(p.Customers) }

// CustomerNodes lists the node indices of all customers.
func (p *Problem) CustomerNodes() []int {
	nodes := make([]int, len(p.Customers))
	for i := range p.Customers {
		nodes[i] = len(p.Depots) + i
	}
	return nodes
}

// RouteMetrics are the authoritative per-route totals recomputed from
// the adjusted matrix plus the unit's service time, never from profile
// costs.
type RouteMetrics struct {
	DistM      int64
	TravelSec  int64
	ServiceSec int64
	DemandU    int64
}

func (rm RouteMetrics) TotalSec() int64 { return rm.TravelSec + rm.ServiceSec }

// EvalRoute walks start depot -> customers -> end depot and accumulates
// real-matrix metrics.
func (p *Problem) EvalRoute(u *Unit, seq []int) RouteMetrics {
	var rm RouteMetrics
	if len(seq) == 0 {
		return rm
	}
	prev := u.StartNode
	for _, node := range seq {
		rm.DistM += p.Matrix.Dist(prev, node)
		rm.TravelSec += p.Matrix.Dur(prev, node)
		rm.DemandU += p.DemandU[node]
		prev = node
	}
	rm.DistM += p.Matrix.Dist(prev, u.EndNode)
	rm.TravelSec += p.Matrix.Dur(prev, u.EndNode)
	rm.ServiceSec = u.ServiceSec * int64(len(seq))
	return rm
}

// RouteFeasible checks the four dimensions: capacity, distance, stops
// and time. Stops count customers only; depot nodes contribute nothing.
func (p *Problem) RouteFeasible(u *Unit, seq []int) bool {
	if u.MaxStops > 0 && len(seq) > u.MaxStops {
		return false
	}
	rm := p.EvalRoute(u, seq)
	if rm.DemandU > u.CapacityU {
		return false
	}
	maxDist := u.MaxDistM
	if maxDist == 0 {
		maxDist = noLimit
	}
	if rm.DistM > maxDist {
		return false
	}
	maxTime := u.MaxTimeSec
	if maxTime == 0 {
		maxTime = noLimit
	}
	return rm.TotalSec() <= maxTime
}

// RouteProfileCost is the solver-internal objective contribution of one
// route: profile arcs from the start depot through the sequence and home.
func (p *Problem) RouteProfileCost(u *Unit, seq []int) int64 {
	if len(seq) == 0 {
		return 0
	}
	cost := int64(0)
	prev := u.StartNode
	for _, node := range seq {
		cost += p.ArcCost(u, prev, node)
		prev = node
	}
	cost += p.ArcCost(u, prev, u.EndNode)
	return cost
}

// Candidate is one backend's answer: a customer-node sequence per unit
// plus the dropped customer nodes. ID is assigned deterministically by
// the producing worker so winner tie-breaks are stable.
type Candidate struct {
	ID      string
	Routes  [][]int
	Dropped []int
	Cost    int64
}

// NewCandidate allocates an empty candidate shaped for the problem.
func NewCandidate(p *Problem, id string) *Candidate {
	return &Candidate{ID: id, Routes: make([][]int, len(p.Units))}
}

// Clone deep-copies the candidate.
func (c *Candidate) Clone() *Candidate {
	out := &Candidate{
		ID:      c.ID,
		Routes:  make([][]int, len(c.Routes)),
		Dropped: append([]int(nil), c.Dropped...),
		Cost:    c.Cost,
	}
	for i, r := range c.Routes {
		out.Routes[i] = append([]int(nil), r...)
	}
	return out
}

// Evaluate recomputes the candidate's fitness: profile route costs plus
// dropping penalties.
func (p *Problem) Evaluate(c *Candidate) int64 {
	cost := int64(0)
	for ui := range c.Routes {
		cost += p.RouteProfileCost(&p.Units[ui], c.Routes[ui])
	}
	for _, node := range c.Dropped {
		cost += p.DropCost[node]
	}
	c.Cost = cost
	return cost
}

// Validate checks the solution contract: partition (every customer on
// exactly one route or dropped), the four route dimensions, and the
// dropping policy.
func (p *Problem) Validate(c *Candidate) error {
	seen := make(map[int]int, p.NumCustomers())
	for ui, seq := range c.Routes {
		if !p.RouteFeasible(&p.Units[ui], seq) {
			return fmt.Errorf("unit %d route violates a dimension limit", ui)
		}
		for _, node := range seq {
			if node < p.NumDepots() || node >= p.Matrix.Size() {
				return fmt.Errorf("unit %d visits non-customer node %d", ui, node)
			}
			seen[node]++
		}
	}
	for node, count := range seen {
		if count > 1 {
			return fmt.Errorf("customer node %d appears %d times", node, count)
		}
	}
	for _, node := range c.Dropped {
		if seen[node] > 0 {
			return fmt.Errorf("customer node %d both routed and dropped", node)
		}
		seen[node]++
	}
	if len(seen) != p.NumCustomers() {
		return fmt.Errorf("partition covers %d of %d customers", len(seen), p.NumCustomers())
	}
	if !p.Allow.Allow && len(c.Dropped) > 0 {
		return fmt.Errorf("%d customers dropped with skipping disabled", len(c.Dropped))
	}
	return nil
}

// ServedDemand sums the demand units on all routes.
func (p *Problem) ServedDemand(c *Candidate) int64 {
	total := int64(0)
	for _, seq := range c.Routes {
		for _, node := range seq {
			total += p.DemandU[node]
		}
	}
	return total
}

// UsedVehicles counts nonempty routes.
func (c *Candidate) UsedVehicles() int {
	used := 0
	for _, seq := range c.Routes {
		if len(seq) > 0 {
			used++
		}
	}
	return used
}
