package solver

import (
	"fmt"
	"math"
	"sort"
)

// Strategy names the first-solution heuristics. The set mirrors the
// configurable strategy list consumed by the parallel mode.
type Strategy string

const (
	StrategyAutomatic                 Strategy = "AUTOMATIC"
	StrategySavings                   Strategy = "SAVINGS"
	StrategyParallelCheapestInsertion Strategy = "PARALLEL_CHEAPEST_INSERTION"
	StrategyPathCheapestArc           Strategy = "PATH_CHEAPEST_ARC"
	StrategyChristofides              Strategy = "CHRISTOFIDES"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyAutomatic, StrategySavings, StrategyParallelCheapestInsertion,
		StrategyPathCheapestArc, StrategyChristofides:
		return Strategy(s), nil
	case "":
		return StrategyAutomatic, nil
	}
	return "", fmt.Errorf("unknown first-solution strategy %q", s)
}

// Construct builds an initial candidate with the chosen heuristic.
// Customers no heuristic could place end up in Dropped; whether that is
// acceptable is decided by validation, not here.
func Construct(p *Problem, strategy Strategy, id string) *Candidate {
	var cand *Candidate
	switch strategy {
	case StrategySavings:
		cand = constructSavings(p, id)
	case StrategyPathCheapestArc:
		cand = constructPathCheapestArc(p, id)
	case StrategyChristofides:
		cand = constructChristofides(p, id)
	default:
		cand = constructParallelCheapestInsertion(p, id)
	}
	p.Evaluate(cand)
	return cand
}

// insertionSpot is the cheapest feasible placement found for a node.
type insertionSpot struct {
	unit  int
	pos   int
	delta int64
	ok    bool
}

// bestInsertion scans every unit and position for the cheapest feasible
// placement of node, pricing by profile cost delta. Ties resolve to the
// lowest unit then lowest position, keeping construction deterministic.
func bestInsertion(p *Problem, cand *Candidate, node int) insertionSpot {
	best := insertionSpot{delta: math.MaxInt64}
	for ui := range p.Units {
		u := &p.Units[ui]
		seq := cand.Routes[ui]
		if u.MaxStops > 0 && len(seq) >= u.MaxStops {
			continue
		}
		for pos := 0; pos <= len(seq); pos++ {
			delta := insertionDelta(p, u, seq, node, pos)
			if delta >= best.delta {
				continue
			}
			trial := insertCopy(seq, node, pos)
			if !p.RouteFeasible(u, trial) {
				continue
			}
			best = insertionSpot{unit: ui, pos: pos, delta: delta, ok: true}
		}
	}
	return best
}

// insertionDelta prices inserting node at pos: prev->node + node->next
// minus the replaced prev->next arc, in profile cost units.
func insertionDelta(p *Problem, u *Unit, seq []int, node, pos int) int64 {
	prev := u.StartNode
	if pos > 0 {
		prev = seq[pos-1]
	}
	next := u.EndNode
	if pos < len(seq) {
		next = seq[pos]
	}
	return p.ArcCost(u, prev, node) + p.ArcCost(u, node, next) - p.ArcCost(u, prev, next)
}

func insertCopy(seq []int, node, pos int) []int {
	out := make([]int, 0, len(seq)+1)
	out = append(out, seq[:pos]...)
	out = append(out, node)
	out = append(out, seq[pos:]...)
	return out
}

// constructParallelCheapestInsertion repeatedly inserts the globally
// cheapest (customer, unit, position) among all unrouted customers.
func constructParallelCheapestInsertion(p *Problem, id string) *Candidate {
	cand := NewCandidate(p, id)
	remaining := p.CustomerNodes()

	for len(remaining) > 0 {
		bestNode := -1
		var bestSpot insertionSpot
		bestSpot.delta = math.MaxInt64
		for _, node := range remaining {
			spot := bestInsertion(p, cand, node)
			if spot.ok && spot.delta < bestSpot.delta {
				bestSpot = spot
				bestNode = node
			}
		}
		if bestNode < 0 {
			break
		}
		cand.Routes[bestSpot.unit] = insertCopy(cand.Routes[bestSpot.unit], bestNode, bestSpot.pos)
		remaining = removeNode(remaining, bestNode)
	}

	cand.Dropped = remaining
	return cand
}

// constructPathCheapestArc extends each unit from its current head to
// the cheapest feasible unrouted customer until nothing fits, then moves
// on to the next unit.
func constructPathCheapestArc(p *Problem, id string) *Candidate {
	cand := NewCandidate(p, id)
	unrouted := make(map[int]bool, p.NumCustomers())
	for _, node := range p.CustomerNodes() {
		unrouted[node] = true
	}

	for ui := range p.Units {
		u := &p.Units[ui]
		current := u.StartNode
		for {
			bestNode, bestCost := -1, int64(math.MaxInt64)
			for _, node := range p.CustomerNodes() {
				if !unrouted[node] {
					continue
				}
				cost := p.ArcCost(u, current, node)
				if cost >= bestCost {
					continue
				}
				trial := append(append([]int(nil), cand.Routes[ui]...), node)
				if !p.RouteFeasible(u, trial) {
					continue
				}
				bestNode, bestCost = node, cost
			}
			if bestNode < 0 {
				break
			}
			cand.Routes[ui] = append(cand.Routes[ui], bestNode)
			delete(unrouted, bestNode)
			current = bestNode
		}
	}

	for _, node := range p.CustomerNodes() {
		if unrouted[node] {
			cand.Dropped = append(cand.Dropped, node)
		}
	}
	return cand
}

type savingsPair struct {
	i, j   int
	saving int64
}

// constructSavings is a Clarke-Wright variant: merge single-customer
// routes by descending savings relative to the central depot, bounded by
// the largest unit capacity, then hand the merged sequences to the
// cheapest feasible units.
func constructSavings(p *Problem, id string) *Candidate {
	cand := NewCandidate(p, id)
	nodes := p.CustomerNodes()
	if len(nodes) == 0 {
		return cand
	}

	maxCap := int64(0)
	maxStops := 0
	for i := range p.Units {
		if p.Units[i].CapacityU > maxCap {
			maxCap = p.Units[i].CapacityU
		}
		if p.Units[i].MaxStops > maxStops {
			maxStops = p.Units[i].MaxStops
		}
	}

	// Savings are priced on the shared non-center profile against the
	// central depot (node 0).
	costOf := func(a, b int) int64 { return p.profileOther[a][b] }

	pairs := make([]savingsPair, 0, len(nodes)*(len(nodes)-1)/2)
	for x := 0; x < len(nodes); x++ {
		for y := x + 1; y < len(nodes); y++ {
			i, j := nodes[x], nodes[y]
			s := costOf(0, i) + costOf(0, j) - costOf(i, j)
			pairs = append(pairs, savingsPair{i: i, j: j, saving: s})
		}
	}
	sort.SliceStable(pairs, func(a, b int) bool {
		if pairs[a].saving != pairs[b].saving {
			return pairs[a].saving > pairs[b].saving
		}
		if pairs[a].i != pairs[b].i {
			return pairs[a].i < pairs[b].i
		}
		return pairs[a].j < pairs[b].j
	})

	// Each customer starts alone; merges join route ends.
	routeOf := make(map[int]int, len(nodes))
	routes := make([][]int, 0, len(nodes))
	demand := make([]int64, 0, len(nodes))
	for _, node := range nodes {
		routeOf[node] = len(routes)
		routes = append(routes, []int{node})
		demand = append(demand, p.DemandU[node])
	}

	for _, pair := range pairs {
		ri, rj := routeOf[pair.i], routeOf[pair.j]
		if ri == rj {
			continue
		}
		a, b := routes[ri], routes[rj]
		if demand[ri]+demand[rj] > maxCap {
			continue
		}
		if maxStops > 0 && len(a)+len(b) > maxStops {
			continue
		}
		// Only endpoint-to-endpoint merges keep both chains intact.
		if a[len(a)-1] != pair.i || b[0] != pair.j {
			if b[len(b)-1] == pair.j && a[0] == pair.i {
				a, b = b, a
				ri, rj = rj, ri
			} else {
				continue
			}
		}
		merged := append(append([]int(nil), a...), b...)
		routes[ri] = merged
		demand[ri] += demand[rj]
		routes[rj] = nil
		for _, node := range merged {
			routeOf[node] = ri
		}
	}

	// Assign merged sequences, largest demand first, to the cheapest
	// feasible idle unit; sequences that fit nowhere fall back to
	// per-customer cheapest insertion.
	type mergedRoute struct {
		seq     []int
		demandU int64
	}
	var mergedRoutes []mergedRoute
	for ri, seq := range routes {
		if len(seq) > 0 {
			mergedRoutes = append(mergedRoutes, mergedRoute{seq: seq, demandU: demand[ri]})
		}
	}
	sort.SliceStable(mergedRoutes, func(a, b int) bool {
		if mergedRoutes[a].demandU != mergedRoutes[b].demandU {
			return mergedRoutes[a].demandU > mergedRoutes[b].demandU
		}
		return mergedRoutes[a].seq[0] < mergedRoutes[b].seq[0]
	})

	var leftovers []int
	for _, mr := range mergedRoutes {
		bestUnit, bestCost := -1, int64(math.MaxInt64)
		for ui := range p.Units {
			if len(cand.Routes[ui]) > 0 {
				continue
			}
			u := &p.Units[ui]
			if !p.RouteFeasible(u, mr.seq) {
				continue
			}
			cost := p.RouteProfileCost(u, mr.seq)
			if cost < bestCost {
				bestUnit, bestCost = ui, cost
			}
		}
		if bestUnit >= 0 {
			cand.Routes[bestUnit] = mr.seq
		} else {
			leftovers = append(leftovers, mr.seq...)
		}
	}

	for _, node := range leftovers {
		spot := bestInsertion(p, cand, node)
		if spot.ok {
			cand.Routes[spot.unit] = insertCopy(cand.Routes[spot.unit], node, spot.pos)
		} else {
			cand.Dropped = append(cand.Dropped, node)
		}
	}
	return cand
}

// constructChristofides approximates a Christofides-style start: build a
// nearest-neighbor giant tour over all customers from the central depot,
// then split it into unit routes greedily (route-first, cluster-second).
func constructChristofides(p *Problem, id string) *Candidate {
	cand := NewCandidate(p, id)
	nodes := p.CustomerNodes()
	if len(nodes) == 0 {
		return cand
	}

	unvisited := make(map[int]bool, len(nodes))
	for _, node := range nodes {
		unvisited[node] = true
	}
	tour := make([]int, 0, len(nodes))
	current := 0
	for len(unvisited) > 0 {
		bestNode, bestDist := -1, int64(math.MaxInt64)
		for _, node := range nodes {
			if !unvisited[node] {
				continue
			}
			d := p.Matrix.Dist(current, node)
			if d < bestDist || (d == bestDist && node < bestNode) {
				bestNode, bestDist = node, d
			}
		}
		tour = append(tour, bestNode)
		delete(unvisited, bestNode)
		current = bestNode
	}

	// Split the giant tour across units in order, extending while
	// feasible.
	pos := 0
	for ui := 0; ui < len(p.Units) && pos < len(tour); ui++ {
		u := &p.Units[ui]
		for pos < len(tour) {
			trial := append(append([]int(nil), cand.Routes[ui]...), tour[pos])
			if !p.RouteFeasible(u, trial) {
				break
			}
			cand.Routes[ui] = trial
			pos++
		}
	}

	// Whatever the split could not place gets a second chance at any
	// position before being dropped.
	for ; pos < len(tour); pos++ {
		spot := bestInsertion(p, cand, tour[pos])
		if spot.ok {
			cand.Routes[spot.unit] = insertCopy(cand.Routes[spot.unit], tour[pos], spot.pos)
		} else {
			cand.Dropped = append(cand.Dropped, tour[pos])
		}
	}
	return cand
}

func removeNode(nodes []int, node int) []int {
	for i, n := range nodes {
		if n == node {
			return append(nodes[:i], nodes[i+1:]...)
		}
	}
	return nodes
}
