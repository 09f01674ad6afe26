// Package tsp re-sequences a single route's customers against a TSP
// origin that may differ from the vehicle's operational depot.
package tsp

import (
	"math"
	"time"

	"fleet-route-planner/internal/domain"
)

// originNode is the virtual index of the tour origin inside the cost
// function.
const originNode = -1

// Optimize reorders the customer nodes to shorten the closed tour
// origin -> customers -> origin. Arc costs come from the adjusted
// matrix; arcs touching an origin that is not a matrix location fall
// back to a haversine estimate. The construction is nearest-neighbor,
// improved by 2-opt within the budget. The result is returned even if
// no improvement was found; the caller compares tour lengths.
func Optimize(origin domain.Coordinate, nodes []int, m *domain.Matrix, budget time.Duration) []int {
	if len(nodes) < 2 {
		return append([]int(nil), nodes...)
	}

	cost := costFunc(origin, m)
	deadline := time.Now().Add(budget)

	order := nearestNeighborOrder(nodes, cost)
	order = improveTwoOpt(order, cost, deadline)
	return order
}

// TourLength measures the closed tour from origin through nodes and
// back, with the same cost rules as Optimize.
func TourLength(origin domain.Coordinate, nodes []int, m *domain.Matrix) int64 {
	if len(nodes) == 0 {
		return 0
	}
	cost := costFunc(origin, m)
	total := cost(originNode, nodes[0])
	for i := 0; i < len(nodes)-1; i++ {
		total += cost(nodes[i], nodes[i+1])
	}
	total += cost(nodes[len(nodes)-1], originNode)
	return total
}

func costFunc(origin domain.Coordinate, m *domain.Matrix) func(a, b int) int64 {
	originIdx := -1
	key := origin.Key()
	for i, loc := range m.Locations {
		if loc.Key() == key {
			originIdx = i
			break
		}
	}

	return func(a, b int) int64 {
		if a == originNode {
			if originIdx >= 0 {
				return m.Dist(originIdx, b)
			}
			meters := domain.HaversineM(origin, m.Locations[b])
			return int64(math.Round(meters))
		}
		if b == originNode {
			if originIdx >= 0 {
				return m.Dist(a, originIdx)
			}
			meters := domain.HaversineM(m.Locations[a], origin)
			return int64(math.Round(meters))
		}
		return m.Dist(a, b)
	}
}

// nearestNeighborOrder builds the initial tour greedily from the origin.
// It is also the fallback when the improvement budget expires instantly.
func nearestNeighborOrder(nodes []int, cost func(a, b int) int64) []int {
	remaining := append([]int(nil), nodes...)
	order := make([]int, 0, len(nodes))
	current := originNode

	for len(remaining) > 0 {
		bestIdx := 0
		bestCost := cost(current, remaining[0])
		for i := 1; i < len(remaining); i++ {
			if c := cost(current, remaining[i]); c < bestCost {
				bestIdx, bestCost = i, c
			}
		}
		current = remaining[bestIdx]
		order = append(order, current)
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return order
}

// improveTwoOpt applies 2-opt passes on the closed tour until no
// improvement or the deadline.
func improveTwoOpt(order []int, cost func(a, b int) int64, deadline time.Time) []int {
	best := append([]int(nil), order...)
	n := len(best)

	tourLen := func(ord []int) int64 {
		total := cost(originNode, ord[0])
		for i := 0; i < n-1; i++ {
			total += cost(ord[i], ord[i+1])
		}
		return total + cost(ord[n-1], originNode)
	}

	bestLen := tourLen(best)
	improved := true
	for improved && time.Now().Before(deadline) {
		improved = false
		for i := 0; i < n-1; i++ {
			for k := i + 1; k < n; k++ {
				trial := append([]int(nil), best...)
				for x, y := i, k; x < y; x, y = x+1, y-1 {
					trial[x], trial[y] = trial[y], trial[x]
				}
				if l := tourLen(trial); l < bestLen {
					best = trial
					bestLen = l
					improved = true
				}
			}
		}
	}
	return best
}
