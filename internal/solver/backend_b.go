package solver

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"fleet-route-planner/internal/platform/obs"
)

// ALNSBackend is the iterated local-search backend: adaptive
// removal/repair operators over the two precomputed routing profiles,
// with simulated-annealing acceptance and per-customer prizes for
// dropping. It runs under a single seed.
type ALNSBackend struct {
	Options SearchOptions
}

func (b *ALNSBackend) Solve(ctx context.Context, p *Problem, id string) (*Candidate, error) {
	if b.Options.Deadline.IsZero() {
		return nil, fmt.Errorf("alns backend: no deadline set")
	}

	rng := rand.New(rand.NewSource(b.Options.Seed))

	current := constructParallelCheapestInsertion(p, id)
	current = polishTwoOpt(p, current)
	p.Evaluate(current)
	best := current.Clone()

	// Operator weights: removal {random, related}, insertion
	// {greedy, regret-2}. Adapted by outcome as the search runs.
	remW := []float64{1, 1}
	insW := []float64{1, 1}

	temp := float64(averageArcCost(p))
	if temp <= 0 {
		temp = 1
	}
	const cooling = 0.995

	for ctx.Err() == nil && time.Now().Before(b.Options.Deadline) {
		obs.SolverIterations.WithLabelValues("alns").Inc()

		k := 1 + rng.Intn(3)
		op := rouletteSelect(remW, rng)
		ip := rouletteSelect(insW, rng)

		trial := current.Clone()
		var removed []int
		switch op {
		case 0:
			removed = randomRemoval(trial, k, rng)
		default:
			removed = relatedRemoval(p, trial, k, rng)
		}
		if len(removed) == 0 {
			break
		}

		var ok bool
		switch ip {
		case 0:
			ok = greedyRepair(p, trial, removed)
		default:
			ok = regretRepair(p, trial, removed)
		}
		if !ok {
			// Repair could not restore a legal candidate (skipping
			// disabled and no feasible slot): discard this iteration.
			temp *= cooling
			continue
		}

		trial = polishTwoOpt(p, trial)
		p.Evaluate(trial)

		delta := float64(trial.Cost - current.Cost)
		if delta < 0 || rng.Float64() < math.Exp(-delta/(temp+1e-9)) {
			current = trial
			if current.Cost < best.Cost {
				best = current.Clone()
				remW[op] += 0.1
				insW[ip] += 0.1
				obs.SolverImprovements.WithLabelValues("alns").Inc()
			} else {
				remW[op] += 0.01
				insW[ip] += 0.01
			}
		} else {
			remW[op] = math.Max(0.01, remW[op]*0.999)
			insW[ip] = math.Max(0.01, insW[ip]*0.999)
		}
		temp *= cooling
	}

	best.ID = id
	p.Evaluate(best)
	return best, nil
}

// randomRemoval pulls k routed customers out of the candidate.
func randomRemoval(c *Candidate, k int, rng *rand.Rand) []int {
	var routed [][2]int // (unit, index)
	for ui := range c.Routes {
		for i := range c.Routes[ui] {
			routed = append(routed, [2]int{ui, i})
		}
	}
	if len(routed) == 0 {
		return nil
	}

	var removed []int
	for n := 0; n < k && len(routed) > 0; n++ {
		pick := rng.Intn(len(routed))
		ui, idx := routed[pick][0], routed[pick][1]
		removed = append(removed, c.Routes[ui][idx])
		c.Routes[ui] = append(append([]int(nil), c.Routes[ui][:idx]...), c.Routes[ui][idx+1:]...)

		routed = routed[:0]
		for ui := range c.Routes {
			for i := range c.Routes[ui] {
				routed = append(routed, [2]int{ui, i})
			}
		}
	}
	return removed
}

// relatedRemoval removes a random seed customer plus its most related
// neighbors, scored by distance and demand similarity (Shaw removal).
func relatedRemoval(p *Problem, c *Candidate, k int, rng *rand.Rand) []int {
	var routed []int
	for ui := range c.Routes {
		routed = append(routed, c.Routes[ui]...)
	}
	if len(routed) == 0 {
		return nil
	}

	seed := routed[rng.Intn(len(routed))]

	type scored struct {
		node  int
		score int64
	}
	rel := make([]scored, 0, len(routed))
	for _, node := range routed {
		if node == seed {
			continue
		}
		demandGap := p.DemandU[node] - p.DemandU[seed]
		if demandGap < 0 {
			demandGap = -demandGap
		}
		rel = append(rel, scored{node: node, score: p.Matrix.Dist(seed, node) + demandGap})
	}
	sort.Slice(rel, func(i, j int) bool {
		if rel[i].score != rel[j].score {
			return rel[i].score < rel[j].score
		}
		return rel[i].node < rel[j].node
	})

	targets := map[int]bool{seed: true}
	for i := 0; i < len(rel) && len(targets) < k; i++ {
		targets[rel[i].node] = true
	}

	var removed []int
	for ui := range c.Routes {
		kept := c.Routes[ui][:0:0]
		for _, node := range c.Routes[ui] {
			if targets[node] {
				removed = append(removed, node)
			} else {
				kept = append(kept, node)
			}
		}
		c.Routes[ui] = kept
	}
	return removed
}

// greedyRepair reinserts removed customers cheapest-first. A customer
// with no feasible slot is dropped when the prize policy allows it;
// otherwise the repair fails.
func greedyRepair(p *Problem, c *Candidate, removed []int) bool {
	pending := append([]int(nil), removed...)
	for len(pending) > 0 {
		bestIdx := -1
		var bestSpot insertionSpot
		bestSpot.delta = math.MaxInt64
		for idx, node := range pending {
			spot := bestInsertion(p, c, node)
			if spot.ok && spot.delta < bestSpot.delta {
				bestSpot = spot
				bestIdx = idx
			}
		}
		if bestIdx < 0 {
			if !p.Allow.Allow {
				return false
			}
			c.Dropped = append(c.Dropped, pending...)
			return true
		}
		node := pending[bestIdx]
		c.Routes[bestSpot.unit] = insertCopy(c.Routes[bestSpot.unit], node, bestSpot.pos)
		pending = append(pending[:bestIdx], pending[bestIdx+1:]...)
	}
	return true
}

// regretRepair inserts the customer with the largest regret (gap
// between its best and second-best placements) first, so hard-to-place
// customers claim their slots early.
func regretRepair(p *Problem, c *Candidate, removed []int) bool {
	pending := append([]int(nil), removed...)
	for len(pending) > 0 {
		bestIdx := -1
		var bestSpot insertionSpot
		bestRegret := int64(-1)
		for idx, node := range pending {
			first, second := twoBestInsertions(p, c, node)
			if !first.ok {
				continue
			}
			regret := int64(math.MaxInt64)
			if second.ok {
				regret = second.delta - first.delta
			}
			if regret > bestRegret {
				bestRegret = regret
				bestSpot = first
				bestIdx = idx
			}
		}
		if bestIdx < 0 {
			if !p.Allow.Allow {
				return false
			}
			c.Dropped = append(c.Dropped, pending...)
			return true
		}
		node := pending[bestIdx]
		c.Routes[bestSpot.unit] = insertCopy(c.Routes[bestSpot.unit], node, bestSpot.pos)
		pending = append(pending[:bestIdx], pending[bestIdx+1:]...)
	}
	return true
}

func twoBestInsertions(p *Problem, c *Candidate, node int) (first, second insertionSpot) {
	first.delta = math.MaxInt64
	second.delta = math.MaxInt64
	for ui := range p.Units {
		u := &p.Units[ui]
		seq := c.Routes[ui]
		if u.MaxStops > 0 && len(seq) >= u.MaxStops {
			continue
		}
		for pos := 0; pos <= len(seq); pos++ {
			delta := insertionDelta(p, u, seq, node, pos)
			if delta >= second.delta {
				continue
			}
			trial := insertCopy(seq, node, pos)
			if !p.RouteFeasible(u, trial) {
				continue
			}
			spot := insertionSpot{unit: ui, pos: pos, delta: delta, ok: true}
			if delta < first.delta {
				second = first
				first = spot
			} else {
				second = spot
			}
		}
	}
	return first, second
}

// polishTwoOpt runs intra-route 2-opt to a local optimum on every route.
func polishTwoOpt(p *Problem, c *Candidate) *Candidate {
	out := c.Clone()
	for ui := range out.Routes {
		u := &p.Units[ui]
		seq := out.Routes[ui]
		improved := true
		for improved {
			improved = false
			for i := 0; i < len(seq)-1; i++ {
				for k := i + 1; k < len(seq); k++ {
					trial := append([]int(nil), seq...)
					for x, y := i, k; x < y; x, y = x+1, y-1 {
						trial[x], trial[y] = trial[y], trial[x]
					}
					if !p.RouteFeasible(u, trial) {
						continue
					}
					if p.RouteProfileCost(u, trial) < p.RouteProfileCost(u, seq) {
						seq = trial
						improved = true
					}
				}
			}
		}
		out.Routes[ui] = seq
	}
	return out
}

func rouletteSelect(weights []float64, rng *rand.Rand) int {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return 0
	}
	r := rng.Float64() * sum
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r <= acc {
			return i
		}
	}
	return len(weights) - 1
}
