package solver

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"fleet-route-planner/internal/platform/obs"
)

// Metaheuristic names the local-search escape strategies.
type Metaheuristic string

const (
	MetaAutomatic          Metaheuristic = "AUTOMATIC"
	MetaGuidedLocalSearch  Metaheuristic = "GUIDED_LOCAL_SEARCH"
	MetaSimulatedAnnealing Metaheuristic = "SIMULATED_ANNEALING"
	MetaTabuSearch         Metaheuristic = "TABU_SEARCH"
)

func ParseMetaheuristic(s string) (Metaheuristic, error) {
	switch Metaheuristic(s) {
	case MetaAutomatic, MetaGuidedLocalSearch, MetaSimulatedAnnealing, MetaTabuSearch:
		return Metaheuristic(s), nil
	case "":
		return MetaAutomatic, nil
	}
	return "", fmt.Errorf("unknown local-search metaheuristic %q", s)
}

// SearchOptions bound one improvement run.
type SearchOptions struct {
	Deadline time.Time
	Seed     int64

	// Lambda weighs the guided-local-search penalty term.
	Lambda float64

	// StepBudget caps one descent to a local optimum, keeping the
	// search moving even on large neighborhoods.
	StepBudget time.Duration

	// Neighborhood bounds: how many nodes and arcs one improvement step
	// may consider. Zero means unbounded.
	MaxNodes int
	MaxArcs  int
}

// maxMoves converts the node/arc bounds into a per-step move ceiling.
func (o SearchOptions) maxMoves() int {
	if o.MaxNodes <= 0 && o.MaxArcs <= 0 {
		return 0
	}
	if o.MaxNodes <= 0 {
		return o.MaxArcs
	}
	if o.MaxArcs <= 0 {
		return o.MaxNodes
	}
	return o.MaxNodes * o.MaxArcs
}

func (o SearchOptions) stepDeadline() time.Time {
	if o.StepBudget <= 0 {
		return o.Deadline
	}
	step := time.Now().Add(o.StepBudget)
	if step.Before(o.Deadline) {
		return step
	}
	return o.Deadline
}

// boundMoves samples the neighborhood with a deterministic stride when
// it exceeds the configured ceiling.
func boundMoves(moves []move, max int) []move {
	if max <= 0 || len(moves) <= max {
		return moves
	}
	stride := (len(moves) + max - 1) / max
	sampled := make([]move, 0, max)
	for i := 0; i < len(moves); i += stride {
		sampled = append(sampled, moves[i])
	}
	return sampled
}

// Improve runs the chosen metaheuristic until the deadline and returns
// the best candidate found. The input candidate is not mutated.
func Improve(ctx context.Context, p *Problem, cand *Candidate, meta Metaheuristic, opts SearchOptions) *Candidate {
	switch meta {
	case MetaSimulatedAnnealing:
		return improveAnnealing(ctx, p, cand, opts)
	case MetaTabuSearch:
		return improveTabu(ctx, p, cand, opts)
	default:
		return improveGuided(ctx, p, cand, opts)
	}
}

type move struct {
	apply func(c *Candidate) bool // mutate in place; false = infeasible
	node  int                     // customer moved, for tabu keying
}

// enumerateMoves yields the relocate / swap / 2-opt / or-opt / drop /
// reinsert neighborhood of a candidate. Order is deterministic.
func enumerateMoves(p *Problem, c *Candidate) []move {
	var moves []move

	// Relocate: customer to any position of any unit.
	for a := range c.Routes {
		for i := range c.Routes[a] {
			node := c.Routes[a][i]
			for b := range c.Routes {
				limit := len(c.Routes[b])
				for pos := 0; pos <= limit; pos++ {
					if a == b && (pos == i || pos == i+1) {
						continue
					}
					a, i, b, pos := a, i, b, pos
					moves = append(moves, move{node: node, apply: func(c *Candidate) bool {
						return applyRelocate(p, c, a, i, b, pos)
					}})
				}
			}
		}
	}

	// Swap: exchange two customers across different units.
	for a := range c.Routes {
		for i := range c.Routes[a] {
			for b := a + 1; b < len(c.Routes); b++ {
				for j := range c.Routes[b] {
					a, i, b, j := a, i, b, j
					moves = append(moves, move{node: c.Routes[a][i], apply: func(c *Candidate) bool {
						return applySwap(p, c, a, i, b, j)
					}})
				}
			}
		}
	}

	// 2-opt: reverse a segment within one route.
	for a := range c.Routes {
		n := len(c.Routes[a])
		for i := 0; i < n-1; i++ {
			for k := i + 1; k < n; k++ {
				a, i, k := a, i, k
				moves = append(moves, move{node: c.Routes[a][i], apply: func(c *Candidate) bool {
					return applyTwoOpt(p, c, a, i, k)
				}})
			}
		}
	}

	// Or-opt: shift a 2..3 segment within one route.
	for a := range c.Routes {
		n := len(c.Routes[a])
		for segLen := 2; segLen <= 3; segLen++ {
			for i := 0; i+segLen <= n; i++ {
				for pos := 0; pos <= n-segLen; pos++ {
					if pos >= i && pos <= i+segLen {
						continue
					}
					a, i, segLen, pos := a, i, segLen, pos
					moves = append(moves, move{node: c.Routes[a][i], apply: func(c *Candidate) bool {
						return applyOrOpt(p, c, a, i, segLen, pos)
					}})
				}
			}
		}
	}

	// Dropping moves, when the policy allows paying the penalty.
	if p.Allow.Allow {
		for a := range c.Routes {
			for i := range c.Routes[a] {
				a, i := a, i
				moves = append(moves, move{node: c.Routes[a][i], apply: func(c *Candidate) bool {
					return applyDrop(c, a, i)
				}})
			}
		}
		for di := range c.Dropped {
			di := di
			moves = append(moves, move{node: c.Dropped[di], apply: func(c *Candidate) bool {
				return applyReinsert(p, c, di)
			}})
		}
	}

	return moves
}

func applyRelocate(p *Problem, c *Candidate, a, i, b, pos int) bool {
	node := c.Routes[a][i]
	newA := append(append([]int(nil), c.Routes[a][:i]...), c.Routes[a][i+1:]...)
	var newB []int
	if a == b {
		adj := pos
		if pos > i {
			adj--
		}
		newB = insertCopy(newA, node, adj)
		if !p.RouteFeasible(&p.Units[a], newB) {
			return false
		}
		c.Routes[a] = newB
		return true
	}
	newB = insertCopy(c.Routes[b], node, pos)
	if !p.RouteFeasible(&p.Units[a], newA) || !p.RouteFeasible(&p.Units[b], newB) {
		return false
	}
	c.Routes[a] = newA
	c.Routes[b] = newB
	return true
}

func applySwap(p *Problem, c *Candidate, a, i, b, j int) bool {
	newA := append([]int(nil), c.Routes[a]...)
	newB := append([]int(nil), c.Routes[b]...)
	newA[i], newB[j] = newB[j], newA[i]
	if !p.RouteFeasible(&p.Units[a], newA) || !p.RouteFeasible(&p.Units[b], newB) {
		return false
	}
	c.Routes[a] = newA
	c.Routes[b] = newB
	return true
}

func applyTwoOpt(p *Problem, c *Candidate, a, i, k int) bool {
	seq := append([]int(nil), c.Routes[a]...)
	for x, y := i, k; x < y; x, y = x+1, y-1 {
		seq[x], seq[y] = seq[y], seq[x]
	}
	if !p.RouteFeasible(&p.Units[a], seq) {
		return false
	}
	c.Routes[a] = seq
	return true
}

func applyOrOpt(p *Problem, c *Candidate, a, i, segLen, pos int) bool {
	orig := c.Routes[a]
	seg := append([]int(nil), orig[i:i+segLen]...)
	rest := append(append([]int(nil), orig[:i]...), orig[i+segLen:]...)
	adj := pos
	if pos > i {
		adj -= segLen
	}
	if adj < 0 || adj > len(rest) {
		return false
	}
	seq := make([]int, 0, len(orig))
	seq = append(seq, rest[:adj]...)
	seq = append(seq, seg...)
	seq = append(seq, rest[adj:]...)
	if !p.RouteFeasible(&p.Units[a], seq) {
		return false
	}
	c.Routes[a] = seq
	return true
}

func applyDrop(c *Candidate, a, i int) bool {
	node := c.Routes[a][i]
	c.Routes[a] = append(append([]int(nil), c.Routes[a][:i]...), c.Routes[a][i+1:]...)
	c.Dropped = append(c.Dropped, node)
	return true
}

func applyReinsert(p *Problem, c *Candidate, di int) bool {
	node := c.Dropped[di]
	spot := bestInsertion(p, c, node)
	if !spot.ok {
		return false
	}
	c.Dropped = append(append([]int(nil), c.Dropped[:di]...), c.Dropped[di+1:]...)
	c.Routes[spot.unit] = insertCopy(c.Routes[spot.unit], node, spot.pos)
	return true
}

// descend applies best-improvement steps on the objective until a local
// optimum or the deadline.
func descend(ctx context.Context, p *Problem, c *Candidate, objective func(*Candidate) int64, deadline time.Time, maxMoves int) *Candidate {
	current := c.Clone()
	currentObj := objective(current)

	for {
		if ctx.Err() != nil || time.Now().After(deadline) {
			return current
		}
		obs.SolverIterations.WithLabelValues("search").Inc()

		var best *Candidate
		bestObj := currentObj
		for _, mv := range boundMoves(enumerateMoves(p, current), maxMoves) {
			trial := current.Clone()
			if !mv.apply(trial) {
				continue
			}
			if obj := objective(trial); obj < bestObj {
				best = trial
				bestObj = obj
			}
		}
		if best == nil {
			return current
		}
		current = best
		currentObj = bestObj
	}
}

// improveGuided is guided local search: descend on an augmented
// objective; at each local optimum penalize the highest-utility arcs so
// the search escapes without losing track of the true best.
func improveGuided(ctx context.Context, p *Problem, cand *Candidate, opts SearchOptions) *Candidate {
	lambda := opts.Lambda
	if lambda <= 0 {
		lambda = 0.8
	}

	penalties := make(map[[2]int]int64)
	avgArc := averageArcCost(p)
	weight := int64(math.Round(lambda * float64(avgArc)))
	if weight <= 0 {
		weight = 1
	}

	augmented := func(c *Candidate) int64 {
		obj := p.Evaluate(c)
		for ui := range c.Routes {
			u := &p.Units[ui]
			prev := u.StartNode
			for _, node := range c.Routes[ui] {
				obj += weight * penalties[[2]int{prev, node}]
				prev = node
			}
		}
		return obj
	}

	best := cand.Clone()
	p.Evaluate(best)
	current := cand.Clone()

	for ctx.Err() == nil && time.Now().Before(opts.Deadline) {
		current = descend(ctx, p, current, augmented, opts.stepDeadline(), opts.maxMoves())

		if cost := p.Evaluate(current.Clone()); cost < best.Cost {
			best = current.Clone()
			p.Evaluate(best)
			obs.SolverImprovements.WithLabelValues("search").Inc()
		}

		if time.Now().After(opts.Deadline) {
			break
		}
		penalizeWorstArcs(p, current, penalties)
	}
	p.Evaluate(best)
	return best
}

// penalizeWorstArcs bumps the penalty of the used arcs with the highest
// utility cost/(1+penalty), the classic GLS escape step.
func penalizeWorstArcs(p *Problem, c *Candidate, penalties map[[2]int]int64) {
	bestUtil := int64(-1)
	var targets [][2]int
	for ui := range c.Routes {
		u := &p.Units[ui]
		prev := u.StartNode
		for _, node := range c.Routes[ui] {
			arc := [2]int{prev, node}
			util := p.ArcCost(u, prev, node) / (1 + penalties[arc])
			if util > bestUtil {
				bestUtil = util
				targets = targets[:0]
				targets = append(targets, arc)
			} else if util == bestUtil {
				targets = append(targets, arc)
			}
			prev = node
		}
	}
	for _, arc := range targets {
		penalties[arc]++
	}
}

// improveAnnealing is simulated annealing over random neighborhood
// moves with a geometric cooling schedule.
func improveAnnealing(ctx context.Context, p *Problem, cand *Candidate, opts SearchOptions) *Candidate {
	rng := rand.New(rand.NewSource(opts.Seed))

	current := cand.Clone()
	p.Evaluate(current)
	best := current.Clone()

	temp := float64(averageArcCost(p))
	if temp <= 0 {
		temp = 1
	}
	const cooling = 0.997

	for ctx.Err() == nil && time.Now().Before(opts.Deadline) {
		obs.SolverIterations.WithLabelValues("search").Inc()

		moves := boundMoves(enumerateMoves(p, current), opts.maxMoves())
		if len(moves) == 0 {
			break
		}
		trial := current.Clone()
		if !moves[rng.Intn(len(moves))].apply(trial) {
			continue
		}
		p.Evaluate(trial)

		delta := float64(trial.Cost - current.Cost)
		if delta < 0 || rng.Float64() < math.Exp(-delta/(temp+1e-9)) {
			current = trial
			if current.Cost < best.Cost {
				best = current.Clone()
				obs.SolverImprovements.WithLabelValues("search").Inc()
			}
		}
		temp *= cooling
	}
	return best
}

// improveTabu is best-move tabu search keyed on the relocated customer,
// with aspiration on new global bests.
func improveTabu(ctx context.Context, p *Problem, cand *Candidate, opts SearchOptions) *Candidate {
	const tenure = 12

	current := cand.Clone()
	p.Evaluate(current)
	best := current.Clone()

	tabu := make(map[int]int) // node -> iteration it becomes legal
	iter := 0

	for ctx.Err() == nil && time.Now().Before(opts.Deadline) {
		iter++
		obs.SolverIterations.WithLabelValues("search").Inc()

		var bestTrial *Candidate
		bestNode := -1
		bestObj := int64(math.MaxInt64)
		for _, mv := range boundMoves(enumerateMoves(p, current), opts.maxMoves()) {
			trial := current.Clone()
			if !mv.apply(trial) {
				continue
			}
			p.Evaluate(trial)
			if tabu[mv.node] > iter && trial.Cost >= best.Cost {
				continue // tabu without aspiration
			}
			if trial.Cost < bestObj {
				bestTrial = trial
				bestObj = trial.Cost
				bestNode = mv.node
			}
		}
		if bestTrial == nil {
			break
		}
		current = bestTrial
		tabu[bestNode] = iter + tenure
		if current.Cost < best.Cost {
			best = current.Clone()
			obs.SolverImprovements.WithLabelValues("search").Inc()
		}
	}
	return best
}

func averageArcCost(p *Problem) int64 {
	n := p.Matrix.Size()
	if n < 2 {
		return 1
	}
	total := int64(0)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			total += p.Matrix.Dist(i, j)
		}
	}
	return total / int64(n*n-n)
}
