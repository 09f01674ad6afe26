package solver

import (
	"context"
	"fmt"
	"time"
)

// SearchBackend is the multi-strategy backend: a first-solution
// heuristic followed by a local-search metaheuristic, both drawn from
// closed strategy sets, under a hard wall-clock budget.
type SearchBackend struct {
	Strategy Strategy
	Meta     Metaheuristic
	Options  SearchOptions
}

// Solve constructs and improves one candidate. The returned candidate
// is the best found when the budget expires; it is never nil on a nil
// error.
func (b *SearchBackend) Solve(ctx context.Context, p *Problem, id string) (*Candidate, error) {
	if b.Options.Deadline.IsZero() {
		return nil, fmt.Errorf("search backend: no deadline set")
	}

	cand := Construct(p, b.Strategy, id)
	if time.Now().After(b.Options.Deadline) {
		return cand, nil
	}

	improved := Improve(ctx, p, cand, b.Meta, b.Options)
	improved.ID = id
	p.Evaluate(improved)
	return improved, nil
}

// strategyPair is one worker's configuration in parallel mode.
type strategyPair struct {
	strategy Strategy
	meta     Metaheuristic
}

// cyclicPairs draws (strategy, metaheuristic) pairs for W workers by
// walking both configured lists cyclically, so any worker count maps
// deterministically onto the lists.
func cyclicPairs(strategies []Strategy, metas []Metaheuristic, workers int) []strategyPair {
	if len(strategies) == 0 {
		strategies = []Strategy{StrategyAutomatic}
	}
	if len(metas) == 0 {
		metas = []Metaheuristic{MetaAutomatic}
	}
	pairs := make([]strategyPair, workers)
	for i := 0; i < workers; i++ {
		pairs[i] = strategyPair{
			strategy: strategies[i%len(strategies)],
			meta:     metas[i%len(metas)],
		}
	}
	return pairs
}
