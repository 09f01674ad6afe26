package solver

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"fleet-route-planner/internal/platform/obs"
)

// Backend identifiers for Config.Backend.
const (
	BackendSearch = "search" // multi-strategy construct + metaheuristic
	BackendALNS   = "alns"   // iterated LNS over routing profiles
)

// Config mirrors the cvrp configuration section.
type Config struct {
	Backend                  string
	TimeLimit                time.Duration
	FirstSolutionStrategy    string
	LocalSearchMetaheuristic string
	Lambda                   float64
	LNSTimeLimit             time.Duration
	LNSNumNodes              int
	LNSNumArcs               int

	EnableParallel         bool
	NumWorkers             int // <= 0: cores - 1
	ParallelStrategies     []string
	ParallelMetaheuristics []string
}

func (c Config) workers() int {
	if c.NumWorkers > 0 {
		return c.NumWorkers
	}
	w := runtime.NumCPU() - 1
	if w < 1 {
		w = 1
	}
	return w
}

// Result pairs the winning candidate with how it was obtained.
type Result struct {
	Candidate *Candidate
	Degraded  bool
}

// Solve runs the configured backend and falls back to the greedy
// assignment when no feasible candidate emerges within the budget. An
// empty problem (no customers or no units) yields an empty candidate,
// not an error.
func Solve(ctx context.Context, p *Problem, cfg Config) (_ *Result, err error) {
	defer obs.Time(ctx, "solver.Solve")(&err)

	if p.NumCustomers() == 0 || len(p.Units) == 0 {
		empty := NewCandidate(p, "empty")
		empty.Dropped = p.CustomerNodes()
		p.Evaluate(empty)
		return &Result{Candidate: empty}, nil
	}

	timeLimit := cfg.TimeLimit
	if timeLimit <= 0 {
		timeLimit = 30 * time.Second
	}
	deadline := time.Now().Add(timeLimit)

	var candidates []*Candidate
	switch cfg.Backend {
	case BackendALNS:
		backend := &ALNSBackend{Options: SearchOptions{
			Deadline:   deadline,
			Seed:       1,
			Lambda:     cfg.Lambda,
			StepBudget: cfg.LNSTimeLimit,
			MaxNodes:   cfg.LNSNumNodes,
			MaxArcs:    cfg.LNSNumArcs,
		}}
		cand, err := backend.Solve(ctx, p, "alns-00")
		if err != nil {
			log.Printf("solver: alns backend failed: %v", err)
		} else {
			candidates = append(candidates, cand)
		}
	case BackendSearch, "":
		if cfg.EnableParallel {
			candidates = solveParallel(ctx, p, cfg, deadline)
			break
		}
		strategy, err := ParseStrategy(cfg.FirstSolutionStrategy)
		if err != nil {
			return nil, err
		}
		meta, err := ParseMetaheuristic(cfg.LocalSearchMetaheuristic)
		if err != nil {
			return nil, err
		}
		backend := &SearchBackend{
			Strategy: strategy,
			Meta:     meta,
			Options: SearchOptions{
				Deadline:   deadline,
				Seed:       1,
				Lambda:     cfg.Lambda,
				StepBudget: cfg.LNSTimeLimit,
				MaxNodes:   cfg.LNSNumNodes,
				MaxArcs:    cfg.LNSNumArcs,
			},
		}
		cand, err := backend.Solve(ctx, p, "search-00")
		if err != nil {
			log.Printf("solver: search backend failed: %v", err)
		} else {
			candidates = append(candidates, cand)
		}
	default:
		return nil, fmt.Errorf("unknown solver backend %q", cfg.Backend)
	}

	if winner := SelectWinner(p, candidates); winner != nil {
		return &Result{Candidate: winner}, nil
	}

	log.Printf("solver: no feasible candidate from backend %q, using greedy fallback", cfg.Backend)
	fallback := GreedyFallback(p, "greedy")
	return &Result{Candidate: fallback, Degraded: true}, nil
}

// solveParallel launches W independent workers with (strategy,
// metaheuristic) pairs drawn cyclically from the configured lists.
// Workers share the immutable problem but nothing mutable; each is
// seeded by its index, and results come back over a bounded channel
// drained after all workers join.
func solveParallel(ctx context.Context, p *Problem, cfg Config, deadline time.Time) []*Candidate {
	workers := cfg.workers()

	strategies := make([]Strategy, 0, len(cfg.ParallelStrategies))
	for _, s := range cfg.ParallelStrategies {
		parsed, err := ParseStrategy(s)
		if err != nil {
			log.Printf("solver: skipping %v", err)
			continue
		}
		strategies = append(strategies, parsed)
	}
	metas := make([]Metaheuristic, 0, len(cfg.ParallelMetaheuristics))
	for _, m := range cfg.ParallelMetaheuristics {
		parsed, err := ParseMetaheuristic(m)
		if err != nil {
			log.Printf("solver: skipping %v", err)
			continue
		}
		metas = append(metas, parsed)
	}
	pairs := cyclicPairs(strategies, metas, workers)

	results := make(chan *Candidate, workers)
	var wg sync.WaitGroup
	for i, pair := range pairs {
		wg.Add(1)
		go func(idx int, pair strategyPair) {
			defer wg.Done()
			backend := &SearchBackend{
				Strategy: pair.strategy,
				Meta:     pair.meta,
				Options: SearchOptions{
					Deadline:   deadline,
					Seed:       int64(idx + 1),
					Lambda:     cfg.Lambda,
					StepBudget: cfg.LNSTimeLimit,
					MaxNodes:   cfg.LNSNumNodes,
					MaxArcs:    cfg.LNSNumArcs,
				},
			}
			id := fmt.Sprintf("w%02d-%s-%s", idx, pair.strategy, pair.meta)
			cand, err := backend.Solve(ctx, p, id)
			if err != nil {
				log.Printf("solver: worker %d failed: %v", idx, err)
				results <- nil
				return
			}
			log.Printf("solver: worker %d done strategy=%s meta=%s cost=%d dropped=%d",
				idx, pair.strategy, pair.meta, cand.Cost, len(cand.Dropped))
			results <- cand
		}(i, pair)
	}
	wg.Wait()
	close(results)

	var candidates []*Candidate
	for cand := range results {
		if cand != nil {
			candidates = append(candidates, cand)
		}
	}
	return candidates
}
