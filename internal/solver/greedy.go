package solver

import "sort"

// GreedyFallback is the best-effort assignment used when no backend
// produced a feasible solution: customers sorted by demand descending,
// each placed at the cheapest feasible position across all units,
// otherwise dropped. The caller marks the resulting solution degraded.
func GreedyFallback(p *Problem, id string) *Candidate {
	cand := NewCandidate(p, id)

	nodes := p.CustomerNodes()
	sort.SliceStable(nodes, func(i, j int) bool {
		if p.DemandU[nodes[i]] != p.DemandU[nodes[j]] {
			return p.DemandU[nodes[i]] > p.DemandU[nodes[j]]
		}
		return nodes[i] < nodes[j]
	})

	for _, node := range nodes {
		spot := bestInsertion(p, cand, node)
		if spot.ok {
			cand.Routes[spot.unit] = insertCopy(cand.Routes[spot.unit], node, spot.pos)
		} else {
			cand.Dropped = append(cand.Dropped, node)
		}
	}

	p.Evaluate(cand)
	return cand
}
