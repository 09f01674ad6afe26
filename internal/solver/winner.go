package solver

// SelectWinner picks the best candidate among workers' results:
// feasible candidates only (dropping counts as feasible only when the
// policy allows it), minimum fitness, ties broken by served demand
// descending, then vehicle count ascending, then candidate id
// ascending. The choice is deterministic for a fixed input set.
func SelectWinner(p *Problem, candidates []*Candidate) *Candidate {
	var winner *Candidate
	for _, c := range candidates {
		if c == nil || p.Validate(c) != nil {
			continue
		}
		if winner == nil || better(p, c, winner) {
			winner = c
		}
	}
	return winner
}

func better(p *Problem, a, b *Candidate) bool {
	if a.Cost != b.Cost {
		return a.Cost < b.Cost
	}
	servedA, servedB := p.ServedDemand(a), p.ServedDemand(b)
	if servedA != servedB {
		return servedA > servedB
	}
	usedA, usedB := a.UsedVehicles(), b.UsedVehicles()
	if usedA != usedB {
		return usedA < usedB
	}
	return a.ID < b.ID
}
