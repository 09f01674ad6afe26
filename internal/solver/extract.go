package solver

import (
	"github.com/google/uuid"

	"fleet-route-planner/internal/domain"
)

// ToSolution converts a candidate into the external Solution shape.
// Per-route totals are recomputed from the adjusted matrix plus the
// unit's service time: the candidate's internal cost includes profile
// penalties and must never be reported as distance.
func ToSolution(p *Problem, cand *Candidate, degraded bool) *domain.Solution {
	sol := &domain.Solution{
		ID:       uuid.NewString(),
		Fitness:  cand.Cost,
		Degraded: degraded || p.Matrix.DegradedCells > 0,
	}

	for ui, seq := range cand.Routes {
		if len(seq) == 0 {
			continue
		}
		u := &p.Units[ui]
		rm := p.EvalRoute(u, seq)

		ids := make([]string, len(seq))
		volume := 0.0
		for i, node := range seq {
			c := p.Customers[node-p.NumDepots()]
			ids[i] = c.ID
			volume += c.Volume
		}

		sol.Routes = append(sol.Routes, domain.Route{
			VehicleSpecIndex: u.SpecIndex,
			VehicleUnit:      u.UnitIndex,
			Class:            u.Class,
			CustomerIDs:      ids,
			TotalDistanceM:   rm.DistM,
			TotalDurationSec: rm.TotalSec(),
			TotalVolume:      volume,
			StartMinute:      u.StartMin,
			Feasible:         p.RouteFeasible(u, seq),
		})

		sol.TotalDistanceM += rm.DistM
		sol.TotalDurationSec += rm.TotalSec()
		sol.TotalVolume += volume
	}

	for _, node := range cand.Dropped {
		sol.Dropped = append(sol.Dropped, p.Customers[node-p.NumDepots()].ID)
	}

	return sol
}
