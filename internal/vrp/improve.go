package vrp

import (
	"context"
	"math/rand"
	"time"
)

// improveStats counts local-search work for run metadata.
type improveStats struct {
	Iterations   int
	Improvements int
	Converged    bool // full scan found no improving move
}

// checker bundles the deadline and cancellation checks the loops hit at the
// start of every neighborhood-move iteration, keeping the worst-case gap
// between checks far below the smallest supported budget.
type checker struct {
	ctx      context.Context
	deadline time.Time
}

func (c checker) expired() bool {
	return c.ctx.Err() != nil || !time.Now().Before(c.deadline)
}

// improve runs strict-improvement local search over three neighborhoods:
// intra-route 2-opt, inter-route relocation and inter-route exchange. A move
// is accepted only when it keeps every affected route feasible and strictly
// lowers the weighted score. Anytime: the best solution found so far is
// returned whenever the deadline, cancellation or the iteration cap hits.
func improve(ctx context.Context, p *Problem, sol Solution, deadline time.Time) (Solution, improveStats) {
	var st improveStats
	ck := checker{ctx: ctx, deadline: deadline}
	if err := sol.Recompute(p); err != nil {
		return sol, st
	}
	maxIters := p.MaxIters
	for {
		if ck.expired() {
			return sol, st
		}
		improved := twoOptPass(p, &sol, ck, &st) ||
			relocatePass(p, &sol, ck, &st) ||
			exchangePass(p, &sol, ck, &st)
		if !improved {
			st.Converged = !ck.expired()
			return sol, st
		}
		if maxIters > 0 && st.Iterations >= maxIters {
			return sol, st
		}
	}
}

// tryRoutes scores a candidate with the orders of the listed routes
// replaced. Affected routes are rescheduled; untouched routes keep their
// cached stats. Returns the candidate score and whether it is feasible.
func tryRoutes(p *Problem, sol *Solution, change map[int][]int) (float64, bool) {
	saved := make(map[int]Route, len(change))
	for ri, order := range change {
		v := p.Vehicles[ri]
		visits, stats, viol := scheduleRoute(p, order, v)
		if viol != violNone {
			for si, r := range saved {
				sol.Routes[si] = r
			}
			return 0, false
		}
		saved[ri] = sol.Routes[ri]
		sol.Routes[ri] = Route{VehicleID: v.ID, Order: order, Visits: visits, Stats: stats}
	}
	score := scoreObjectives(p, sol).weighted(p.Weights)
	for ri, r := range saved {
		sol.Routes[ri] = r
	}
	return score, true
}

// apply commits a previously scored change.
func applyRoutes(p *Problem, sol *Solution, change map[int][]int) {
	for ri, order := range change {
		v := p.Vehicles[ri]
		visits, stats, _ := scheduleRoute(p, order, v)
		sol.Routes[ri] = Route{VehicleID: v.ID, Order: order, Visits: visits, Stats: stats}
	}
	sol.Objectives = scoreObjectives(p, sol)
	sol.Score = sol.Objectives.weighted(p.Weights)
}

// twoOptPass reverses intra-route segments, first improvement wins.
func twoOptPass(p *Problem, sol *Solution, ck checker, st *improveStats) bool {
	improved := false
	for ri := range sol.Routes {
		order := sol.Routes[ri].Order
		n := len(order)
		for i := 0; i < n-1; i++ {
			for k := i + 1; k < n; k++ {
				st.Iterations++
				if ck.expired() {
					return improved
				}
				cand := append([]int(nil), order...)
				for a, b := i, k; a < b; a, b = a+1, b-1 {
					cand[a], cand[b] = cand[b], cand[a]
				}
				score, ok := tryRoutes(p, sol, map[int][]int{ri: cand})
				if ok && score < sol.Score-1e-9 {
					applyRoutes(p, sol, map[int][]int{ri: cand})
					order = sol.Routes[ri].Order
					st.Improvements++
					improved = true
				}
			}
		}
	}
	return improved
}

// relocatePass moves one stop to the best position on another route.
func relocatePass(p *Problem, sol *Solution, ck checker, st *improveStats) bool {
	improved := false
	for a := range sol.Routes {
		for i := 0; i < len(sol.Routes[a].Order); i++ {
			for b := range sol.Routes {
				if a == b {
					continue
				}
				stop := sol.Routes[a].Order[i]
				if !p.Vehicles[b].canService(p.Stops[stop]) {
					continue
				}
				for pos := 0; pos <= len(sol.Routes[b].Order); pos++ {
					st.Iterations++
					if ck.expired() {
						return improved
					}
					src := append([]int(nil), sol.Routes[a].Order...)
					src = append(src[:i], src[i+1:]...)
					dst := insertAt(sol.Routes[b].Order, stop, pos)
					change := map[int][]int{a: src, b: dst}
					score, ok := tryRoutes(p, sol, change)
					if ok && score < sol.Score-1e-9 {
						applyRoutes(p, sol, change)
						st.Improvements++
						// Route lengths changed; restart the scan.
						return true
					}
				}
			}
		}
	}
	return improved
}

// exchangePass swaps one stop between two routes.
func exchangePass(p *Problem, sol *Solution, ck checker, st *improveStats) bool {
	improved := false
	for a := 0; a < len(sol.Routes); a++ {
		for b := a + 1; b < len(sol.Routes); b++ {
			for i := 0; i < len(sol.Routes[a].Order); i++ {
				for j := 0; j < len(sol.Routes[b].Order); j++ {
					st.Iterations++
					if ck.expired() {
						return improved
					}
					sa := sol.Routes[a].Order[i]
					sb := sol.Routes[b].Order[j]
					if !p.Vehicles[a].canService(p.Stops[sb]) || !p.Vehicles[b].canService(p.Stops[sa]) {
						continue
					}
					ca := append([]int(nil), sol.Routes[a].Order...)
					cb := append([]int(nil), sol.Routes[b].Order...)
					ca[i], cb[j] = sb, sa
					change := map[int][]int{a: ca, b: cb}
					score, ok := tryRoutes(p, sol, change)
					if ok && score < sol.Score-1e-9 {
						applyRoutes(p, sol, change)
						st.Improvements++
						improved = true
					}
				}
			}
		}
	}
	return improved
}

// shake perturbs the solution by relocating a few random stops to random
// feasible positions, used between improvement rounds when the advanced
// search is enabled. Infeasible or incomplete perturbations are discarded.
func shake(p *Problem, sol Solution, rng *rand.Rand) Solution {
	cand := sol.Clone()
	moves := 1 + rng.Intn(3)
	for m := 0; m < moves; m++ {
		var occupied []int
		for ri := range cand.Routes {
			if len(cand.Routes[ri].Order) > 0 {
				occupied = append(occupied, ri)
			}
		}
		if len(occupied) == 0 {
			return sol
		}
		a := occupied[rng.Intn(len(occupied))]
		i := rng.Intn(len(cand.Routes[a].Order))
		stop := cand.Routes[a].Order[i]
		b := rng.Intn(len(cand.Routes))
		if !p.Vehicles[b].canService(p.Stops[stop]) {
			continue
		}
		src := append([]int(nil), cand.Routes[a].Order...)
		src = append(src[:i], src[i+1:]...)
		pos := rng.Intn(len(cand.Routes[b].Order) + 1)
		var dst []int
		if a == b {
			dst = insertAt(src, stop, min(pos, len(src)))
			if !routeFeasible(p, dst, p.Vehicles[a]) {
				continue
			}
			cand.Routes[a].Order = dst
			continue
		}
		dst = insertAt(cand.Routes[b].Order, stop, pos)
		if !routeFeasible(p, src, p.Vehicles[a]) || !routeFeasible(p, dst, p.Vehicles[b]) {
			continue
		}
		cand.Routes[a].Order = src
		cand.Routes[b].Order = dst
	}
	if err := cand.Recompute(p); err != nil {
		return sol
	}
	return cand
}
