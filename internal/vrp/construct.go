package vrp

import (
	"context"
	"math"
	"time"
)

// construct builds an initial feasible solution by cheapest feasible
// insertion: repeatedly place the pending stop/route/position with the
// lowest marginal cost, ties broken by lower stop ID. Stops with no feasible
// placement anywhere end up unassigned with the binding constraint recorded.
//
// The deadline bounds the full-scan phase; if it passes, remaining stops are
// placed by a fast feasible-append sweep so the result is always complete.
func construct(ctx context.Context, p *Problem, deadline time.Time) Solution {
	sol := Solution{Routes: make([]Route, len(p.Vehicles))}
	for i, v := range p.Vehicles {
		sol.Routes[i] = Route{VehicleID: v.ID, Order: []int{}}
	}
	pending := make([]int, len(p.Stops))
	for i := range p.Stops {
		pending[i] = i
	}

	for len(pending) > 0 {
		if time.Now().After(deadline) || ctx.Err() != nil {
			pending = appendSweep(p, &sol, pending)
			break
		}
		bestStop, bestRoute, bestPos := -1, -1, -1
		bestCost := math.MaxFloat64
		for _, si := range pending { // pending is ID-ordered: first win is the tie-break
			for ri := range sol.Routes {
				v := p.Vehicles[ri]
				if !v.canService(p.Stops[si]) {
					continue
				}
				for pos := 0; pos <= len(sol.Routes[ri].Order); pos++ {
					cand := insertAt(sol.Routes[ri].Order, si, pos)
					if !routeFeasible(p, cand, v) {
						continue
					}
					c := insertionDelta(p, sol.Routes[ri].Order, v, si, pos)
					if c < bestCost-1e-9 {
						bestCost = c
						bestStop, bestRoute, bestPos = si, ri, pos
					}
				}
			}
		}
		if bestStop < 0 {
			for _, si := range pending {
				sol.Unassigned = append(sol.Unassigned, UnassignedStop{
					StopID: p.Stops[si].ID,
					Reason: infeasibleReason(p, &sol, si),
				})
			}
			break
		}
		sol.Routes[bestRoute].Order = insertAt(sol.Routes[bestRoute].Order, bestStop, bestPos)
		pending = removeInt(pending, bestStop)
	}
	return sol
}

// appendSweep places each remaining stop at the cheapest feasible route end,
// or marks it unassigned. Used when the construction budget runs out.
func appendSweep(p *Problem, sol *Solution, pending []int) []int {
	for _, si := range pending {
		placed := false
		bestRoute := -1
		bestCost := math.MaxFloat64
		for ri := range sol.Routes {
			v := p.Vehicles[ri]
			if !v.canService(p.Stops[si]) {
				continue
			}
			cand := append(append([]int(nil), sol.Routes[ri].Order...), si)
			if !routeFeasible(p, cand, v) {
				continue
			}
			c := insertionDelta(p, sol.Routes[ri].Order, v, si, len(sol.Routes[ri].Order))
			if c < bestCost-1e-9 {
				bestCost = c
				bestRoute = ri
			}
		}
		if bestRoute >= 0 {
			sol.Routes[bestRoute].Order = append(sol.Routes[bestRoute].Order, si)
			placed = true
		}
		if !placed {
			sol.Unassigned = append(sol.Unassigned, UnassignedStop{
				StopID: p.Stops[si].ID,
				Reason: infeasibleReason(p, sol, si),
			})
		}
	}
	return nil
}

// insertionDelta approximates the marginal cost of inserting stop si into
// the route at pos: added legs minus the removed leg, plus service time
// priced at the vehicle's hourly rate.
func insertionDelta(p *Problem, order []int, v Vehicle, si, pos int) float64 {
	m := p.Metric()
	prev := v.Depot
	if pos > 0 {
		prev = p.Stops[order[pos-1]].Location
	}
	next := v.Depot
	if pos < len(order) {
		next = p.Stops[order[pos]].Location
	}
	st := p.Stops[si]
	add := p.Cost.Estimate(m, prev, st.Location, v).MonetaryCost +
		p.Cost.Estimate(m, st.Location, next, v).MonetaryCost
	rem := p.Cost.Estimate(m, prev, next, v).MonetaryCost
	return add - rem + float64(st.ServiceSec)/3600*v.CostPerHour
}

// infeasibleReason classifies why stop si fits nowhere in the current
// solution: no capable vehicle, capacity exhausted on every capable one, or
// a time-window/shift conflict.
func infeasibleReason(p *Problem, sol *Solution, si int) string {
	st := p.Stops[si]
	capable := false
	capacityLeft := false
	for ri := range sol.Routes {
		v := p.Vehicles[ri]
		if !v.canService(st) {
			continue
		}
		capable = true
		load := st.Demand
		for _, idx := range sol.Routes[ri].Order {
			load = load.add(p.Stops[idx].Demand)
		}
		if v.Capacity.Fits(load) {
			capacityLeft = true
		}
	}
	switch {
	case !capable:
		return ReasonNoVehicle
	case !capacityLeft:
		return ReasonCapacity
	default:
		return ReasonTimeWindow
	}
}

func insertAt(order []int, si, pos int) []int {
	out := make([]int, 0, len(order)+1)
	out = append(out, order[:pos]...)
	out = append(out, si)
	out = append(out, order[pos:]...)
	return out
}

func removeInt(xs []int, x int) []int {
	for i, v := range xs {
		if v == x {
			return append(xs[:i], xs[i+1:]...)
		}
	}
	return xs
}
