package vrp

import (
	"context"
	"math"
	"sort"
	"time"
)

// Delta describes a mid-day change to apply to an accepted solution.
type Delta struct {
	AddedStops          []Stop   `json:"addedStops,omitempty"`
	RemovedStopIDs      []string `json:"removedStopIds,omitempty"`
	UnavailableVehicles []string `json:"unavailableVehicleIds,omitempty"`
}

// Empty reports whether the delta changes nothing.
func (d Delta) Empty() bool {
	return len(d.AddedStops) == 0 && len(d.RemovedStopIDs) == 0 && len(d.UnavailableVehicles) == 0
}

// Adapt repairs an accepted solution against a delta without a full
// re-solve: removed stops are dropped (with a downstream feasibility
// re-check), stops on unavailable vehicles are orphaned and re-inserted,
// and added stops are placed by cheapest feasible insertion. The input
// solution is never mutated; the adapted problem snapshot and a new
// solution are returned.
func Adapt(ctx context.Context, p *Problem, sol Solution, d Delta, budget time.Duration) (*Problem, Solution, SolveMetrics, error) {
	start := time.Now()
	if budget <= 0 {
		budget = 5 * time.Second
	}
	deadline := start.Add(budget)
	var m SolveMetrics

	if d.Empty() {
		out := sol.Clone()
		if err := out.Recompute(p); err != nil {
			return nil, Solution{}, m, err
		}
		m.Phase = PhaseCompleted
		m.ElapsedMs = time.Since(start).Milliseconds()
		return p, out, m, nil
	}

	removed := make(map[string]bool, len(d.RemovedStopIDs))
	for _, id := range d.RemovedStopIDs {
		removed[id] = true
	}
	gone := make(map[string]bool, len(d.UnavailableVehicles))
	for _, id := range d.UnavailableVehicles {
		gone[id] = true
	}

	// Build the adapted snapshot. Construction-time validation already ran
	// on the base problem; added stops get the same checks.
	stops := make([]Stop, 0, len(p.Stops)+len(d.AddedStops))
	for _, s := range p.Stops {
		if !removed[s.ID] {
			stops = append(stops, s)
		}
	}
	seen := make(map[string]bool, len(stops))
	for _, s := range stops {
		seen[s.ID] = true
	}
	for _, s := range d.AddedStops {
		if s.ID == "" {
			return nil, Solution{}, m, &ConstraintError{Field: "addedStops", Reason: "stop id is required"}
		}
		if seen[s.ID] {
			return nil, Solution{}, m, &ConstraintError{Field: "addedStops", ID: s.ID, Reason: "duplicate stop id"}
		}
		seen[s.ID] = true
		stops = append(stops, s)
	}
	vehicles := make([]Vehicle, 0, len(p.Vehicles))
	for _, v := range p.Vehicles {
		if !gone[v.ID] {
			vehicles = append(vehicles, v)
		}
	}
	sort.Slice(stops, func(i, j int) bool { return stops[i].ID < stops[j].ID })
	np := &Problem{
		Stops:    stops,
		Vehicles: vehicles,
		Weights:  p.Weights,
		Cost:     p.Cost,
		Seed:     p.Seed,
		MaxIters: p.MaxIters,
		metric:   p.metric,
	}

	m.Phase = PhaseConstructing
	out := Solution{Routes: make([]Route, len(vehicles))}
	for i, v := range vehicles {
		out.Routes[i] = Route{VehicleID: v.ID, Order: []int{}}
	}
	routeIdx := make(map[string]int, len(vehicles))
	for i, v := range vehicles {
		routeIdx[v.ID] = i
	}

	// Orphans: stops on unavailable vehicles, plus routes a removal somehow
	// left infeasible on re-check.
	var orphans []int
	added := make(map[string]bool, len(d.AddedStops))
	for _, s := range d.AddedStops {
		added[s.ID] = true
	}
	for _, r := range sol.Routes {
		var order []int
		for _, oldIdx := range r.Order {
			id := p.Stops[oldIdx].ID
			if removed[id] {
				continue
			}
			if idx := np.stopIndex(id); idx >= 0 {
				order = append(order, idx)
			}
		}
		if len(order) == 0 {
			continue
		}
		ri, ok := routeIdx[r.VehicleID]
		if !ok {
			orphans = append(orphans, order...)
			continue
		}
		if !routeFeasible(np, order, vehicles[ri]) {
			orphans = append(orphans, order...)
			continue
		}
		out.Routes[ri].Order = order
	}

	pending := append([]int(nil), orphans...)
	orphaned := make(map[int]bool, len(orphans))
	for _, idx := range orphans {
		orphaned[idx] = true
	}
	for i, s := range np.Stops {
		if added[s.ID] {
			pending = append(pending, i)
		}
	}
	sort.Ints(pending)

	// Carry prior unassigned stops through unless the delta removed them.
	for _, u := range sol.Unassigned {
		if !removed[u.StopID] && np.stopIndex(u.StopID) >= 0 {
			out.Unassigned = append(out.Unassigned, u)
		}
	}

	// Cheapest feasible insertion for orphans and additions. If the budget
	// runs out mid-repair, the remaining stops go through the append sweep
	// so feasible ones still get placed rather than mislabeled.
	for len(pending) > 0 {
		if time.Now().After(deadline) || ctx.Err() != nil {
			before := len(out.Unassigned)
			pending = appendSweep(np, &out, pending)
			for i := before; i < len(out.Unassigned); i++ {
				if si := np.stopIndex(out.Unassigned[i].StopID); si >= 0 && orphaned[si] {
					out.Unassigned[i].Reason = ReasonVehicleGone
				}
			}
			break
		}
		bestStop, bestRoute, bestPos := -1, -1, -1
		bestCost := math.MaxFloat64
		for _, si := range pending {
			for ri := range out.Routes {
				v := vehicles[ri]
				if !v.canService(np.Stops[si]) {
					continue
				}
				for pos := 0; pos <= len(out.Routes[ri].Order); pos++ {
					cand := insertAt(out.Routes[ri].Order, si, pos)
					if !routeFeasible(np, cand, v) {
						continue
					}
					c := insertionDelta(np, out.Routes[ri].Order, v, si, pos)
					if c < bestCost-1e-9 {
						bestCost = c
						bestStop, bestRoute, bestPos = si, ri, pos
					}
				}
			}
		}
		if bestStop < 0 {
			break
		}
		out.Routes[bestRoute].Order = insertAt(out.Routes[bestRoute].Order, bestStop, bestPos)
		pending = removeInt(pending, bestStop)
	}
	for _, si := range pending {
		reason := infeasibleReason(np, &out, si)
		if orphaned[si] {
			reason = ReasonVehicleGone
		}
		out.Unassigned = append(out.Unassigned, UnassignedStop{StopID: np.Stops[si].ID, Reason: reason})
	}

	if err := out.Recompute(np); err != nil {
		return nil, Solution{}, m, err
	}

	// Spend whatever budget remains polishing the repair.
	m.Phase = PhaseImproving
	out, ist := improve(ctx, np, out, deadline)
	m.Iterations = ist.Iterations
	m.Improvements = ist.Improvements

	if time.Now().After(deadline) || ctx.Err() != nil {
		m.Phase = PhaseTimedOut
		m.TimedOut = true
	} else {
		m.Phase = PhaseCompleted
	}
	m.ElapsedMs = time.Since(start).Milliseconds()
	return np, out, m, nil
}
