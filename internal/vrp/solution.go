package vrp

import (
	"fmt"
	"time"
)

// Visit is one scheduled service on a route.
type Visit struct {
	StopID    string    `json:"stopId"`
	Arrival   time.Time `json:"arrival"`
	Departure time.Time `json:"departure"`
	DriveSec  int       `json:"driveSec"`
	WaitSec   int       `json:"waitSec,omitempty"`
	BreakSec  int       `json:"breakSec,omitempty"` // break taken before this stop
	LoadAfter Demand    `json:"loadAfter"`
}

// RouteStats are the derived totals for one route.
type RouteStats struct {
	DistanceM    float64 `json:"distanceM"`
	DriveSec     int     `json:"driveSec"`
	ServiceSec   int     `json:"serviceSec"`
	WaitSec      int     `json:"waitSec"`
	BreakSec     int     `json:"breakSec"`
	TotalSec     int     `json:"totalSec"`
	FuelCost     float64 `json:"fuelCost"`
	MonetaryCost float64 `json:"monetaryCost"`
	Load         Demand  `json:"load"`
	Breaks       int     `json:"breaks"`
}

// Route is an ordered assignment of stops to one vehicle. Order holds
// indices into the owning Problem's Stops; Visits and Stats are derived by
// Recompute.
type Route struct {
	VehicleID string     `json:"vehicleId"`
	Order     []int      `json:"order"`
	Visits    []Visit    `json:"visits,omitempty"`
	Stats     RouteStats `json:"stats"`
}

// UnassignedStop records a stop the solver could not place, and why.
type UnassignedStop struct {
	StopID string `json:"stopId"`
	Reason string `json:"reason"`
}

// Solution is a set of routes over a problem plus the explicit unassigned
// list. Every input stop appears exactly once across routes and unassigned.
type Solution struct {
	Routes     []Route          `json:"routes"`
	Unassigned []UnassignedStop `json:"unassigned"`
	Score      float64          `json:"score"`
	Objectives ObjectiveVector  `json:"objectives"`
}

// Clone deep-copies the solution so callers can adapt without touching the
// accepted original.
func (s Solution) Clone() Solution {
	out := Solution{Score: s.Score, Objectives: s.Objectives}
	out.Routes = make([]Route, len(s.Routes))
	for i, r := range s.Routes {
		out.Routes[i] = Route{
			VehicleID: r.VehicleID,
			Order:     append([]int(nil), r.Order...),
			Visits:    append([]Visit(nil), r.Visits...),
			Stats:     r.Stats,
		}
	}
	out.Unassigned = append([]UnassignedStop(nil), s.Unassigned...)
	return out
}

// violation identifies the binding constraint when a route is infeasible.
type violation int

const (
	violNone violation = iota
	violCapacity
	violStopWindow
	violShift
)

func (v violation) reason() string {
	switch v {
	case violCapacity:
		return ReasonCapacity
	case violStopWindow, violShift:
		return ReasonTimeWindow
	}
	return ReasonNoInsertion
}

// scheduleRoute propagates the timetable for order on vehicle v: drive legs,
// waits on early arrival, mandatory breaks when continuous drive exceeds the
// driver rules, and service durations. Returns the visits, totals and the
// first violated constraint if the plan is infeasible.
func scheduleRoute(p *Problem, order []int, v Vehicle) ([]Visit, RouteStats, violation) {
	var stats RouteStats
	visits := make([]Visit, 0, len(order))
	metric := p.Metric()

	start := time.Time{}
	if v.Window != nil && !v.Window.Start.IsZero() {
		start = v.Window.Start
	}
	now := start
	cur := v.Depot
	driveSinceBreak := 0.0
	var load Demand

	for _, idx := range order {
		st := p.Stops[idx]
		load = load.add(st.Demand)
		if !v.Capacity.Fits(load) {
			return visits, stats, violCapacity
		}
		leg := p.Cost.Estimate(metric, cur, st.Location, v)

		breakSec := 0
		if v.Driver.MaxDriveSec > 0 && int(driveSinceBreak+leg.DurationSec) > v.Driver.MaxDriveSec {
			breakSec = v.Driver.BreakSec
			now = now.Add(time.Duration(breakSec) * time.Second)
			driveSinceBreak = 0
			stats.Breaks++
			stats.BreakSec += breakSec
		}
		now = now.Add(time.Duration(leg.DurationSec * float64(time.Second)))
		driveSinceBreak += leg.DurationSec

		waitSec := 0
		if st.TW != nil && !st.TW.Start.IsZero() && now.Before(st.TW.Start) {
			waitSec = int(st.TW.Start.Sub(now).Seconds())
			now = st.TW.Start
		}
		if st.TW != nil && !st.TW.End.IsZero() && now.After(st.TW.End) {
			return visits, stats, violStopWindow
		}
		arr := now
		now = now.Add(time.Duration(st.ServiceSec) * time.Second)

		visits = append(visits, Visit{
			StopID:    st.ID,
			Arrival:   arr,
			Departure: now,
			DriveSec:  int(leg.DurationSec),
			WaitSec:   waitSec,
			BreakSec:  breakSec,
			LoadAfter: load,
		})
		stats.DistanceM += leg.DistanceM
		stats.DriveSec += int(leg.DurationSec)
		stats.ServiceSec += st.ServiceSec
		stats.WaitSec += waitSec
		stats.FuelCost += leg.FuelCost
		stats.MonetaryCost += leg.MonetaryCost
		cur = st.Location
	}

	// Return leg to depot.
	if len(order) > 0 {
		leg := p.Cost.Estimate(metric, cur, v.Depot, v)
		now = now.Add(time.Duration(leg.DurationSec * float64(time.Second)))
		stats.DistanceM += leg.DistanceM
		stats.DriveSec += int(leg.DurationSec)
		stats.FuelCost += leg.FuelCost
		stats.MonetaryCost += leg.MonetaryCost
	}
	stats.TotalSec = int(now.Sub(start).Seconds())
	stats.Load = load

	if v.Window != nil && !v.Window.End.IsZero() && now.After(v.Window.End) {
		return visits, stats, violShift
	}
	if v.Driver.MaxShiftSec > 0 && stats.TotalSec > v.Driver.MaxShiftSec {
		return visits, stats, violShift
	}
	return visits, stats, violNone
}

// routeFeasible reports whether order is a valid plan for v.
func routeFeasible(p *Problem, order []int, v Vehicle) bool {
	_, _, viol := scheduleRoute(p, order, v)
	return viol == violNone
}

// Recompute refreshes every route's visits, stats and the solution score.
// Routes must be feasible; infeasible routes keep their partial schedule and
// the call reports the violation.
func (s *Solution) Recompute(p *Problem) error {
	for i := range s.Routes {
		v, ok := p.vehicleByID(s.Routes[i].VehicleID)
		if !ok {
			return fmt.Errorf("recompute: unknown vehicle %s", s.Routes[i].VehicleID)
		}
		visits, stats, viol := scheduleRoute(p, s.Routes[i].Order, v)
		s.Routes[i].Visits = visits
		s.Routes[i].Stats = stats
		if viol != violNone {
			return fmt.Errorf("recompute: route %s infeasible: %s", v.ID, viol.reason())
		}
	}
	s.Objectives = scoreObjectives(p, s)
	s.Score = s.Objectives.weighted(p.Weights)
	return nil
}

func (p *Problem) vehicleByID(id string) (Vehicle, bool) {
	for _, v := range p.Vehicles {
		if v.ID == id {
			return v, true
		}
	}
	return Vehicle{}, false
}

func (p *Problem) stopIndex(id string) int {
	for i, s := range p.Stops {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// Validate checks the solution invariants: capacity along each route, no
// duplicated stop, hard time windows honored, route duration within the
// vehicle window, and every problem stop present exactly once across routes
// and unassigned.
func (s *Solution) Validate(p *Problem) error {
	seen := make(map[int]bool, len(p.Stops))
	for _, r := range s.Routes {
		v, ok := p.vehicleByID(r.VehicleID)
		if !ok {
			return fmt.Errorf("route references unknown vehicle %s", r.VehicleID)
		}
		for _, idx := range r.Order {
			if idx < 0 || idx >= len(p.Stops) {
				return fmt.Errorf("route %s references stop index %d out of range", v.ID, idx)
			}
			if seen[idx] {
				return fmt.Errorf("stop %s appears in more than one route", p.Stops[idx].ID)
			}
			seen[idx] = true
		}
		if _, _, viol := scheduleRoute(p, r.Order, v); viol != violNone {
			return fmt.Errorf("route %s violates %s", v.ID, viol.reason())
		}
	}
	for _, u := range s.Unassigned {
		idx := p.stopIndex(u.StopID)
		if idx < 0 {
			return fmt.Errorf("unassigned stop %s not in problem", u.StopID)
		}
		if seen[idx] {
			return fmt.Errorf("stop %s both routed and unassigned", u.StopID)
		}
		seen[idx] = true
		if u.Reason == "" {
			return fmt.Errorf("unassigned stop %s has no reason", u.StopID)
		}
	}
	for i, st := range p.Stops {
		if !seen[i] {
			return fmt.Errorf("stop %s missing from solution", st.ID)
		}
	}
	return nil
}
