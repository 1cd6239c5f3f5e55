// Package vrp implements the waste-collection vehicle routing core:
// problem construction, cost estimation, construction and improvement
// heuristics, multi-objective alternatives and incremental adaptation.
package vrp

import (
	"fmt"
	"sort"
	"time"
)

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// TimeWindow bounds service at a stop or availability of a vehicle.
// A zero Start or End leaves that side open.
type TimeWindow struct {
	Start time.Time `json:"start,omitempty"`
	End   time.Time `json:"end,omitempty"`
}

// Demand is the load a stop adds to a vehicle.
type Demand struct {
	Weight float64 `json:"weight,omitempty"`
	Volume float64 `json:"volume,omitempty"`
}

// Fits reports whether d stays within the capacity c. Zero capacity
// dimensions are treated as unlimited.
func (c Demand) Fits(d Demand) bool {
	if c.Weight > 0 && d.Weight > c.Weight {
		return false
	}
	if c.Volume > 0 && d.Volume > c.Volume {
		return false
	}
	return true
}

func (d Demand) add(o Demand) Demand {
	return Demand{Weight: d.Weight + o.Weight, Volume: d.Volume + o.Volume}
}

// Stop is one collection point to service. Immutable for the life of a run.
type Stop struct {
	ID           string      `json:"id"`
	Location     LatLng      `json:"location"`
	Demand       Demand      `json:"demand"`
	TW           *TimeWindow `json:"timeWindow,omitempty"`
	ServiceSec   int         `json:"serviceSec,omitempty"`
	Priority     int         `json:"priority,omitempty"` // higher = more important
	RequiredTags []string    `json:"requiredTags,omitempty"`
}

// DriverRules carries the driver-hour constraints attached to a vehicle for
// one planning day.
type DriverRules struct {
	MaxShiftSec int `json:"maxShiftSec,omitempty"` // total working duration
	MaxDriveSec int `json:"maxDriveSec,omitempty"` // continuous drive before a break
	BreakSec    int `json:"breakSec,omitempty"`    // mandatory break duration
}

// Vehicle is one truck with its depot, capacity and cost profile.
type Vehicle struct {
	ID          string      `json:"id"`
	Capacity    Demand      `json:"capacity"`
	Depot       LatLng      `json:"depot"`
	Window      *TimeWindow `json:"window,omitempty"`
	CostPerKm   float64     `json:"costPerKm,omitempty"`
	CostPerHour float64     `json:"costPerHour,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	Driver      DriverRules `json:"driver,omitempty"`
}

// canService reports whether the vehicle carries every tag the stop requires.
func (v Vehicle) canService(s Stop) bool {
	if len(s.RequiredTags) == 0 {
		return true
	}
	have := make(map[string]bool, len(v.Tags))
	for _, t := range v.Tags {
		have[t] = true
	}
	for _, t := range s.RequiredTags {
		if !have[t] {
			return false
		}
	}
	return true
}

// Objective enumerates the recognized optimization objectives. All are
// costs: lower is better.
type Objective int

const (
	ObjDistance Objective = iota
	ObjTime
	ObjFuel
	ObjServiceQuality
	ObjOperatingCost
	ObjDriverSatisfaction
	ObjEnvironmental

	NumObjectives
)

var objectiveNames = [NumObjectives]string{
	"distance",
	"time",
	"fuel",
	"serviceQuality",
	"operatingCost",
	"driverSatisfaction",
	"environmentalImpact",
}

func (o Objective) String() string {
	if o < 0 || o >= NumObjectives {
		return fmt.Sprintf("objective(%d)", int(o))
	}
	return objectiveNames[o]
}

// ObjectiveVector holds one raw value per objective.
type ObjectiveVector [NumObjectives]float64

// Named returns the vector keyed by objective name, for API payloads.
func (v ObjectiveVector) Named() map[string]float64 {
	out := make(map[string]float64, NumObjectives)
	for i := Objective(0); i < NumObjectives; i++ {
		out[i.String()] = v[i]
	}
	return out
}

// Dominates reports Pareto domination: v is at least as good as o on every
// objective and strictly better on at least one.
func (v ObjectiveVector) Dominates(o ObjectiveVector) bool {
	strict := false
	for i := 0; i < int(NumObjectives); i++ {
		if v[i] > o[i]+1e-9 {
			return false
		}
		if v[i] < o[i]-1e-9 {
			strict = true
		}
	}
	return strict
}

// ObjectiveWeights assigns a normalized weight in [0,1] to each objective.
type ObjectiveWeights [NumObjectives]float64

// BalancedWeights spreads weight evenly over all objectives.
func BalancedWeights() ObjectiveWeights {
	var w ObjectiveWeights
	for i := range w {
		w[i] = 1.0 / float64(NumObjectives)
	}
	return w
}

// WeightsFromMap builds ObjectiveWeights from a name-keyed map, rejecting
// unknown keys and negative values. Weights summing to anything > 0 are
// renormalized to 1.
func WeightsFromMap(m map[string]float64) (ObjectiveWeights, error) {
	var w ObjectiveWeights
	if len(m) == 0 {
		return BalancedWeights(), nil
	}
	byName := make(map[string]Objective, NumObjectives)
	for i := Objective(0); i < NumObjectives; i++ {
		byName[i.String()] = i
	}
	sum := 0.0
	for k, v := range m {
		obj, ok := byName[k]
		if !ok {
			return w, &ConstraintError{Field: "objectives", Reason: fmt.Sprintf("unknown objective %q", k)}
		}
		if v < 0 {
			return w, &ConstraintError{Field: "objectives", Reason: fmt.Sprintf("objective %q must be >= 0", k)}
		}
		w[obj] = v
		sum += v
	}
	if sum <= 0 {
		return w, &ConstraintError{Field: "objectives", Reason: "weights must sum to a positive value"}
	}
	for i := range w {
		w[i] /= sum
	}
	return w, nil
}

// Named returns the weights keyed by objective name.
func (w ObjectiveWeights) Named() map[string]float64 {
	out := make(map[string]float64, NumObjectives)
	for i := Objective(0); i < NumObjectives; i++ {
		out[i.String()] = w[i]
	}
	return out
}

// Problem is a frozen input snapshot for one optimization run. Build with
// NewProblem; do not mutate after construction.
type Problem struct {
	Stops    []Stop           `json:"stops"`
	Vehicles []Vehicle        `json:"vehicles"`
	Weights  ObjectiveWeights `json:"weights"`
	Cost     CostModel        `json:"costModel"`
	Seed     int64            `json:"seed,omitempty"`
	MaxIters int              `json:"maxIters,omitempty"`

	metric Metric
}

// Metric returns the configured distance metric, defaulting to haversine.
func (p *Problem) Metric() Metric {
	if p.metric == nil {
		return Haversine{}
	}
	return p.metric
}

// SetMetric substitutes the travel metric, e.g. a road-network provider.
func (p *Problem) SetMetric(m Metric) { p.metric = m }

// NewProblem validates and freezes the inputs for one run.
//
// It fails with a ConstraintError when the inputs are internally
// unsatisfiable: no vehicles, a vehicle with non-positive capacity, or a
// stop whose demand exceeds the largest single-vehicle capacity.
func NewProblem(stops []Stop, vehicles []Vehicle, weights ObjectiveWeights, cost CostModel) (*Problem, error) {
	if len(vehicles) == 0 {
		return nil, &ConstraintError{Field: "vehicles", Reason: "at least one vehicle is required"}
	}
	var maxCap Demand
	for _, v := range vehicles {
		if v.Capacity.Weight < 0 || v.Capacity.Volume < 0 {
			return nil, &ConstraintError{Field: "vehicles", ID: v.ID, Reason: "capacity must be positive"}
		}
		if v.Capacity.Weight == 0 && v.Capacity.Volume == 0 {
			return nil, &ConstraintError{Field: "vehicles", ID: v.ID, Reason: "capacity must be positive"}
		}
		if v.Capacity.Weight > maxCap.Weight {
			maxCap.Weight = v.Capacity.Weight
		}
		if v.Capacity.Volume > maxCap.Volume {
			maxCap.Volume = v.Capacity.Volume
		}
	}
	seen := make(map[string]bool, len(stops))
	for _, s := range stops {
		if s.ID == "" {
			return nil, &ConstraintError{Field: "stops", Reason: "stop id is required"}
		}
		if seen[s.ID] {
			return nil, &ConstraintError{Field: "stops", ID: s.ID, Reason: "duplicate stop id"}
		}
		seen[s.ID] = true
		if !maxCap.Fits(s.Demand) {
			return nil, &ConstraintError{Field: "stops", ID: s.ID, Reason: "demand exceeds every vehicle capacity"}
		}
		if s.TW != nil && !s.TW.Start.IsZero() && !s.TW.End.IsZero() && s.TW.End.Before(s.TW.Start) {
			return nil, &ConstraintError{Field: "stops", ID: s.ID, Reason: "time window end precedes start"}
		}
	}
	cost.applyDefaults()
	// Copy and order inputs so identical requests solve identically
	// regardless of caller slice order.
	ss := append([]Stop(nil), stops...)
	vv := append([]Vehicle(nil), vehicles...)
	sort.Slice(ss, func(i, j int) bool { return ss[i].ID < ss[j].ID })
	sort.Slice(vv, func(i, j int) bool { return vv[i].ID < vv[j].ID })
	return &Problem{Stops: ss, Vehicles: vv, Weights: weights, Cost: cost}, nil
}
