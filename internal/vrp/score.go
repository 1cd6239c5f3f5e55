package vrp

// scoreObjectives derives the raw per-objective cost vector from the route
// stats. All values are costs in roughly comparable units (km, hours,
// currency, kg CO2); lower is better on every axis.
func scoreObjectives(p *Problem, s *Solution) ObjectiveVector {
	var v ObjectiveVector
	var maxH, minH float64
	minH = -1
	for _, r := range s.Routes {
		st := r.Stats
		v[ObjDistance] += st.DistanceM / 1000
		h := float64(st.TotalSec) / 3600
		v[ObjTime] += h
		v[ObjFuel] += st.FuelCost
		v[ObjOperatingCost] += st.MonetaryCost
		v[ObjEnvironmental] += st.DistanceM / 1000 * p.Cost.FuelPerKm * p.Cost.CO2PerLiter
		// waiting at closed bins erodes perceived service quality
		v[ObjServiceQuality] += float64(st.WaitSec) / 3600
		if len(r.Order) > 0 {
			if h > maxH {
				maxH = h
			}
			if minH < 0 || h < minH {
				minH = h
			}
		}
	}
	// Unassigned stops dominate service quality, scaled by priority so an
	// emergency bin left behind hurts more than a standard one.
	for _, u := range s.Unassigned {
		weight := 1.0
		if idx := p.stopIndex(u.StopID); idx >= 0 {
			weight += float64(p.Stops[idx].Priority)
		}
		v[ObjServiceQuality] += 100 * weight
	}
	// Driver satisfaction penalizes shift-length imbalance across the fleet.
	if minH >= 0 {
		v[ObjDriverSatisfaction] = maxH - minH
	}
	return v
}

// weighted collapses a cost vector to a scalar under the given weights.
func (v ObjectiveVector) weighted(w ObjectiveWeights) float64 {
	total := 0.0
	for i := 0; i < int(NumObjectives); i++ {
		total += w[i] * v[i]
	}
	return total
}
