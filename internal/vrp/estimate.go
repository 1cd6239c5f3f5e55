package vrp

import "math"

// Metric computes point-to-point travel distance in meters. Implementations
// must be deterministic for identical inputs; a road-network provider can be
// substituted without changing callers.
type Metric interface {
	DistanceM(from, to LatLng) float64
}

// Haversine is the default great-circle metric.
type Haversine struct{}

func (Haversine) DistanceM(a, b LatLng) float64 {
	const r = 6371000.0
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return r * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// CostModel converts raw distance into time, fuel and money.
type CostModel struct {
	SpeedKph      float64 `json:"speedKph,omitempty"`      // mean travel speed
	FuelPerKm     float64 `json:"fuelPerKm,omitempty"`     // liters per km
	FuelPrice     float64 `json:"fuelPrice,omitempty"`     // currency per liter
	CO2PerLiter   float64 `json:"co2PerLiter,omitempty"`   // kg CO2 per liter burned
	TrafficFactor float64 `json:"trafficFactor,omitempty"` // >=1 slows travel, optional live input
}

func (c *CostModel) applyDefaults() {
	if c.SpeedKph <= 0 {
		c.SpeedKph = 40
	}
	if c.FuelPerKm <= 0 {
		c.FuelPerKm = 0.35 // refuse trucks are thirsty
	}
	if c.FuelPrice <= 0 {
		c.FuelPrice = 1.8
	}
	if c.CO2PerLiter <= 0 {
		c.CO2PerLiter = 2.64
	}
	if c.TrafficFactor < 1 {
		c.TrafficFactor = 1
	}
}

// LegEstimate is the cost of traveling one leg with a given vehicle.
type LegEstimate struct {
	DistanceM    float64 `json:"distanceM"`
	DurationSec  float64 `json:"durationSec"`
	FuelCost     float64 `json:"fuelCost"`
	MonetaryCost float64 `json:"monetaryCost"`
}

// Estimate prices the leg from -> to for vehicle v. Deterministic for
// identical inputs.
func (c CostModel) Estimate(m Metric, from, to LatLng, v Vehicle) LegEstimate {
	dist := m.DistanceM(from, to)
	dur := dist / (c.SpeedKph / 3.6) * c.TrafficFactor
	fuel := dist / 1000 * c.FuelPerKm * c.FuelPrice
	money := fuel + dist/1000*v.CostPerKm + dur/3600*v.CostPerHour
	return LegEstimate{DistanceM: dist, DurationSec: dur, FuelCost: fuel, MonetaryCost: money}
}
