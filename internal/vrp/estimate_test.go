package vrp

import (
	"math"
	"testing"
)

func TestHaversineKnownDistance(t *testing.T) {
	// Berlin Alexanderplatz to Potsdamer Platz is roughly 2.8 km.
	a := LatLng{Lat: 52.5219, Lng: 13.4132}
	b := LatLng{Lat: 52.5096, Lng: 13.3759}
	h := Haversine{}
	d := h.DistanceM(a, b)
	if d < 2500 || d > 3200 {
		t.Fatalf("distance = %f m", d)
	}
	if h.DistanceM(a, a) != 0 {
		t.Fatalf("zero-leg distance not zero")
	}
}

func TestEstimateDeterministic(t *testing.T) {
	c := CostModel{}
	c.applyDefaults()
	v := depotVehicle("v1", 100)
	a := LatLng{Lat: 52.52, Lng: 13.41}
	b := LatLng{Lat: 52.50, Lng: 13.37}
	e1 := c.Estimate(Haversine{}, a, b, v)
	e2 := c.Estimate(Haversine{}, a, b, v)
	if e1 != e2 {
		t.Fatalf("estimates differ: %+v vs %+v", e1, e2)
	}
	if e1.MonetaryCost <= e1.FuelCost {
		t.Fatalf("monetary cost %f should include fuel %f plus distance and time", e1.MonetaryCost, e1.FuelCost)
	}
}

func TestCostModelDefaults(t *testing.T) {
	c := CostModel{TrafficFactor: 0.3}
	c.applyDefaults()
	if c.SpeedKph != 40 || c.TrafficFactor != 1 {
		t.Fatalf("defaults not applied: %+v", c)
	}
	slow := CostModel{TrafficFactor: 2}
	slow.applyDefaults()
	v := depotVehicle("v1", 100)
	a := LatLng{Lat: 52.52, Lng: 13.41}
	b := LatLng{Lat: 52.50, Lng: 13.37}
	if base, jam := c.Estimate(Haversine{}, a, b, v), slow.Estimate(Haversine{}, a, b, v); jam.DurationSec <= base.DurationSec {
		t.Fatalf("traffic factor should slow travel: %f vs %f", jam.DurationSec, base.DurationSec)
	}
}

func TestWeightsFromMap(t *testing.T) {
	w, err := WeightsFromMap(map[string]float64{"distance": 3, "fuel": 1})
	if err != nil {
		t.Fatalf("weights: %v", err)
	}
	if math.Abs(w[ObjDistance]-0.75) > 1e-9 || math.Abs(w[ObjFuel]-0.25) > 1e-9 {
		t.Fatalf("normalization wrong: %v", w)
	}
	if _, err := WeightsFromMap(map[string]float64{"speed": 1}); err == nil {
		t.Fatalf("unknown key accepted")
	}
	if _, err := WeightsFromMap(map[string]float64{"distance": -1}); err == nil {
		t.Fatalf("negative weight accepted")
	}
	if w, err := WeightsFromMap(nil); err != nil || w != BalancedWeights() {
		t.Fatalf("empty map should yield balanced weights")
	}
}
