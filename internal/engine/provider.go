package engine

import (
	"context"
	"fmt"

	"binroute/internal/integrations"
	"binroute/internal/vrp"
)

// DataProvider hands the engine current stop/vehicle snapshots. The real
// implementation lives with the fleet-management system; the engine only
// reads.
type DataProvider interface {
	Stops(ctx context.Context, orgID, date string, ids []string) ([]vrp.Stop, error)
	Vehicles(ctx context.Context, orgID, date string, ids []string) ([]vrp.Vehicle, error)
}

// StaticProvider serves a fixed snapshot, used for dev and tests.
type StaticProvider struct {
	stops    []vrp.Stop
	vehicles []vrp.Vehicle
}

func NewStaticProvider(stops []vrp.Stop, vehicles []vrp.Vehicle) *StaticProvider {
	return &StaticProvider{stops: stops, vehicles: vehicles}
}

// NewDemoProvider seeds a small urban collection scenario so the service
// answers optimize calls out of the box.
func NewDemoProvider() *StaticProvider {
	var stops []vrp.Stop
	for i := 0; i < 12; i++ {
		stops = append(stops, vrp.Stop{
			ID:         fmt.Sprintf("bin_%02d", i+1),
			Location:   vrp.LatLng{Lat: 52.51 + 0.01*float64(i%4), Lng: 13.38 + 0.012*float64(i/4)},
			Demand:     vrp.Demand{Weight: 80 + 20*float64(i%3)},
			ServiceSec: 240,
		})
	}
	vehicles := []vrp.Vehicle{
		{ID: "truck_01", Capacity: vrp.Demand{Weight: 800}, Depot: vrp.LatLng{Lat: 52.50, Lng: 13.35}, CostPerKm: 0.9, CostPerHour: 42},
		{ID: "truck_02", Capacity: vrp.Demand{Weight: 600}, Depot: vrp.LatLng{Lat: 52.53, Lng: 13.42}, CostPerKm: 0.8, CostPerHour: 38},
	}
	return &StaticProvider{stops: stops, vehicles: vehicles}
}

func (p *StaticProvider) Stops(ctx context.Context, orgID, date string, ids []string) ([]vrp.Stop, error) {
	if len(ids) == 0 {
		return append([]vrp.Stop(nil), p.stops...), nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := []vrp.Stop{}
	for _, s := range p.stops {
		if want[s.ID] {
			out = append(out, s)
		}
	}
	return out, nil
}

func (p *StaticProvider) Vehicles(ctx context.Context, orgID, date string, ids []string) ([]vrp.Vehicle, error) {
	if len(ids) == 0 {
		return append([]vrp.Vehicle(nil), p.vehicles...), nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := []vrp.Vehicle{}
	for _, v := range p.vehicles {
		if want[v.ID] {
			out = append(out, v)
		}
	}
	return out, nil
}

// FeedProvider sources stops from an external feed adapter and vehicles
// from the static fleet snapshot.
type FeedProvider struct {
	Source integrations.SourceAdapter
	Fleet  DataProvider
}

func (p *FeedProvider) Stops(ctx context.Context, orgID, date string, ids []string) ([]vrp.Stop, error) {
	var out []vrp.Stop
	cursor := ""
	for {
		batch, err := p.Source.FetchStops(date, cursor)
		if err != nil {
			return nil, fmt.Errorf("fetch stops from %s: %w", p.Source.Name(), err)
		}
		out = append(out, batch.Stops...)
		if batch.Cursor == "" {
			break
		}
		cursor = batch.Cursor
	}
	if len(ids) == 0 {
		return out, nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	filtered := []vrp.Stop{}
	for _, s := range out {
		if want[s.ID] {
			filtered = append(filtered, s)
		}
	}
	return filtered, nil
}

func (p *FeedProvider) Vehicles(ctx context.Context, orgID, date string, ids []string) ([]vrp.Vehicle, error) {
	return p.Fleet.Vehicles(ctx, orgID, date, ids)
}
