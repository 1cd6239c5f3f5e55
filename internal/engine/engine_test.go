package engine

import (
	"context"
	"errors"
	"testing"

	"binroute/internal/config"
	"binroute/internal/model"
	"binroute/internal/notify"
	"binroute/internal/store"
	"binroute/internal/vrp"
)

func testStops(n int) []vrp.Stop {
	stops := make([]vrp.Stop, 0, n)
	for i := 0; i < n; i++ {
		stops = append(stops, vrp.Stop{
			ID:         string(rune('a' + i)),
			Location:   vrp.LatLng{Lat: 52.50 + 0.004*float64(i), Lng: 13.35 + 0.005*float64(i)},
			Demand:     vrp.Demand{Weight: 60},
			ServiceSec: 120,
		})
	}
	return stops
}

func testVehicles() []vrp.Vehicle {
	return []vrp.Vehicle{
		{ID: "t1", Capacity: vrp.Demand{Weight: 500}, Depot: vrp.LatLng{Lat: 52.49, Lng: 13.34}, CostPerKm: 1, CostPerHour: 40},
		{ID: "t2", Capacity: vrp.Demand{Weight: 500}, Depot: vrp.LatLng{Lat: 52.53, Lng: 13.42}, CostPerKm: 1, CostPerHour: 40},
	}
}

func newTestEngine(t *testing.T) (*Engine, store.Store) {
	t.Helper()
	st := store.NewMemory()
	provider := NewStaticProvider(testStops(6), testVehicles())
	cfg := config.Default().Engine
	cfg.MinBudgetSec = 1 // keep tests fast
	return New(st, provider, notify.NewPublisher(st), nil, cfg), st
}

func optimizeReq() model.OptimizeRequest {
	return model.OptimizeRequest{
		OrgID:                  "org_test",
		Date:                   "2026-09-01",
		MaxOptimizationTimeSec: 1,
	}
}

func TestOptimizePersistsRun(t *testing.T) {
	eng, st := newTestEngine(t)
	res, err := eng.Optimize(context.Background(), optimizeReq())
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if res.RunID == "" {
		t.Fatalf("missing run id")
	}
	if res.Phase != string(vrp.PhaseCompleted) {
		t.Fatalf("phase = %s", res.Phase)
	}
	run, err := st.GetRun(context.Background(), "org_test", res.RunID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Kind != "optimize" || run.Status != "completed" {
		t.Fatalf("run = %+v", run)
	}
	routed := 0
	for _, r := range run.Solution.Routes {
		routed += len(r.Order)
	}
	if routed != 6 {
		t.Fatalf("routed = %d, want 6", routed)
	}
}

func TestOptimizeWithAlternatives(t *testing.T) {
	eng, _ := newTestEngine(t)
	req := optimizeReq()
	req.GenerateAlternatives = true
	res, err := eng.Optimize(context.Background(), req)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if len(res.Alternatives) == 0 || len(res.ParetoFront) == 0 {
		t.Fatalf("alternatives=%d front=%d", len(res.Alternatives), len(res.ParetoFront))
	}
}

func TestOptimizeInlineSnapshotOverridesProvider(t *testing.T) {
	eng, _ := newTestEngine(t)
	req := optimizeReq()
	req.Stops = testStops(2)
	res, err := eng.Optimize(context.Background(), req)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	routed := 0
	for _, r := range res.Solution.Routes {
		routed += len(r.Order)
	}
	if routed != 2 {
		t.Fatalf("routed = %d, want the 2 inline stops", routed)
	}
}

func TestAdaptUnknownRun(t *testing.T) {
	eng, _ := newTestEngine(t)
	_, err := eng.Adapt(context.Background(), "org_test", "nope", model.AdaptRequest{
		Delta: vrp.Delta{RemovedStopIDs: []string{"a"}},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAdaptCreatesChildRun(t *testing.T) {
	eng, st := newTestEngine(t)
	res, err := eng.Optimize(context.Background(), optimizeReq())
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	ares, err := eng.Adapt(context.Background(), "org_test", res.RunID, model.AdaptRequest{
		Delta:    vrp.Delta{RemovedStopIDs: []string{"a"}},
		Priority: model.PriorityUrgent,
	})
	if err != nil {
		t.Fatalf("adapt: %v", err)
	}
	if ares.RunID == res.RunID {
		t.Fatalf("adaptation must be a new run")
	}
	child, err := st.GetRun(context.Background(), "org_test", ares.RunID)
	if err != nil {
		t.Fatalf("get child: %v", err)
	}
	if child.Kind != "adaptation" || child.ParentID != res.RunID || child.Priority != model.PriorityUrgent {
		t.Fatalf("child = kind=%s parent=%s priority=%s", child.Kind, child.ParentID, child.Priority)
	}
	// Prior run untouched.
	prior, _ := st.GetRun(context.Background(), "org_test", res.RunID)
	routed := 0
	for _, r := range prior.Solution.Routes {
		routed += len(r.Order)
	}
	if routed != 6 {
		t.Fatalf("parent solution changed: routed=%d", routed)
	}
}

func TestCancelUnknownRun(t *testing.T) {
	eng, _ := newTestEngine(t)
	if eng.Cancel("nope") {
		t.Fatalf("cancel of unknown run reported true")
	}
}

func TestAnalyticsAggregatesRuns(t *testing.T) {
	eng, _ := newTestEngine(t)
	if _, err := eng.Optimize(context.Background(), optimizeReq()); err != nil {
		t.Fatalf("optimize: %v", err)
	}
	rep, err := eng.Analytics(context.Background(), "org_test", "2026-09-01", "")
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if rep.Runs != 1 || rep.RoutedStops != 6 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestGenerateAlternativesTooMany(t *testing.T) {
	eng, _ := newTestEngine(t)
	req := model.AlternativesRequest{OptimizeRequest: optimizeReq()}
	for i := 0; i <= vrp.MaxAlternatives; i++ {
		req.WeightVariants = append(req.WeightVariants, map[string]float64{"distance": 1})
	}
	_, err := eng.GenerateAlternatives(context.Background(), req)
	if !errors.Is(err, vrp.ErrTooManyAlternatives) {
		t.Fatalf("err = %v, want ErrTooManyAlternatives", err)
	}
}
