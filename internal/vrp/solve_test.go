package vrp

import (
	"context"
	"math/rand"
	"testing"
	"time"
)

func TestSolveSmallProblem(t *testing.T) {
	p := testProblem(t, gridStops(12), []Vehicle{depotVehicle("v1", 400), depotVehicle("v2", 400)})
	sol, m := Solve(context.Background(), p, SolveOptions{Budget: 2 * time.Second})
	if m.Phase != PhaseCompleted {
		t.Fatalf("phase = %s, want %s", m.Phase, PhaseCompleted)
	}
	if m.TimedOut {
		t.Fatalf("unexpected timeout")
	}
	if err := sol.Validate(p); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if sol.Score <= 0 {
		t.Fatalf("score = %f, want > 0", sol.Score)
	}
}

func TestSolveDeterministicWithSeed(t *testing.T) {
	run := func() Solution {
		p := testProblem(t, gridStops(12), []Vehicle{depotVehicle("v1", 400), depotVehicle("v2", 400)})
		p.Seed = 42
		p.MaxIters = 500 // iteration-bounded so wall clock cannot influence the result
		sol, _ := Solve(context.Background(), p, SolveOptions{Budget: time.Minute})
		return sol
	}
	a, b := run(), run()
	if a.Score != b.Score {
		t.Fatalf("scores differ: %f vs %f", a.Score, b.Score)
	}
	for i := range a.Routes {
		for j := range a.Routes[i].Order {
			if a.Routes[i].Order[j] != b.Routes[i].Order[j] {
				t.Fatalf("route %d diverges at %d", i, j)
			}
		}
	}
}

func TestSolveAnytimeTinyBudget(t *testing.T) {
	p := testProblem(t, gridStops(25), []Vehicle{depotVehicle("v1", 5000)})
	sol, m := Solve(context.Background(), p, SolveOptions{Budget: time.Millisecond})
	if err := sol.Validate(p); err != nil {
		t.Fatalf("validate under tiny budget: %v", err)
	}
	if m.Phase != PhaseTimedOut && m.Phase != PhaseCompleted {
		t.Fatalf("phase = %s", m.Phase)
	}
	routed := 0
	for _, r := range sol.Routes {
		routed += len(r.Order)
	}
	if routed+len(sol.Unassigned) != 25 {
		t.Fatalf("stop accounting: routed=%d unassigned=%d", routed, len(sol.Unassigned))
	}
}

func TestSolveInfeasibleProblem(t *testing.T) {
	stops := []Stop{
		{ID: "s1", Location: LatLng{Lat: 52.51, Lng: 13.36}, Demand: Demand{Weight: 1}, RequiredTags: []string{"hazmat"}},
		{ID: "s2", Location: LatLng{Lat: 52.52, Lng: 13.37}, Demand: Demand{Weight: 1}, RequiredTags: []string{"hazmat"}},
	}
	p := testProblem(t, stops, []Vehicle{depotVehicle("v1", 100)})
	sol, m := Solve(context.Background(), p, SolveOptions{Budget: time.Second})
	if m.Phase != PhaseInfeasible {
		t.Fatalf("phase = %s, want %s", m.Phase, PhaseInfeasible)
	}
	if len(sol.Unassigned) != 2 {
		t.Fatalf("unassigned = %d, want 2", len(sol.Unassigned))
	}
}

func TestSolveCancellation(t *testing.T) {
	p := testProblem(t, gridStops(30), []Vehicle{depotVehicle("v1", 5000), depotVehicle("v2", 5000)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sol, m := Solve(ctx, p, SolveOptions{Budget: time.Minute})
	if !m.TimedOut {
		t.Fatalf("canceled run should report timed out, phase=%s", m.Phase)
	}
	if err := sol.Validate(p); err != nil {
		t.Fatalf("validate after cancel: %v", err)
	}
}

func TestImproveNeverWorsens(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 5; trial++ {
		n := 8 + rng.Intn(10)
		stops := make([]Stop, 0, n)
		for i := 0; i < n; i++ {
			stops = append(stops, Stop{
				ID:         stopID(i),
				Location:   LatLng{Lat: 52.4 + rng.Float64()*0.2, Lng: 13.2 + rng.Float64()*0.3},
				Demand:     Demand{Weight: 20 + rng.Float64()*60},
				ServiceSec: 60 + rng.Intn(240),
			})
		}
		p := testProblem(t, stops, []Vehicle{depotVehicle("v1", 2000), depotVehicle("v2", 2000)})
		sol := construct(context.Background(), p, time.Now().Add(time.Second))
		if err := sol.Recompute(p); err != nil {
			t.Fatalf("recompute: %v", err)
		}
		before := sol.Score
		improved, _ := improve(context.Background(), p, sol, time.Now().Add(time.Second))
		if improved.Score > before+1e-9 {
			t.Fatalf("trial %d: improve worsened score %f -> %f", trial, before, improved.Score)
		}
		if err := improved.Validate(p); err != nil {
			t.Fatalf("trial %d: validate: %v", trial, err)
		}
	}
}
