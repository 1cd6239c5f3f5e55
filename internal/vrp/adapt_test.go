package vrp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func solvedFixture(t *testing.T) (*Problem, Solution) {
	t.Helper()
	p := testProblem(t, gridStops(8), []Vehicle{depotVehicle("v1", 300), depotVehicle("v2", 300)})
	sol, m := Solve(context.Background(), p, SolveOptions{Budget: 2 * time.Second})
	if m.Phase != PhaseCompleted {
		t.Fatalf("fixture phase = %s", m.Phase)
	}
	return p, sol
}

func TestAdaptEmptyDeltaIsIdempotent(t *testing.T) {
	p, sol := solvedFixture(t)
	np, out, m, err := Adapt(context.Background(), p, sol, Delta{}, time.Second)
	if err != nil {
		t.Fatalf("adapt: %v", err)
	}
	if np != p {
		t.Fatalf("empty delta should keep the problem snapshot")
	}
	if m.Phase != PhaseCompleted {
		t.Fatalf("phase = %s", m.Phase)
	}
	if out.Score != sol.Score {
		t.Fatalf("score changed on empty delta: %f -> %f", sol.Score, out.Score)
	}
	for i := range sol.Routes {
		if len(out.Routes[i].Order) != len(sol.Routes[i].Order) {
			t.Fatalf("route %d changed on empty delta", i)
		}
	}
}

func TestAdaptNeverMutatesInput(t *testing.T) {
	p, sol := solvedFixture(t)
	before, _ := json.Marshal(sol)
	_, _, _, err := Adapt(context.Background(), p, sol, Delta{
		AddedStops:     []Stop{{ID: "zz", Location: LatLng{Lat: 52.55, Lng: 13.40}, Demand: Demand{Weight: 40}}},
		RemovedStopIDs: []string{p.Stops[0].ID},
	}, time.Second)
	if err != nil {
		t.Fatalf("adapt: %v", err)
	}
	after, _ := json.Marshal(sol)
	if string(before) != string(after) {
		t.Fatalf("input solution mutated by adapt")
	}
}

func TestAdaptAddAndRemoveStops(t *testing.T) {
	p, sol := solvedFixture(t)
	removedID := p.Stops[0].ID
	np, out, m, err := Adapt(context.Background(), p, sol, Delta{
		AddedStops:     []Stop{{ID: "zz", Location: LatLng{Lat: 52.51, Lng: 13.37}, Demand: Demand{Weight: 40}}},
		RemovedStopIDs: []string{removedID},
	}, time.Second)
	if err != nil {
		t.Fatalf("adapt: %v", err)
	}
	if m.Phase != PhaseCompleted {
		t.Fatalf("phase = %s", m.Phase)
	}
	if np.stopIndex(removedID) >= 0 {
		t.Fatalf("removed stop still in adapted problem")
	}
	if np.stopIndex("zz") < 0 {
		t.Fatalf("added stop missing from adapted problem")
	}
	if err := out.Validate(np); err != nil {
		t.Fatalf("validate: %v", err)
	}
	for _, u := range out.Unassigned {
		if u.StopID == removedID {
			t.Fatalf("removed stop reported unassigned")
		}
	}
}

func TestAdaptOnlyVehicleUnavailable(t *testing.T) {
	p := testProblem(t, gridStops(4), []Vehicle{depotVehicle("v1", 1000)})
	sol, _ := Solve(context.Background(), p, SolveOptions{Budget: time.Second})
	np, out, _, err := Adapt(context.Background(), p, sol, Delta{UnavailableVehicles: []string{"v1"}}, time.Second)
	if err != nil {
		t.Fatalf("adapt: %v", err)
	}
	if len(np.Vehicles) != 0 {
		t.Fatalf("vehicles = %d, want 0", len(np.Vehicles))
	}
	if len(out.Unassigned) != 4 {
		t.Fatalf("unassigned = %d, want 4", len(out.Unassigned))
	}
	for _, u := range out.Unassigned {
		if u.Reason != ReasonVehicleGone {
			t.Fatalf("reason = %q, want %q", u.Reason, ReasonVehicleGone)
		}
	}
}

func TestAdaptExpiredBudgetStillPlacesFeasibleStops(t *testing.T) {
	p, sol := solvedFixture(t)
	np, out, m, err := Adapt(context.Background(), p, sol, Delta{
		AddedStops: []Stop{{ID: "zz", Location: LatLng{Lat: 52.51, Lng: 13.36}, Demand: Demand{Weight: 40}}},
	}, time.Nanosecond)
	if err != nil {
		t.Fatalf("adapt: %v", err)
	}
	if !m.TimedOut {
		t.Fatalf("phase = %s, want timed out", m.Phase)
	}
	routed := false
	zz := np.stopIndex("zz")
	for _, r := range out.Routes {
		for _, idx := range r.Order {
			if idx == zz {
				routed = true
			}
		}
	}
	if !routed {
		t.Fatalf("feasible added stop left unrouted; unassigned = %+v", out.Unassigned)
	}
	if err := out.Validate(np); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestAdaptExpiredBudgetKeepsOrphanReason(t *testing.T) {
	// Both vehicles are full, so v2's stops cannot move to v1.
	p := testProblem(t, gridStops(4), []Vehicle{depotVehicle("v1", 100), depotVehicle("v2", 100)})
	sol, m := Solve(context.Background(), p, SolveOptions{Budget: time.Second})
	if m.Phase != PhaseCompleted || len(sol.Unassigned) != 0 {
		t.Fatalf("fixture: phase=%s unassigned=%d", m.Phase, len(sol.Unassigned))
	}
	_, out, _, err := Adapt(context.Background(), p, sol, Delta{UnavailableVehicles: []string{"v2"}}, time.Nanosecond)
	if err != nil {
		t.Fatalf("adapt: %v", err)
	}
	if len(out.Unassigned) != 2 {
		t.Fatalf("unassigned = %+v, want 2", out.Unassigned)
	}
	for _, u := range out.Unassigned {
		if u.Reason != ReasonVehicleGone {
			t.Fatalf("reason = %q, want %q", u.Reason, ReasonVehicleGone)
		}
	}
}

func TestAdaptRejectsDuplicateAddedStop(t *testing.T) {
	p, sol := solvedFixture(t)
	_, _, _, err := Adapt(context.Background(), p, sol, Delta{
		AddedStops: []Stop{{ID: p.Stops[0].ID, Location: LatLng{Lat: 52.5, Lng: 13.4}}},
	}, time.Second)
	var ce *ConstraintError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want ConstraintError", err)
	}
}
