package vrp

import (
	"context"
	"testing"
	"time"
)

func TestSummarizeTotals(t *testing.T) {
	p := testProblem(t, gridStops(6), []Vehicle{depotVehicle("v1", 400)})
	sol, m := Solve(context.Background(), p, SolveOptions{Budget: time.Second})
	s := Summarize("r1", "2026-09-01", time.Now(), sol, m)
	if s.Routed+s.Unassigned != 6 {
		t.Fatalf("routed=%d unassigned=%d", s.Routed, s.Unassigned)
	}
	if s.Routed > 0 && (s.DistanceKm <= 0 || s.Cost <= 0) {
		t.Fatalf("empty totals: %+v", s)
	}
}

func TestAnalyzeFlagsRegression(t *testing.T) {
	cur := []RunSummary{
		{ID: "a", Score: 150, DistanceKm: 30, Routed: 10},
		{ID: "b", Score: 170, DistanceKm: 35, Routed: 12},
	}
	prior := []RunSummary{
		{ID: "p1", Score: 100, DistanceKm: 28, Routed: 10},
		{ID: "p2", Score: 100, DistanceKm: 30, Routed: 12},
	}
	rep := Analyze(cur, prior, 0.2)
	if rep.Runs != 2 || rep.PriorRuns != 2 {
		t.Fatalf("run counts: %+v", rep)
	}
	if rep.ScoreChangePct <= 0 {
		t.Fatalf("score change = %f, want positive regression", rep.ScoreChangePct)
	}
	if len(rep.Anomalies) == 0 {
		t.Fatalf("expected a score regression anomaly")
	}
}

func TestAnalyzeCleanPeriod(t *testing.T) {
	cur := []RunSummary{{ID: "a", Score: 95, DistanceKm: 30, Routed: 10}}
	prior := []RunSummary{{ID: "p", Score: 100, DistanceKm: 31, Routed: 10}}
	rep := Analyze(cur, prior, 0.2)
	if len(rep.Anomalies) != 0 {
		t.Fatalf("unexpected anomalies: %v", rep.Anomalies)
	}
	if rep.ScoreChangePct >= 0 {
		t.Fatalf("score change = %f, want improvement", rep.ScoreChangePct)
	}
}

func TestAnalyzeHighUnassignedRate(t *testing.T) {
	cur := []RunSummary{{ID: "a", Score: 10, Routed: 5, Unassigned: 3}}
	rep := Analyze(cur, nil, 0.2)
	if len(rep.Anomalies) == 0 {
		t.Fatalf("expected unassigned-rate anomaly")
	}
}
