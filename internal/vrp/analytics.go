package vrp

import (
	"fmt"
	"time"
)

// RunSummary is the read-side projection of one optimization run consumed
// by the analytics aggregator.
type RunSummary struct {
	ID         string          `json:"id"`
	Date       string          `json:"date"`
	CreatedAt  time.Time       `json:"createdAt"`
	Score      float64         `json:"score"`
	Objectives ObjectiveVector `json:"objectives"`
	DistanceKm float64         `json:"distanceKm"`
	DurationH  float64         `json:"durationH"`
	Cost       float64         `json:"cost"`
	Routed     int             `json:"routed"`
	Unassigned int             `json:"unassigned"`
	TimedOut   bool            `json:"timedOut"`
}

// Summarize projects a solved run into a RunSummary.
func Summarize(id, date string, createdAt time.Time, sol Solution, m SolveMetrics) RunSummary {
	s := RunSummary{
		ID:         id,
		Date:       date,
		CreatedAt:  createdAt,
		Score:      sol.Score,
		Objectives: sol.Objectives,
		Unassigned: len(sol.Unassigned),
		TimedOut:   m.TimedOut,
	}
	for _, r := range sol.Routes {
		s.Routed += len(r.Order)
		s.DistanceKm += r.Stats.DistanceM / 1000
		s.DurationH += float64(r.Stats.TotalSec) / 3600
		s.Cost += r.Stats.MonetaryCost
	}
	return s
}

// Report aggregates solution quality over a period and compares it against
// a prior one.
type Report struct {
	Runs              int      `json:"runs"`
	TotalDistanceKm   float64  `json:"totalDistanceKm"`
	TotalDurationH    float64  `json:"totalDurationH"`
	TotalCost         float64  `json:"totalCost"`
	AvgScore          float64  `json:"avgScore"`
	RoutedStops       int      `json:"routedStops"`
	UnassignedStops   int      `json:"unassignedStops"`
	TimedOutRuns      int      `json:"timedOutRuns"`
	PriorRuns         int      `json:"priorRuns"`
	ScoreChangePct    float64  `json:"scoreChangePct"`
	DistanceChangePct float64  `json:"distanceChangePct"`
	Anomalies         []string `json:"anomalies,omitempty"`
}

// Analyze computes aggregate metrics over the current period and flags
// regressions beyond threshold (a fraction, e.g. 0.2 for 20%) against the
// prior period. Pure: neither input is mutated.
func Analyze(current, prior []RunSummary, threshold float64) Report {
	if threshold <= 0 {
		threshold = 0.2
	}
	var rep Report
	rep.Runs = len(current)
	rep.PriorRuns = len(prior)
	for _, r := range current {
		rep.TotalDistanceKm += r.DistanceKm
		rep.TotalDurationH += r.DurationH
		rep.TotalCost += r.Cost
		rep.AvgScore += r.Score
		rep.RoutedStops += r.Routed
		rep.UnassignedStops += r.Unassigned
		if r.TimedOut {
			rep.TimedOutRuns++
		}
	}
	if rep.Runs > 0 {
		rep.AvgScore /= float64(rep.Runs)
	}
	if len(prior) > 0 {
		var priorScore, priorDist float64
		for _, r := range prior {
			priorScore += r.Score
			priorDist += r.DistanceKm
		}
		priorScore /= float64(len(prior))
		priorDist /= float64(len(prior))
		avgDist := 0.0
		if rep.Runs > 0 {
			avgDist = rep.TotalDistanceKm / float64(rep.Runs)
		}
		if priorScore > 0 {
			rep.ScoreChangePct = (rep.AvgScore - priorScore) / priorScore * 100
		}
		if priorDist > 0 {
			rep.DistanceChangePct = (avgDist - priorDist) / priorDist * 100
		}
		if priorScore > 0 && rep.AvgScore > priorScore*(1+threshold) {
			rep.Anomalies = append(rep.Anomalies,
				fmt.Sprintf("objective score regressed %.1f%% vs prior period", rep.ScoreChangePct))
		}
	}
	if total := rep.RoutedStops + rep.UnassignedStops; total > 0 {
		if rate := float64(rep.UnassignedStops) / float64(total); rate > 0.1 {
			rep.Anomalies = append(rep.Anomalies,
				fmt.Sprintf("unassigned rate %.0f%% exceeds 10%%", rate*100))
		}
	}
	if rep.Runs > 0 && rep.TimedOutRuns == rep.Runs {
		rep.Anomalies = append(rep.Anomalies, "every run exhausted its time budget")
	}
	return rep
}
