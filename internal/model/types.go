// Package model holds the wire-level request, response and persistence
// types shared by the API, engine and store.
package model

import (
	"time"

	"binroute/internal/vrp"
)

// Adaptation priorities, highest first.
const (
	PriorityEmergency = "emergency"
	PriorityUrgent    = "urgent"
	PriorityStandard  = "standard"
)

// PriorityRank orders priorities for queueing; higher ranks preempt lower.
func PriorityRank(p string) int {
	switch p {
	case PriorityEmergency:
		return 2
	case PriorityUrgent:
		return 1
	default:
		return 0
	}
}

// OptimizeRequest is the body of POST /v1/optimize.
type OptimizeRequest struct {
	OrgID                  string             `json:"orgId"`
	Date                   string             `json:"date"` // YYYY-MM-DD
	VehicleIDs             []string           `json:"vehicleIds,omitempty"`
	StopIDs                []string           `json:"stopIds,omitempty"`
	Stops                  []vrp.Stop         `json:"stops,omitempty"`    // inline snapshots override provider lookup
	Vehicles               []vrp.Vehicle      `json:"vehicles,omitempty"` // ditto
	Objectives             map[string]float64 `json:"objectives,omitempty"`
	CostModel              *vrp.CostModel     `json:"costModel,omitempty"`
	MaxOptimizationTimeSec int                `json:"maxOptimizationTimeSec,omitempty"`
	UseAdvancedAlgorithms  bool               `json:"useAdvancedAlgorithms,omitempty"`
	GenerateAlternatives   bool               `json:"generateAlternatives,omitempty"`
	Seed                   int64              `json:"seed,omitempty"`
}

// AdaptRequest is the body of POST /v1/optimize/{id}/adapt.
type AdaptRequest struct {
	Delta                vrp.Delta `json:"delta"`
	Priority             string    `json:"priority,omitempty"`
	MaxAdaptationTimeSec int       `json:"maxAdaptationTimeSec,omitempty"`
}

// AlternativesRequest is the body of POST /v1/alternatives.
type AlternativesRequest struct {
	OptimizeRequest
	WeightVariants []map[string]float64 `json:"weightVariants,omitempty"`
}

// Run is one persisted optimization or adaptation run: the frozen input
// snapshot, the accepted solution and the run metadata.
type Run struct {
	ID        string             `json:"id"`
	OrgID     string             `json:"orgId"`
	Date      string             `json:"date"`
	Kind      string             `json:"kind"` // optimize | adaptation
	ParentID  string             `json:"parentId,omitempty"`
	Priority  string             `json:"priority,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
	Problem   *vrp.Problem       `json:"problem"`
	Solution  vrp.Solution       `json:"solution"`
	Weights   map[string]float64 `json:"weights"`
	Scores    map[string]float64 `json:"scores"`
	Metrics   vrp.SolveMetrics   `json:"metrics"`
	Status    string             `json:"status"` // completed | canceled
}

// AlternativeOut is one weighting variant in an API response.
type AlternativeOut struct {
	Weights  map[string]float64 `json:"weights"`
	Score    float64            `json:"score"`
	Scores   map[string]float64 `json:"scores"`
	Solution vrp.Solution       `json:"solution"`
}

// RunResult is the response body for optimize and adapt calls.
type RunResult struct {
	RunID        string             `json:"runId"`
	Solution     vrp.Solution       `json:"solution"`
	Scores       map[string]float64 `json:"scores"`
	Weights      map[string]float64 `json:"weights"`
	Phase        string             `json:"phase"`
	ElapsedMs    int64              `json:"elapsedMs"`
	TimedOut     bool               `json:"timedOut"`
	Alternatives []AlternativeOut   `json:"alternatives,omitempty"`
	ParetoFront  []AlternativeOut   `json:"paretoFront,omitempty"`
}

// SubscriptionRequest registers a notification endpoint.
type SubscriptionRequest struct {
	OrgID  string   `json:"orgId"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret"`
}

// Subscription is a registered notification endpoint.
type Subscription struct {
	ID     string   `json:"id"`
	OrgID  string   `json:"orgId"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret,omitempty"`
}
