// Package engine orchestrates optimization and adaptation runs: worker
// pool scheduling, per-solution adaptation serialization, cancellation,
// rate limiting and run persistence.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"binroute/internal/config"
	"binroute/internal/metrics"
	"binroute/internal/model"
	"binroute/internal/notify"
	"binroute/internal/store"
	"binroute/internal/vrp"
)

// EventSink receives run lifecycle events for streaming to clients.
type EventSink interface {
	Publish(topic, eventType string, data map[string]any)
}

// Engine executes runs. Construct once per process and share.
type Engine struct {
	store    store.Store
	provider DataProvider
	pub      *notify.Publisher
	events   EventSink
	cfg      config.Engine

	sem   chan struct{} // bounds concurrent solves, CPU-bound work
	locks *SolutionLocks

	mu       sync.Mutex
	cancels  map[string]context.CancelFunc
	limiters map[string]*rate.Limiter
}

func New(st store.Store, provider DataProvider, pub *notify.Publisher, events EventSink, cfg config.Engine) *Engine {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Engine{
		store:    st,
		provider: provider,
		pub:      pub,
		events:   events,
		cfg:      cfg,
		sem:      make(chan struct{}, workers),
		locks:    NewSolutionLocks(),
		cancels:  map[string]context.CancelFunc{},
		limiters: map[string]*rate.Limiter{},
	}
}

func (e *Engine) publish(topic, eventType string, data map[string]any) {
	if e.events != nil {
		e.events.Publish(topic, eventType, data)
	}
}

// register makes a run cancellable by ID while it is in flight.
func (e *Engine) register(runID string, cancel context.CancelFunc) {
	e.mu.Lock()
	e.cancels[runID] = cancel
	e.mu.Unlock()
}

func (e *Engine) unregister(runID string) {
	e.mu.Lock()
	delete(e.cancels, runID)
	e.mu.Unlock()
}

// Cancel requests cooperative cancellation of an in-flight run. The run
// still returns its best solution so far.
func (e *Engine) Cancel(runID string) bool {
	e.mu.Lock()
	cancel, ok := e.cancels[runID]
	e.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (e *Engine) limiter(orgID string) *rate.Limiter {
	e.mu.Lock()
	defer e.mu.Unlock()
	lim, ok := e.limiters[orgID]
	if !ok {
		r := e.cfg.AdaptationRatePerSec
		if r <= 0 {
			r = 2
		}
		burst := e.cfg.AdaptationBurst
		if burst <= 0 {
			burst = 5
		}
		lim = rate.NewLimiter(rate.Limit(r), burst)
		e.limiters[orgID] = lim
	}
	return lim
}

// clampBudget applies the configured floor/ceiling and default.
func (e *Engine) clampBudget(sec int) time.Duration {
	if sec <= 0 {
		sec = e.cfg.DefaultBudgetSec
	}
	if e.cfg.MinBudgetSec > 0 && sec < e.cfg.MinBudgetSec {
		sec = e.cfg.MinBudgetSec
	}
	if e.cfg.MaxBudgetSec > 0 && sec > e.cfg.MaxBudgetSec {
		sec = e.cfg.MaxBudgetSec
	}
	return time.Duration(sec) * time.Second
}

// buildProblem resolves the run inputs from the request or the provider.
func (e *Engine) buildProblem(ctx context.Context, req model.OptimizeRequest) (*vrp.Problem, error) {
	stops := req.Stops
	vehicles := req.Vehicles
	var err error
	if len(stops) == 0 {
		stops, err = e.provider.Stops(ctx, req.OrgID, req.Date, req.StopIDs)
		if err != nil {
			return nil, fmt.Errorf("load stops: %w", err)
		}
	}
	if len(vehicles) == 0 {
		vehicles, err = e.provider.Vehicles(ctx, req.OrgID, req.Date, req.VehicleIDs)
		if err != nil {
			return nil, fmt.Errorf("load vehicles: %w", err)
		}
	}
	weights, err := vrp.WeightsFromMap(req.Objectives)
	if err != nil {
		return nil, err
	}
	var cost vrp.CostModel
	if req.CostModel != nil {
		cost = *req.CostModel
	}
	p, err := vrp.NewProblem(stops, vehicles, weights, cost)
	if err != nil {
		return nil, err
	}
	p.Seed = req.Seed
	return p, nil
}

// Optimize runs a full optimization and persists the result.
func (e *Engine) Optimize(ctx context.Context, req model.OptimizeRequest) (model.RunResult, error) {
	p, err := e.buildProblem(ctx, req)
	if err != nil {
		return model.RunResult{}, err
	}
	budget := e.clampBudget(req.MaxOptimizationTimeSec)

	runID := uuid.New().String()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.register(runID, cancel)
	defer e.unregister(runID)

	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		return model.RunResult{}, ctx.Err()
	}

	e.publish(req.OrgID, "run.started", map[string]any{"runId": runID, "kind": "optimize"})

	opts := vrp.SolveOptions{Budget: budget, Advanced: req.UseAdvancedAlgorithms}
	var sol vrp.Solution
	var sm vrp.SolveMetrics
	var alts []model.AlternativeOut
	var front []model.AlternativeOut
	if req.GenerateAlternatives {
		res, aerr := vrp.Alternatives(ctx, p, nil, opts)
		if aerr != nil {
			return model.RunResult{}, aerr
		}
		sol = res.Best.Solution
		sm = res.Best.Metrics
		alts = toAlternativeOuts(res.Solutions)
		front = toAlternativeOuts(res.ParetoFront)
	} else {
		sol, sm = vrp.Solve(ctx, p, opts)
	}

	run := e.buildRun(runID, req.OrgID, req.Date, "optimize", "", "", p, sol, sm, ctx.Err() != nil)
	if err := e.store.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		return model.RunResult{}, fmt.Errorf("save run: %w", err)
	}
	e.finish(ctx, run, notify.EventRunCompleted)
	res := toRunResult(run)
	res.Alternatives = alts
	res.ParetoFront = front
	return res, nil
}

// GenerateAlternatives explores weight variants and returns the Pareto set.
func (e *Engine) GenerateAlternatives(ctx context.Context, req model.AlternativesRequest) (model.RunResult, error) {
	p, err := e.buildProblem(ctx, req.OptimizeRequest)
	if err != nil {
		return model.RunResult{}, err
	}
	variants := make([]vrp.ObjectiveWeights, 0, len(req.WeightVariants))
	for _, m := range req.WeightVariants {
		w, werr := vrp.WeightsFromMap(m)
		if werr != nil {
			return model.RunResult{}, werr
		}
		variants = append(variants, w)
	}
	budget := e.clampBudget(req.MaxOptimizationTimeSec)

	runID := uuid.New().String()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.register(runID, cancel)
	defer e.unregister(runID)

	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		return model.RunResult{}, ctx.Err()
	}

	res, err := vrp.Alternatives(ctx, p, variants, vrp.SolveOptions{Budget: budget, Advanced: req.UseAdvancedAlgorithms})
	if err != nil {
		return model.RunResult{}, err
	}
	run := e.buildRun(runID, req.OrgID, req.Date, "optimize", "", "", p, res.Best.Solution, res.Best.Metrics, ctx.Err() != nil)
	if err := e.store.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		return model.RunResult{}, fmt.Errorf("save run: %w", err)
	}
	e.finish(ctx, run, notify.EventRunCompleted)
	out := toRunResult(run)
	out.Alternatives = toAlternativeOuts(res.Solutions)
	out.ParetoFront = toAlternativeOuts(res.ParetoFront)
	return out, nil
}

// priorityShare scales the adaptation budget by request priority.
func priorityShare(priority string) float64 {
	switch priority {
	case model.PriorityEmergency:
		return 1.0
	case model.PriorityUrgent:
		return 0.75
	default:
		return 0.5
	}
}

// Adapt repairs a stored run's solution against a delta. The prior run is
// never modified; the adaptation is stored as a new run with a parent link.
func (e *Engine) Adapt(ctx context.Context, orgID, runID string, req model.AdaptRequest) (model.RunResult, error) {
	priority := req.Priority
	if priority == "" {
		priority = model.PriorityStandard
	}
	sec := req.MaxAdaptationTimeSec
	if sec <= 0 {
		sec = 5
	}
	if e.cfg.MaxAdaptationSec > 0 && sec > e.cfg.MaxAdaptationSec {
		sec = e.cfg.MaxAdaptationSec
	}
	budget := time.Duration(float64(sec)*priorityShare(priority)) * time.Second
	if budget < time.Second {
		budget = time.Second
	}

	// Per-org adaptation rate limit: fail fast when the wait alone would
	// burn the caller's budget.
	rsv := e.limiter(orgID).Reserve()
	if !rsv.OK() || rsv.Delay() > budget {
		rsv.Cancel()
		metrics.QueueWaits.WithLabelValues("rate_limited").Inc()
		return model.RunResult{}, ErrResourceBusy
	}
	if d := rsv.Delay(); d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			rsv.Cancel()
			return model.RunResult{}, ctx.Err()
		}
	}

	prior, err := e.store.GetRun(ctx, orgID, runID)
	if err != nil {
		return model.RunResult{}, err
	}

	// One adaptation per solution at a time; see SolutionLocks for the
	// priority queue behavior.
	if err := e.locks.Acquire(ctx, runID, model.PriorityRank(priority), budget); err != nil {
		metrics.QueueWaits.WithLabelValues("busy").Inc()
		return model.RunResult{}, err
	}
	defer e.locks.Release(runID)
	metrics.QueueWaits.WithLabelValues("acquired").Inc()

	newID := uuid.New().String()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.register(newID, cancel)
	defer e.unregister(newID)

	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		return model.RunResult{}, ctx.Err()
	}

	e.publish(orgID, "run.started", map[string]any{"runId": newID, "kind": "adaptation", "parentId": runID})

	np, sol, sm, err := vrp.Adapt(ctx, prior.Problem, prior.Solution, req.Delta, budget)
	if err != nil {
		return model.RunResult{}, err
	}
	run := e.buildRun(newID, orgID, prior.Date, "adaptation", runID, priority, np, sol, sm, ctx.Err() != nil)
	if err := e.store.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		return model.RunResult{}, fmt.Errorf("save run: %w", err)
	}
	e.finish(ctx, run, notify.EventRunAdapted)
	return toRunResult(run), nil
}

// Analytics aggregates stored runs for a date against a prior date.
func (e *Engine) Analytics(ctx context.Context, orgID, date, priorDate string) (vrp.Report, error) {
	cur, err := e.summaries(ctx, orgID, date)
	if err != nil {
		return vrp.Report{}, err
	}
	var prior []vrp.RunSummary
	if priorDate != "" {
		prior, err = e.summaries(ctx, orgID, priorDate)
		if err != nil {
			return vrp.Report{}, err
		}
	}
	return vrp.Analyze(cur, prior, 0), nil
}

func (e *Engine) summaries(ctx context.Context, orgID, date string) ([]vrp.RunSummary, error) {
	var out []vrp.RunSummary
	cursor := ""
	for {
		runs, next, err := e.store.ListRuns(ctx, orgID, date, cursor, 200)
		if err != nil {
			return nil, err
		}
		for _, r := range runs {
			out = append(out, vrp.Summarize(r.ID, r.Date, r.CreatedAt, r.Solution, r.Metrics))
		}
		if next == "" {
			return out, nil
		}
		cursor = next
	}
}

func (e *Engine) buildRun(id, orgID, date, kind, parentID, priority string, p *vrp.Problem, sol vrp.Solution, sm vrp.SolveMetrics, canceled bool) model.Run {
	status := "completed"
	if canceled {
		status = "canceled"
	}
	return model.Run{
		ID:        id,
		OrgID:     orgID,
		Date:      date,
		Kind:      kind,
		ParentID:  parentID,
		Priority:  priority,
		CreatedAt: time.Now().UTC(),
		Problem:   p,
		Solution:  sol,
		Weights:   p.Weights.Named(),
		Scores:    sol.Objectives.Named(),
		Metrics:   sm,
		Status:    status,
	}
}

// finish records metrics and fans out notifications for a saved run.
func (e *Engine) finish(ctx context.Context, run model.Run, eventType string) {
	metrics.Runs.WithLabelValues(run.Kind, string(run.Metrics.Phase)).Inc()
	metrics.RunDuration.WithLabelValues(run.Kind).Observe(float64(run.Metrics.ElapsedMs) / 1000)
	metrics.Iterations.Add(float64(run.Metrics.Iterations))
	for _, u := range run.Solution.Unassigned {
		metrics.UnassignedStops.WithLabelValues(u.Reason).Inc()
	}
	if run.Status == "canceled" {
		eventType = notify.EventRunCanceled
	}
	if e.pub != nil {
		e.pub.Emit(context.WithoutCancel(ctx), run.OrgID, eventType, map[string]any{
			"runId":    run.ID,
			"kind":     run.Kind,
			"score":    run.Solution.Score,
			"timedOut": run.Metrics.TimedOut,
			"phase":    run.Metrics.Phase,
		})
	}
	e.publish(run.OrgID, eventType, map[string]any{"runId": run.ID, "phase": string(run.Metrics.Phase), "score": run.Solution.Score})
	log.Printf("run %s %s phase=%s score=%.2f routed=%d unassigned=%d elapsed=%dms",
		run.ID, run.Kind, run.Metrics.Phase, run.Solution.Score, routedCount(run.Solution), len(run.Solution.Unassigned), run.Metrics.ElapsedMs)
}

func routedCount(sol vrp.Solution) int {
	n := 0
	for _, r := range sol.Routes {
		n += len(r.Order)
	}
	return n
}

func toAlternativeOuts(alts []vrp.Alternative) []model.AlternativeOut {
	out := make([]model.AlternativeOut, 0, len(alts))
	for _, a := range alts {
		out = append(out, model.AlternativeOut{
			Weights:  a.Weights.Named(),
			Score:    a.Solution.Score,
			Scores:   a.Solution.Objectives.Named(),
			Solution: a.Solution,
		})
	}
	return out
}

func toRunResult(run model.Run) model.RunResult {
	return model.RunResult{
		RunID:     run.ID,
		Solution:  run.Solution,
		Scores:    run.Scores,
		Weights:   run.Weights,
		Phase:     string(run.Metrics.Phase),
		ElapsedMs: run.Metrics.ElapsedMs,
		TimedOut:  run.Metrics.TimedOut,
	}
}
