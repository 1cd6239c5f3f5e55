package vrp

import (
	"context"
	"math/rand"
	"time"
)

// Phase tracks how far a run progressed.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseConstructing Phase = "constructing"
	PhaseImproving    Phase = "improving"
	PhaseCompleted    Phase = "completed"
	PhaseTimedOut     Phase = "timed_out"
	PhaseInfeasible   Phase = "infeasible"
)

// SolveMetrics is the run metadata returned alongside a solution.
type SolveMetrics struct {
	Phase        Phase `json:"phase"`
	Iterations   int   `json:"iterations"`
	Improvements int   `json:"improvements"`
	Restarts     int   `json:"restarts,omitempty"`
	ConstructMs  int64 `json:"constructMs"`
	ElapsedMs    int64 `json:"elapsedMs"`
	TimedOut     bool  `json:"timedOut"`
}

// SolveOptions tunes a single run.
type SolveOptions struct {
	Budget   time.Duration // wall-clock budget for construction + improvement
	Advanced bool          // enable perturbation restarts after convergence
}

// Solve builds an initial solution and improves it within the budget.
//
// Construction gets at most a tenth of the budget; improvement takes the
// rest. The call never fails on timeout: it returns the best feasible
// solution found so far with TimedOut set. A run in which no stop could be
// placed reports PhaseInfeasible.
func Solve(ctx context.Context, p *Problem, opts SolveOptions) (Solution, SolveMetrics) {
	start := time.Now()
	budget := opts.Budget
	if budget <= 0 {
		budget = time.Minute
	}
	deadline := start.Add(budget)
	m := SolveMetrics{Phase: PhaseConstructing}

	sol := construct(ctx, p, start.Add(budget/10))
	m.ConstructMs = time.Since(start).Milliseconds()
	_ = sol.Recompute(p)

	m.Phase = PhaseImproving
	sol, ist := improve(ctx, p, sol, deadline)
	m.Iterations += ist.Iterations
	m.Improvements += ist.Improvements

	if opts.Advanced && ist.Converged {
		rng := rand.New(rand.NewSource(p.Seed))
		for time.Now().Before(deadline) && ctx.Err() == nil {
			cand := shake(p, sol, rng)
			cand, cst := improve(ctx, p, cand, deadline)
			m.Iterations += cst.Iterations
			m.Improvements += cst.Improvements
			m.Restarts++
			if cand.Score < sol.Score-1e-9 {
				sol = cand
			}
			if !cst.Converged {
				break
			}
		}
	}

	routed := 0
	for _, r := range sol.Routes {
		routed += len(r.Order)
	}
	switch {
	case len(p.Stops) > 0 && routed == 0:
		m.Phase = PhaseInfeasible
	case time.Now().After(deadline) || ctx.Err() != nil:
		m.Phase = PhaseTimedOut
		m.TimedOut = true
	default:
		m.Phase = PhaseCompleted
	}
	m.ElapsedMs = time.Since(start).Milliseconds()
	return sol, m
}
