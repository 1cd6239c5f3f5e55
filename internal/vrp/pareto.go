package vrp

import (
	"context"
	"runtime"
	"sync"
)

// MaxAlternatives caps the number of weight variants explored per request.
const MaxAlternatives = 10

// Alternative is one solved weighting variant.
type Alternative struct {
	Weights  ObjectiveWeights `json:"weights"`
	Solution Solution         `json:"solution"`
	Metrics  SolveMetrics     `json:"metrics"`
}

// AlternativesResult carries all solved variants, the non-dominated subset,
// and the best solution under the caller's primary weighting.
type AlternativesResult struct {
	Solutions   []Alternative `json:"solutions"`
	ParetoFront []Alternative `json:"paretoFront"`
	Best        Alternative   `json:"best"`
}

// ExploreWeights produces the default variant set when the caller asks to
// explore the weight space: the primary weighting plus one variant leaning
// on each objective in turn.
func ExploreWeights(primary ObjectiveWeights) []ObjectiveWeights {
	out := []ObjectiveWeights{primary}
	for i := Objective(0); i < NumObjectives; i++ {
		w := primary
		// shift half the mass onto one objective
		for j := range w {
			w[j] /= 2
		}
		w[i] += 0.5
		out = append(out, w)
	}
	return out
}

// Alternatives solves the problem once per weight variant, in parallel under
// a shared deadline, and filters the results to the Pareto-non-dominated
// subset. Variants beyond MaxAlternatives are rejected up front rather than
// silently dropped. Variant 0 is treated as the primary weighting.
func Alternatives(ctx context.Context, p *Problem, variants []ObjectiveWeights, opts SolveOptions) (AlternativesResult, error) {
	if len(variants) == 0 {
		variants = ExploreWeights(p.Weights)
	}
	if len(variants) > MaxAlternatives {
		return AlternativesResult{}, ErrTooManyAlternatives
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	alts := make([]Alternative, len(variants))
	errs := make([]error, len(variants))
	sem := make(chan struct{}, runtime.GOMAXPROCS(0))
	var wg sync.WaitGroup
	for i, w := range variants {
		wg.Add(1)
		go func(i int, w ObjectiveWeights) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			vp, err := NewProblem(p.Stops, p.Vehicles, w, p.Cost)
			if err != nil {
				errs[i] = err
				return
			}
			vp.Seed = p.Seed
			vp.MaxIters = p.MaxIters
			vp.SetMetric(p.Metric())
			sol, m := Solve(ctx, vp, opts)
			alts[i] = Alternative{Weights: w, Solution: sol, Metrics: m}
		}(i, w)
	}
	wg.Wait()

	var res AlternativesResult
	for i := range alts {
		if errs[i] != nil {
			continue
		}
		res.Solutions = append(res.Solutions, alts[i])
	}
	if len(res.Solutions) == 0 {
		if errs[0] != nil {
			return res, errs[0]
		}
		return res, nil
	}
	res.ParetoFront = ParetoFilter(res.Solutions)
	// Best under the primary weighting, regardless of which variant found it.
	best := res.Solutions[0]
	bestScore := best.Solution.Objectives.weighted(p.Weights)
	for _, a := range res.Solutions[1:] {
		if sc := a.Solution.Objectives.weighted(p.Weights); sc < bestScore-1e-9 {
			best, bestScore = a, sc
		}
	}
	res.Best = best
	return res, nil
}

// ParetoFilter keeps only alternatives no other alternative dominates.
func ParetoFilter(alts []Alternative) []Alternative {
	out := make([]Alternative, 0, len(alts))
	for i, a := range alts {
		dominated := false
		for j, b := range alts {
			if i == j {
				continue
			}
			if b.Solution.Objectives.Dominates(a.Solution.Objectives) {
				dominated = true
				break
			}
		}
		if !dominated {
			out = append(out, a)
		}
	}
	return out
}
