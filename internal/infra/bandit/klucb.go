package bandit

import (
	"context"
	"math"
	"sort"

	"github.com/anchorlab/anchorengine/internal/infra/candidate"
	"github.com/anchorlab/anchorengine/internal/metrics"
)

// KLLUCB is the default bandit identifier: a fixed-confidence algorithm that
// maintains KL-divergence-based upper and lower confidence bounds on each
// candidate's precision and samples only the two candidates whose bounds
// are closest to crossing.
//
// Key idea: split candidates into the current top-N guess (J) and the rest
// (¬J). The candidate in ¬J with the highest upper bound (u_t) is the
// biggest threat to unseat the weakest member of J; the candidate in J with
// the lowest lower bound (l_t) is the weakest member. Sampling exactly
// those two each round concentrates the sampling budget on the pair that
// actually determines whether J is still correct.
type KLLUCB struct {
	Delta float64 // δ: confidence (exceeding 1-δ probability of correctness)
	Eps   float64 // ε: tolerance at which UB-LB gap is accepted as converged

	// BatchSize is how many additional samples are requested per candidate,
	// per iteration. Defaults to 1 if <= 0.
	BatchSize int

	// MaxIterations bounds the loop, which under pathological noise may
	// otherwise never converge. Defaults to 100000 if <= 0.
	MaxIterations int
}

const (
	klucbAlpha = 1.1
	klucbK     = 405.5
)

// beta computes β(t) = log(k·|A|·t^α/δ) + log(log(k·|A|·t^α/δ)).
func beta(t int, arms int, delta float64) float64 {
	inner := klucbK * float64(arms) * math.Pow(float64(t), klucbAlpha) / delta
	return math.Log(inner) + math.Log(math.Log(inner))
}

// argsortByPrecisionAscending returns the arm indices ordered by ascending
// p̂. The sort is stable, so arms with equal precision keep their input
// order; the top-N partition is the tail of this ordering, which puts a tie
// straddling the partition boundary on the J side for the later arm.
func argsortByPrecisionAscending(phat []float64) []int {
	order := make([]int, len(phat))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return phat[order[a]] < phat[order[b]] })
	return order
}

// updateBounds recomputes, for the round's β, the upper bound of every arm
// outside the current top-N partition and the lower bound of every arm
// inside it, then returns u_t (the complement arm with the highest UB) and
// l_t (the top-N arm with the lowest LB). All indices — the inputs, the
// entries written into ub/lb, and the returned pair — are in the arms'
// original order; the partition is derived internally from a stable
// ascending sort on p̂. Bound ties resolve toward the arm appearing
// earliest in that sorted order, so when several once-sampled arms saturate
// at the clamp ceiling the lowest-precision one is picked. ub and lb are
// scratch slices the caller reuses across iterations; only the entries this
// call actually touches are written.
//
// Exposed at package level (not a method) so it can be regression-tested
// directly on fixed (N, p̂) vectors without a live candidate store.
func updateBounds(t int, ns []int, phat []float64, topN int, ub, lb []float64, delta float64) (u, l int) {
	arms := len(ns)
	betaVal := beta(t, arms, delta)
	order := argsortByPrecisionAscending(phat)

	u, l = -1, -1
	bestUB := math.Inf(-1)
	bestLB := math.Inf(1)
	for pos, f := range order {
		level := math.Inf(1)
		if ns[f] > 0 {
			level = betaVal / float64(ns[f])
		}
		if pos < arms-topN {
			ub[f] = KLUp(phat[f], level)
			if ub[f] > bestUB {
				bestUB = ub[f]
				u = f
			}
		} else {
			lb[f] = KLLo(phat[f], level)
			if lb[f] < bestLB {
				bestLB = lb[f]
				l = f
			}
		}
	}
	return u, l
}

// Identify runs KL-LUCB to convergence or MaxIterations, whichever comes
// first, and returns the final top-N set J, best arm first.
func (k KLLUCB) Identify(ctx context.Context, candidates []*candidate.Candidate, sample SampleFunc, n int) ([]*candidate.Candidate, error) {
	if rest, ok := fewerThanN(candidates, n); ok {
		return rest, nil
	}
	batch := k.BatchSize
	if batch <= 0 {
		batch = 1
	}
	maxIter := k.MaxIterations
	if maxIter <= 0 {
		maxIter = 100000
	}
	delta := k.Delta
	if delta <= 0 {
		delta = 0.1
	}

	ns := make([]int, len(candidates))
	phat := make([]float64, len(candidates))
	ub := make([]float64, len(candidates))
	lb := make([]float64, len(candidates))

	refresh := func() {
		for i, c := range candidates {
			ns[i] = c.SampledSize()
			phat[i] = c.Precision()
		}
	}
	refresh()

	for t := 1; t <= maxIter; t++ {
		metrics.BanditIterations.WithLabelValues("klucb").Inc()
		u, l := updateBounds(t, ns, phat, n, ub, lb, delta)
		if u == -1 || l == -1 {
			break
		}
		if ub[u]-lb[l] <= k.Eps {
			break
		}
		if err := sample(ctx, []Request{
			{Candidate: candidates[u], N: batch},
			{Candidate: candidates[l], N: batch},
		}); err != nil {
			return nil, err
		}
		metrics.BanditBatchesRequested.WithLabelValues("klucb").Inc()
		refresh()
	}

	order := argsortByPrecisionAscending(phat)
	out := make([]*candidate.Candidate, 0, n)
	for i := len(order) - 1; i >= len(order)-n; i-- {
		out = append(out, candidates[order[i]])
	}
	return out, nil
}
