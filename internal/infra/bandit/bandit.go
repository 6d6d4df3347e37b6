// Package bandit implements the best-arm identification subroutines:
// given a list of noisy candidates, pick the top-N by precision under an
// (ε,δ) statistical guarantee. Three variants are provided — KL-LUCB
// (fixed-confidence, the default), BatchRacing (fixed-confidence, batched),
// and BatchSAR (fixed-budget) — behind the common Identifier interface.
package bandit

import (
	"context"
	"math"

	"github.com/anchorlab/anchorengine/internal/infra/candidate"
	"github.com/anchorlab/anchorengine/internal/infra/dsa"
)

// klEpsLow and klEpsHigh clamp p and q away from the singularities of the
// KL divergence (log(0), division by zero).
const (
	klEpsLow  = 1e-7
	klEpsHigh = 1 - 1e-16
	// bisectionSteps is the number of bisection halvings used to solve for
	// the KL upper/lower confidence bound, giving a tolerance of 2^-17.
	bisectionSteps = 17
)

func clampProb(p float64) float64 {
	if p < klEpsLow {
		return klEpsLow
	}
	if p > klEpsHigh {
		return klEpsHigh
	}
	return p
}

// klDivergence returns the Bernoulli KL divergence KL(p,q).
func klDivergence(p, q float64) float64 {
	p = clampProb(p)
	q = clampProb(q)
	return p*math.Log(p/q) + (1-p)*math.Log((1-p)/(1-q))
}

// KLUp solves, by bisection on [p,1], for the largest q >= p such that
// KL(p,q) <= level. hi is the bound that shrinks down from above whenever
// the divergence budget is exceeded, so it is hi — not the midpoint lo
// converges toward — that holds the answer once the bracket closes.
func KLUp(p, level float64) float64 {
	p = clampProb(p)
	lo, hi := p, klEpsHigh
	for i := 0; i < bisectionSteps; i++ {
		mid := (lo + hi) / 2
		if klDivergence(p, mid) > level {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi
}

// KLLo solves, by bisection on [0,p], for the smallest q <= p such that
// KL(p,q) <= level. Symmetric to KLUp: lo is the bound that grows up from
// below whenever the divergence budget is exceeded, and holds the answer.
func KLLo(p, level float64) float64 {
	p = clampProb(p)
	lo, hi := klEpsLow, p
	for i := 0; i < bisectionSteps; i++ {
		mid := (lo + hi) / 2
		if klDivergence(p, mid) > level {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo
}

// Request is one candidate's additional-sample ask for a bandit round.
type Request struct {
	Candidate *candidate.Candidate
	N         int
}

// SampleFunc draws the requested additional samples for each candidate and
// commits them before returning — an adapter over the sampling service's
// session, kept as a function type so the bandit package never depends on
// a concrete Classifier/PerturbationFunction/Strategy choice.
type SampleFunc func(ctx context.Context, requests []Request) error

// Identifier selects the top-N candidates by precision under a statistical
// guarantee. If fewer than N candidates are supplied, implementations
// return them all without sampling.
type Identifier interface {
	Identify(ctx context.Context, candidates []*candidate.Candidate, sample SampleFunc, n int) ([]*candidate.Candidate, error)
}

// sortByPrecisionDescending ranks candidates by current precision using a
// max-heap, draining it into a stable, deterministic order (ties break on
// position in the input slice, earliest first).
func sortByPrecisionDescending(candidates []*candidate.Candidate) []*candidate.Candidate {
	heap := dsa.NewScoreHeap()
	for i, c := range candidates {
		heap.Push(dsa.Item{ID: i, Score: c.Precision()})
	}
	out := make([]*candidate.Candidate, 0, len(candidates))
	for {
		item, ok := heap.Pop()
		if !ok {
			break
		}
		out = append(out, candidates[item.ID])
	}
	return out
}

// fewerThanN returns candidates unchanged (and true) when there are not
// enough of them to make identification meaningful: with N or fewer
// candidates supplied, all of them are returned without any sampling.
func fewerThanN(candidates []*candidate.Candidate, n int) ([]*candidate.Candidate, bool) {
	if len(candidates) <= n {
		return append([]*candidate.Candidate(nil), candidates...), true
	}
	return nil, false
}
