package bandit

import (
	"context"
	"math"

	"github.com/anchorlab/anchorengine/internal/domain"
	"github.com/anchorlab/anchorengine/internal/infra/candidate"
	"github.com/anchorlab/anchorengine/internal/metrics"
)

// BatchRacing is the fixed-confidence, batched identifier: every round it
// pulls a fixed batch of samples round-robin across all surviving
// candidates (capped per candidate), then accepts or rejects candidates
// whose confidence bounds have clearly separated from the pack. Unlike
// KL-LUCB it ignores ε and never re-examines an accepted/rejected
// candidate.
type BatchRacing struct {
	Delta float64 // δ: confidence

	// BatchSize is the total number of samples pulled per round, spread
	// round-robin across survivors. Defaults to 10 if <= 0.
	BatchSize int

	// CapPerArm bounds how many of a round's samples one candidate may
	// receive, keeping sample counts uniform across survivors. Defaults to
	// 1 if <= 0.
	CapPerArm int

	// MaxRounds bounds the run in case every candidate's bound stays
	// permanently tied. Defaults to 100000 if <= 0.
	MaxRounds int
}

// deviation computes d(τ,δ,n) = sqrt(4·log(log2(2τ)/ω)/τ) with
// ω = sqrt(δ/(6n)), the racing algorithm's per-arm confidence radius after
// τ samples among n total arms.
func deviation(tau int, delta float64, n int) float64 {
	if tau <= 0 {
		return math.Inf(1)
	}
	omega := math.Sqrt(delta / (6 * float64(n)))
	inner := math.Log2(2*float64(tau)) / omega
	if inner <= 1 {
		return math.Inf(1)
	}
	return math.Sqrt(4 * math.Log(inner) / float64(tau))
}

// roundRobinSample distributes budget samples one at a time across
// survivors, capping each at capPerArm for the round, and runs them
// through sample.
func roundRobinSample(ctx context.Context, survivors []*candidate.Candidate, budget, capPerArm int, sample SampleFunc) error {
	given := make([]int, len(survivors))
	for budget > 0 {
		progressed := false
		for i, c := range survivors {
			if budget == 0 {
				break
			}
			if given[i] >= capPerArm {
				continue
			}
			if err := sample(ctx, []Request{{Candidate: c, N: 1}}); err != nil {
				return err
			}
			metrics.BanditBatchesRequested.WithLabelValues("batchracing").Inc()
			given[i]++
			budget--
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return nil
}

// Identify runs BatchRacing to completion: rounds continue until every
// candidate has been accepted or rejected, N candidates have been
// accepted, or MaxRounds is reached.
func (br BatchRacing) Identify(ctx context.Context, candidates []*candidate.Candidate, sample SampleFunc, n int) ([]*candidate.Candidate, error) {
	if rest, ok := fewerThanN(candidates, n); ok {
		return rest, nil
	}

	batch := br.BatchSize
	if batch <= 0 {
		batch = 10
	}
	capPerArm := br.CapPerArm
	if capPerArm <= 0 {
		capPerArm = 1
	}
	maxRounds := br.MaxRounds
	if maxRounds <= 0 {
		maxRounds = 100000
	}
	delta := br.Delta
	if delta <= 0 {
		delta = 0.1
	}

	totalArms := len(candidates)
	survivors := append([]*candidate.Candidate(nil), candidates...)
	var accepted []*candidate.Candidate

	for round := 0; round < maxRounds && len(accepted) < n && len(survivors) > 0; round++ {
		metrics.BanditIterations.WithLabelValues("batchracing").Inc()
		if err := roundRobinSample(ctx, survivors, batch, capPerArm, sample); err != nil {
			return nil, err
		}

		phat := make([]float64, len(survivors))
		ub := make([]float64, len(survivors))
		lb := make([]float64, len(survivors))
		for i, c := range survivors {
			phat[i] = c.Precision()
			d := deviation(c.SampledSize(), delta, totalArms)
			ub[i] = math.Min(1, phat[i]+d)
			lb[i] = math.Max(0, phat[i]-d)
		}

		kt := n - len(accepted)
		var toAccept, toReject []int
		for i := range survivors {
			nrGreater, nrLesser := 0, 0
			for j := range survivors {
				if j == i {
					continue
				}
				if ub[j] < lb[i] {
					nrGreater++
				}
				if lb[j] > ub[i] {
					nrLesser++
				}
			}
			if nrGreater >= len(survivors)-kt {
				toAccept = append(toAccept, i)
			} else if nrLesser >= kt {
				toReject = append(toReject, i)
			}
		}

		if len(toAccept) == 0 && len(toReject) == 0 {
			continue
		}
		drop := make(map[int]bool, len(toAccept)+len(toReject))
		for _, i := range toAccept {
			accepted = append(accepted, survivors[i])
			drop[i] = true
		}
		for _, i := range toReject {
			drop[i] = true
		}
		kept := survivors[:0:0]
		for i, c := range survivors {
			if !drop[i] {
				kept = append(kept, c)
			}
		}
		survivors = kept
	}

	if len(accepted) > n {
		accepted = accepted[:n]
	}
	if len(accepted) == 0 {
		return nil, domain.ErrNoCandidateFound
	}
	return accepted, nil
}
