package bandit

import (
	"context"
	"math"

	"github.com/anchorlab/anchorengine/internal/domain"
	"github.com/anchorlab/anchorengine/internal/infra/candidate"
	"github.com/anchorlab/anchorengine/internal/metrics"
)

// BatchSAR is the fixed-budget identifier: successive accepts and rejects
// over a total sampling budget, spending more of the budget on rounds
// where candidates remain hardest to tell apart.
type BatchSAR struct {
	// BatchBudget is the total number of batches of size b available for
	// the whole run. Defaults to 100 if <= 0.
	BatchBudget int

	// BatchSize (b) is the batch unit the budget is denominated in.
	// Defaults to 1 if <= 0.
	BatchSize int

	// CapPerArm (r) rounds every per-arm sample request up to a multiple
	// of this size. Defaults to 1 if <= 0.
	CapPerArm int
}

// logBar is the harmonic-like normalizer from the SAR budget schedule:
// logBar(n) = 1/2 + Σ_{i=2}^{n} 1/i.
func logBar(n int) float64 {
	if n <= 1 {
		return 0.5
	}
	sum := 0.5
	for i := 2; i <= n; i++ {
		sum += 1 / float64(i)
	}
	return sum
}

// roundTarget returns the cumulative per-arm sample target for round s of
// an n-arm run under a total sample budget, per the classic SAR schedule.
func roundTarget(budget, n, s int) int {
	denom := logBar(n) * float64(n+1-s)
	if denom <= 0 {
		return 0
	}
	v := float64(budget-n) / denom
	if v < 0 {
		v = 0
	}
	return int(math.Ceil(v))
}

// roundUpToMultiple rounds v up to the nearest positive multiple of step.
func roundUpToMultiple(v, step int) int {
	if step <= 0 {
		step = 1
	}
	if v <= 0 {
		return 0
	}
	return ((v + step - 1) / step) * step
}

// Identify runs BatchSAR over the full arm set, spending its fixed
// budget as it eliminates or accepts candidates round by round.
func (bs BatchSAR) Identify(ctx context.Context, candidates []*candidate.Candidate, sample SampleFunc, n int) ([]*candidate.Candidate, error) {
	if rest, ok := fewerThanN(candidates, n); ok {
		return rest, nil
	}

	budgetBatches := bs.BatchBudget
	if budgetBatches <= 0 {
		budgetBatches = 100
	}
	b := bs.BatchSize
	if b <= 0 {
		b = 1
	}
	r := bs.CapPerArm
	if r <= 0 {
		r = 1
	}
	totalBudget := budgetBatches * b
	arms := len(candidates)
	nn := int(math.Ceil(float64(b)/float64(r)))
	if nn < 2 {
		nn = 2
	}
	lastRound := arms - nn + 1
	if lastRound < 1 {
		lastRound = 1
	}

	survivors := append([]*candidate.Candidate(nil), candidates...)
	var accepted []*candidate.Candidate

	for s := 1; s <= lastRound; s++ {
		if len(accepted) >= n || len(survivors) == 0 {
			break
		}
		metrics.BanditIterations.WithLabelValues("batchsar").Inc()
		kt := n - len(accepted)
		if len(survivors) == kt {
			accepted = append(accepted, survivors...)
			survivors = nil
			break
		}

		target := roundTarget(totalBudget, arms, s)
		for _, c := range survivors {
			need := target - c.SampledSize()
			need = roundUpToMultiple(need, r)
			if need > 0 {
				if err := sample(ctx, []Request{{Candidate: c, N: need}}); err != nil {
					return nil, err
				}
				metrics.BanditBatchesRequested.WithLabelValues("batchsar").Inc()
			}
		}

		ordered := sortByPrecisionDescending(survivors)
		if s == lastRound {
			if kt > len(ordered) {
				kt = len(ordered)
			}
			accepted = append(accepted, ordered[:kt]...)
			survivors = nil
			break
		}

		if kt <= 0 || kt > len(ordered) {
			survivors = ordered
			continue
		}
		phat := make([]float64, len(ordered))
		for i, c := range ordered {
			phat[i] = c.Precision()
		}
		delta1 := phat[0] - phat[kt]
		delta2 := phat[kt-1] - phat[len(phat)-1]

		if delta1 >= delta2 {
			accepted = append(accepted, ordered[0])
			survivors = append([]*candidate.Candidate(nil), ordered[1:]...)
		} else {
			survivors = append([]*candidate.Candidate(nil), ordered[:len(ordered)-1]...)
		}
	}

	if len(accepted) > n {
		accepted = accepted[:n]
	}
	if len(accepted) == 0 {
		return nil, domain.ErrNoCandidateFound
	}
	return accepted, nil
}
