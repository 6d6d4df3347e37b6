// Package coverage implements the perturbation-based coverage estimator:
// given a feature set, it reports the fraction of the perturbation
// distribution that leaves every feature in the set unchanged.
package coverage

import (
	"context"

	"github.com/anchorlab/anchorengine/internal/domain"
)

// DefaultSampleCount is the number of coverage samples pre-drawn from the
// perturbation distribution when none is configured.
const DefaultSampleCount = 1000

// Estimator answers coverage queries from a fixed, pre-sampled mask table.
// It is stateless after construction and needs no lock: the mask table
// never mutates once built, so concurrent Coverage calls are inherently
// safe.
type Estimator struct {
	// changed[i][f] is true iff pre-sample i differed from the origin on
	// feature f.
	changed [][]bool
}

// New pre-samples count perturbations of the empty feature set (i.e. an
// unconstrained draw from the distribution) and builds the mask table used
// to answer every subsequent Coverage query.
func New(ctx context.Context, perturb domain.PerturbationFunction, count int) (*Estimator, error) {
	if count <= 0 {
		count = DefaultSampleCount
	}
	_, changed, err := perturb.Perturb(ctx, nil, count)
	if err != nil {
		return nil, err
	}
	return &Estimator{changed: changed}, nil
}

// NewFromMasks builds an Estimator directly from a pre-computed mask table,
// bypassing the perturbation function. Used for deterministic tests and for
// callers that already have a mask table from another source.
func NewFromMasks(changed [][]bool) *Estimator {
	return &Estimator{changed: append([][]bool(nil), changed...)}
}

// Coverage returns the fraction of pre-sampled masks for which no feature in
// s was changed. Deterministic given the pre-sampled table; O(M·|S|).
func (e *Estimator) Coverage(s domain.FeatureSet) (float64, error) {
	if len(e.changed) == 0 {
		return 0, nil
	}
	matches := 0
	for _, row := range e.changed {
		consistent := true
		for _, f := range s {
			if f < len(row) && row[f] {
				consistent = false
				break
			}
		}
		if consistent {
			matches++
		}
	}
	return float64(matches) / float64(len(e.changed)), nil
}

// SampleCount returns the number of pre-sampled masks backing this estimator.
func (e *Estimator) SampleCount() int { return len(e.changed) }
