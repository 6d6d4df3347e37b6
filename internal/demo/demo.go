// Package demo provides a minimal tabular classifier and a uniform
// integer-offset perturbation function. Concrete classifier and
// perturbation implementations are out of the core's scope; this package
// exists only so the CLI and API have something runnable to demonstrate
// against, and neither the core packages nor internal/store import it.
package demo

import (
	"context"
	"math/rand"
	"sync"

	"github.com/anchorlab/anchorengine/internal/domain"
)

// Instance is a fixed-length integer feature vector satisfying
// domain.DataInstance.
type Instance []int

// F returns the feature count.
func (in Instance) F() int { return len(in) }

// Value returns feature f's integer value.
func (in Instance) Value(f int) any { return in[f] }

// QuadrantClassifier labels 1 iff every feature is positive, and 0
// otherwise. With two features this is the upper-right-quadrant rule
// "label 1 iff x>0 and y>0".
type QuadrantClassifier struct{}

// Predict implements domain.Classifier.
func (QuadrantClassifier) Predict(_ context.Context, instance domain.DataInstance) (int, error) {
	for f := 0; f < instance.F(); f++ {
		v, ok := instance.Value(f).(int)
		if !ok || v <= 0 {
			return 0, nil
		}
	}
	return 1, nil
}

// PredictBatch implements domain.Classifier by calling Predict in a loop;
// the quadrant rule has no batching advantage.
func (q QuadrantClassifier) PredictBatch(ctx context.Context, instances []domain.DataInstance) ([]int, error) {
	out := make([]int, len(instances))
	for i, inst := range instances {
		label, err := q.Predict(ctx, inst)
		if err != nil {
			return nil, err
		}
		out[i] = label
	}
	return out, nil
}

// DefaultSpan is the uniform perturbation's default offset half-range
// ([-5, +5]).
const DefaultSpan = 5

// UniformOffsetPerturbation draws, per unheld feature, a uniform integer
// offset in [-Span, Span] from the origin instance's value. Held features
// are copied from the origin exactly.
//
// mu guards rnd: the parallel sampling strategies call Perturb from
// multiple workers at once, and *rand.Rand is not safe for concurrent use.
type UniformOffsetPerturbation struct {
	origin domain.DataInstance
	span   int

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewUniformOffsetPerturbation builds a perturbation function centered on
// origin. span <= 0 uses DefaultSpan; the RNG is seeded for reproducible
// demos.
func NewUniformOffsetPerturbation(origin domain.DataInstance, span int, seed int64) *UniformOffsetPerturbation {
	if span <= 0 {
		span = DefaultSpan
	}
	return &UniformOffsetPerturbation{origin: origin, span: span, rnd: rand.New(rand.NewSource(seed))}
}

// Perturb implements domain.PerturbationFunction.
func (p *UniformOffsetPerturbation) Perturb(_ context.Context, held domain.FeatureSet, count int) ([]domain.DataInstance, [][]bool, error) {
	if count < 0 {
		return nil, nil, domain.ErrInvalidArgument
	}
	f := p.origin.F()
	instances := make([]domain.DataInstance, count)
	changed := make([][]bool, count)
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < count; i++ {
		inst := make(Instance, f)
		mask := make([]bool, f)
		for feat := 0; feat < f; feat++ {
			origVal, _ := p.origin.Value(feat).(int)
			if held.Contains(feat) {
				inst[feat] = origVal
				continue
			}
			offset := p.rnd.Intn(2*p.span+1) - p.span
			inst[feat] = origVal + offset
			mask[feat] = offset != 0
		}
		instances[i] = inst
		changed[i] = mask
	}
	return instances, changed, nil
}

// Reconfigure implements domain.PerturbationFunction, returning a new
// perturbation centered on origin with a freshly derived seed so repeated
// aggregator passes don't replay identical noise.
func (p *UniformOffsetPerturbation) Reconfigure(origin domain.DataInstance) (domain.PerturbationFunction, error) {
	p.mu.Lock()
	seed := p.rnd.Int63()
	p.mu.Unlock()
	return &UniformOffsetPerturbation{origin: origin, span: p.span, rnd: rand.New(rand.NewSource(seed))}, nil
}
