package domain

import "context"

// ─── External Collaborator Interfaces ──────────────────────────────────────
// These interfaces define the boundary between the core (candidate,
// coverage, sampling, bandit, anchor, aggregator) and everything the core
// does not own: concrete classifiers, perturbation distributions, and data
// access. The core depends only on these; callers supply implementations.

// Classifier is the black-box model under explanation.
//
// Predict must be deterministic, or stochastically stable, across a single
// construction run — the sampling service assumes identical inputs produce
// the same label within one run.
type Classifier interface {
	// Predict returns the classifier's label for a single instance.
	Predict(ctx context.Context, instance DataInstance) (int, error)

	// PredictBatch returns one label per instance, in order. Implementations
	// that have no batching advantage may call Predict in a loop; callers
	// must not assume any particular execution order across the batch.
	PredictBatch(ctx context.Context, instances []DataInstance) ([]int, error)
}

// PerturbationFunction produces samples from the perturbation distribution
// conditioned on holding a feature set fixed at the origin instance's values.
//
// Perturb must preserve every feature index in held exactly as it appears on
// the origin instance; failing to do so corrupts precision estimates (the
// sampling service has no way to detect a violation).
type PerturbationFunction interface {
	// Perturb draws count perturbations holding the features in held fixed.
	// changed[i][f] is true iff perturbation i differs from the origin on
	// feature f. len(changed[i]) == origin feature count for every i.
	Perturb(ctx context.Context, held FeatureSet, count int) (instances []DataInstance, changed [][]bool, err error)

	// Reconfigure returns a new PerturbationFunction centered on origin,
	// used by the global aggregator before each per-instance construction
	// run. The receiver is left unmodified.
	Reconfigure(origin DataInstance) (PerturbationFunction, error)
}

// DataInstance exposes the feature count and an indexable view of feature
// values for a single explained input. The core only ever reads F(); the
// value accessor exists for collaborators that render or preprocess
// instances (visualization, discretizers) outside the core's scope.
type DataInstance interface {
	// F returns the number of features on this instance.
	F() int

	// Value returns the raw value of feature index f (0 <= f < F()).
	Value(f int) any
}

// CoverageEstimator reports what fraction of the perturbation distribution a
// feature set is consistent with. The default implementation is the
// perturbation-based estimator in internal/infra/coverage; callers may
// supply another as long as it satisfies coverage(S) in [0,1] and is
// monotonically non-increasing as S grows.
type CoverageEstimator interface {
	Coverage(s FeatureSet) (float64, error)
}
