package aggregator

import (
	"context"
	"errors"
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/anchorlab/anchorengine/internal/domain"
	"github.com/anchorlab/anchorengine/internal/infra/anchor"
	"github.com/anchorlab/anchorengine/internal/infra/bandit"
	"github.com/anchorlab/anchorengine/internal/infra/coverage"
	"github.com/anchorlab/anchorengine/internal/metrics"
)

// Config bundles the aggregator's own knobs alongside the per-instance
// anchor construction config it fans out with.
type Config struct {
	Anchor anchor.Config

	// CoverageSamples is the pre-sample count passed to coverage.New for
	// each per-instance coverage estimator.
	CoverageSamples int

	Identity domain.AtomIdentity
	Mode     domain.ImportanceMode

	// Workers bounds the aggregator's own fixed-size worker pool, separate
	// from the sampling service's pool each per-instance construction opens;
	// the two pool sizes compose multiplicatively when both are enabled.
	// Clamped to [1, runtime.NumCPU()]; defaults to NumCPU() if <= 0.
	Workers int
}

// DefaultConfig mirrors anchor.DefaultConfig, adding the aggregator-level
// defaults.
func DefaultConfig() Config {
	return Config{
		Anchor:          anchor.DefaultConfig(),
		CoverageSamples: coverage.DefaultSampleCount,
		Identity:        domain.AtomByFeature,
		Mode:            domain.FeatureAppearance,
		Workers:         runtime.NumCPU(),
	}
}

// Aggregator runs the anchor constructor across many inputs and folds
// their results into an explanation matrix for downstream selection.
type Aggregator struct {
	cfg         Config
	classifier  domain.Classifier
	identifier  bandit.Identifier
	basePerturb domain.PerturbationFunction
}

// New builds an Aggregator. basePerturb is Reconfigure'd onto each input
// instance before that instance's anchor search runs.
func New(cfg Config, classifier domain.Classifier, identifier bandit.Identifier, basePerturb domain.PerturbationFunction) *Aggregator {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if max := runtime.NumCPU(); cfg.Workers > max {
		cfg.Workers = max
	}
	return &Aggregator{cfg: cfg, classifier: classifier, identifier: identifier, basePerturb: basePerturb}
}

// RunAll constructs an anchor for each (instance,label) pair in parallel and
// returns every successfully constructed result; a construction failure on
// one instance drops that instance from the result set (the "nulls
// filtered" step of the aggregator) rather than failing the whole run.
func (a *Aggregator) RunAll(ctx context.Context, instances []domain.DataInstance, labels []int) ([]domain.AnchorResult, error) {
	if len(instances) != len(labels) {
		return nil, domain.ErrInvalidArgument
	}

	start := time.Now()
	defer func() { metrics.AggregatorPassDuration.Observe(time.Since(start).Seconds()) }()

	results := make([]*domain.AnchorResult, len(instances))
	jobs := make(chan int)
	workers := a.cfg.Workers
	if workers > len(instances) {
		workers = len(instances)
	}
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				res, err := a.constructOne(ctx, instances[i], labels[i])
				if err != nil && !errors.Is(err, domain.ErrNoAnchorFound) {
					log.Printf("[aggregator] instance %d: %v", i, err)
					metrics.AggregatorInputsFailed.Inc()
					continue
				}
				// A below-target best candidate still contributes a row to
				// the explanation matrix.
				results[i] = res
			}
		}()
	}
	for i := range instances {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	out := make([]domain.AnchorResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (a *Aggregator) constructOne(ctx context.Context, instance domain.DataInstance, label int) (*domain.AnchorResult, error) {
	perturb, err := a.basePerturb.Reconfigure(instance)
	if err != nil {
		return nil, err
	}
	cov, err := coverage.New(ctx, perturb, a.cfg.CoverageSamples)
	if err != nil {
		return nil, err
	}
	c := anchor.New(a.cfg.Anchor, a.classifier, a.identifier)
	return c.Construct(ctx, instance, label, perturb, cov)
}

// Explain runs RunAll, builds the explanation matrix under the aggregator's
// configured atom identity and importance mode, and returns both the raw
// results (for CoveragePick / inspection) and the matrix.
func (a *Aggregator) Explain(ctx context.Context, instances []domain.DataInstance, labels []int) ([]domain.AnchorResult, Matrix, error) {
	results, err := a.RunAll(ctx, instances, labels)
	if err != nil {
		return nil, Matrix{}, err
	}
	return results, Build(results, a.cfg.Identity, a.cfg.Mode), nil
}
