// Package anchor implements the anchor constructor: a beam search over
// feature-set conjunctions that grows a rule one feature at a time, using
// the bandit identifier to shortlist promising extensions and the coverage
// estimator to break ties, until it finds a rule whose confidence-verified
// precision meets the target or the feature budget is exhausted.
package anchor

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/anchorlab/anchorengine/internal/domain"
	"github.com/anchorlab/anchorengine/internal/infra/bandit"
	"github.com/anchorlab/anchorengine/internal/infra/candidate"
	"github.com/anchorlab/anchorengine/internal/infra/dsa"
	"github.com/anchorlab/anchorengine/internal/infra/sampling"
	"github.com/anchorlab/anchorengine/internal/metrics"
)

// State is a construction run's current position in its lifecycle.
type State int

const (
	Searching State = iota
	FoundAnchor
	Exhausted
	Failed
)

func (s State) String() string {
	switch s {
	case Searching:
		return "searching"
	case FoundAnchor:
		return "found_anchor"
	case Exhausted:
		return "exhausted"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config controls one construction run. New replaces a zero or negative
// numeric field with its named default (MaxAnchorSize falls back to the
// instance's feature count in Construct); LazyCoverage,
// AllowSuboptimalSteps and Strategy are used as given, with their defaults
// in DefaultConfig.
type Config struct {
	Delta          float64 // confidence, default 0.1
	Eps            float64 // tolerance, default 0.1
	Tau            float64 // target precision, default 1.0
	TauDiscrepancy float64 // mean/bound slack, default 0.05

	BeamSize        int // default 2
	MaxAnchorSize   int // default: instance feature count (0 means "use default")
	InitSampleCount int // minimum samples per candidate before the bandit runs, default 1

	// LazyCoverage defers coverage computation to extension/return time
	// rather than computing it for every generated candidate up front.
	LazyCoverage bool

	// AllowSuboptimalSteps, when false, prunes candidates whose precision
	// does not exceed their parent's (added precision <= 0) before round end.
	AllowSuboptimalSteps bool

	Strategy sampling.Strategy
	Workers  int

	// MaxValidationRounds bounds the per-candidate verification loop in
	// step 4, guarding against a classifier/perturbation pair that never
	// lets the mean and its bound agree.
	MaxValidationRounds int
}

// DefaultConfig returns the constructor's named parameter defaults.
func DefaultConfig() Config {
	return Config{
		Delta:                0.1,
		Eps:                  0.1,
		Tau:                  1.0,
		TauDiscrepancy:       0.05,
		BeamSize:             2,
		InitSampleCount:      1,
		LazyCoverage:         true,
		AllowSuboptimalSteps: true,
		Strategy:             sampling.Parallel,
		Workers:              4,
		MaxValidationRounds:  10000,
	}
}

// Constructor runs beam search for a fixed classifier and bandit identifier;
// Construct is called once per explained instance.
type Constructor struct {
	cfg        Config
	classifier domain.Classifier
	identifier bandit.Identifier
}

// New creates a Constructor. If identifier is nil, a KL-LUCB identifier
// configured from cfg is used.
func New(cfg Config, classifier domain.Classifier, identifier bandit.Identifier) *Constructor {
	if cfg.BeamSize <= 0 {
		cfg.BeamSize = 2
	}
	if cfg.InitSampleCount <= 0 {
		cfg.InitSampleCount = 1
	}
	if cfg.Delta <= 0 {
		cfg.Delta = 0.1
	}
	if cfg.Eps <= 0 {
		cfg.Eps = 0.1
	}
	if cfg.Tau <= 0 {
		cfg.Tau = 1.0
	}
	if cfg.TauDiscrepancy <= 0 {
		cfg.TauDiscrepancy = 0.05
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxValidationRounds <= 0 {
		cfg.MaxValidationRounds = 10000
	}
	if identifier == nil {
		identifier = bandit.KLLUCB{Delta: cfg.Delta, Eps: cfg.Eps, BatchSize: cfg.InitSampleCount}
	}
	return &Constructor{cfg: cfg, classifier: classifier, identifier: identifier}
}

// Construct runs the beam search for one (instance, label) pair, sampling
// through perturb and scoring coverage through cov. When the best candidate
// has positive precision but never met the target, the result (with IsAnchor
// false) is returned together with domain.ErrNoAnchorFound.
func (c *Constructor) Construct(ctx context.Context, instance domain.DataInstance, label int, perturb domain.PerturbationFunction, cov domain.CoverageEstimator) (*domain.AnchorResult, error) {
	start := time.Now()
	store := candidate.NewStore()
	F := instance.F()
	if F <= 0 {
		return nil, fmt.Errorf("%w: instance has no features", domain.ErrInvalidArgument)
	}
	maxSize := c.cfg.MaxAnchorSize
	if maxSize <= 0 {
		maxSize = F
	}

	seen := make(map[string]bool, F*2)
	bloom := dsa.NewBloomFilter(dsa.DefaultBloomConfig())
	var allConsidered []*candidate.Candidate
	var beam []*candidate.Candidate

	var best *candidate.Candidate
	bestCoverage := -1.0
	bestIsAnchor := false
	state := Searching
	rounds := 0
	var samplingElapsed time.Duration

	sample := func(ctx context.Context, reqs []bandit.Request) error {
		sess := sampling.NewSession(c.cfg.Strategy, c.cfg.Workers, label)
		for _, r := range reqs {
			sess.Register(r.Candidate, r.N)
		}
		err := sess.Run(ctx, c.classifier, perturb)
		samplingElapsed += sess.Elapsed()
		return err
	}

	for s := 1; s <= maxSize; s++ {
		rounds = s

		gen := c.generate(store, beam, F, seen, bloom)
		allConsidered = append(allConsidered, gen...)
		if len(gen) == 0 {
			state = Exhausted
			break
		}

		if err := c.computeCoverageGate(gen, bestCoverage, cov); err != nil {
			return nil, err
		}
		if bestCoverage >= 0 {
			gen = pruneBelowCoverage(gen, bestCoverage)
		}
		if len(gen) == 0 {
			state = Exhausted
			break
		}

		if err := sample(ctx, presampleRequests(gen, c.cfg.InitSampleCount)); err != nil {
			return nil, err
		}

		shortlist := gen
		if len(gen) > c.cfg.BeamSize {
			var err error
			shortlist, err = c.identifier.Identify(ctx, gen, sample, c.cfg.BeamSize)
			if err != nil {
				return nil, err
			}
		}

		filtered := c.filter(store, shortlist)
		if len(filtered) == 0 {
			state = Failed
			break
		}

		betaVal := math.Log(1 / (c.cfg.Delta / (1 + float64(c.cfg.BeamSize-1)*float64(F))))
		for _, cnd := range filtered {
			isAnchor, err := c.validate(ctx, cnd, betaVal, sample)
			if err != nil {
				return nil, err
			}
			if err := ensureCoverage(cnd, cov); err != nil {
				return nil, err
			}
			curCov, _ := cnd.Coverage()
			if isAnchor && curCov > bestCoverage {
				bestCoverage = curCov
				best = cnd
				bestIsAnchor = isAnchor
			}
		}

		beam = filtered
		log.Printf("[anchor] round %d: considered=%d shortlisted=%d best_coverage=%.4f", s, len(gen), len(shortlist), bestCoverage)

		if bestCoverage >= 1.0 {
			state = FoundAnchor
			break
		}
	}
	if state == Searching {
		state = FoundAnchor
	}

	if !bestIsAnchor {
		fallback, err := c.fallback(ctx, allConsidered, cov, sample)
		if err != nil {
			return nil, err
		}
		best = fallback
		bestIsAnchor = false
	}

	lineage := store.Lineage(best)
	result := &domain.AnchorResult{
		Instance:         instance,
		Label:            label,
		Candidate:        best.Snapshot(),
		IsAnchor:         bestIsAnchor,
		Lineage:          lineage,
		SearchDuration:   time.Since(start),
		SamplingDuration: samplingElapsed,
		RoundsSearched:   rounds,
	}
	log.Printf("[anchor] construction finished state=%s is_anchor=%t coverage=%.4f rounds=%d", state, bestIsAnchor, bestCoverage, rounds)
	metrics.RoundsSearched.Add(float64(rounds))
	metrics.ConstructionOutcomes.WithLabelValues(state.String()).Inc()
	metrics.ConstructionDuration.Observe(result.SearchDuration.Seconds())
	if !bestIsAnchor {
		// The best candidate is still attached; callers that can use a
		// below-target rule check for this sentinel and keep the result.
		return result, domain.ErrNoAnchorFound
	}
	return result, nil
}

// generate produces every one-feature extension of beam (or every
// single-feature root, if beam is empty), deduplicated by canonical
// feature set. A Bloom filter pre-filters definite-misses before the exact
// seen map is consulted, since most extensions within a round are novel.
func (c *Constructor) generate(store *candidate.Store, beam []*candidate.Candidate, features int, seen map[string]bool, bloom *dsa.BloomFilter) []*candidate.Candidate {
	var out []*candidate.Candidate
	add := func(featureSeq []int, parent candidate.ID) {
		key := domain.NewFeatureSet(featureSeq).Key()
		if bloom.Contains(key) {
			if seen[key] {
				return
			}
		}
		cnd, err := store.New(featureSeq, parent)
		if err != nil {
			return
		}
		seen[key] = true
		bloom.Add(key)
		out = append(out, cnd)
	}

	if len(beam) == 0 {
		for f := 0; f < features; f++ {
			add([]int{f}, candidate.NoParent)
		}
		return out
	}
	for _, parent := range beam {
		for f := 0; f < features; f++ {
			if parent.Set().Contains(f) {
				continue
			}
			extended := append(append([]int(nil), parent.Features()...), f)
			add(extended, parent.ID())
		}
	}
	return out
}

// computeCoverageGate computes coverage for every candidate in gen when
// either coverage isn't lazy, or a best-so-far coverage already exists and
// needs a gate value to prune against.
func (c *Constructor) computeCoverageGate(gen []*candidate.Candidate, bestCoverage float64, cov domain.CoverageEstimator) error {
	if c.cfg.LazyCoverage && bestCoverage < 0 {
		return nil
	}
	for _, cnd := range gen {
		if err := ensureCoverage(cnd, cov); err != nil {
			return err
		}
	}
	return nil
}

func ensureCoverage(cnd *candidate.Candidate, cov domain.CoverageEstimator) error {
	if _, ok := cnd.Coverage(); ok {
		return nil
	}
	v, err := cov.Coverage(cnd.Set())
	if err != nil {
		return err
	}
	if err := cnd.SetCoverage(v); err != nil && err != domain.ErrCoverageAlreadySet {
		return err
	}
	return nil
}

func pruneBelowCoverage(gen []*candidate.Candidate, threshold float64) []*candidate.Candidate {
	out := gen[:0:0]
	for _, cnd := range gen {
		if v, ok := cnd.Coverage(); ok && v < threshold {
			continue
		}
		out = append(out, cnd)
	}
	return out
}

func presampleRequests(gen []*candidate.Candidate, initSampleCount int) []bandit.Request {
	var reqs []bandit.Request
	for _, cnd := range gen {
		need := initSampleCount - cnd.SampledSize()
		if need > 0 {
			reqs = append(reqs, bandit.Request{Candidate: cnd, N: need})
		}
	}
	return reqs
}

// filter drops zero-precision candidates, and (when suboptimal steps are
// disallowed) candidates whose precision did not improve on their parent's.
func (c *Constructor) filter(store *candidate.Store, shortlist []*candidate.Candidate) []*candidate.Candidate {
	var out []*candidate.Candidate
	for _, cnd := range shortlist {
		if cnd.Precision() == 0 {
			continue
		}
		if !c.cfg.AllowSuboptimalSteps {
			if parent := store.Parent(cnd); parent != nil && cnd.Precision()-parent.Precision() <= 0 {
				continue
			}
		}
		out = append(out, cnd)
	}
	return out
}

// validate takes additional batches of InitSampleCount samples until the
// candidate's mean and its KL confidence bound agree on whether it meets τ:
// either mean ≥ τ with the lower bound above τ-TauDiscrepancy (a verified
// anchor), or mean < τ with the upper bound below τ+TauDiscrepancy.
func (c *Constructor) validate(ctx context.Context, cnd *candidate.Candidate, betaVal float64, sample bandit.SampleFunc) (bool, error) {
	for i := 0; i < c.cfg.MaxValidationRounds; i++ {
		n := cnd.SampledSize()
		mean := cnd.Precision()
		level := betaVal
		if n > 0 {
			level = betaVal / float64(n)
		}
		ub := bandit.KLUp(mean, level)
		lb := bandit.KLLo(mean, level)

		if mean >= c.cfg.Tau && lb > c.cfg.Tau-c.cfg.TauDiscrepancy {
			return true, nil
		}
		if mean < c.cfg.Tau && ub < c.cfg.Tau+c.cfg.TauDiscrepancy {
			return false, nil
		}
		if err := sample(ctx, []bandit.Request{{Candidate: cnd, N: c.cfg.InitSampleCount}}); err != nil {
			return false, err
		}
	}
	return false, nil
}

// fallback runs the identifier once more over every candidate ever
// considered and returns the single best by precision, with coverage
// computed if still unset. Used when no candidate was confidence-verified
// as an anchor.
func (c *Constructor) fallback(ctx context.Context, allConsidered []*candidate.Candidate, cov domain.CoverageEstimator, sample bandit.SampleFunc) (*candidate.Candidate, error) {
	var positive []*candidate.Candidate
	for _, cnd := range allConsidered {
		if cnd.Precision() > 0 {
			positive = append(positive, cnd)
		}
	}
	if len(positive) == 0 {
		return nil, domain.ErrNoCandidateFound
	}
	top, err := c.identifier.Identify(ctx, positive, sample, 1)
	if err != nil {
		return nil, err
	}
	winner := top[0]
	if err := ensureCoverage(winner, cov); err != nil {
		return nil, err
	}
	return winner, nil
}
