// Package sampling implements the sampling service: a session-oriented
// evaluator that batch-evaluates candidates by perturbing the explained
// instance, classifying the perturbations, and committing the resulting
// counts onto each candidate's statistics.
package sampling

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/anchorlab/anchorengine/internal/domain"
	"github.com/anchorlab/anchorengine/internal/infra/candidate"
	"github.com/anchorlab/anchorengine/internal/metrics"
)

// Strategy selects how a session distributes work across candidates.
type Strategy int

const (
	// Linear processes registered candidates sequentially.
	Linear Strategy = iota
	// Parallel dispatches one task per candidate to a fixed-size worker pool.
	Parallel
	// BalancedParallel partitions the total sample count evenly across
	// workers regardless of candidate identity.
	BalancedParallel
)

func (s Strategy) String() string {
	switch s {
	case Linear:
		return "linear"
	case Parallel:
		return "parallel"
	case BalancedParallel:
		return "balanced_parallel"
	default:
		return "unknown"
	}
}

// registration accumulates the additional sample count requested for one
// candidate across possibly-repeated Register calls.
type registration struct {
	candidate *candidate.Candidate
	n         int
}

// Session is created per explained label. Callers register candidates with
// an additional sample count; Run evaluates all of them exactly once,
// committing results via candidate.RegisterSamples.
type Session struct {
	strategy Strategy
	workers  int
	label    int

	mu      sync.Mutex
	byID    map[candidate.ID]*registration
	order   []candidate.ID
	elapsed time.Duration
}

// NewSession creates a sampling session for the given label. workers is only
// consulted for Parallel and BalancedParallel strategies; it is clamped to
// at least 1 and at most runtime.NumCPU() to avoid an unbounded fan-out from
// a misconfigured caller.
func NewSession(strategy Strategy, workers int, label int) *Session {
	if workers < 1 {
		workers = 1
	}
	if max := runtime.NumCPU(); workers > max {
		workers = max
	}
	return &Session{
		strategy: strategy,
		workers:  workers,
		label:    label,
		byID:     make(map[candidate.ID]*registration),
	}
}

// Register requests n additional samples for c. Calling Register twice for
// the same candidate accumulates the counts rather than overwriting them.
func (s *Session) Register(c *candidate.Candidate, n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.byID[c.ID()]; ok {
		r.n += n
		return
	}
	r := &registration{candidate: c, n: n}
	s.byID[c.ID()] = r
	s.order = append(s.order, c.ID())
}

// Elapsed returns the wall time spent in the most recent Run call.
func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed
}

// Run evaluates every registered candidate. All registered sample increments
// land on their candidates before Run returns (within this session there is
// no ordering guarantee between candidates, only that every increment has
// happened-before the return). If the classifier or perturbation function
// fails, Run aborts and returns the wrapped error; any candidate statistics
// already committed remain, since accumulation is monotonic. Cancelling ctx
// is best-effort: a slice already being evaluated completes and commits, and
// Run then returns ErrInterrupted instead of starting the next one.
func (s *Session) Run(ctx context.Context, classifier domain.Classifier, perturb domain.PerturbationFunction) error {
	start := time.Now()
	defer func() {
		s.mu.Lock()
		s.elapsed = time.Since(start)
		s.mu.Unlock()
		metrics.SessionDuration.Observe(time.Since(start).Seconds())
	}()

	s.mu.Lock()
	regs := make([]*registration, len(s.order))
	for i, id := range s.order {
		regs[i] = s.byID[id]
	}
	s.mu.Unlock()

	if len(regs) == 0 {
		return nil
	}

	switch s.strategy {
	case Linear:
		return s.runLinear(ctx, classifier, perturb, regs)
	case Parallel:
		return s.runParallel(ctx, classifier, perturb, regs)
	case BalancedParallel:
		return s.runBalanced(ctx, classifier, perturb, regs)
	default:
		return s.runLinear(ctx, classifier, perturb, regs)
	}
}

func (s *Session) runLinear(ctx context.Context, classifier domain.Classifier, perturb domain.PerturbationFunction, regs []*registration) error {
	for _, r := range regs {
		if ctx.Err() != nil {
			return domain.ErrInterrupted
		}
		if err := evaluate(ctx, classifier, perturb, r.candidate, r.n, s.label, s.strategy); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) runParallel(ctx context.Context, classifier domain.Classifier, perturb domain.PerturbationFunction, regs []*registration) error {
	jobs := make(chan *registration)
	errs := make(chan error, len(regs))

	var wg sync.WaitGroup
	workers := s.workers
	if workers > len(regs) {
		workers = len(regs)
	}
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for r := range jobs {
				if ctx.Err() != nil {
					errs <- domain.ErrInterrupted
					continue
				}
				errs <- evaluate(ctx, classifier, perturb, r.candidate, r.n, s.label, s.strategy)
			}
		}()
	}
	for _, r := range regs {
		jobs <- r
	}
	close(jobs)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// balancedSlice is one worker's contiguous share of the total sample count,
// expressed as how many of a given registration's samples it owns.
type balancedSlice struct {
	reg   *registration
	count int
}

func (s *Session) runBalanced(ctx context.Context, classifier domain.Classifier, perturb domain.PerturbationFunction, regs []*registration) error {
	total := 0
	for _, r := range regs {
		total += r.n
	}
	if total == 0 {
		return nil
	}

	workers := s.workers
	if workers > total {
		workers = total
	}
	base := total / workers
	leftover := total % workers

	// Walk the registrations once, carving out each worker's contiguous
	// share. Leftover samples spread over the first `leftover` workers.
	plans := make([][]balancedSlice, workers)
	regIdx, regOffset := 0, 0
	for w := 0; w < workers; w++ {
		share := base
		if w < leftover {
			share++
		}
		for share > 0 {
			r := regs[regIdx]
			remaining := r.n - regOffset
			take := remaining
			if take > share {
				take = share
			}
			plans[w] = append(plans[w], balancedSlice{reg: r, count: take})
			regOffset += take
			share -= take
			if regOffset == r.n {
				regIdx++
				regOffset = 0
			}
		}
	}

	errs := make(chan error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		plan := plans[w]
		go func() {
			defer wg.Done()
			for _, slice := range plan {
				if slice.count == 0 {
					continue
				}
				if ctx.Err() != nil {
					errs <- domain.ErrInterrupted
					return
				}
				if err := evaluate(ctx, classifier, perturb, slice.reg.candidate, slice.count, s.label, s.strategy); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// evaluate draws n perturbations holding c's features fixed, classifies
// them, and atomically registers how many matched label onto c.
func evaluate(ctx context.Context, classifier domain.Classifier, perturb domain.PerturbationFunction, c *candidate.Candidate, n int, label int, strategy Strategy) error {
	instances, _, err := perturb.Perturb(ctx, c.Set(), n)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPerturbationError, err)
	}
	labels, err := classifier.PredictBatch(ctx, instances)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrClassifierError, err)
	}
	if len(labels) != len(instances) {
		return fmt.Errorf("%w: classifier returned %d labels for %d instances", domain.ErrInvalidArgument, len(labels), len(instances))
	}
	matches := 0
	for _, l := range labels {
		if l == label {
			matches++
		}
	}
	metrics.SamplesDrawn.WithLabelValues(strategy.String()).Add(float64(n))
	return c.RegisterSamples(n, matches)
}
