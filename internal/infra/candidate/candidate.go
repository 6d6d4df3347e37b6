// Package candidate implements the anchor search's rule nodes: immutable
// ordered feature sequences with thread-safe sample accounting.
//
// A candidate is never freed until the enclosing construction run ends, so
// ownership is modeled as an arena: candidates live in a Store, and a
// candidate only ever holds a parent ID, never a parent pointer back into
// the arena. That keeps the ownership graph a simple forward chain — no
// candidate needs to know about the candidates it was used to derive — and
// leaves the door open to serializing a Store as a flat slice plus indices
// if a caller ever needs to ship search state across a process boundary.
package candidate

import (
	"sync"

	"github.com/anchorlab/anchorengine/internal/domain"
)

// ID identifies a candidate within a Store.
type ID = int

// NoParent marks a root candidate.
const NoParent = domain.NoParent

// Candidate is a rule under evaluation: an ordered sequence of feature
// indices (the growth order) plus the canonical sorted set used for
// equality/containment, and the mutable sample statistics.
//
// All mutation (RegisterSamples, SetCoverage) serializes on mu. Observers
// (Precision, SampledSize, PositiveSamples, Coverage) take the same lock so
// N and K are always read as a consistent pair — p̂ never exceeds 1 even
// when a writer is mid-update on another goroutine.
type Candidate struct {
	id       ID
	parent   ID
	features []int
	set      domain.FeatureSet

	mu       sync.Mutex
	n        uint64
	k        uint64
	coverage *float64
}

// Store is the arena owning every candidate created during one construction
// run. It never evicts: candidates accumulate for the lifetime of the run,
// so parent IDs stay valid until the run ends.
type Store struct {
	mu    sync.Mutex
	nodes []*Candidate
}

// NewStore creates an empty candidate arena.
func NewStore() *Store {
	return &Store{}
}

// New creates a candidate extending parent (or NoParent for a root) with
// features, validating the non-root invariants: the feature count must be
// exactly one more than the parent's, and the canonical set must strictly
// contain the parent's.
func (s *Store) New(features []int, parent ID) (*Candidate, error) {
	if len(features) == 0 {
		return nil, domain.ErrInvalidCandidate
	}
	set := domain.NewFeatureSet(features)

	s.mu.Lock()
	defer s.mu.Unlock()

	if parent != NoParent {
		if parent < 0 || parent >= len(s.nodes) {
			return nil, domain.ErrInvalidCandidate
		}
		parentSet := s.nodes[parent].set
		if !set.StrictSuperset(parentSet) {
			return nil, domain.ErrInvalidCandidate
		}
	} else if len(set) != 1 {
		return nil, domain.ErrInvalidCandidate
	}

	c := &Candidate{
		id:       len(s.nodes),
		parent:   parent,
		features: append([]int(nil), features...),
		set:      set,
	}
	s.nodes = append(s.nodes, c)
	return c, nil
}

// Get returns the candidate with the given ID, or nil if out of range.
func (s *Store) Get(id ID) *Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == NoParent || id < 0 || id >= len(s.nodes) {
		return nil
	}
	return s.nodes[id]
}

// Parent returns the parent candidate, or nil for a root.
func (s *Store) Parent(c *Candidate) *Candidate {
	return s.Get(c.parent)
}

// Lineage returns snapshots of c and every ancestor up to the root,
// oldest last.
func (s *Store) Lineage(c *Candidate) []domain.CandidateSnapshot {
	var out []domain.CandidateSnapshot
	for cur := c; cur != nil; cur = s.Get(cur.parent) {
		out = append(out, cur.Snapshot())
	}
	return out
}

// ID returns the candidate's arena ID.
func (c *Candidate) ID() ID { return c.id }

// ParentID returns the parent's arena ID, or NoParent.
func (c *Candidate) ParentID() ID { return c.parent }

// IsRoot reports whether this candidate has no parent.
func (c *Candidate) IsRoot() bool { return c.parent == NoParent }

// Features returns the growth-order feature sequence. The returned slice
// must not be modified.
func (c *Candidate) Features() []int { return c.features }

// Set returns the canonical sorted feature set. The returned slice must not
// be modified.
func (c *Candidate) Set() domain.FeatureSet { return c.set }

// RegisterSamples atomically adds deltaN samples, deltaK of which matched
// the explained label. Repeated calls accumulate: register_samples(n1,k1)
// then register_samples(n2,k2) is observably identical to a single call
// with (n1+n2, k1+k2).
func (c *Candidate) RegisterSamples(deltaN, deltaK int) error {
	if deltaN < 0 || deltaK < 0 || deltaK > deltaN {
		return domain.ErrInvalidCounts
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n += uint64(deltaN)
	c.k += uint64(deltaK)
	return nil
}

// SetCoverage sets the candidate's coverage. One-shot: a second call fails
// with ErrCoverageAlreadySet.
func (c *Candidate) SetCoverage(coverage float64) error {
	if coverage < 0 || coverage > 1 {
		return domain.ErrCoverageOutOfRange
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.coverage != nil {
		return domain.ErrCoverageAlreadySet
	}
	c.coverage = &coverage
	return nil
}

// Precision returns K/N, or 0 if N is 0.
func (c *Candidate) Precision() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.n == 0 {
		return 0
	}
	return float64(c.k) / float64(c.n)
}

// SampledSize returns N.
func (c *Candidate) SampledSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int(c.n)
}

// PositiveSamples returns K.
func (c *Candidate) PositiveSamples() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int(c.k)
}

// Coverage returns the coverage and true if it has been set, else (0, false).
func (c *Candidate) Coverage() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.coverage == nil {
		return 0, false
	}
	return *c.coverage, true
}

// Snapshot takes a consistent value-copy of the candidate's statistics.
func (c *Candidate) Snapshot() domain.CandidateSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	var cov *float64
	if c.coverage != nil {
		v := *c.coverage
		cov = &v
	}
	return domain.CandidateSnapshot{
		ID:       c.id,
		ParentID: c.parent,
		Features: append([]int(nil), c.features...),
		Set:      append(domain.FeatureSet(nil), c.set...),
		N:        c.n,
		K:        c.k,
		Coverage: cov,
	}
}
