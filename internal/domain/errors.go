package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	// Argument validation
	ErrInvalidArgument = errors.New("invalid argument")

	// Candidate invariant violations (bugs, not user input)
	ErrInvalidCandidate   = errors.New("invalid candidate")
	ErrInvalidCounts      = errors.New("positive samples exceed sampled size")
	ErrCoverageAlreadySet = errors.New("coverage already set")
	ErrCoverageOutOfRange = errors.New("coverage out of range [0,1]")

	// Constructor outcomes
	ErrNoCandidateFound = errors.New("no candidate with positive precision found")
	ErrNoAnchorFound    = errors.New("no candidate met the target precision")

	// Sampling / collaborator faults
	ErrInterrupted       = errors.New("sampling session interrupted")
	ErrClassifierError   = errors.New("classifier error")
	ErrPerturbationError = errors.New("perturbation error")
)
