// Package aggregator implements the global aggregator: it runs the
// anchor constructor across many inputs, folds their results into an
// explanation matrix, and greedily selects a small representative subset.
package aggregator

import (
	"fmt"
	"math"
	"strconv"

	"github.com/anchorlab/anchorengine/internal/domain"
	"github.com/anchorlab/anchorengine/internal/metrics"
)

// Matrix is the explanation matrix: M rows (one per AnchorResult), K
// columns (one per distinct atom). Present tracks atom membership
// independently of the importance cell value, since a FeaturePrecision or
// FeatureCoverage cell can legitimately be zero for an atom that is
// present (a root feature always has added-precision 0).
type Matrix struct {
	Atoms   []domain.Atom
	W       [][]float64
	Present [][]bool
	I       []float64
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// walkStep is one ancestor-chain edge: the feature introduced at that step
// and the precision/coverage deltas it contributed.
type walkStep struct {
	feature            int
	addedPrecision     float64
	addedCoverageRatio float64
}

// walkSteps reconstructs, from a leaf-first lineage, the single feature
// introduced at each step of the chain that grew the candidate.
func walkSteps(lineage []domain.CandidateSnapshot) []walkStep {
	steps := make([]walkStep, 0, len(lineage))
	for i, node := range lineage {
		var parent *domain.CandidateSnapshot
		if i+1 < len(lineage) {
			p := lineage[i+1]
			parent = &p
		}
		feature := node.Set[len(node.Set)-1]
		if parent != nil {
			feature = diffFeature(node.Set, parent.Set)
		}
		steps = append(steps, walkStep{
			feature:            feature,
			addedPrecision:     node.AddedPrecision(parent),
			addedCoverageRatio: node.AddedCoverageRatio(parent),
		})
	}
	return steps
}

// diffFeature returns the single feature in child but not in parent.
func diffFeature(child, parent domain.FeatureSet) int {
	for _, f := range child {
		if !parent.Contains(f) {
			return f
		}
	}
	return child[len(child)-1]
}

func atomKey(identity domain.AtomIdentity, feature int, result *domain.AnchorResult) (string, domain.Atom) {
	if identity == domain.AtomByFeatureValue {
		v := result.Instance.Value(feature)
		return fmt.Sprintf("%d=%v", feature, v), domain.Atom{Feature: feature, Value: v, HasValue: true}
	}
	return strconv.Itoa(feature), domain.Atom{Feature: feature}
}

// Build folds results into an explanation matrix under the given atom
// identity and importance mode.
func Build(results []domain.AnchorResult, identity domain.AtomIdentity, mode domain.ImportanceMode) Matrix {
	atomIndex := make(map[string]int)
	var atoms []domain.Atom

	w := make([][]float64, len(results))
	present := make([][]bool, len(results))

	for ri := range results {
		r := &results[ri]
		for _, st := range walkSteps(r.Lineage) {
			key, atom := atomKey(identity, st.feature, r)
			idx, ok := atomIndex[key]
			if !ok {
				idx = len(atoms)
				atomIndex[key] = idx
				atoms = append(atoms, atom)
			}
			for len(w[ri]) <= idx {
				w[ri] = append(w[ri], 0)
				present[ri] = append(present[ri], false)
			}

			var cell float64
			switch mode {
			case domain.FeaturePrecision:
				cell = clamp01(st.addedPrecision)
			case domain.FeatureCoverage:
				cell = 1 - math.Abs(clamp01(st.addedCoverageRatio))
			case domain.FeatureAppearance:
				cell = 1
			}
			w[ri][idx] = cell
			present[ri][idx] = true
		}
	}

	// Pad every row out to the final atom count; atoms discovered by later
	// rows leave earlier rows with implicit zero/absent cells.
	for ri := range results {
		for len(w[ri]) < len(atoms) {
			w[ri] = append(w[ri], 0)
			present[ri] = append(present[ri], false)
		}
	}

	colSum := make([]float64, len(atoms))
	nonZeroCount := make([]int, len(atoms))
	for i := range w {
		for j := range w[i] {
			if w[i][j] != 0 {
				colSum[j] += w[i][j]
				nonZeroCount[j]++
			}
		}
	}

	importance := make([]float64, len(atoms))
	for j := range atoms {
		switch mode {
		case domain.FeaturePrecision:
			if identity == domain.AtomByFeatureValue {
				if nonZeroCount[j] > 0 {
					importance[j] = colSum[j] / float64(nonZeroCount[j])
				}
			} else {
				importance[j] = colSum[j]
			}
		case domain.FeatureCoverage:
			importance[j] = colSum[j]
		case domain.FeatureAppearance:
			importance[j] = math.Sqrt(colSum[j])
		}
	}

	return Matrix{Atoms: atoms, W: w, Present: present, I: importance}
}

// SubmodularPick greedily selects up to d rows maximizing
// Σ_{j: colsum[j]>0} I[j], the column-importance objective over the
// selected rows plus the row under consideration, stopping early if the
// best remaining row's score is 0. Ties break toward the first row
// encountered: a later row replaces the incumbent only on a strictly
// greater score.
func SubmodularPick(m Matrix, d int) []int {
	if d > len(m.W) {
		d = len(m.W)
	}
	selected := make([]bool, len(m.W))
	colSum := make([]float64, len(m.Atoms))
	var order []int

	for iter := 0; iter < d; iter++ {
		bestRow := -1
		bestScore := -1.0
		for r := range m.W {
			if selected[r] {
				continue
			}
			score := 0.0
			for j := range m.Atoms {
				if colSum[j]+m.W[r][j] > 0 {
					score += m.I[j]
				}
			}
			if score > bestScore {
				bestScore = score
				bestRow = r
			}
		}
		if bestRow == -1 || bestScore == 0 {
			break
		}
		selected[bestRow] = true
		for j := range m.Atoms {
			colSum[j] += m.W[bestRow][j]
		}
		order = append(order, bestRow)
	}
	metrics.AggregatorPicked.WithLabelValues("submodular").Add(float64(len(order)))
	return order
}

// CoveragePick is the alternative selector: it ignores W's importance
// values entirely, repeatedly picking the remaining result with the
// largest coverage and discarding every other remaining result that
// shares an atom with it.
func CoveragePick(m Matrix, results []domain.AnchorResult) []int {
	remaining := make([]int, len(results))
	for i := range remaining {
		remaining[i] = i
	}

	var picked []int
	for len(remaining) > 0 {
		best := remaining[0]
		bestCov := coverageOf(results[best])
		for _, r := range remaining[1:] {
			if c := coverageOf(results[r]); c > bestCov {
				bestCov = c
				best = r
			}
		}
		picked = append(picked, best)

		var next []int
		for _, r := range remaining {
			if r == best || sharesAtom(m, r, best) {
				continue
			}
			next = append(next, r)
		}
		remaining = next
	}
	metrics.AggregatorPicked.WithLabelValues("coverage").Add(float64(len(picked)))
	return picked
}

func coverageOf(r domain.AnchorResult) float64 {
	if r.Candidate.Coverage == nil {
		return 0
	}
	return *r.Candidate.Coverage
}

func sharesAtom(m Matrix, a, b int) bool {
	for j := range m.Atoms {
		if m.Present[a][j] && m.Present[b][j] {
			return true
		}
	}
	return false
}
