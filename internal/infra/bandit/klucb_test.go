package bandit

import (
	"context"
	"math"
	"testing"

	"github.com/anchorlab/anchorengine/internal/infra/candidate"
)

// TestUpdateBounds_Regression pins the exact (u_t, l_t) pairs for two
// fixed rounds. δ is pushed low enough that every once-sampled arm's upper
// bound saturates at the clamp ceiling (β exceeds KL(p, 1-1e-16) ≈ 36.74
// even for p̂ = 0), so the saturated arms tie exactly and u_t falls to the
// one appearing earliest in the ascending-precision order.
func TestUpdateBounds_Regression(t *testing.T) {
	const delta = 1e-12

	t.Run("five arms, round 1", func(t *testing.T) {
		ns := []int{1, 1, 1, 1, 1}
		phat := []float64{0, 1, 1, 1, 0}
		ub := make([]float64, len(ns))
		lb := make([]float64, len(ns))

		u, l := updateBounds(1, ns, phat, 1, ub, lb, delta)
		if u != 0 || l != 3 {
			t.Fatalf("(u,l) = (%d,%d), want (0,3)", u, l)
		}
	})

	t.Run("six arms, round 2", func(t *testing.T) {
		ns := []int{101, 1, 1, 101, 1, 1}
		phat := []float64{0.45544554, 1, 1, 0.82178218, 0, 0}
		ub := []float64{1, 1, 1, 0, 1, 1}
		lb := make([]float64, len(ns))

		u, l := updateBounds(2, ns, phat, 1, ub, lb, delta)
		if u != 4 || l != 2 {
			t.Fatalf("(u,l) = (%d,%d), want (4,2)", u, l)
		}
		// The top-N arm's UB entry is never recomputed.
		if ub[2] != 1 {
			t.Errorf("ub[2] = %v, want untouched initial 1", ub[2])
		}
	})
}

// updateBounds's contract on arms away from the clamp boundaries: for every
// arm outside the top-N partition, UB must not fall below its own observed
// precision, and for every arm inside it, LB must not exceed its own
// observed precision. The bounds only ever widen the uncertainty, never
// contradict the data.
func TestUpdateBounds_BoundsNeverContradictObservedPrecision(t *testing.T) {
	ns := []int{50, 50, 50, 50}
	phat := []float64{0.2, 0.8, 0.5, 0.6}
	ub := make([]float64, len(ns))
	lb := make([]float64, len(ns))

	u, l := updateBounds(3, ns, phat, 2, ub, lb, 0.1)
	if u != 0 && u != 2 {
		t.Fatalf("u = %d, want an arm outside the top-2 (0 or 2)", u)
	}
	if l != 1 && l != 3 {
		t.Fatalf("l = %d, want an arm inside the top-2 (1 or 3)", l)
	}
	for _, f := range []int{0, 2} {
		if ub[f] < phat[f] {
			t.Errorf("UB[%d] = %v, want >= p_hat[%d] = %v", f, ub[f], f, phat[f])
		}
	}
	for _, f := range []int{1, 3} {
		if lb[f] > phat[f] {
			t.Errorf("LB[%d] = %v, want <= p_hat[%d] = %v", f, lb[f], f, phat[f])
		}
	}
	if ub[u]-lb[l] <= 0 {
		t.Errorf("UB[u]-LB[l] = %v, want a positive gap for unconverged arms", ub[u]-lb[l])
	}
}

func TestKLLUCB_FewerThanNReturnsAllWithoutSampling(t *testing.T) {
	store := candidate.NewStore()
	a, _ := store.New([]int{0}, candidate.NoParent)
	b, _ := store.New([]int{1}, candidate.NoParent)

	called := false
	sample := func(ctx context.Context, reqs []Request) error {
		called = true
		return nil
	}

	k := KLLUCB{Delta: 0.1, Eps: 0.01}
	got, err := k.Identify(context.Background(), []*candidate.Candidate{a, b}, sample, 2)
	if err != nil {
		t.Fatalf("Identify returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	if called {
		t.Error("sample was called even though fewer than N candidates were supplied")
	}
}

func TestKLLUCB_IdentifiesClearWinner(t *testing.T) {
	store := candidate.NewStore()
	strong, _ := store.New([]int{0}, candidate.NoParent)
	weak, _ := store.New([]int{1}, candidate.NoParent)
	weaker, _ := store.New([]int{2}, candidate.NoParent)

	strong.RegisterSamples(20, 20)
	weak.RegisterSamples(20, 2)
	weaker.RegisterSamples(20, 1)

	sample := func(ctx context.Context, reqs []Request) error {
		for _, r := range reqs {
			switch r.Candidate {
			case strong:
				r.Candidate.RegisterSamples(r.N, r.N)
			default:
				r.Candidate.RegisterSamples(r.N, 0)
			}
		}
		return nil
	}

	k := KLLUCB{Delta: 0.1, Eps: 0.05, BatchSize: 5, MaxIterations: 2000}
	got, err := k.Identify(context.Background(), []*candidate.Candidate{strong, weak, weaker}, sample, 1)
	if err != nil {
		t.Fatalf("Identify returned error: %v", err)
	}
	if len(got) != 1 || got[0] != strong {
		t.Fatalf("Identify did not return the clear winner")
	}
}

func TestKLLUCB_PropagatesSampleError(t *testing.T) {
	store := candidate.NewStore()
	a, _ := store.New([]int{0}, candidate.NoParent)
	b, _ := store.New([]int{1}, candidate.NoParent)
	c, _ := store.New([]int{2}, candidate.NoParent)
	a.RegisterSamples(1, 1)
	b.RegisterSamples(1, 0)
	c.RegisterSamples(1, 0)

	wantErr := errSampleFailed{}
	sample := func(ctx context.Context, reqs []Request) error {
		return wantErr
	}

	k := KLLUCB{Delta: 0.1, Eps: 0.0001}
	_, err := k.Identify(context.Background(), []*candidate.Candidate{a, b, c}, sample, 1)
	if err != wantErr {
		t.Errorf("Identify error = %v, want %v", err, wantErr)
	}
}

type errSampleFailed struct{}

func (errSampleFailed) Error() string { return "sample failed" }

func TestBeta_IncreasesWithRound(t *testing.T) {
	b1 := beta(1, 5, 0.1)
	b2 := beta(100, 5, 0.1)
	if !(b2 > b1) {
		t.Errorf("beta(100,...) = %v, want > beta(1,...) = %v", b2, b1)
	}
	if math.IsNaN(b1) || math.IsNaN(b2) {
		t.Error("beta produced NaN")
	}
}
