package bandit

import (
	"context"
	"testing"

	"github.com/anchorlab/anchorengine/internal/infra/candidate"
)

func TestDeviation_ShrinksAsSamplesGrow(t *testing.T) {
	d1 := deviation(1, 0.1, 5)
	d2 := deviation(1000, 0.1, 5)
	if !(d2 < d1) {
		t.Errorf("deviation(1000,...) = %v, want smaller than deviation(1,...) = %v", d2, d1)
	}
}

func TestDeviation_ZeroSamplesIsInfinite(t *testing.T) {
	if got := deviation(0, 0.1, 5); !isInf(got) {
		t.Errorf("deviation(0,...) = %v, want +Inf", got)
	}
}

func isInf(v float64) bool { return v > 1e300 }

func TestBatchRacing_FewerThanNReturnsAllWithoutSampling(t *testing.T) {
	store := candidate.NewStore()
	a, _ := store.New([]int{0}, candidate.NoParent)
	b, _ := store.New([]int{1}, candidate.NoParent)

	called := false
	sample := func(ctx context.Context, reqs []Request) error {
		called = true
		return nil
	}

	br := BatchRacing{Delta: 0.1}
	got, err := br.Identify(context.Background(), []*candidate.Candidate{a, b}, sample, 2)
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

func TestBatchRacing_AcceptsClearWinner(t *testing.T) {
	store := candidate.NewStore()
	strong, _ := store.New([]int{0}, candidate.NoParent)
	weak, _ := store.New([]int{1}, candidate.NoParent)
	weaker, _ := store.New([]int{2}, candidate.NoParent)

	strong.RegisterSamples(5, 5)
	weak.RegisterSamples(5, 0)
	weaker.RegisterSamples(5, 0)

	sample := func(ctx context.Context, reqs []Request) error {
		for _, r := range reqs {
			if r.Candidate == strong {
				r.Candidate.RegisterSamples(r.N, r.N)
			} else {
				r.Candidate.RegisterSamples(r.N, 0)
			}
		}
		return nil
	}

	br := BatchRacing{Delta: 0.3, BatchSize: 6, CapPerArm: 2, MaxRounds: 500}
	got, err := br.Identify(context.Background(), []*candidate.Candidate{strong, weak, weaker}, sample, 1)
	if err != nil {
		t.Fatalf("Identify returned error: %v", err)
	}
	if len(got) != 1 || got[0] != strong {
		t.Fatalf("BatchRacing did not accept the clear winner")
	}
}

func TestBatchRacing_PropagatesSampleError(t *testing.T) {
	store := candidate.NewStore()
	a, _ := store.New([]int{0}, candidate.NoParent)
	b, _ := store.New([]int{1}, candidate.NoParent)
	c, _ := store.New([]int{2}, candidate.NoParent)

	wantErr := errSampleFailed{}
	sample := func(ctx context.Context, reqs []Request) error {
		return wantErr
	}

	br := BatchRacing{Delta: 0.1, BatchSize: 3}
	_, err := br.Identify(context.Background(), []*candidate.Candidate{a, b, c}, sample, 1)
	if err != wantErr {
		t.Errorf("Identify error = %v, want %v", err, wantErr)
	}
}
