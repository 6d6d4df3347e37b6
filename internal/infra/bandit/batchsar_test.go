package bandit

import (
	"context"
	"testing"

	"github.com/anchorlab/anchorengine/internal/infra/candidate"
)

func TestLogBar_MatchesHarmonicDefinition(t *testing.T) {
	if got := logBar(1); got != 0.5 {
		t.Errorf("logBar(1) = %v, want 0.5", got)
	}
	want := 0.5 + 1.0/2 + 1.0/3
	if got := logBar(3); got != want {
		t.Errorf("logBar(3) = %v, want %v", got, want)
	}
}

func TestRoundUpToMultiple(t *testing.T) {
	cases := []struct {
		v, step, want int
	}{
		{0, 4, 0},
		{-3, 4, 0},
		{1, 4, 4},
		{4, 4, 4},
		{5, 4, 8},
	}
	for _, c := range cases {
		if got := roundUpToMultiple(c.v, c.step); got != c.want {
			t.Errorf("roundUpToMultiple(%d,%d) = %d, want %d", c.v, c.step, got, c.want)
		}
	}
}

func TestBatchSAR_FewerThanNReturnsAllWithoutSampling(t *testing.T) {
	store := candidate.NewStore()
	a, _ := store.New([]int{0}, candidate.NoParent)
	b, _ := store.New([]int{1}, candidate.NoParent)

	called := false
	sample := func(ctx context.Context, reqs []Request) error {
		called = true
		return nil
	}

	bs := BatchSAR{BatchBudget: 10, BatchSize: 1, CapPerArm: 1}
	got, err := bs.Identify(context.Background(), []*candidate.Candidate{a, b}, sample, 2)
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

func TestBatchSAR_AcceptsClearWinner(t *testing.T) {
	store := candidate.NewStore()
	strong, _ := store.New([]int{0}, candidate.NoParent)
	weak, _ := store.New([]int{1}, candidate.NoParent)
	weaker, _ := store.New([]int{2}, candidate.NoParent)

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

	bs := BatchSAR{BatchBudget: 300, BatchSize: 1, CapPerArm: 1}
	got, err := bs.Identify(context.Background(), []*candidate.Candidate{strong, weak, weaker}, sample, 1)
	if err != nil {
		t.Fatalf("Identify returned error: %v", err)
	}
	if len(got) != 1 || got[0] != strong {
		t.Fatalf("BatchSAR did not accept the clear winner")
	}
}

func TestBatchSAR_PropagatesSampleError(t *testing.T) {
	store := candidate.NewStore()
	a, _ := store.New([]int{0}, candidate.NoParent)
	b, _ := store.New([]int{1}, candidate.NoParent)
	c, _ := store.New([]int{2}, candidate.NoParent)

	wantErr := errSampleFailed{}
	sample := func(ctx context.Context, reqs []Request) error {
		return wantErr
	}

	bs := BatchSAR{BatchBudget: 50, BatchSize: 1, CapPerArm: 1}
	_, err := bs.Identify(context.Background(), []*candidate.Candidate{a, b, c}, sample, 1)
	if err != wantErr {
		t.Errorf("Identify error = %v, want %v", err, wantErr)
	}
}
