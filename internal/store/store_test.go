package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/anchorlab/anchorengine/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrationsCreateTables(t *testing.T) {
	db := newTestDB(t)

	tables := []string{"anchor_runs", "aggregator_passes", "aggregator_picks"}
	for _, table := range tables {
		t.Run(table, func(t *testing.T) {
			var name string
			err := db.db.QueryRow(
				`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table,
			).Scan(&name)
			if err != nil {
				t.Fatalf("table %s not found: %v", table, err)
			}
		})
	}
}

func sampleResult() domain.AnchorResult {
	cov := 0.8
	return domain.AnchorResult{
		Label: 1,
		Candidate: domain.CandidateSnapshot{
			ID:       1,
			ParentID: domain.NoParent,
			Features: []int{0, 2},
			Set:      domain.NewFeatureSet([]int{0, 2}),
			N:        100,
			K:        95,
			Coverage: &cov,
		},
		IsAnchor:         true,
		RoundsSearched:   2,
		SearchDuration:   150 * time.Millisecond,
		SamplingDuration: 90 * time.Millisecond,
	}
}

func TestRecordAndGetResult(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	result := sampleResult()
	if err := store.RecordResult(ctx, "run-1", result); err != nil {
		t.Fatalf("RecordResult: %v", err)
	}

	got, err := store.GetResult(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if got.Label != 1 {
		t.Errorf("Label = %d, want 1", got.Label)
	}
	if len(got.Features) != 2 || got.Features[0] != 0 || got.Features[1] != 2 {
		t.Errorf("Features = %v, want [0 2]", got.Features)
	}
	if got.Precision != 0.95 {
		t.Errorf("Precision = %v, want 0.95", got.Precision)
	}
	if !got.IsAnchor {
		t.Error("IsAnchor = false, want true")
	}
	if got.Coverage == nil || *got.Coverage != 0.8 {
		t.Errorf("Coverage = %v, want 0.8", got.Coverage)
	}
	if got.SearchDuration != 150*time.Millisecond {
		t.Errorf("SearchDuration = %v, want 150ms", got.SearchDuration)
	}
}

func TestListResultsReturnsAllAndHonorsLimit(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	for _, id := range []string{"run-a", "run-b", "run-c"} {
		if err := store.RecordResult(ctx, id, sampleResult()); err != nil {
			t.Fatalf("RecordResult(%s): %v", id, err)
		}
	}

	got, err := store.ListResults(ctx, 0)
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ListResults returned %d rows, want 3", len(got))
	}

	limited, err := store.ListResults(ctx, 2)
	if err != nil {
		t.Fatalf("ListResults limited: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("ListResults(limit=2) returned %d rows, want 2", len(limited))
	}
}

func TestRecordAndListPicks(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	for _, id := range []string{"run-1", "run-2", "run-3"} {
		if err := store.RecordResult(ctx, id, sampleResult()); err != nil {
			t.Fatalf("RecordResult(%s): %v", id, err)
		}
	}

	err := store.RecordPick(ctx, "pass-1", "submodular", 2, "feature_appearance", "feature", []string{"run-2", "run-1"})
	if err != nil {
		t.Fatalf("RecordPick: %v", err)
	}

	picks, err := store.ListPicks(ctx, "pass-1")
	if err != nil {
		t.Fatalf("ListPicks: %v", err)
	}
	if len(picks) != 2 || picks[0] != "run-2" || picks[1] != "run-1" {
		t.Errorf("ListPicks = %v, want [run-2 run-1]", picks)
	}
}
