package dsa

import "testing"

func TestScoreHeap_PopOrdersByScoreDescending(t *testing.T) {
	h := NewScoreHeap()
	h.Push(Item{ID: 1, Score: 0.3})
	h.Push(Item{ID: 2, Score: 0.9})
	h.Push(Item{ID: 3, Score: 0.5})

	want := []int{2, 3, 1}
	for _, id := range want {
		got, ok := h.Pop()
		if !ok {
			t.Fatalf("Pop returned ok=false, want an item")
		}
		if got.ID != id {
			t.Errorf("Pop ID = %d, want %d", got.ID, id)
		}
	}
	if _, ok := h.Pop(); ok {
		t.Error("Pop on empty heap should return ok=false")
	}
}

func TestScoreHeap_TieBreaksOnLowerID(t *testing.T) {
	h := NewScoreHeap()
	h.Push(Item{ID: 5, Score: 1.0})
	h.Push(Item{ID: 2, Score: 1.0})

	got, _ := h.Pop()
	if got.ID != 2 {
		t.Errorf("Pop ID = %d, want 2 (lower ID wins tie)", got.ID)
	}
}

func TestScoreHeap_PeekDoesNotRemove(t *testing.T) {
	h := NewScoreHeap()
	h.Push(Item{ID: 1, Score: 1.0})

	peeked, _ := h.Peek()
	if peeked.ID != 1 {
		t.Fatalf("Peek ID = %d, want 1", peeked.ID)
	}
	if h.Len() != 1 {
		t.Errorf("Len after Peek = %d, want 1", h.Len())
	}
}

func TestScoreHeap_Len(t *testing.T) {
	h := NewScoreHeap()
	if h.Len() != 0 {
		t.Errorf("Len on empty heap = %d, want 0", h.Len())
	}
	h.Push(Item{ID: 1, Score: 1.0})
	h.Push(Item{ID: 2, Score: 2.0})
	if h.Len() != 2 {
		t.Errorf("Len = %d, want 2", h.Len())
	}
}
