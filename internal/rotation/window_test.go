package rotation

import (
	"testing"

	"newsreel/discoveryservice/internal/domain"
)

func ranked(identities ...string) []domain.Candidate {
	out := make([]domain.Candidate, 0, len(identities))
	for i, id := range identities {
		out = append(out, domain.Candidate{
			Clip:       domain.Clip{Identity: id},
			FinalScore: float64(100 - i),
		})
	}
	return out
}

// ---------------------------------------------------------------------------
// Selection
// ---------------------------------------------------------------------------

func TestSelectPrefersUnwindowed(t *testing.T) {
	w := NewWindow(6)
	w.MarkUsed("a", 1)

	candidate, repeat := w.Select(ranked("a", "b"), 2)
	if candidate.Identity != "b" {
		t.Fatalf("selected %q, want b", candidate.Identity)
	}
	if repeat {
		t.Fatal("repeat reported for an unwindowed pick")
	}
}

func TestSelectNeverBlocksWhenAllWindowed(t *testing.T) {
	w := NewWindow(6)
	w.MarkUsed("a", 1)
	w.MarkUsed("b", 2)

	candidate, repeat := w.Select(ranked("a", "b"), 3)
	if candidate.Identity != "a" {
		t.Fatalf("selected %q, want top-ranked a", candidate.Identity)
	}
	if !repeat {
		t.Fatal("repeat not reported")
	}
}

func TestSelectEmptyList(t *testing.T) {
	w := NewWindow(6)

	candidate, repeat := w.Select(nil, 1)
	if candidate.Identity != "" || repeat {
		t.Fatalf("got %+v repeat=%v, want zero candidate", candidate, repeat)
	}
}

// ---------------------------------------------------------------------------
// Window maintenance
// ---------------------------------------------------------------------------

func TestMarkUsedEvictsBeyondCapacity(t *testing.T) {
	w := NewWindow(3)
	w.MarkUsed("a", 1)
	w.MarkUsed("b", 2)
	w.MarkUsed("c", 3)
	w.MarkUsed("d", 4)

	snapshot := w.Snapshot()
	if len(snapshot) != 3 {
		t.Fatalf("window size = %d, want 3", len(snapshot))
	}
	for i, want := range []string{"d", "c", "b"} {
		if snapshot[i].Identity != want {
			t.Fatalf("snapshot[%d] = %q, want %q", i, snapshot[i].Identity, want)
		}
	}

	candidate, repeat := w.Select(ranked("a"), 4)
	if candidate.Identity != "a" || repeat {
		t.Fatalf("evicted identity still windowed: %+v repeat=%v", candidate, repeat)
	}
}

func TestMarkUsedMovesRepeatToFront(t *testing.T) {
	w := NewWindow(6)
	w.MarkUsed("a", 1)
	w.MarkUsed("b", 2)
	w.MarkUsed("a", 3)

	snapshot := w.Snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("window size = %d, want 2 (no duplicate entries)", len(snapshot))
	}
	if snapshot[0].Identity != "a" || snapshot[0].SequenceIndex != 3 {
		t.Fatalf("front = %+v, want a at sequence 3", snapshot[0])
	}
	if snapshot[1].Identity != "b" {
		t.Fatalf("back = %+v, want b", snapshot[1])
	}
}

func TestIdentityReusableOnceGapExceedsCapacity(t *testing.T) {
	w := NewWindow(6)
	w.MarkUsed("a", 1)

	// Gap of exactly capacity still counts as windowed.
	if candidate, repeat := w.Select(ranked("a"), 7); candidate.Identity != "a" || !repeat {
		t.Fatalf("gap=6: got %q repeat=%v, want forced repeat", candidate.Identity, repeat)
	}

	w = NewWindow(6)
	w.MarkUsed("a", 1)
	if candidate, repeat := w.Select(ranked("a"), 8); candidate.Identity != "a" || repeat {
		t.Fatalf("gap=7: got %q repeat=%v, want free reuse", candidate.Identity, repeat)
	}
}

func TestMarkUsedPrunesAgedEntries(t *testing.T) {
	w := NewWindow(6)
	w.MarkUsed("a", 1)
	w.MarkUsed("b", 10)

	snapshot := w.Snapshot()
	if len(snapshot) != 1 || snapshot[0].Identity != "b" {
		t.Fatalf("snapshot = %+v, want only b", snapshot)
	}
}

func TestOutOfOrderSequenceKeepsWindow(t *testing.T) {
	w := NewWindow(6)
	w.MarkUsed("a", 5)

	// Re-running an earlier segment must not age anything out.
	if candidate, repeat := w.Select(ranked("a"), 2); candidate.Identity != "a" || !repeat {
		t.Fatalf("got %q repeat=%v, want forced repeat", candidate.Identity, repeat)
	}
}

// ---------------------------------------------------------------------------
// Seeding and inspection
// ---------------------------------------------------------------------------

func TestSeedTruncatesAndDedupes(t *testing.T) {
	w := NewWindow(3)
	w.Seed([]Entry{
		{Identity: "a", SequenceIndex: 9},
		{Identity: "b", SequenceIndex: 8},
		{Identity: "a", SequenceIndex: 7},
		{Identity: "", SequenceIndex: 6},
		{Identity: "c", SequenceIndex: 5},
		{Identity: "d", SequenceIndex: 4},
	})

	snapshot := w.Snapshot()
	if len(snapshot) != 3 {
		t.Fatalf("window size = %d, want 3", len(snapshot))
	}
	for i, want := range []string{"a", "b", "c"} {
		if snapshot[i].Identity != want {
			t.Fatalf("snapshot[%d] = %q, want %q", i, snapshot[i].Identity, want)
		}
	}

	if _, repeat := w.Select(ranked("b"), 9); !repeat {
		t.Fatal("seeded identity not treated as windowed")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	w := NewWindow(6)
	w.MarkUsed("a", 1)

	snapshot := w.Snapshot()
	snapshot[0].Identity = "mutated"

	if w.Snapshot()[0].Identity != "a" {
		t.Fatal("snapshot aliases window state")
	}
}

func TestNewWindowDefaultCapacity(t *testing.T) {
	if got := NewWindow(0).Capacity(); got != DefaultCapacity {
		t.Fatalf("capacity = %d, want %d", got, DefaultCapacity)
	}
}
