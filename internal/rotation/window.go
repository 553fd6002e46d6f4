package rotation

import (
	"sync"

	"newsreel/discoveryservice/internal/domain"
	"newsreel/discoveryservice/internal/metrics"
)

const DefaultCapacity = 6

// Entry is one remembered use of a clip identity.
type Entry struct {
	Identity      string `json:"identity"`
	SequenceIndex int    `json:"sequenceIndex"`
}

// Window is the sliding anti-repeat memory over acquired clip
// identities. It remembers the last few used clips and steers selection
// away from them; it never vetoes, so when every candidate is windowed
// the top-ranked one is returned anyway.
//
// An identity leaves the window two ways: evicted after capacity newer
// uses, or aged out once the sequence gap since its use exceeds
// capacity. Safe for concurrent use.
type Window struct {
	mu       sync.Mutex
	capacity int
	entries  []Entry // front = most recent use
}

func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Window{capacity: capacity}
}

// Select picks the first ranked candidate whose identity is not
// windowed at the given sequence index. If all of them are windowed it
// returns the top-ranked candidate and reports that a repeat was
// allowed. An empty ranked list yields a zero candidate.
func (w *Window) Select(ranked []domain.Candidate, sequenceIndex int) (domain.Candidate, bool) {
	if len(ranked) == 0 {
		return domain.Candidate{}, false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruneLocked(sequenceIndex)

	for _, candidate := range ranked {
		if !w.containsLocked(candidate.Identity) {
			return candidate, false
		}
	}

	metrics.RotationRepeatsTotal.Inc()
	return ranked[0], true
}

// MarkUsed records a use: the identity moves to the front of the
// window, anything beyond capacity falls off the back.
func (w *Window) MarkUsed(identity string, sequenceIndex int) {
	if identity == "" {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruneLocked(sequenceIndex)

	kept := make([]Entry, 0, len(w.entries)+1)
	kept = append(kept, Entry{Identity: identity, SequenceIndex: sequenceIndex})
	for _, entry := range w.entries {
		if entry.Identity == identity {
			continue
		}
		kept = append(kept, entry)
	}
	if len(kept) > w.capacity {
		kept = kept[:w.capacity]
	}
	w.entries = kept
}

// Seed replaces the window contents from persisted usage history,
// most recent first.
func (w *Window) Seed(entries []Entry) {
	w.mu.Lock()
	defer w.mu.Unlock()

	seen := make(map[string]struct{}, len(entries))
	kept := make([]Entry, 0, w.capacity)
	for _, entry := range entries {
		if entry.Identity == "" {
			continue
		}
		if _, dup := seen[entry.Identity]; dup {
			continue
		}
		seen[entry.Identity] = struct{}{}
		kept = append(kept, entry)
		if len(kept) == w.capacity {
			break
		}
	}
	w.entries = kept
}

// Snapshot returns the current window contents, most recent first.
func (w *Window) Snapshot() []Entry {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]Entry, len(w.entries))
	copy(out, w.entries)
	return out
}

func (w *Window) Capacity() int {
	return w.capacity
}

func (w *Window) containsLocked(identity string) bool {
	for _, entry := range w.entries {
		if entry.Identity == identity {
			return true
		}
	}
	return false
}

// pruneLocked ages out entries whose sequence gap exceeds capacity.
// Out-of-order indexes (re-running an earlier segment) never age
// anything out.
func (w *Window) pruneLocked(sequenceIndex int) {
	kept := w.entries[:0]
	for _, entry := range w.entries {
		if sequenceIndex-entry.SequenceIndex > w.capacity {
			continue
		}
		kept = append(kept, entry)
	}
	w.entries = kept
}
