package acquire

import "sync"

// Blacklist remembers clip identities that reported server-side
// preparation or otherwise proved unusable. It only grows within a
// process lifetime; entries are never removed. Safe for concurrent use.
type Blacklist struct {
	mu      sync.Mutex
	entries map[string]string // identity -> reason
}

func NewBlacklist() *Blacklist {
	return &Blacklist{entries: make(map[string]string)}
}

func (b *Blacklist) Add(identity, reason string) {
	if identity == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.entries[identity]; exists {
		return
	}
	b.entries[identity] = reason
}

func (b *Blacklist) Contains(identity string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.entries[identity]
	return ok
}

func (b *Blacklist) Reason(identity string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	reason, ok := b.entries[identity]
	return reason, ok
}

func (b *Blacklist) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
