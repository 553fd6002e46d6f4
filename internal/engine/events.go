package engine

import (
	"sync"

	"newsreel/discoveryservice/internal/domain"
)

const subscriberBuffer = 16

// Broadcaster fans progress events out to subscribers. Sends never
// block a run: a subscriber that falls behind loses events.
type Broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan domain.ProgressEvent
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan domain.ProgressEvent)}
}

// Subscribe registers a listener. The returned cancel func detaches it
// and closes the channel; calling cancel twice is safe.
func (b *Broadcaster) Subscribe() (<-chan domain.ProgressEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan domain.ProgressEvent, subscriberBuffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (b *Broadcaster) Publish(event domain.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
