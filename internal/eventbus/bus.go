package eventbus

import "sync"

// subscriber is one registered consumer: a bounded channel every producer
// publishes into without blocking.
type subscriber struct {
	id int
	ch chan Event
}

// Bus is the single logical event bus spec §5 describes: fan-out to a
// copy-on-write subscriber slice so Publish never blocks on a slow or
// absent reader (same shape as pricefeed.Bus and bridgemonitor.Monitor's
// subscriber lists).
type Bus struct {
	mu          sync.Mutex
	subs        []*subscriber
	nextSubID   int
	bufferDepth int
}

// New constructs a Bus whose subscriber channels are each buffered to
// bufferDepth.
func New(bufferDepth int) *Bus {
	return &Bus{bufferDepth: bufferDepth}
}

// Subscribe registers a consumer and returns its inbox plus an
// unsubscribe function. Each subscriber receives every event in the order
// Publish was called per producer (spec §5 "FIFO order per source": a
// single in-process Publish caller is one source).
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := &subscriber{id: b.nextSubID, ch: make(chan Event, b.bufferDepth)}
	b.nextSubID++

	next := make([]*subscriber, len(b.subs)+1)
	copy(next, b.subs)
	next[len(b.subs)] = s
	b.subs = next

	return s.ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		next := make([]*subscriber, 0, len(b.subs))
		for _, sub := range b.subs {
			if sub.id != s.id {
				next = append(next, sub)
			}
		}
		b.subs = next
	}
}

// Publish fans e out to every current subscriber, dropping the oldest
// buffered event for a subscriber whose inbox is full rather than
// blocking the publisher (spec §5, SPEC_FULL.md §5 event bus back-pressure
// policy).
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	subs := b.subs
	b.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- e:
		default:
			select {
			case <-s.ch:
			default:
			}
			select {
			case s.ch <- e:
			default:
			}
		}
	}
}
