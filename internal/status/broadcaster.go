package status

import "sync"

// Broadcaster keeps the latest FileStatus and fans it out to subscribers.
// Each subscriber has a single slot: a slow reader misses intermediate
// snapshots but always sees the most recent one.
type Broadcaster struct {
	mu      sync.Mutex
	current FileStatus
	subs    map[int]chan FileStatus
	nextID  int
}

func NewBroadcaster(initial FileStatus) *Broadcaster {
	return &Broadcaster{
		current: initial,
		subs:    make(map[int]chan FileStatus),
	}
}

// Current returns the latest published status.
func (b *Broadcaster) Current() FileStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.current
}

// Publish records s as current and offers it to every subscriber.
func (b *Broadcaster) Publish(s FileStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.current = s

	for _, ch := range b.subs {
		offer(ch, s)
	}
}

// Subscribe returns a channel primed with the current status and a function
// that unsubscribes and closes the channel.
func (b *Broadcaster) Subscribe() (<-chan FileStatus, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan FileStatus, 1)
	ch <- b.current
	b.subs[id] = ch

	var once sync.Once

	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			delete(b.subs, id)
			close(ch)
		})
	}
}

// Subscribers returns the number of active subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.subs)
}

// offer replaces whatever is buffered in ch with s. Callers hold b.mu, so
// there is a single sender per channel.
func offer(ch chan FileStatus, s FileStatus) {
	select {
	case ch <- s:
		return
	default:
	}

	select {
	case <-ch:
	default:
	}

	select {
	case ch <- s:
	default:
	}
}
