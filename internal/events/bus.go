package events

import (
	"context"
	"sync"
	"time"
)

// DefaultCapacity bounds the replay buffer when no size is configured.
const DefaultCapacity = 500

// Event is one progress record published by the orchestrator. Events are
// immutable once published.
type Event struct {
	Sequence  uint64    `json:"sequence"`
	Timestamp time.Time `json:"ts"`
	RunID     string    `json:"run_id,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	Percent   int       `json:"percent"`
	Message   string    `json:"message"`
	Status    string    `json:"status"`
	Level     string    `json:"level,omitempty"`
	Terminal  bool      `json:"terminal,omitempty"`
}

// Bus stores recent events in a bounded ring and wakes waiters when new events
// arrive.
type Bus struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	ring     []Event
	start    int
	count    int
	nextSeq  uint64
	closed   bool
}

// NewBus constructs a bus retaining the last capacity events.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	b := &Bus{capacity: capacity, ring: make([]Event, capacity)}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Publish assigns the next sequence number, stores the event, and wakes
// subscribers. The stored copy is returned.
func (b *Bus) Publish(evt Event) Event {
	if b == nil {
		return evt
	}
	b.mu.Lock()
	b.nextSeq++
	evt.Sequence = b.nextSeq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if evt.Percent < 0 {
		evt.Percent = 0
	} else if evt.Percent > 100 {
		evt.Percent = 100
	}

	if b.count == b.capacity {
		b.ring[b.start] = evt
		b.start = (b.start + 1) % b.capacity
	} else {
		b.ring[(b.start+b.count)%b.capacity] = evt
		b.count++
	}
	b.cond.Broadcast()
	b.mu.Unlock()
	return evt
}

// Fetch returns up to limit events with sequence greater than since. When wait
// is true, Fetch blocks until at least one event is available, the bus is
// closed, or ctx ends. The returned cursor is the sequence to pass as since on
// the next call.
func (b *Bus) Fetch(ctx context.Context, since uint64, limit int, wait bool) ([]Event, uint64, error) {
	if b == nil {
		return nil, since, nil
	}
	if limit <= 0 || limit > b.capacity {
		limit = b.capacity
	}

	stopWake := b.wakeOnDone(ctx, wait)
	defer stopWake()

	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		events, next := b.snapshotLocked(since, limit)
		if len(events) > 0 || !wait || b.closed {
			return events, next, nil
		}
		if ctx != nil {
			if err := ctx.Err(); err != nil {
				return nil, since, err
			}
		}
		b.cond.Wait()
	}
}

// Tail returns the newest limit events and the cursor after them.
func (b *Bus) Tail(limit int) ([]Event, uint64) {
	if b == nil {
		return nil, 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit <= 0 || limit > b.count {
		limit = b.count
	}
	out := make([]Event, 0, limit)
	for i := b.count - limit; i < b.count; i++ {
		out = append(out, b.ring[(b.start+i)%b.capacity])
	}
	return out, b.nextSeq
}

// FirstSequence reports the oldest retained sequence, or 0 when empty.
func (b *Bus) FirstSequence() uint64 {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == 0 {
		return 0
	}
	return b.ring[b.start].Sequence
}

// LastSequence reports the newest assigned sequence.
func (b *Bus) LastSequence() uint64 {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nextSeq
}

// Close wakes all waiters; subsequent waits return immediately once drained.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.closed = true
	b.cond.Broadcast()
	b.mu.Unlock()
}

func (b *Bus) snapshotLocked(since uint64, limit int) ([]Event, uint64) {
	if b.count == 0 {
		return nil, since
	}
	first := b.ring[b.start].Sequence
	offset := 0
	if since >= first {
		offset = int(since - first + 1)
	}
	if offset >= b.count {
		return nil, since
	}
	n := b.count - offset
	if n > limit {
		n = limit
	}
	out := make([]Event, n)
	for i := 0; i < n; i++ {
		out[i] = b.ring[(b.start+offset+i)%b.capacity]
	}
	return out, out[n-1].Sequence
}

func (b *Bus) wakeOnDone(ctx context.Context, wait bool) func() {
	if !wait || ctx == nil || ctx.Done() == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			b.cond.Broadcast()
			b.mu.Unlock()
		case <-done:
		}
	}()
	return func() { close(done) }
}
