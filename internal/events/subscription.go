package events

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Subscription.Next after the subscription has been
// closed, or the bus closed with every buffered event delivered.
var ErrClosed = errors.New("event subscription closed")

// Subscription is a cursor over the bus. Next first replays buffered events the
// handle has not seen, then blocks for live ones, always in increasing
// sequence order. A Subscription is read by one goroutine; Close may be called
// from any goroutine.
type Subscription struct {
	bus     *Bus
	cursor  uint64
	pending []Event
	dropped uint64

	once sync.Once
	done chan struct{}
}

// Subscribe returns a handle that starts after since. Pass 0 to replay the
// whole retained buffer.
func (b *Bus) Subscribe(since uint64) *Subscription {
	return &Subscription{bus: b, cursor: since, done: make(chan struct{})}
}

// Next returns the next event, blocking until one is available.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	if s.isClosed() {
		return Event{}, ErrClosed
	}
	if len(s.pending) == 0 {
		fetchCtx, cancel := context.WithCancel(ctx)
		go func() {
			select {
			case <-s.done:
				cancel()
			case <-fetchCtx.Done():
			}
		}()
		events, _, err := s.bus.Fetch(fetchCtx, s.cursor, 0, true)
		cancel()
		if s.isClosed() {
			return Event{}, ErrClosed
		}
		if err != nil {
			return Event{}, err
		}
		if len(events) == 0 {
			return Event{}, ErrClosed
		}
		s.pending = events
	}
	evt := s.pending[0]
	s.pending = s.pending[1:]
	if expected := s.cursor + 1; evt.Sequence > expected && s.cursor > 0 {
		s.dropped += evt.Sequence - expected
	}
	s.cursor = evt.Sequence
	return evt, nil
}

// Cursor returns the sequence of the last delivered event.
func (s *Subscription) Cursor() uint64 { return s.cursor }

// Dropped counts events that aged out of the buffer before this handle read
// them.
func (s *Subscription) Dropped() uint64 { return s.dropped }

// Close releases a blocked Next.
func (s *Subscription) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *Subscription) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
