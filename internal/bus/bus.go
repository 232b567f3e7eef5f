package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rendis/harvest/pkg/schema"
)

// DefaultCapacity is the per-subscriber buffer size.
const DefaultCapacity = 1000

// ErrClosed is returned by Next once the subscription has been removed.
var ErrClosed = errors.New("subscription closed")

// Bus fans events out to any number of subscribers. Each subscriber owns a
// bounded buffer holding a sliding window of the most recent events: on
// overflow the single oldest buffered event is dropped. Publish never
// blocks on a slow or absent consumer; the canonical state lives in the
// status snapshot, the stream is a best-effort log.
type Bus struct {
	capacity int

	mu   sync.Mutex
	subs map[uint64]*Subscription
	seq  atomic.Uint64
}

// New creates a Bus with the default per-subscriber capacity.
func New() *Bus {
	return NewWithCapacity(DefaultCapacity)
}

// NewWithCapacity creates a Bus with a custom per-subscriber capacity.
func NewWithCapacity(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		capacity: capacity,
		subs:     make(map[uint64]*Subscription),
	}
}

// Subscribe allocates a new bounded buffer, registers it and returns it.
func (b *Bus) Subscribe() *Subscription {
	sub := &Subscription{
		id:     b.seq.Add(1),
		buf:    make([]schema.Event, b.capacity),
		notify: make(chan struct{}, 1),
	}
	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()
	return sub
}

// Unsubscribe deregisters a subscription. Unsubscribing an unknown or
// already-removed handle is a no-op.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	delete(b.subs, sub.id)
	b.mu.Unlock()
	sub.close()
}

// Publish stamps a timestamp if missing and delivers the event to every
// registered subscriber. The registry lock is held only long enough to
// snapshot the subscriber list; buffer pushes happen outside it.
func (b *Bus) Publish(event schema.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	targets := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		targets = append(targets, sub)
	}
	b.mu.Unlock()

	for _, sub := range targets {
		sub.push(event)
	}
}

// Subscription is a bounded FIFO of events, owned jointly by the bus (for
// delivery) and a transport adapter (for consumption).
type Subscription struct {
	id     uint64
	notify chan struct{}

	mu     sync.Mutex
	buf    []schema.Event // ring buffer
	head   int
	count  int
	closed bool
}

// push inserts an event, dropping the oldest buffered one when full.
func (s *Subscription) push(event schema.Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.count == len(s.buf) {
		s.head = (s.head + 1) % len(s.buf)
		s.count--
	}
	s.buf[(s.head+s.count)%len(s.buf)] = event
	s.count++
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next returns the next event in publication order. When no event arrives
// within wait, it returns ok=false with a nil error: the caller should emit
// a keep-alive and try again. Returns ErrClosed once unsubscribed.
func (s *Subscription) Next(ctx context.Context, wait time.Duration) (schema.Event, bool, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		s.mu.Lock()
		if s.count > 0 {
			event := s.buf[s.head]
			s.buf[s.head] = schema.Event{}
			s.head = (s.head + 1) % len(s.buf)
			s.count--
			s.mu.Unlock()
			return event, true, nil
		}
		closed := s.closed
		s.mu.Unlock()

		if closed {
			return schema.Event{}, false, ErrClosed
		}

		select {
		case <-s.notify:
			// Re-check the buffer.
		case <-timer.C:
			return schema.Event{}, false, nil
		case <-ctx.Done():
			return schema.Event{}, false, ctx.Err()
		}
	}
}

// Pending returns the number of buffered, unconsumed events.
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *Subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	// Wake a blocked Next so it observes the closed flag.
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
