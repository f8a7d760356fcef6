package eventbus

import (
	"sync"
	"sync/atomic"

	"github.com/nerrad567/gray-logic-lighting/internal/lighting"
)

// DefaultBuffer is used when a subscriber asks for a non-positive buffer.
const DefaultBuffer = 64

// Stream is a multi-subscriber event stream with drop-oldest buffers.
// The zero value is not usable; call NewStream.
type Stream struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewStream creates an open stream with no subscribers.
func NewStream() *Stream {
	return &Stream{subs: make(map[*Subscription]struct{})}
}

// Subscription is one consumer's view of a Stream.
type Subscription struct {
	stream    *Stream
	ch        chan lighting.Event
	dropped   atomic.Uint64
	closeOnce sync.Once
}

// C returns the channel events are delivered on. It is closed when the
// subscription or its stream is closed.
func (s *Subscription) C() <-chan lighting.Event {
	return s.ch
}

// Dropped returns how many events were discarded for this subscriber.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close detaches the subscription and releases its buffer. Safe to call
// more than once and concurrently with Publish.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.stream.remove(s)
	})
}

// Subscribe attaches a new subscriber with the given buffer size.
// Subscribing to a closed stream returns an already-closed subscription.
func (st *Stream) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	sub := &Subscription{
		stream: st,
		ch:     make(chan lighting.Event, buffer),
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		sub.closeOnce.Do(func() { close(sub.ch) })
		return sub
	}
	st.subs[sub] = struct{}{}
	return sub
}

// Publish delivers ev to every subscriber without blocking.
func (st *Stream) Publish(ev lighting.Event) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return
	}
	st.published.Add(1)
	for sub := range st.subs {
		if sub.offer(ev) {
			st.dropped.Add(1)
		}
	}
}

// offer enqueues ev, evicting the oldest queued events while the buffer is
// full. Only the stream's publisher sends, under the stream lock, so the
// loop ends as soon as one slot is free. Reports whether anything was
// dropped.
func (s *Subscription) offer(ev lighting.Event) bool {
	dropped := false
	for {
		select {
		case s.ch <- ev:
			return dropped
		default:
		}
		select {
		case <-s.ch:
			s.dropped.Add(1)
			dropped = true
		default:
		}
	}
}

func (st *Stream) remove(sub *Subscription) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.subs[sub]; !ok {
		return
	}
	delete(st.subs, sub)
	close(sub.ch)
}

// Close closes the stream and every subscriber channel.
func (st *Stream) Close() {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return
	}
	st.closed = true
	for sub := range st.subs {
		delete(st.subs, sub)
		close(sub.ch)
	}
}

// Subscribers returns the number of attached subscribers.
func (st *Stream) Subscribers() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.subs)
}

// Published returns the number of events accepted by Publish.
func (st *Stream) Published() uint64 { return st.published.Load() }

// Dropped returns the total events discarded across all subscribers.
func (st *Stream) Dropped() uint64 { return st.dropped.Load() }
