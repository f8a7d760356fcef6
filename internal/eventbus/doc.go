// Package eventbus fans lighting events from any number of adapter streams
// into one subscriber-facing stream.
//
// # Drop policy
//
// Every subscriber owns a bounded buffer. Publishing never blocks: when a
// subscriber's buffer is full the OLDEST queued event is discarded to make
// room for the new one, and the subscriber's drop counter is incremented.
// A slow consumer therefore always sees the most recent events, and a gap
// in its stream is visible through Subscription.Dropped. Fast subscribers
// are unaffected by slow ones.
//
// Events from one source keep their relative order. Events from different
// sources interleave in arrival order.
package eventbus
