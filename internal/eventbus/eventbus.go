// Package eventbus is the in-process, multi-producer multi-subscriber bus of
// spec §6 ("publish (topic, payload); subscribe (topic-pattern) -> stream").
// Publishers never block on subscribers (spec §5): each subscription owns a
// bounded buffered channel and a Policy deciding what happens when that
// buffer is full.
package eventbus

import (
	"strings"
	"sync"
	"sync/atomic"

	"tradecore/internal/domain"
)

// Policy controls what a subscription does when its buffer is full.
type Policy int

const (
	// PolicyDropOldest discards the oldest buffered event to make room for
	// the new one (the subscriber sees a gap, detectable via Event.Seq).
	PolicyDropOldest Policy = iota
	// PolicyDropNewest discards the incoming event, keeping what's buffered.
	PolicyDropNewest
)

type subscription struct {
	pattern string
	ch      chan domain.Event
	policy  Policy
	mu      sync.Mutex
	dropped uint64
}

// matches reports whether topic matches pattern. A pattern ending in "*" is a
// prefix match (e.g. "order.*" matches "order.submitted"); otherwise it must
// match exactly.
func (s *subscription) matches(topic domain.Topic) bool {
	if strings.HasSuffix(s.pattern, "*") {
		return strings.HasPrefix(string(topic), strings.TrimSuffix(s.pattern, "*"))
	}
	return s.pattern == string(topic)
}

// Bus is the event bus. Zero value is not usable; use New.
type Bus struct {
	mu   sync.RWMutex
	subs []*subscription
	seq  map[domain.Market]*uint64
	seqMu sync.Mutex
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{seq: make(map[domain.Market]*uint64)}
}

// Subscribe registers a new subscription for pattern with the given buffer
// size and full-buffer policy, and returns the channel to read events from.
// The returned channel is never closed by the bus, and the subscription
// stays registered for the Bus's lifetime.
func (b *Bus) Subscribe(pattern string, bufferSize int, policy Policy) <-chan domain.Event {
	sub := &subscription{
		pattern: pattern,
		ch:      make(chan domain.Event, bufferSize),
		policy:  policy,
	}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub.ch
}

// nextSeq returns the next strictly increasing sequence number for market.
func (b *Bus) nextSeq(market domain.Market) uint64 {
	b.seqMu.Lock()
	defer b.seqMu.Unlock()
	ctr, ok := b.seq[market]
	if !ok {
		var zero uint64
		ctr = &zero
		b.seq[market] = ctr
	}
	*ctr++
	return *ctr
}

// Publish delivers evt to every subscription whose pattern matches evt.Topic.
// Publish never blocks: a full subscriber buffer is handled per that
// subscription's Policy, never by waiting.
func (b *Bus) Publish(evt domain.Event) {
	evt.Seq = b.nextSeq(evt.Market)

	b.mu.RLock()
	subs := make([]*subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, sub := range subs {
		if !sub.matches(evt.Topic) {
			continue
		}
		sub.deliver(evt)
	}
}

func (s *subscription) deliver(evt domain.Event) {
	select {
	case s.ch <- evt:
		return
	default:
	}

	switch s.policy {
	case PolicyDropNewest:
		atomic.AddUint64(&s.dropped, 1)
	case PolicyDropOldest:
		s.mu.Lock()
		defer s.mu.Unlock()
		select {
		case <-s.ch:
			atomic.AddUint64(&s.dropped, 1)
		default:
		}
		select {
		case s.ch <- evt:
		default:
			atomic.AddUint64(&s.dropped, 1)
		}
	}
}
