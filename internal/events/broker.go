// Package events implements a typed in-process event bus. Subscribers pick the
// kinds they care about instead of listening on an untyped global broadcast.
package events

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Kind identifies an event type.
type Kind string

const (
	KindNewMessage   Kind = "new_message"
	KindNewMatch     Kind = "new_match"
	KindNotification Kind = "notification"
	// KindConnection carries connection lifecycle transitions.
	KindConnection Kind = "connection_state"
	// KindOffline is published once reconnection attempts are exhausted.
	KindOffline Kind = "offline"
)

const subscriberBuffer = 64

// critical kinds are never dropped for a slow subscriber. When its buffer is
// full the oldest buffered event is evicted instead.
var critical = map[Kind]struct{}{
	KindOffline: {},
}

// Event is delivered to subscribers. Payload holds the typed value for the kind.
type Event struct {
	Kind    Kind
	Payload any
}

type subscription struct {
	ch    chan Event
	kinds map[Kind]struct{}
}

func (s subscription) wants(k Kind) bool {
	if len(s.kinds) == 0 {
		return true
	}
	_, ok := s.kinds[k]
	return ok
}

// Broker fans events out to subscribers.
//
// A single internal loop goroutine owns the subscriber set. Public methods talk
// to the loop through channels, so no mutexes are required.
type Broker struct {
	subscribeCh   chan subscription
	unsubscribeCh chan chan Event
	publishCh     chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool

	logger  *zap.Logger
	dropped atomic.Uint64
}

type Option func(*Broker)

// WithLogger reports events dropped for slow subscribers.
func WithLogger(l *zap.Logger) Option {
	return func(b *Broker) {
		if l != nil {
			b.logger = l
		}
	}
}

func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		logger:        zap.NewNop(),
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan Event),
		publishCh:     make(chan Event, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(b)
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	subs := make(map[chan Event]subscription)

	for {
		select {
		case <-b.stopCh:
			// deliver what was published before Close
		drain:
			for {
				select {
				case event := <-b.publishCh:
					b.fanOut(subs, event)
				default:
					break drain
				}
			}
			for ch := range subs {
				close(ch)
			}
			return

		case s := <-b.subscribeCh:
			subs[s.ch] = s

		case ch := <-b.unsubscribeCh:
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			b.fanOut(subs, event)

		case resp := <-b.countReqCh:
			resp <- len(subs)
		}
	}
}

func (b *Broker) fanOut(subs map[chan Event]subscription, event Event) {
	_, mustDeliver := critical[event.Kind]

	for ch, s := range subs {
		if !s.wants(event.Kind) {
			continue
		}
		select {
		case ch <- event:
			continue
		default:
		}

		if !mustDeliver {
			b.drop(event.Kind, event.Kind)
			continue
		}

		// Only this loop sends on ch, so one eviction always makes room.
		select {
		case old := <-ch:
			b.drop(old.Kind, event.Kind)
		default:
		}
		select {
		case ch <- event:
		default:
			b.drop(event.Kind, event.Kind)
		}
	}
}

func (b *Broker) drop(kind, cause Kind) {
	b.dropped.Add(1)
	b.logger.Warn("subscriber buffer full, event dropped",
		zap.String("kind", string(kind)),
		zap.String("while_publishing", string(cause)),
	)
}

// Dropped counts events lost to full subscriber buffers.
func (b *Broker) Dropped() uint64 {
	return b.dropped.Load()
}

// Close stops the loop and closes all subscriber channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe returns a channel receiving events of the given kinds, or of every
// kind when none is given.
func (b *Broker) Subscribe(kinds ...Kind) chan Event {
	s := subscription{ch: make(chan Event, subscriberBuffer)}
	if len(kinds) > 0 {
		s.kinds = make(map[Kind]struct{}, len(kinds))
		for _, k := range kinds {
			s.kinds[k] = struct{}{}
		}
	}

	if b.closed.Load() {
		close(s.ch)
		return s.ch
	}

	select {
	case b.subscribeCh <- s:
	case <-b.stopped:
		close(s.ch)
	}

	return s.ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(ch chan Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

func (b *Broker) SubscriberCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish hands the event to the loop. Publishing on a closed broker is a no-op.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}
