package events

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Handler receives published events.
type Handler func(Event)

// Subscription identifies a handler for Unsubscribe.
type Subscription uint64

type subscriber struct {
	id      Subscription
	handler Handler
	active  atomic.Bool
}

// Bus is an in-process publish/subscribe channel for auth events.
//
// Handlers run on the publishing goroutine in subscription order, and Publish
// returns once every handler has run. Publishes are serialised, so handlers
// observe events in publish order. A handler must not call Publish itself;
// further work it schedules belongs on another goroutine.
// Nothing is buffered for absent subscribers.
type Bus struct {
	mu          sync.Mutex // guards subscribers and nextID
	dispatching sync.Mutex // serialises Publish
	subscribers []*subscriber
	nextID      Subscription
	logger      zerolog.Logger
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithLogger sets the logger used for recovered handler panics.
func WithLogger(logger zerolog.Logger) BusOption {
	return func(b *Bus) {
		b.logger = logger
	}
}

func NewBus(options ...BusOption) *Bus {
	b := &Bus{logger: log.Logger}
	for _, opt := range options {
		opt(b)
	}
	return b
}

// Subscribe registers handler and returns its subscription.
func (b *Bus) Subscribe(handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	s := &subscriber{id: b.nextID, handler: handler}
	s.active.Store(true)
	b.subscribers = append(b.subscribers, s)
	return s.id
}

// Unsubscribe removes the subscription. It takes effect immediately, including
// for a Publish already delivering to earlier handlers. It reports whether the
// subscription existed.
func (b *Bus) Unsubscribe(id Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subscribers {
		if s.id == id {
			s.active.Store(false)
			b.subscribers = append(b.subscribers[:i:i], b.subscribers[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of active subscriptions.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Publish delivers e to every subscriber registered at the time of the call
// that is still subscribed when its turn comes.
func (b *Bus) Publish(e Event) {
	b.dispatching.Lock()
	defer b.dispatching.Unlock()

	b.mu.Lock()
	snapshot := make([]*subscriber, len(b.subscribers))
	copy(snapshot, b.subscribers)
	b.mu.Unlock()

	for _, s := range snapshot {
		if !s.active.Load() {
			continue
		}
		b.deliver(s, e)
	}
}

func (b *Bus) deliver(s *subscriber, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Interface("panic", r).Str("event", e.Name()).Uint64("subscription", uint64(s.id)).Msg("event handler panicked")
		}
	}()
	s.handler(e)
}
