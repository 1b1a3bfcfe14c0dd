package event

import (
	"context"
	"errors"
	"sync"
)

// Handler reacts to one Event. Handlers run synchronously on the emitter's
// task; a handler that blocks stalls the emitter — the bus performs no
// internal buffering.
type Handler interface {
	HandleEvent(ctx context.Context, evt Event) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, evt Event) error

// HandleEvent implements Handler.
func (f HandlerFunc) HandleEvent(ctx context.Context, evt Event) error { return f(ctx, evt) }

// Subscription is returned by Subscribe and allows idempotent unsubscription.
type Subscription interface {
	Close() error
}

// Bus delivers events to subscribers. Subscribers registered with TypeAll
// receive every event ("wildcard"); subscribers registered for a specific
// Type receive only matching events. Within one Publish call, wildcard
// subscribers run first, then typed subscribers, both in the order they
// were registered.
type Bus struct {
	mu   sync.RWMutex
	subs []*subscription
}

type subscription struct {
	bus     *Bus
	typ     Type
	handler Handler
	once    sync.Once
}

// NewBus constructs an empty event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers handler for typ. Pass TypeAll to receive every event
// regardless of type.
func (b *Bus) Subscribe(typ Type, handler Handler) (Subscription, error) {
	if handler == nil {
		return nil, errNilHandler
	}
	sub := &subscription{bus: b, typ: typ, handler: handler}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub, nil
}

// Publish delivers evt to subscribers: wildcard subscribers first, then
// typed subscribers matching evt.Type, both in registration order. It stops
// and returns the first handler error encountered.
func (b *Bus) Publish(ctx context.Context, evt Event) error {
	b.mu.RLock()
	snapshot := make([]*subscription, len(b.subs))
	copy(snapshot, b.subs)
	b.mu.RUnlock()

	for _, sub := range snapshot {
		if sub.typ != TypeAll {
			continue
		}
		if err := sub.handler.HandleEvent(ctx, evt); err != nil {
			return err
		}
	}
	for _, sub := range snapshot {
		if sub.typ != evt.Type {
			continue
		}
		if err := sub.handler.HandleEvent(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		for i, sub := range s.bus.subs {
			if sub == s {
				s.bus.subs = append(s.bus.subs[:i], s.bus.subs[i+1:]...)
				break
			}
		}
	})
	return nil
}

var errNilHandler = errors.New("event: handler must not be nil")
