// Package eventbus broadcasts service lifecycle events to in-process
// subscribers.
//
// Delivery is a rendezvous: [Bus.Emit] blocks until every current subscriber
// has taken the event (or its subscription ended). Nothing is buffered,
// nothing is replayed to late subscribers and nothing is dropped for a live
// subscriber. Each subscriber's handler runs on its own goroutine and sees
// events in the order they were emitted, provided emitters are serialized.
//
// A Bus is constructed explicitly and passed by reference; there is no
// package-level instance.
package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrClosed is returned by Emit after Close.
var ErrClosed = errors.New("eventbus: closed")

// EventKind identifies a lifecycle event.
type EventKind int

const (
	// ServiceStart is published once voice input is fully running.
	ServiceStart EventKind = iota + 1

	// ServiceStop is published once voice input has released every resource.
	ServiceStop
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case ServiceStart:
		return "ServiceStart"
	case ServiceStop:
		return "ServiceStop"
	default:
		return "unknown"
	}
}

// Event is an immutable lifecycle notification.
type Event struct {
	Kind EventKind

	// Payload is optional detail, for example a session id.
	Payload *string
}

// NewEvent returns an event of kind with an optional payload. An empty payload
// leaves Payload nil.
func NewEvent(kind EventKind, payload string) Event {
	if payload == "" {
		return Event{Kind: kind}
	}
	return Event{Kind: kind, Payload: &payload}
}

// PayloadString returns the payload or "" when absent.
func (e Event) PayloadString() string {
	if e.Payload == nil {
		return ""
	}
	return *e.Payload
}

// Handler consumes events. It runs on the subscription's goroutine.
type Handler func(ctx context.Context, ev Event)

// Bus fans lifecycle events out to subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscription is a live registration on a Bus.
type Subscription struct {
	bus  *Bus
	ch   chan Event
	done chan struct{}
	once sync.Once
}

// Cancel ends the subscription. The handler is not invoked for events
// emitted afterwards. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		close(s.done)
		s.bus.remove(s)
	})
}

// Done is closed once the subscription ended.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Subscribe registers h for the lifetime of ctx or until the returned
// Subscription is cancelled. Subscribing to a closed bus returns an already
// cancelled subscription.
func (b *Bus) Subscribe(ctx context.Context, h Handler) *Subscription {
	sub := &Subscription{
		bus:  b,
		ch:   make(chan Event),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.once.Do(func() { close(sub.done) })
		return sub
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				sub.Cancel()
				return
			case <-sub.done:
				return
			case ev := <-sub.ch:
				deliver(ctx, h, ev)
			}
		}
	}()
	return sub
}

// deliver runs h and contains any panic.
func deliver(ctx context.Context, h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("eventbus: handler panicked", "event", ev.Kind.String(), "panic", r)
		}
	}()
	h(ctx, ev)
}

// Emit hands ev to every current subscriber and returns once each of them
// took it or ended. Returns ctx.Err() if ctx is cancelled first, or
// ErrClosed after Close.
func (b *Bus) Emit(ctx context.Context, ev Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		select {
		case s.ch <- ev:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close cancels every subscription. Further Emits return ErrClosed. Handlers
// that are running finish normally.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.Cancel()
	}
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, s)
}
