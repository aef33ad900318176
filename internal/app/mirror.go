package app

import (
	"context"
	"sync"

	"github.com/MrWong99/voxctl/internal/eventbus"
)

// StateMirror follows ServiceStart and ServiceStop on a bus and exposes the
// last seen ON/OFF value to observers such as the control endpoint.
//
// The mirror only records what it was told. It never starts or stops the
// service itself.
type StateMirror struct {
	sub *eventbus.Subscription

	mu      sync.Mutex
	on      bool
	session string
	changed chan struct{}
}

// NewStateMirror subscribes to bus for the lifetime of ctx. The mirror starts
// OFF; events emitted before the call are not replayed.
func NewStateMirror(ctx context.Context, bus *eventbus.Bus) *StateMirror {
	m := &StateMirror{changed: make(chan struct{})}
	m.sub = bus.Subscribe(ctx, m.handle)
	return m
}

func (m *StateMirror) handle(_ context.Context, ev eventbus.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch ev.Kind {
	case eventbus.ServiceStart:
		m.on = true
		m.session = ev.PayloadString()
	case eventbus.ServiceStop:
		m.on = false
		m.session = ""
	default:
		return
	}
	close(m.changed)
	m.changed = make(chan struct{})
}

// On reports whether the last observed event was ServiceStart.
func (m *StateMirror) On() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.on
}

// Session returns the session id of the running service, or "".
func (m *StateMirror) Session() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// WaitFor blocks until the mirror shows on, or ctx ends.
func (m *StateMirror) WaitFor(ctx context.Context, on bool) error {
	for {
		m.mu.Lock()
		cur, ch := m.on, m.changed
		m.mu.Unlock()
		if cur == on {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close ends the subscription.
func (m *StateMirror) Close() error {
	m.sub.Cancel()
	return nil
}
