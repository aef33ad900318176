package voice

import (
	"context"
	"log/slog"
	"sync"

	"github.com/MrWong99/voxctl/internal/eventbus"
)

// publisher hands lifecycle events to the bus in the order they were queued.
// Delivery runs on its own goroutine, outside the coordinator lock, so a
// subscriber may call Start or Stop from its handler.
type publisher struct {
	bus *eventbus.Bus

	mu       sync.Mutex
	queue    []queuedEvent
	draining bool
	idle     chan struct{} // closed while nothing is queued or in flight
}

type queuedEvent struct {
	ctx context.Context
	log *slog.Logger
	ev  eventbus.Event
}

func newPublisher(bus *eventbus.Bus) *publisher {
	idle := make(chan struct{})
	close(idle)
	return &publisher{bus: bus, idle: idle}
}

// enqueue schedules ev. Cancelling ctx afterwards does not drop it.
func (p *publisher) enqueue(ctx context.Context, log *slog.Logger, ev eventbus.Event) {
	if p.bus == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, queuedEvent{ctx: context.WithoutCancel(ctx), log: log, ev: ev})
	if p.draining {
		return
	}
	p.draining = true
	p.idle = make(chan struct{})
	go p.drain()
}

func (p *publisher) drain() {
	for {
		p.mu.Lock()
		if len(p.queue) == 0 {
			p.draining = false
			close(p.idle)
			p.mu.Unlock()
			return
		}
		next := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		if err := p.bus.Emit(next.ctx, next.ev); err != nil {
			next.log.Debug("voice: lifecycle event not delivered", "event", next.ev.Kind.String(), "err", err)
		}
	}
}

// flush waits until every queued event was handed over or ctx ends.
func (p *publisher) flush(ctx context.Context) error {
	p.mu.Lock()
	idle := p.idle
	p.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
