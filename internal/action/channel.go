package action

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/MrWong99/voxctl/internal/observe"
)

const defaultChannelBuffer = 8

// Channel is an in-process [Dispatcher]. Actions are delivered to the
// [Receiver] currently attached; with none attached, or with its queue full,
// they are dropped.
type Channel struct {
	metrics *observe.Metrics

	mu       sync.Mutex
	queue    chan string
	attached bool
}

// ChannelOption configures a [Channel].
type ChannelOption func(*Channel)

// WithChannelMetrics sets the metrics recorder. Defaults to
// observe.DefaultMetrics().
func WithChannelMetrics(m *observe.Metrics) ChannelOption {
	return func(c *Channel) { c.metrics = m }
}

// NewChannel returns a Channel with no receiver attached.
func NewChannel(opts ...ChannelOption) *Channel {
	c := &Channel{}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// Dispatch implements [Dispatcher].
func (c *Channel) Dispatch(a ActionType) {
	ctx := context.Background()
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.attached {
		slog.Debug("action: no receiver, dropping", "action", a.String())
		c.metrics.RecordAction(ctx, a.String(), "channel_dropped")
		return
	}
	select {
	case c.queue <- a.String():
		c.metrics.RecordAction(ctx, a.String(), "channel")
	default:
		slog.Debug("action: receiver busy, dropping", "action", a.String())
		c.metrics.RecordAction(ctx, a.String(), "channel_dropped")
	}
}

// attach registers the single receiver and returns its queue.
func (c *Channel) attach() (<-chan string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attached {
		return nil, errors.New("action: channel already has a receiver")
	}
	c.queue = make(chan string, defaultChannelBuffer)
	c.attached = true
	return c.queue, nil
}

// detach unregisters the receiver. Queued actions are discarded.
func (c *Channel) detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attached = false
	c.queue = nil
}

var _ Dispatcher = (*Channel)(nil)

// Receiver consumes actions from a [Channel] and performs them.
type Receiver struct {
	ch      *Channel
	gesture GestureFunc
}

// NewReceiver returns a Receiver for ch that calls gesture for every valid
// action.
func NewReceiver(ch *Channel, gesture GestureFunc) *Receiver {
	return &Receiver{ch: ch, gesture: gesture}
}

// Run attaches to the channel and performs actions until ctx is cancelled.
// Gesture errors are logged. Run returns nil on cancellation.
func (r *Receiver) Run(ctx context.Context) error {
	queue, err := r.ch.attach()
	if err != nil {
		return err
	}
	defer r.ch.detach()

	for {
		select {
		case <-ctx.Done():
			return nil
		case token := <-queue:
			perform(ctx, r.gesture, token)
		}
	}
}

// perform parses token and runs gesture, logging rejections and failures.
func perform(ctx context.Context, gesture GestureFunc, token string) {
	a, err := Parse(token)
	if err != nil {
		slog.Warn("action: rejected token", "token", token, "err", err)
		return
	}
	slog.Debug("action: performing", "action", a.String())
	if err := gesture(ctx, a); err != nil {
		slog.Warn("action: gesture failed", "action", a.String(), "err", err)
	}
}
