package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/voxctl/internal/observe"
	"github.com/MrWong99/voxctl/internal/resilience"
)

const defaultBridgeTimeout = 2 * time.Second

// Bridge is a [Dispatcher] that forwards actions to a gesture agent over a
// WebSocket. Each Dispatch runs on its own goroutine: it dials the agent,
// writes {"action":"<TOKEN>"} and closes the connection. Delivery failures are
// logged; after repeated failures the circuit breaker skips dialing until the
// agent has had time to come back.
type Bridge struct {
	url     string
	timeout time.Duration
	breaker *resilience.CircuitBreaker
	metrics *observe.Metrics
	client  *http.Client

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// BridgeOption configures a [Bridge].
type BridgeOption func(*Bridge)

// WithBridgeTimeout bounds one dial and write. Defaults to 2s.
func WithBridgeTimeout(d time.Duration) BridgeOption {
	return func(b *Bridge) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) BridgeOption {
	return func(b *Bridge) { b.breaker = cb }
}

// WithBridgeMetrics sets the metrics recorder.
func WithBridgeMetrics(m *observe.Metrics) BridgeOption {
	return func(b *Bridge) { b.metrics = m }
}

// WithHTTPClient sets the client used for the WebSocket handshake.
func WithHTTPClient(c *http.Client) BridgeOption {
	return func(b *Bridge) { b.client = c }
}

// NewBridge returns a Bridge that delivers to the agent listening at url
// (ws:// or http:// scheme).
func NewBridge(url string, opts ...BridgeOption) (*Bridge, error) {
	if url == "" {
		return nil, errors.New("action: bridge url is required")
	}
	b := &Bridge{url: url, timeout: defaultBridgeTimeout}
	for _, o := range opts {
		o(b)
	}
	if b.breaker == nil {
		b.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:         "action-bridge",
			MaxFailures:  3,
			ResetTimeout: 10 * time.Second,
		})
	}
	if b.metrics == nil {
		b.metrics = observe.DefaultMetrics()
	}
	return b, nil
}

// Dispatch implements [Dispatcher].
func (b *Bridge) Dispatch(a ActionType) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		slog.Debug("action: bridge closed, dropping", "action", a.String())
		return
	}
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()

		err := b.breaker.Execute(func() error { return b.send(ctx, a) })
		switch {
		case err == nil:
			b.metrics.RecordAction(ctx, a.String(), "bridge")
		case errors.Is(err, resilience.ErrCircuitOpen):
			slog.Debug("action: gesture agent unavailable, dropping", "action", a.String())
			b.metrics.RecordAction(ctx, a.String(), "bridge_dropped")
		default:
			slog.Warn("action: bridge delivery failed", "action", a.String(), "url", b.url, "err", err)
			b.metrics.RecordAction(ctx, a.String(), "bridge_dropped")
		}
	}()
}

func (b *Bridge) send(ctx context.Context, a ActionType) error {
	conn, _, err := websocket.Dial(ctx, b.url, &websocket.DialOptions{HTTPClient: b.client})
	if err != nil {
		return fmt.Errorf("action: dial gesture agent: %w", err)
	}
	defer conn.CloseNow()

	if err := wsjson.Write(ctx, conn, message{Action: a.String()}); err != nil {
		return fmt.Errorf("action: write action: %w", err)
	}
	return conn.Close(websocket.StatusNormalClosure, "")
}

// Close stops accepting actions and waits for in-flight deliveries.
func (b *Bridge) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
	return nil
}

var _ Dispatcher = (*Bridge)(nil)

// BridgeHandler is the gesture agent's endpoint for [Bridge]. It accepts
// WebSocket connections and performs every valid action it reads.
type BridgeHandler struct {
	gesture GestureFunc

	// OriginPatterns are passed to websocket.AcceptOptions. Empty allows
	// same-origin requests only.
	OriginPatterns []string
}

// NewBridgeHandler returns a handler that calls gesture for each action.
func NewBridgeHandler(gesture GestureFunc) *BridgeHandler {
	return &BridgeHandler{gesture: gesture}
}

// ServeHTTP implements http.Handler.
func (h *BridgeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.OriginPatterns})
	if err != nil {
		slog.Warn("action: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	for {
		var msg message
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure && !errors.Is(err, context.Canceled) {
				slog.Debug("action: bridge read ended", "err", err)
			}
			return
		}
		perform(ctx, h.gesture, msg.Action)
	}
}
