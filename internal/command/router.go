package command

import (
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/voxctl/internal/action"
)

// Router dispatches the action matched by the current utterance.
//
// Partial results grow as the speaker talks, so the same command is seen
// many times per utterance; the Router fires once and then waits for the
// utterance to end. An utterance ends on [Router.EndUtterance] or when a
// transcript no longer extends the previous one.
type Router struct {
	matcher    atomic.Pointer[Matcher]
	dispatcher action.Dispatcher

	mu    sync.Mutex
	last  string
	fired bool
}

// NewRouter returns a Router that sends matches to d.
func NewRouter(m *Matcher, d action.Dispatcher) *Router {
	if d == nil {
		d = action.Discard
	}
	r := &Router{dispatcher: d}
	r.matcher.Store(m)
	return r
}

// HandleText routes one transcript. It returns the dispatched action, if
// any. Safe to call from the recognition worker.
func (r *Router) HandleText(text string) (action.ActionType, bool) {
	norm := Normalize(text)
	if norm == "" {
		return "", false
	}

	r.mu.Lock()
	if r.last == "" || !strings.HasPrefix(norm, r.last) {
		r.fired = false
	}
	r.last = norm
	if r.fired {
		r.mu.Unlock()
		return "", false
	}
	m, ok := r.matcher.Load().Match(norm)
	if ok {
		r.fired = true
	}
	r.mu.Unlock()

	if !ok {
		return "", false
	}
	slog.Info("command matched", "action", m.Action.String(), "phrase", m.Phrase, "score", m.Score, "exact", m.Exact)
	r.dispatcher.Dispatch(m.Action)
	return m.Action, true
}

// EndUtterance re-arms the Router for the next utterance.
func (r *Router) EndUtterance() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = ""
	r.fired = false
}

// SetMatcher swaps the matcher, including its thresholds.
func (r *Router) SetMatcher(m *Matcher) { r.matcher.Store(m) }
