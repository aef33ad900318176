package command_test

import (
	"sync"
	"testing"

	"github.com/MrWong99/voxctl/internal/action"
	"github.com/MrWong99/voxctl/internal/command"
)

type dispatchRecorder struct {
	mu  sync.Mutex
	got []action.ActionType
}

func (d *dispatchRecorder) Dispatch(a action.ActionType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.got = append(d.got, a)
}

func (d *dispatchRecorder) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.got)
}

func newTestRouter(t *testing.T) (*command.Router, *dispatchRecorder) {
	t.Helper()
	m, err := command.NewMatcher(swipeCommands())
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}
	d := &dispatchRecorder{}
	return command.NewRouter(m, d), d
}

func TestRouter_OncePerUtterance(t *testing.T) {
	t.Parallel()

	r, d := newTestRouter(t)
	for _, text := range []string{"swipe", "swipe up", "swipe up please", "swipe up please swipe up"} {
		r.HandleText(text)
	}
	if d.count() != 1 {
		t.Fatalf("dispatched %d times, want 1", d.count())
	}
}

func TestRouter_EndUtteranceRearms(t *testing.T) {
	t.Parallel()

	r, d := newTestRouter(t)
	if a, ok := r.HandleText("swipe up"); !ok || a != action.SwipeUp {
		t.Fatalf("HandleText = %q, %v", a, ok)
	}
	r.EndUtterance()
	if _, ok := r.HandleText("swipe up"); !ok {
		t.Fatal("second utterance did not dispatch")
	}
	if d.count() != 2 {
		t.Fatalf("dispatched %d times, want 2", d.count())
	}
}

func TestRouter_NewUtteranceByText(t *testing.T) {
	t.Parallel()

	r, d := newTestRouter(t)
	r.HandleText("swipe up")
	r.HandleText("hello")
	r.HandleText("swipe up")
	if d.count() != 2 {
		t.Fatalf("dispatched %d times, want 2", d.count())
	}
}

func TestRouter_IgnoresBlankAndUnmatched(t *testing.T) {
	t.Parallel()

	r, d := newTestRouter(t)
	for _, text := range []string{"", "  ", "good morning", "good morning everyone"} {
		if _, ok := r.HandleText(text); ok {
			t.Errorf("HandleText(%q) dispatched", text)
		}
	}
	if d.count() != 0 {
		t.Fatalf("dispatched %d times, want 0", d.count())
	}
}

func TestRouter_SetMatcher(t *testing.T) {
	t.Parallel()

	r, d := newTestRouter(t)

	m, err := command.NewMatcher([]command.Command{{Action: action.SwipeUp, Phrases: []string{"scroll"}}})
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}
	r.SetMatcher(m)

	if _, ok := r.HandleText("swipe up"); ok {
		t.Error("old phrase still active after swap")
	}
	r.EndUtterance()
	if _, ok := r.HandleText("scroll"); !ok {
		t.Error("new phrase not active after swap")
	}
	if d.count() != 1 {
		t.Fatalf("dispatched %d times, want 1", d.count())
	}
}
