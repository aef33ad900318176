package command_test

import (
	"errors"
	"testing"

	"github.com/MrWong99/voxctl/internal/action"
	"github.com/MrWong99/voxctl/internal/command"
)

func swipeCommands() []command.Command {
	return []command.Command{{Action: action.SwipeUp, Phrases: []string{"swipe up", "next"}}}
}

func TestMatcher_Match(t *testing.T) {
	t.Parallel()

	m, err := command.NewMatcher(swipeCommands())
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}

	tests := []struct {
		name      string
		text      string
		wantMatch bool
		wantExact bool
	}{
		{name: "exact", text: "swipe up", wantMatch: true, wantExact: true},
		{name: "inside sentence", text: "please swipe up now", wantMatch: true, wantExact: true},
		{name: "normalized", text: "Swipe UP!", wantMatch: true, wantExact: true},
		{name: "second phrase", text: "next", wantMatch: true, wantExact: true},
		{name: "misheard vowel", text: "swipe op", wantMatch: true},
		{name: "run together", text: "swipeup", wantMatch: true},
		{name: "unrelated", text: "hello there", wantMatch: false},
		{name: "shared word only", text: "pick up the phone", wantMatch: false},
		{name: "partial word", text: "nextdoor neighbours", wantMatch: false},
		{name: "blank", text: "   ", wantMatch: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := m.Match(tc.text)
			if ok != tc.wantMatch {
				t.Fatalf("Match(%q) ok = %v (%+v), want %v", tc.text, ok, got, tc.wantMatch)
			}
			if !ok {
				return
			}
			if got.Action != action.SwipeUp {
				t.Errorf("action = %q, want SWIPE_UP", got.Action)
			}
			if got.Exact != tc.wantExact {
				t.Errorf("exact = %v, want %v", got.Exact, tc.wantExact)
			}
			if tc.wantExact && got.Score != 1 {
				t.Errorf("exact score = %v, want 1", got.Score)
			}
		})
	}
}

func TestMatcher_Thresholds(t *testing.T) {
	t.Parallel()

	strict, err := command.NewMatcher(swipeCommands(), command.WithPhoneticThreshold(1), command.WithFuzzyThreshold(1))
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}
	if _, ok := strict.Match("swipe op"); ok {
		t.Error("strict matcher accepted a fuzzy match")
	}
	if _, ok := strict.Match("swipe up"); !ok {
		t.Error("strict matcher rejected an exact match")
	}
}

func TestNewMatcher_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cmds []command.Command
	}{
		{"unknown action", []command.Command{{Action: "FLY", Phrases: []string{"fly"}}}},
		{"no phrases", []command.Command{{Action: action.SwipeUp}}},
		{"blank phrase", []command.Command{{Action: action.SwipeUp, Phrases: []string{"?!"}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := command.NewMatcher(tc.cmds); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	_, err := command.NewMatcher([]command.Command{{Action: "FLY", Phrases: []string{"fly"}}})
	if !errors.Is(err, action.ErrUnknownAction) {
		t.Errorf("err = %v, want ErrUnknownAction", err)
	}
}

func TestMatcher_Empty(t *testing.T) {
	t.Parallel()

	m, err := command.NewMatcher(nil)
	if err != nil {
		t.Fatalf("NewMatcher(nil): %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("Len = %d, want 0", m.Len())
	}
	if _, ok := m.Match("swipe up"); ok {
		t.Error("empty matcher matched")
	}
}
