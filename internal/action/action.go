// Package action delivers gesture requests triggered by voice commands.
//
// An [ActionType] is a closed enumeration carried across component and
// process boundaries as a string token. A [Dispatcher] sends one action
// fire-and-forget: there is no acknowledgement, and the request is dropped if
// nothing is listening. Receivers re-parse the token and ignore anything
// outside the enumeration.
//
// Two dispatchers are provided: [Channel] for an in-process receiver and
// [Bridge] for a gesture agent in another process reached over a loopback
// WebSocket ([BridgeHandler] is the agent side).
package action

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownAction is returned by [Parse] for tokens outside the enumeration.
var ErrUnknownAction = errors.New("action: unknown action")

// ActionType identifies a gesture.
type ActionType string

const (
	// SwipeUp scrolls the foreground view up by about a third of the screen.
	SwipeUp ActionType = "SWIPE_UP"
)

// All lists every known action in declaration order.
var All = []ActionType{SwipeUp}

// String returns the wire token.
func (a ActionType) String() string { return string(a) }

// Valid reports whether a is part of the enumeration.
func (a ActionType) Valid() bool {
	switch a {
	case SwipeUp:
		return true
	}
	return false
}

// Parse converts a wire token into an ActionType. Surrounding whitespace is
// ignored; matching is case-sensitive.
func Parse(token string) (ActionType, error) {
	a := ActionType(strings.TrimSpace(token))
	if !a.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, token)
	}
	return a, nil
}

// Dispatcher requests a gesture. Dispatch never blocks for delivery and never
// reports failure to the caller.
type Dispatcher interface {
	Dispatch(a ActionType)
}

// DispatcherFunc adapts a function to the [Dispatcher] interface.
type DispatcherFunc func(a ActionType)

// Dispatch calls f(a).
func (f DispatcherFunc) Dispatch(a ActionType) { f(a) }

// Discard drops every action.
var Discard Dispatcher = DispatcherFunc(func(ActionType) {})

// GestureFunc performs a gesture on the receiving side.
type GestureFunc func(ctx context.Context, a ActionType) error

// message is the JSON body exchanged between [Bridge] and [BridgeHandler].
type message struct {
	Action string `json:"action"`
}
