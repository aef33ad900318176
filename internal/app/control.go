package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrWong99/voxctl/internal/voice"
)

// controlResponse is the JSON body of every control endpoint.
type controlResponse struct {
	State   string `json:"state"`
	Session string `json:"session,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RegisterControl adds the voice control endpoints to mux:
//
//   - POST /voice/start turns voice input on.
//   - POST /voice/stop turns voice input off.
//   - GET /voice/state reports the current state.
func (a *App) RegisterControl(mux *http.ServeMux) {
	mux.HandleFunc("POST /voice/start", a.handleStart)
	mux.HandleFunc("POST /voice/stop", a.handleStop)
	mux.HandleFunc("GET /voice/state", a.handleState)
}

func (a *App) handleStart(w http.ResponseWriter, r *http.Request) {
	// The session outlives the request.
	err := a.Start(context.WithoutCancel(r.Context()))
	switch {
	case err == nil:
		a.writeState(w, http.StatusOK, nil)
	case errors.Is(err, voice.ErrPermissionDenied):
		a.writeState(w, http.StatusForbidden, err)
	default:
		a.writeState(w, http.StatusInternalServerError, err)
	}
}

func (a *App) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := a.Stop(context.WithoutCancel(r.Context())); err != nil {
		a.writeState(w, http.StatusInternalServerError, err)
		return
	}
	a.writeState(w, http.StatusOK, nil)
}

func (a *App) handleState(w http.ResponseWriter, _ *http.Request) {
	a.writeState(w, http.StatusOK, nil)
}

func (a *App) writeState(w http.ResponseWriter, status int, err error) {
	resp := controlResponse{
		State:   a.State().String(),
		Session: a.voice.Session(),
	}
	if err != nil {
		resp.Error = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
