package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/voxctl/internal/voice"
)

type stateBody struct {
	State   string `json:"state"`
	Session string `json:"session"`
	Error   string `json:"error"`
}

func doControl(t *testing.T, h http.Handler, method, path string) (int, stateBody) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))

	var body stateBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("%s %s: decode body: %v", method, path, err)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	return rec.Code, body
}

func TestControl_StartStateStop(t *testing.T) {
	t.Parallel()

	p, _ := testProviders(nil)
	a := newApp(t, p)
	mux := http.NewServeMux()
	a.RegisterControl(mux)

	code, body := doControl(t, mux, http.MethodGet, "/voice/state")
	if code != http.StatusOK || body.State != "OFF" {
		t.Fatalf("initial state = %d %q, want 200 OFF", code, body.State)
	}

	code, body = doControl(t, mux, http.MethodPost, "/voice/start")
	if code != http.StatusOK || body.State != "ON" {
		t.Fatalf("start = %d %q, want 200 ON", code, body.State)
	}
	if body.Session == "" {
		t.Error("start response carries no session id")
	}

	// Starting twice is not an error.
	code, _ = doControl(t, mux, http.MethodPost, "/voice/start")
	if code != http.StatusOK {
		t.Errorf("second start = %d, want 200", code)
	}

	code, body = doControl(t, mux, http.MethodPost, "/voice/stop")
	if code != http.StatusOK || body.State != "OFF" {
		t.Fatalf("stop = %d %q, want 200 OFF", code, body.State)
	}
	if body.Session != "" {
		t.Errorf("stop response session = %q, want empty", body.Session)
	}
}

func TestControl_PermissionDenied(t *testing.T) {
	t.Parallel()

	p, _ := testProviders(nil)
	p.Permission = voice.PermissionFunc(func(context.Context) error { return errors.New("no mic") })
	a := newApp(t, p)
	mux := http.NewServeMux()
	a.RegisterControl(mux)

	code, body := doControl(t, mux, http.MethodPost, "/voice/start")
	if code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", code)
	}
	if body.State != "OFF" || body.Error == "" {
		t.Errorf("body = %+v, want OFF with error", body)
	}
}

func TestControl_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	p, _ := testProviders(nil)
	a := newApp(t, p)
	mux := http.NewServeMux()
	a.RegisterControl(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/voice/start", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /voice/start = %d, want 405", rec.Code)
	}
}
