package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func get(t *testing.T, h *Handler, path string) (int, Report) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("%s Content-Type = %q", path, ct)
	}
	var rep Report
	if err := json.NewDecoder(rec.Body).Decode(&rep); err != nil {
		t.Fatalf("%s: decode: %v", path, err)
	}
	return rec.Code, rep
}

func pass(name string) Probe {
	return Probe{Name: name, Check: func(context.Context) error { return nil }}
}

func failing(name, msg string) Probe {
	return Probe{Name: name, Check: func(context.Context) error { return errors.New(msg) }}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	// Liveness ignores probes.
	code, rep := get(t, New([]Probe{failing("voice", "off")}), "/healthz")
	if code != http.StatusOK || rep.Status != StatusOK {
		t.Errorf("healthz = %d %q, want 200 ok", code, rep.Status)
	}
	if rep.Checks != nil {
		t.Errorf("healthz checks = %v, want none", rep.Checks)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		probes     []Probe
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no probes",
			wantCode:   http.StatusOK,
			wantStatus: StatusOK,
		},
		{
			name:       "all pass",
			probes:     []Probe{pass("voice"), pass("engine")},
			wantCode:   http.StatusOK,
			wantStatus: StatusOK,
			wantChecks: map[string]string{"voice": "ok", "engine": "ok"},
		},
		{
			name:       "one fails",
			probes:     []Probe{failing("voice", "state is OFF"), pass("engine")},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusFail,
			wantChecks: map[string]string{"voice": "fail: state is OFF", "engine": "ok"},
		},
		{
			name:       "all fail",
			probes:     []Probe{failing("voice", "a"), failing("engine", "b")},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusFail,
			wantChecks: map[string]string{"voice": "fail: a", "engine": "fail: b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			code, rep := get(t, New(tt.probes), "/readyz")
			if code != tt.wantCode || rep.Status != tt.wantStatus {
				t.Errorf("readyz = %d %q, want %d %q", code, rep.Status, tt.wantCode, tt.wantStatus)
			}
			if len(rep.Checks) != len(tt.wantChecks) {
				t.Fatalf("checks = %v, want %v", rep.Checks, tt.wantChecks)
			}
			for k, v := range tt.wantChecks {
				if rep.Checks[k] != v {
					t.Errorf("checks[%s] = %q, want %q", k, rep.Checks[k], v)
				}
			}
		})
	}
}

func TestReadyz_ProbeTimeout(t *testing.T) {
	t.Parallel()

	slow := Probe{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	start := time.Now()
	code, rep := get(t, New([]Probe{slow, pass("fast")}, WithTimeout(20*time.Millisecond)), "/readyz")
	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}
	if !strings.Contains(rep.Checks["slow"], "deadline exceeded") {
		t.Errorf("slow check = %q, want deadline exceeded", rep.Checks["slow"])
	}
	if rep.Checks["fast"] != StatusOK {
		t.Errorf("fast check = %q", rep.Checks["fast"])
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("readyz took %v, timeout not applied", elapsed)
	}
}

func TestUptime(t *testing.T) {
	t.Parallel()

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h := New(nil, func(h *Handler) { h.now = func() time.Time { return clock } })
	clock = clock.Add(90 * time.Second)

	if rep := h.Evaluate(context.Background()); rep.Uptime != "1m30s" {
		t.Errorf("uptime = %q, want 1m30s", rep.Uptime)
	}
}

func TestStateProbe(t *testing.T) {
	t.Parallel()

	state := "OFF"
	p := StateProbe("voice", func() string { return state }, "ON")

	if err := p.Check(context.Background()); err == nil || !strings.Contains(err.Error(), "state is OFF") {
		t.Errorf("Check while OFF = %v", err)
	}
	state = "ON"
	if err := p.Check(context.Background()); err != nil {
		t.Errorf("Check while ON = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Check(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Check with cancelled ctx = %v, want context.Canceled", err)
	}
}
