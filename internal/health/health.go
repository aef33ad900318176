// Package health serves the liveness and readiness endpoints.
//
// GET /healthz answers 200 while the process can serve HTTP. GET /readyz
// answers 200 only when every registered [Probe] passes; for the voice
// service that means input is ON. Both return a JSON [Report].
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds a single probe.
const DefaultTimeout = 5 * time.Second

// Status values used in a [Report].
const (
	StatusOK   = "ok"
	StatusFail = "fail"
)

// Probe is one named readiness condition. Check returns nil when satisfied.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// Report is the response body of both endpoints.
type Report struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler evaluates probes. The probe set is fixed at construction.
type Handler struct {
	probes  []Probe
	timeout time.Duration
	started time.Time
	now     func() time.Time
}

// Option configures a [Handler].
type Option func(*Handler)

// WithTimeout overrides [DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// New returns a Handler over probes.
func New(probes []Probe, opts ...Option) *Handler {
	h := &Handler{
		probes:  append([]Probe(nil), probes...),
		timeout: DefaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.started = h.now()
	return h
}

// Register mounts both endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.serveLive)
	mux.HandleFunc("GET /readyz", h.serveReady)
}

func (h *Handler) serveLive(w http.ResponseWriter, _ *http.Request) {
	writeReport(w, http.StatusOK, Report{Status: StatusOK, Uptime: h.uptime()})
}

func (h *Handler) serveReady(w http.ResponseWriter, r *http.Request) {
	rep := h.Evaluate(r.Context())
	code := http.StatusOK
	if rep.Status != StatusOK {
		code = http.StatusServiceUnavailable
	}
	writeReport(w, code, rep)
}

// Evaluate runs all probes concurrently, each under the handler timeout,
// and reports the combined outcome.
func (h *Handler) Evaluate(ctx context.Context) Report {
	outcomes := make([]error, len(h.probes))
	var g errgroup.Group
	for i, p := range h.probes {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()
			outcomes[i] = p.Check(pctx)
			return nil
		})
	}
	_ = g.Wait()

	rep := Report{Status: StatusOK, Uptime: h.uptime()}
	if len(h.probes) > 0 {
		rep.Checks = make(map[string]string, len(h.probes))
	}
	for i, p := range h.probes {
		if err := outcomes[i]; err != nil {
			rep.Checks[p.Name] = StatusFail + ": " + err.Error()
			rep.Status = StatusFail
			continue
		}
		rep.Checks[p.Name] = StatusOK
	}
	return rep
}

func (h *Handler) uptime() string {
	return h.now().Sub(h.started).Round(time.Second).String()
}

func writeReport(w http.ResponseWriter, code int, rep Report) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(rep)
}

// StateProbe passes while state returns want, for components with a
// lifecycle enum such as the voice coordinator.
func StateProbe(name string, state func() string, want string) Probe {
	return Probe{
		Name: name,
		Check: func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if got := state(); got != want {
				return fmt.Errorf("state is %s, want %s", got, want)
			}
			return nil
		},
	}
}
