package observe

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// testMux mirrors the service routes the middleware normally wraps.
func testMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /voice/start", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("GET /items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func TestMiddleware_RouteLabels(t *testing.T) {
	exp := useTracer(t)
	captureLog(t, slog.LevelDebug)

	tests := []struct {
		method     string
		path       string
		wantRoute  string
		wantStatus int
	}{
		{http.MethodGet, "/healthz", "GET /healthz", http.StatusOK},
		{http.MethodPost, "/voice/start", "POST /voice/start", http.StatusForbidden},
		{http.MethodGet, "/items/42", "GET /items/{id}", http.StatusOK},
		{http.MethodGet, "/nope", unmatchedRoute, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			exp.Reset()
			m, reader := newTestMetrics(t)
			h := Middleware(m)(testMux())

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			spans := exp.GetSpans()
			if len(spans) != 1 {
				t.Fatalf("recorded %d spans, want 1", len(spans))
			}
			if want := "HTTP " + tt.wantRoute; spans[0].Name != want {
				t.Errorf("span name = %q, want %q", spans[0].Name, want)
			}
			if spans[0].SpanKind != trace.SpanKindServer {
				t.Errorf("span kind = %v, want server", spans[0].SpanKind)
			}
			if !hasAttr(spans[0].Attributes, semconv.HTTPRoute(tt.wantRoute)) {
				t.Errorf("span attributes %v missing route", spans[0].Attributes)
			}

			hist := findMetric(collect(t, reader), "voxctl.http.request.duration")
			if hist == nil {
				t.Fatal("request duration not recorded")
			}
			data, ok := hist.Data.(metricdata.Histogram[float64])
			if !ok || len(data.DataPoints) != 1 {
				t.Fatalf("histogram data = %#v", hist.Data)
			}
			dp := data.DataPoints[0]
			if dp.Count != 1 {
				t.Errorf("count = %d, want 1", dp.Count)
			}
			if v, _ := dp.Attributes.Value("route"); v.AsString() != tt.wantRoute {
				t.Errorf("route attr = %q, want %q", v.AsString(), tt.wantRoute)
			}
			if v, _ := dp.Attributes.Value("status"); v.AsInt64() != int64(tt.wantStatus) {
				t.Errorf("status attr = %d, want %d", v.AsInt64(), tt.wantStatus)
			}
		})
	}
}

func hasAttr(attrs []attribute.KeyValue, want attribute.KeyValue) bool {
	for _, a := range attrs {
		if a == want {
			return true
		}
	}
	return false
}

func TestMiddleware_CorrelationHeader(t *testing.T) {
	useTracer(t)
	captureLog(t, slog.LevelInfo)
	m, _ := newTestMetrics(t)

	var inHandler string
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inHandler = CorrelationID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	got := rec.Header().Get("X-Correlation-ID")
	if len(got) != 32 {
		t.Fatalf("X-Correlation-ID = %q, want 32 hex chars", got)
	}
	if got != inHandler {
		t.Errorf("header %q differs from handler context %q", got, inHandler)
	}
	if rec.Header().Get("traceparent") == "" {
		t.Error("traceparent not injected into response")
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	useTracer(t)
	captureLog(t, slog.LevelInfo)
	m, _ := newTestMetrics(t)

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	h := Middleware(m)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Correlation-ID"); got != traceID {
		t.Errorf("X-Correlation-ID = %q, want incoming trace %q", got, traceID)
	}
}

func TestMiddleware_ProbeLogLevel(t *testing.T) {
	useTracer(t)
	m, _ := newTestMetrics(t)
	h := Middleware(m)(testMux())

	tests := []struct {
		path   string
		method string
		logged bool
	}{
		{"/healthz", http.MethodGet, false},
		{"/voice/start", http.MethodPost, true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			buf := captureLog(t, slog.LevelInfo)
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, tt.path, nil))
			if got := strings.Contains(buf.String(), "request completed"); got != tt.logged {
				t.Errorf("logged at info = %v, want %v (log: %q)", got, tt.logged, buf.String())
			}
		})
	}
}

func TestResponseRecorder_Unwrap(t *testing.T) {
	t.Parallel()

	inner := httptest.NewRecorder()
	rec := &responseRecorder{ResponseWriter: inner, status: http.StatusOK}
	if rec.Unwrap() != inner {
		t.Error("Unwrap did not return the wrapped writer")
	}
	if err := http.NewResponseController(rec).Flush(); err != nil {
		t.Errorf("Flush through controller: %v", err)
	}
}
