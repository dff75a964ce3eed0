package observe

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func serve(h http.Handler, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_ProbeRequestsLogAtDebug(t *testing.T) {
	m, _ := newTestMetrics(t)
	useTracer(t)

	tests := []struct {
		path   string
		status int
		level  string
	}{
		{"/healthz", http.StatusOK, "DEBUG"},
		{"/readyz", http.StatusServiceUnavailable, "INFO"},
		{"/readyz", http.StatusInternalServerError, "INFO"},
		{"/metrics", http.StatusOK, "DEBUG"},
		{"/metrics/extra", http.StatusOK, "DEBUG"},
		{"/metricsz", http.StatusOK, "INFO"},
		{"/say", http.StatusOK, "INFO"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			buf := captureLogs(t, slog.LevelDebug)
			h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))

			serve(h, tt.path, nil)

			line := buf.String()
			if !strings.Contains(line, `msg="request completed"`) {
				t.Fatalf("no completion line: %s", line)
			}
			if !strings.Contains(line, "level="+tt.level) {
				t.Errorf("status %d on %s: want level %s, got: %s", tt.status, tt.path, tt.level, line)
			}
		})
	}
}

func TestMiddleware_TraceFlowsIntoHandlerLogs(t *testing.T) {
	m, _ := newTestMetrics(t)
	exp := useTracer(t)
	buf := captureLogs(t, slog.LevelInfo)

	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Logger(r.Context(), "component", "health").Info("readiness evaluated")
		w.WriteHeader(http.StatusOK)
	}))

	const incoming = "4bf92f3577b34da6a3ce929d0e0e4736"
	rec := serve(h, "/readyz", http.Header{"Traceparent": {"00-" + incoming + "-00f067aa0ba902b7-01"}})

	if got := rec.Header().Get(TraceHeader); got != incoming {
		t.Errorf("%s = %q, want the caller's trace %q", TraceHeader, got, incoming)
	}
	if tp := rec.Header().Get("traceparent"); !strings.Contains(tp, incoming) {
		t.Errorf("response traceparent = %q, want it to continue %s", tp, incoming)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	span := spans[0]
	if span.Name != "GET /readyz" {
		t.Errorf("span name = %q", span.Name)
	}
	if span.Parent.SpanID().String() != "00f067aa0ba902b7" {
		t.Errorf("span parent = %s, want the remote caller", span.Parent.SpanID())
	}

	var handlerLine string
	for _, l := range strings.Split(buf.String(), "\n") {
		if strings.Contains(l, "readiness evaluated") {
			handlerLine = l
		}
	}
	if !strings.Contains(handlerLine, "trace_id="+incoming) || !strings.Contains(handlerLine, "component=health") {
		t.Errorf("handler log line = %q, want trace_id and component", handlerLine)
	}
}

func TestMiddleware_RecordsDurationPerPath(t *testing.T) {
	m, reader := newTestMetrics(t)
	useTracer(t)
	captureLogs(t, slog.LevelError)

	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	serve(h, "/healthz", nil)
	serve(h, "/healthz", nil)
	serve(h, "/metrics", nil)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "tutorvoice.http.request.duration")
	if met == nil {
		t.Fatal("request duration histogram not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("data = %T, want a float64 histogram", met.Data)
	}

	counts := map[string]uint64{}
	for _, dp := range hist.DataPoints {
		path, _ := dp.Attributes.Value("path")
		counts[path.AsString()] += dp.Count
	}
	if counts["/healthz"] != 2 || counts["/metrics"] != 1 {
		t.Errorf("samples per path = %v, want /healthz:2 /metrics:1", counts)
	}
}
