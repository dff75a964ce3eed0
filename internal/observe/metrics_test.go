package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumWhere returns the value of the int64 sum data point whose attribute key
// equals value.
func sumWhere(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	t.Fatalf("metric %q has no data point with %s=%s", name, key, value)
	return 0
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"tutorvoice.tts.duration", m.TTSDuration},
		{"tutorvoice.live.connect.duration", m.ConnectDuration},
		{"tutorvoice.playback.lead", m.PlaybackLead},
		{"tutorvoice.http.request.duration", m.HTTPRequestDuration},
	}
	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 0.456)
	}

	rm := collect(t, reader)
	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 || hist.DataPoints[0].Count != 2 {
				t.Errorf("metric %q data points = %+v, want one with count 2", tc.name, hist.DataPoints)
			}
		})
	}
}

func TestCaptureCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.FramesSent.Add(ctx, 3)
	m.FramesDropped.Add(ctx, 1)

	rm := collect(t, reader)
	for name, want := range map[string]int64{
		"tutorvoice.capture.frames.sent":    3,
		"tutorvoice.capture.frames.dropped": 1,
	} {
		met := findMetric(rm, name)
		if met == nil {
			t.Fatalf("metric %q not found", name)
		}
		sum := met.Data.(metricdata.Sum[int64])
		if got := sum.DataPoints[0].Value; got != want {
			t.Errorf("%s = %d, want %d", name, got, want)
		}
	}
}

func TestRecordHelpers(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordChunk(ctx, "ok")
	m.RecordChunk(ctx, "ok")
	m.RecordChunk(ctx, "malformed")
	m.RecordTransition(ctx, "idle", "opening")
	m.RecordUtterance(ctx, "busy")
	m.RecordProviderError(ctx, "gemini", "live")
	m.RecordBreaker(ctx, "tts", "open")

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "tutorvoice.reply.chunks", "status", "ok"); got != 2 {
		t.Errorf("ok chunks = %d, want 2", got)
	}
	if got := sumWhere(t, rm, "tutorvoice.reply.chunks", "status", "malformed"); got != 1 {
		t.Errorf("malformed chunks = %d, want 1", got)
	}
	if got := sumWhere(t, rm, "tutorvoice.session.transitions", "to", "opening"); got != 1 {
		t.Errorf("transitions = %d, want 1", got)
	}
	if got := sumWhere(t, rm, "tutorvoice.speech.utterances", "status", "busy"); got != 1 {
		t.Errorf("utterances = %d, want 1", got)
	}
	if got := sumWhere(t, rm, "tutorvoice.provider.errors", "provider", "gemini"); got != 1 {
		t.Errorf("provider errors = %d, want 1", got)
	}
	if got := sumWhere(t, rm, "tutorvoice.breaker.transitions", "name", "tts"); got != 1 {
		t.Errorf("breaker transitions = %d, want 1", got)
	}
}

func TestActiveSessionsGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)

	rm := collect(t, reader)
	met := findMetric(rm, "tutorvoice.active_sessions")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum := met.Data.(metricdata.Sum[int64])
	if got := sum.DataPoints[0].Value; got != 1 {
		t.Errorf("active sessions = %d, want 1", got)
	}
}

func TestObservePlayback(t *testing.T) {
	m, reader := newTestMetrics(t)

	stats := PlaybackStats{Enqueued: 5, Completed: 3, Cancelled: 1, Live: 1}
	reg, err := m.ObservePlayback("reply", func() PlaybackStats { return stats })
	if err != nil {
		t.Fatalf("ObservePlayback: %v", err)
	}
	defer reg.Unregister()

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "tutorvoice.playback.voices.enqueued", "scheduler", "reply"); got != 5 {
		t.Errorf("enqueued = %d, want 5", got)
	}
	if got := sumWhere(t, rm, "tutorvoice.playback.voices.cancelled", "scheduler", "reply"); got != 1 {
		t.Errorf("cancelled = %d, want 1", got)
	}

	met := findMetric(rm, "tutorvoice.playback.voices.live")
	if met == nil {
		t.Fatal("live gauge not found")
	}
	gauge, ok := met.Data.(metricdata.Gauge[int64])
	if !ok || len(gauge.DataPoints) == 0 || gauge.DataPoints[0].Value != 1 {
		t.Errorf("live gauge = %+v, want 1", met.Data)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
