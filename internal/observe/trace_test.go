package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// useTracer installs an in-memory tracer provider as the global provider for
// the duration of the test. Tests using it must not run in parallel.
func useTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs routes the default logger into a buffer at level. Tests using
// it must not run in parallel.
func captureLogs(t *testing.T, level slog.Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestStartSpan_NestsUnderCaller(t *testing.T) {
	exp := useTracer(t)

	ctx, parent := StartSpan(context.Background(), "speech.say")
	_, child := StartSpan(ctx, "speech.synthesize")
	child.End()
	parent.End()

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}
	synth, say := spans[0], spans[1]
	if synth.Name != "speech.synthesize" || say.Name != "speech.say" {
		t.Fatalf("span names = %q, %q", synth.Name, say.Name)
	}
	if synth.Parent.SpanID() != say.SpanContext.SpanID() {
		t.Error("synthesize span should be a child of the caller's span")
	}
	if synth.InstrumentationScope.Name != meterName {
		t.Errorf("scope = %q, want %q", synth.InstrumentationScope.Name, meterName)
	}
}

func TestTraceID(t *testing.T) {
	exp := useTracer(t)

	if got := TraceID(context.Background()); got != "" {
		t.Errorf("TraceID without a span = %q, want empty", got)
	}

	ctx, span := StartSpan(context.Background(), "voice.connect")
	got := TraceID(ctx)
	span.End()

	if want := exp.GetSpans()[0].SpanContext.TraceID().String(); got != want {
		t.Errorf("TraceID = %q, want the span's %q", got, want)
	}
}

func TestLogger(t *testing.T) {
	exp := useTracer(t)

	tests := []struct {
		name     string
		withSpan bool
		args     []any
		want     []string
		wantNot  []string
	}{
		{
			name:    "no span",
			wantNot: []string{"trace_id", "span_id"},
		},
		{
			name:     "span",
			withSpan: true,
			want:     []string{"trace_id=", "span_id="},
		},
		{
			name:     "span and session fields",
			withSpan: true,
			args:     []any{"session_id", "3f2c", "state", "active"},
			want:     []string{"trace_id=", "session_id=3f2c", "state=active"},
		},
		{
			name:    "fields only",
			args:    []any{"session_id", "3f2c"},
			want:    []string{"session_id=3f2c"},
			wantNot: []string{"trace_id"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLogs(t, slog.LevelInfo)
			exp.Reset()

			ctx := context.Background()
			var span trace.Span
			if tt.withSpan {
				ctx, span = StartSpan(ctx, "voice.connect")
			}
			Logger(ctx, tt.args...).Info("session state changed")
			if span != nil {
				span.End()
			}

			line := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(line, w) {
					t.Errorf("log line missing %q: %s", w, line)
				}
			}
			for _, w := range tt.wantNot {
				if strings.Contains(line, w) {
					t.Errorf("log line should not contain %q: %s", w, line)
				}
			}
			if tt.withSpan {
				sc := exp.GetSpans()[0].SpanContext
				if !strings.Contains(line, "trace_id="+sc.TraceID().String()) ||
					!strings.Contains(line, "span_id="+sc.SpanID().String()) {
					t.Errorf("log line does not carry the active span: %s", line)
				}
			}
		})
	}
}
