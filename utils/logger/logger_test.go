package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/trace"
)

func spanContext(t *testing.T) (context.Context, trace.SpanContext) {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	return trace.ContextWithSpanContext(context.Background(), sc), sc
}

func decode(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestTraceContextHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo, false)
	ctx, sc := spanContext(t)

	logger.InfoContext(ctx, "with span", "user_id", "u-1")
	logger.Info("without span")

	entries := decode(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, sc.TraceID().String(), entries[0]["trace_id"])
	assert.Equal(t, sc.SpanID().String(), entries[0]["span_id"])
	assert.Equal(t, "u-1", entries[0]["user_id"])
	assert.NotContains(t, entries[1], "trace_id")
}

func TestTraceContextHandler_WithGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo, false).WithGroup("req").With("id", "r-1")

	logger.Info("grouped")

	entries := decode(t, &buf)
	require.Len(t, entries, 1)
	group, ok := entries[0]["req"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "r-1", group["id"])
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelWarn, false)

	logger.Info("dropped")
	logger.Warn("kept")

	entries := decode(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "kept", entries[0]["msg"])
}

type recordingExporter struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (e *recordingExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.records = append(e.records, r.Clone())
	}
	return nil
}

func (e *recordingExporter) Shutdown(context.Context) error   { return nil }
func (e *recordingExporter) ForceFlush(context.Context) error { return nil }

func TestMultiHandler_ExportsToOTel(t *testing.T) {
	exporter := &recordingExporter{}
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exporter)))
	global.SetLoggerProvider(provider)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo, true).WithGroup("sign_in").With("step", "start")
	ctx, sc := spanContext(t)
	logger.WarnContext(ctx, "code rejected", "attempts", 2)

	entries := decode(t, &buf)
	require.Len(t, entries, 1)

	exporter.mu.Lock()
	defer exporter.mu.Unlock()
	require.Len(t, exporter.records, 1)
	rec := exporter.records[0]
	assert.Equal(t, "code rejected", rec.Body().AsString())
	assert.Equal(t, otellog.SeverityWarn, rec.Severity())

	attrs := map[string]string{}
	rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value.String()
		return true
	})
	assert.Equal(t, sc.TraceID().String(), attrs["trace_id"])
	assert.Equal(t, "start", attrs["sign_in.step"])
	assert.Equal(t, "2", attrs["sign_in.attempts"])
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo, false)

	e := echo.New()
	e.Use(RequestLogger(logger, "/healthz"))
	e.GET("/healthz", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/admin", func(c echo.Context) error { return echo.NewHTTPError(http.StatusForbidden) })
	e.GET("/", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	for _, p := range []string{"/healthz", "/", "/admin"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	entries := decode(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "request completed", entries[0]["msg"])
	assert.Equal(t, "/", entries[0]["uri"])
	assert.Equal(t, "request failed", entries[1]["msg"])
	assert.EqualValues(t, http.StatusForbidden, entries[1]["status"])
}
