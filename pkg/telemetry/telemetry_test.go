package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected default config to be valid, got: %v", err)
	}

	cfg.Logging.Level = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Fatal("Expected error for invalid log level")
	}

	cfg = DefaultConfig()
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "jaeger"
	if err := cfg.Validate(); err == nil {
		t.Fatal("Expected error for unsupported exporter")
	}

	cfg = DefaultConfig()
	cfg.Tracing.Enabled = true
	cfg.Tracing.SamplingRate = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("Expected error for out-of-range sampling rate")
	}
}

func TestParseLevel(t *testing.T) {
	if got := ParseLevel("debug"); got != zerolog.DebugLevel {
		t.Errorf("Expected debug level, got %s", got)
	}
	if got := ParseLevel("nonsense"); got != zerolog.InfoLevel {
		t.Errorf("Expected info level fallback, got %s", got)
	}
}

func TestLoggerJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).With().Timestamp().Logger().Level(ParseLevel("info"))

	logger.Info().Str("resource", "web-vnet").Msg("Resource created")
	logger.Debug().Msg("Should be filtered")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected 1 log line, got %d", len(lines))
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("Expected JSON log line, got error: %v", err)
	}
	if entry["resource"] != "web-vnet" {
		t.Errorf("Expected resource field web-vnet, got %v", entry["resource"])
	}
	if entry["message"] != "Resource created" {
		t.Errorf("Expected message field, got %v", entry["message"])
	}
}

func TestMetricsObserveApply(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: true, Namespace: "groundwork"})
	if err != nil {
		t.Fatalf("Expected metrics, got error: %v", err)
	}

	m.ObserveApply("create", "succeeded", 150*time.Millisecond)
	m.ObserveApply("create", "succeeded", 50*time.Millisecond)
	m.ObserveApply("delete", "failed", 10*time.Millisecond)

	if got := testutil.ToFloat64(m.applyTotal.WithLabelValues("create", "succeeded")); got != 2 {
		t.Errorf("Expected 2 successful creates, got %v", got)
	}
	if got := testutil.ToFloat64(m.applyTotal.WithLabelValues("delete", "failed")); got != 1 {
		t.Errorf("Expected 1 failed delete, got %v", got)
	}
}

func TestMetricsDisabledIsNoop(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("Expected metrics, got error: %v", err)
	}

	m.ObserveApply("create", "succeeded", time.Second)
	m.RecordRunCompleted("succeeded", time.Second)
	m.RecordError("transient")
	m.RecordDriftDetection()
	m.SetResourcesManaged(3)
}

func TestMetricsHandler(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: true, Namespace: "groundwork"})
	if err != nil {
		t.Fatalf("Expected metrics, got error: %v", err)
	}
	m.RecordRunCompleted("succeeded", 2*time.Second)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "groundwork_runs_completed_total") {
		t.Errorf("Expected runs counter in exposition, got:\n%s", body)
	}
}

func TestTracerDisabled(t *testing.T) {
	tracer, err := NewTracer(TracingConfig{Enabled: false}, "groundwork", "test", "test")
	if err != nil {
		t.Fatalf("Expected tracer, got error: %v", err)
	}
	defer func() {
		if err := tracer.Shutdown(context.Background()); err != nil {
			t.Errorf("Expected clean shutdown, got: %v", err)
		}
	}()

	if got := TraceID(context.Background()); got != "" {
		t.Errorf("Expected empty trace ID without a span, got %q", got)
	}
}

func TestTracerExportsSpans(t *testing.T) {
	tracer, err := NewTracer(TracingConfig{
		Enabled:      true,
		Exporter:     "none",
		SamplingRate: 1.0,
	}, "groundwork", "test", "test")
	if err != nil {
		t.Fatalf("Expected tracer, got error: %v", err)
	}
	defer tracer.Shutdown(context.Background())

	ctx, span := tracer.provider.Tracer("test").Start(context.Background(), "test.span")
	defer span.End()

	if got := TraceID(ctx); got == "" {
		t.Error("Expected non-empty trace ID inside a span")
	}
}

func TestTracerUnsupportedExporter(t *testing.T) {
	if _, err := NewTracer(TracingConfig{Enabled: true, Exporter: "jaeger"}, "groundwork", "test", "test"); err == nil {
		t.Fatal("Expected error for unsupported exporter")
	}
}
