package telemetry

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/recipes/pkg/recipe"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"default", func(*Config) {}, ""},
		{"otlp with endpoint", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "otlp"
			c.Tracing.Endpoint = "collector:4317"
		}, ""},
		{"missing service name", func(c *Config) { c.ServiceName = "" }, "service name"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "invalid log level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "invalid log format"},
		{"bad exporter", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "jaeger"
		}, "invalid trace exporter"},
		{"otlp without endpoint", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "otlp"
		}, "endpoint"},
		{"bad sampling rate", func(c *Config) { c.Tracing.SamplingRate = 2 }, "sampling rate"},
		{"metrics without address", func(c *Config) { c.Metrics.ListenAddress = "" }, "listen address"},
		{"empty event buffer", func(c *Config) { c.Events.BufferSize = 0 }, "buffer size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWriter(LoggingConfig{Level: "debug", Format: "json"}, &buf)

	media := logger.NewComponentLogger("media_handler").Zerolog()
	media.Info().Str("execution_id", "exec-1").Msg("Media imported")

	out := buf.String()
	assert.Contains(t, out, `"component":"media_handler"`)
	assert.Contains(t, out, `"execution_id":"exec-1"`)
	assert.Contains(t, out, `"message":"Media imported"`)
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWriter(LoggingConfig{Level: "warn", Format: "json"}, &buf)

	zl := logger.Zerolog()
	zl.Info().Msg("hidden")
	zl.Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestLoggerUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	zl := NewLoggerWriter(LoggingConfig{Format: "json"}, &buf).Zerolog()

	zl.Debug().Msg("hidden")
	zl.Info().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

// counterValue returns the value of a counter in the metrics registry.
func counterValue(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := m.Gatherer().Gather()
	require.NoError(t, err)

	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			matched := 0
			for _, pair := range metric.GetLabel() {
				if labels[pair.GetName()] == pair.GetValue() {
					matched++
				}
			}
			if matched == len(labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestMetricsRecord(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	require.NoError(t, err)

	m.RecordStepExecuted("Settings", "success", 10*time.Millisecond)
	m.RecordStepExecuted("Settings", "success", 20*time.Millisecond)
	m.RecordStepExecuted("Content", "failed", time.Millisecond)
	m.RecordStepsDrained(3)
	m.RecordStepsDrained(0)
	m.RecordExecutionCompleted("fail", time.Second)
	m.RecordError("no_handler")

	assert.Equal(t, 2.0, counterValue(t, m, "recipes_steps_executed_total", map[string]string{"step": "Settings", "status": "success"}))
	assert.Equal(t, 1.0, counterValue(t, m, "recipes_steps_executed_total", map[string]string{"step": "Content", "status": "failed"}))
	assert.Equal(t, 3.0, counterValue(t, m, "recipes_steps_drained_total", nil))
	assert.Equal(t, 1.0, counterValue(t, m, "recipes_executions_completed_total", map[string]string{"status": "fail"}))
	assert.Equal(t, 1.0, counterValue(t, m, "recipes_errors_total", map[string]string{"kind": "no_handler"}))
}

func TestMetricsHandler(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	require.NoError(t, err)
	m.RecordExecutionSubmitted("cli")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "recipes_executions_submitted_total"))

	server := m.Server()
	require.NotNil(t, server)
	assert.Equal(t, ":9090", server.Addr)
}

func TestDisabledMetricsAreNoops(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	require.NoError(t, err)

	m.RecordStepExecuted("Settings", "success", time.Millisecond)
	m.SetActiveExecutions(3)
	assert.Nil(t, m.Gatherer())
	assert.Nil(t, m.Server())

	var nilMetrics *Metrics
	nilMetrics.RecordStepsDrained(2)
	nilMetrics.RecordError("step_failed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTracerStepSpan(t *testing.T) {
	tracer, err := NewTracer(TracingConfig{Enabled: true, Exporter: "none", SamplingRate: 1, MaxExportBatchSize: 10, ExportTimeout: time.Second}, "recipes", "test", "test")
	require.NoError(t, err)
	defer tracer.Shutdown(context.Background())

	ctx, span := tracer.StartStepSpan(context.Background(), "exec-1", "Settings", 0, 1)
	assert.True(t, span.SpanContext().IsValid())
	assert.NotEmpty(t, TraceID(ctx))
	RecordSuccess(span)
	span.End()
}

func TestNilTracer(t *testing.T) {
	var tracer *Tracer
	ctx, span := tracer.StartStepSpan(context.Background(), "exec-1", "Settings", 0, 1)
	assert.False(t, span.SpanContext().IsValid())
	assert.Empty(t, TraceID(ctx))
	span.End()
	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestEventPublisherAsyncDeliversInOrderOnShutdown(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{
		Enabled:       true,
		EnableAsync:   true,
		BufferSize:    100,
		MaxBatchSize:  10,
		FlushInterval: time.Hour,
	})
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		types []string
	)
	ep.Subscribe(func(event Event) {
		mu.Lock()
		defer mu.Unlock()
		types = append(types, event.Type)
	}, nil)

	ctx := context.Background()
	rc := &recipe.Context{RecipeStep: recipe.RecipeStep{Name: "Settings"}}
	require.NoError(t, ep.RecipeStepExecuting(ctx, "exec-1", rc))
	require.NoError(t, ep.RecipeStepExecuted(ctx, "exec-1", rc))
	require.NoError(t, ep.ExecutionComplete(ctx, "exec-1"))

	require.NoError(t, ep.Shutdown(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{EventTypeStepExecuting, EventTypeStepExecuted, EventTypeExecutionComplete}, types)

	assert.Error(t, ep.Publish(Event{Type: EventTypeExecutionComplete}))
}

func TestEventPublisherBufferFull(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true, EnableAsync: true, BufferSize: 1, MaxBatchSize: 1})
	require.NoError(t, err)

	block := make(chan struct{})
	ep.Subscribe(func(Event) { <-block }, nil)

	// The first event is taken by the worker and blocks it; the second fills
	// the buffer; the third is dropped.
	require.NoError(t, ep.Publish(Event{Type: "a"}))
	require.Eventually(t, func() bool { return len(ep.buffer) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, ep.Publish(Event{Type: "b"}))
	assert.Error(t, ep.Publish(Event{Type: "c"}))

	close(block)
	require.NoError(t, ep.Shutdown(context.Background()))
}

func TestEventFilters(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true})
	require.NoError(t, err)
	ep.AddFilter(FilterByLevel(EventLevelWarning))

	var got []string
	ep.Subscribe(func(event Event) { got = append(got, event.Type) }, FilterByType(EventTypeExecutionFailed))

	require.NoError(t, ep.PublishExecutionSubmitted("exec-1", "Blog", "cli", 3))
	require.NoError(t, ep.PublishExecutionCancelled("exec-1", 2))
	require.NoError(t, ep.PublishExecutionFailed("exec-1", "Content", "Bad schema"))

	assert.Equal(t, []string{EventTypeExecutionFailed}, got)
}

func TestDisabledEventPublisher(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: false})
	require.NoError(t, err)

	called := false
	ep.Subscribe(func(Event) { called = true }, nil)
	require.NoError(t, ep.ExecutionComplete(context.Background(), "exec-1"))
	assert.False(t, called)
	assert.NoError(t, ep.Shutdown(context.Background()))
}
