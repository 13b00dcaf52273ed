// Package observability provides OpenTelemetry instrumentation for tracing and metrics.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics initializes the OpenTelemetry metrics provider with a Prometheus exporter.
// It returns the HTTP handler for the /metrics endpoint and a shutdown function.
// The shutdown function should be called on application exit for graceful cleanup.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := metric.NewMeterProvider(
		metric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	return promhttp.Handler(), provider.Shutdown, nil
}

// QueueDepths reports the current size of the two work queues, used by the
// observable gauges. Implemented by the postgres store.
type QueueDepths interface {
	CountFileQueue(ctx context.Context) (int64, error)
	CountCallbackQueue(ctx context.Context) (int64, error)
}

// Metrics holds the domain instruments. Created once per process from the
// global meter provider after InitMetrics.
type Metrics struct {
	filesProcessed   otelmetric.Int64Counter
	filesDispatched  otelmetric.Int64Counter
	executionsFinal  otelmetric.Int64Counter
	toolStepDuration otelmetric.Float64Histogram
}

// NewMetrics registers the domain instruments. When depths is non-nil, two
// observable gauges track queue sizes so backlogs show up in Prometheus.
func NewMetrics(depths QueueDepths) (*Metrics, error) {
	meter := otel.Meter("docflow")

	filesProcessed, err := meter.Int64Counter("docflow_files_processed_total",
		otelmetric.WithDescription("Per-file terminal outcomes, labeled by status"))
	if err != nil {
		return nil, err
	}
	filesDispatched, err := meter.Int64Counter("docflow_files_dispatched_total",
		otelmetric.WithDescription("Files enqueued for processing, labeled dispatched or skipped"))
	if err != nil {
		return nil, err
	}
	executionsFinal, err := meter.Int64Counter("docflow_executions_finalized_total",
		otelmetric.WithDescription("Workflow executions reaching a terminal status"))
	if err != nil {
		return nil, err
	}
	toolStepDuration, err := meter.Float64Histogram("docflow_tool_step_duration_seconds",
		otelmetric.WithDescription("Wall-clock duration of one tool chain step"))
	if err != nil {
		return nil, err
	}

	if depths != nil {
		fileDepth, err := meter.Int64ObservableGauge("docflow_file_queue_depth")
		if err != nil {
			return nil, err
		}
		callbackDepth, err := meter.Int64ObservableGauge("docflow_callback_queue_depth")
		if err != nil {
			return nil, err
		}
		_, err = meter.RegisterCallback(func(ctx context.Context, o otelmetric.Observer) error {
			if n, err := depths.CountFileQueue(ctx); err == nil {
				o.ObserveInt64(fileDepth, n)
			}
			if n, err := depths.CountCallbackQueue(ctx); err == nil {
				o.ObserveInt64(callbackDepth, n)
			}
			return nil
		}, fileDepth, callbackDepth)
		if err != nil {
			return nil, err
		}
	}

	return &Metrics{
		filesProcessed:   filesProcessed,
		filesDispatched:  filesDispatched,
		executionsFinal:  executionsFinal,
		toolStepDuration: toolStepDuration,
	}, nil
}

// RecordFileProcessed counts one terminal per-file outcome.
func (m *Metrics) RecordFileProcessed(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.filesProcessed.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("status", status)))
}

// RecordDispatch counts dispatched and skipped files for one execution.
func (m *Metrics) RecordDispatch(ctx context.Context, dispatched, skipped int) {
	if m == nil {
		return
	}
	m.filesDispatched.Add(ctx, int64(dispatched), otelmetric.WithAttributes(attribute.String("outcome", "dispatched")))
	if skipped > 0 {
		m.filesDispatched.Add(ctx, int64(skipped), otelmetric.WithAttributes(attribute.String("outcome", "skipped")))
	}
}

// RecordExecutionFinalized counts one execution reaching a terminal status.
func (m *Metrics) RecordExecutionFinalized(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.executionsFinal.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("status", status)))
}

// RecordToolStep records the duration of one chain step.
func (m *Metrics) RecordToolStep(ctx context.Context, toolID string, d time.Duration) {
	if m == nil {
		return
	}
	m.toolStepDuration.Record(ctx, d.Seconds(), otelmetric.WithAttributes(attribute.String("tool_id", toolID)))
}
