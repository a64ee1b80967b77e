package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/garyjia/erp-workflow/internal/application/port"
	"github.com/garyjia/erp-workflow/internal/domain/entity"
)

const meterName = "github.com/garyjia/erp-workflow"

// WorkflowMetrics holds the OTel instruments for workflow transitions
type WorkflowMetrics struct {
	Transitions       metric.Int64Counter
	TransitionLatency metric.Float64Histogram
	Selections        metric.Int64Counter
}

// NewWorkflowMetrics creates the instruments on the global meter provider
func NewWorkflowMetrics() (*WorkflowMetrics, error) {
	return NewWorkflowMetricsWithMeter(otel.Meter(meterName))
}

// NewWorkflowMetricsWithMeter creates the instruments on meter
func NewWorkflowMetricsWithMeter(meter metric.Meter) (*WorkflowMetrics, error) {
	transitions, err := meter.Int64Counter("workflow.transitions",
		metric.WithDescription("Workflow operations by action and outcome"),
	)
	if err != nil {
		return nil, err
	}

	latency, err := meter.Float64Histogram("workflow.transition.duration_seconds",
		metric.WithDescription("Time to process a workflow operation including its transaction"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	selections, err := meter.Int64Counter("workflow.selections",
		metric.WithDescription("Workflow selection decisions by document type"),
	)
	if err != nil {
		return nil, err
	}

	return &WorkflowMetrics{
		Transitions:       transitions,
		TransitionLatency: latency,
		Selections:        selections,
	}, nil
}

// RecordTransition counts one operation and records its latency
func (m *WorkflowMetrics) RecordTransition(ctx context.Context, action, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	)
	m.Transitions.Add(ctx, 1, attrs)
	m.TransitionLatency.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordSelection counts one selector decision
func (m *WorkflowMetrics) RecordSelection(ctx context.Context, kind entity.DocumentKind, result string) {
	m.Selections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("document_type", string(kind)),
		attribute.String("result", result),
	))
}

var _ port.WorkflowMetrics = (*WorkflowMetrics)(nil)
