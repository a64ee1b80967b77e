package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/garyjia/erp-workflow/internal/domain/entity"
)

func TestInitTracer_Disabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), Config{Enabled: false}, zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracer_Enabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), Config{
		Enabled:     true,
		ServiceName: "erp-workflow-test",
		Endpoint:    "127.0.0.1:4318",
		Insecure:    true,
	}, zap.NewNop())
	require.NoError(t, err)

	// Nothing was recorded, so shutdown has nothing to flush.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, shutdown(ctx))
}

func TestSampleRatio(t *testing.T) {
	assert.Equal(t, 1.0, sampleRatio(0))
	assert.Equal(t, 1.0, sampleRatio(2))
	assert.Equal(t, 0.25, sampleRatio(0.25))
}

func TestWorkflowMetrics_Record(t *testing.T) {
	m, err := NewWorkflowMetricsWithMeter(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		m.RecordTransition(context.Background(), entity.ActionApprove, "ok", 15*time.Millisecond)
		m.RecordSelection(context.Background(), entity.KindSalesOrder, "DEFINITION")
	})
}

func TestNewWorkflowMetrics_GlobalProvider(t *testing.T) {
	m, err := NewWorkflowMetrics()
	require.NoError(t, err)
	assert.NotNil(t, m.Transitions)
	assert.NotNil(t, m.TransitionLatency)
	assert.NotNil(t, m.Selections)
}
