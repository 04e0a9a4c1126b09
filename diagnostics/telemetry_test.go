package diagnostics

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestTelemetry() (*Telemetry, *tracetest.SpanRecorder, *observer.ObservedLogs) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	core, logs := observer.New(zap.WarnLevel)
	return NewTelemetry(tp, zap.New(core)), recorder, logs
}

func TestTelemetryNodeSpans(t *testing.T) {
	sink, recorder, logs := newTestTelemetry()

	ctx, opScope := sink.StartOperation(context.Background(), "Q", "query")
	node := NodeInfo{ID: 2, Kind: "Operation", Source: "inventory", Path: "$.topProducts"}
	nodeCtx, nodeScope := sink.StartNode(ctx, node)

	assert.Equal(t, opScope.TraceID(), nodeScope.TraceID())
	assert.NotEqual(t, opScope.SpanID(), nodeScope.SpanID())

	sink.NodeError(nodeCtx, node, errors.New("boom"))
	nodeScope.End(StatusFailed, time.Millisecond)
	opScope.End(StatusSuccess, 2*time.Millisecond)

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	nodeSpan := spans[0]
	assert.Equal(t, "fusion.node", nodeSpan.Name())
	assert.Equal(t, codes.Error, nodeSpan.Status().Code)
	assert.Equal(t, spans[1].SpanContext().SpanID(), nodeSpan.Parent().SpanID())
	assert.Contains(t, nodeSpan.Attributes(), attribute.String("fusion.source", "inventory"))
	assert.Contains(t, nodeSpan.Attributes(), attribute.Int("fusion.node.id", 2))
	require.Len(t, nodeSpan.Events(), 1)
	assert.Equal(t, "exception", nodeSpan.Events()[0].Name)

	assert.Equal(t, "fusion.operation", spans[1].Name())
	assert.Equal(t, codes.Unset, spans[1].Status().Code)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "execution node failed", entry.Message)
	assert.Equal(t, "inventory", entry.ContextMap()["source"])
}

func TestNoopSink(t *testing.T) {
	ctx := context.Background()
	got, scope := Noop{}.StartNode(ctx, NodeInfo{})
	assert.Equal(t, ctx, got)
	assert.Empty(t, scope.SpanID())
	scope.End(StatusSuccess, 0)
}

func TestOperationPlanTraceJSON(t *testing.T) {
	tr := NewOperationPlanTrace("gateway", "test")
	tr.TraceID = "abc"
	tr.Duration = 3
	tr.AddNode(1, &NodeTrace{SpanID: "s1", Duration: 2, Status: StatusSuccess, VariableSets: []map[string]interface{}{{"id": "1"}}})
	tr.AddNode(2, &NodeTrace{Status: StatusSkipped})

	b, err := json.Marshal(tr)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"traceId": "abc",
		"appId": "gateway",
		"environment": "test",
		"duration": 3,
		"nodes": {
			"1": {"spanId": "s1", "duration": 2, "status": "Success", "variableSets": [{"id": "1"}]},
			"2": {"duration": 0, "status": "Skipped"}
		}
	}`, string(b))
}

func TestSetupWithoutEndpoint(t *testing.T) {
	tp, shutdown, err := Setup(context.Background(), "", "fusion", "test")
	require.NoError(t, err)
	assert.NotNil(t, tp)
	assert.NoError(t, shutdown(context.Background()))
}
