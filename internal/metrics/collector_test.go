package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/workflow"
)

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestCollector_RecordHTTPRequest(t *testing.T) {
	c := NewCollector("test", zap.NewNop())

	c.RecordHTTPRequest("GET", "/api/v1/runs", 200, 100*time.Millisecond)
	c.RecordHTTPRequest("GET", "/api/v1/runs", 201, 50*time.Millisecond)
	c.RecordHTTPRequest("POST", "/api/v1/runs", 503, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("GET", "/api/v1/runs", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/api/v1/runs", "5xx")))
}

func TestCollector_ObservesGraphRuns(t *testing.T) {
	c := NewCollector("test", zap.NewNop())

	g := workflow.NewGraph("pipeline", workflow.WithObserver(c))
	require.NoError(t, g.AddNode(workflow.InputNode("in")))
	require.NoError(t, g.AddNode(workflow.OutputNode("out")))
	require.NoError(t, g.AddEdge(workflow.NewEdge("in", "out")))

	_, err := g.Run(context.Background(), map[string]any{"input": "hello"})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.workflowExecutionsTotal.WithLabelValues("pipeline", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.nodeExecutionsTotal.WithLabelValues("pipeline", "in", "input", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.nodeExecutionsTotal.WithLabelValues("pipeline", "out", "output", "success")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.workflowExecutionDuration))
}

func TestCollector_InstrumentCheckpointStore(t *testing.T) {
	c := NewCollector("test", zap.NewNop())
	s := c.InstrumentCheckpointStore("file", workflow.NewFileCheckpointStore(t.TempDir()))
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, &workflow.Checkpoint{Name: "cp", Workflow: "w", State: map[string]any{}}))
	_, err := s.Load(ctx, "cp")
	require.NoError(t, err)
	_, err = s.Load(ctx, "missing")
	require.Error(t, err)
	names, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"cp"}, names)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.checkpointOperations.WithLabelValues("file", "save", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.checkpointOperations.WithLabelValues("file", "load", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.checkpointOperations.WithLabelValues("file", "load", "error")))
}

func TestCollector_RecordQueue(t *testing.T) {
	c := NewCollector("test", zap.NewNop())

	c.RecordQueue(QueueSnapshot{}, QueueSnapshot{Queued: 4, Completed: 3, Failed: 1})
	c.RecordQueue(QueueSnapshot{Queued: 4, Completed: 3, Failed: 1}, QueueSnapshot{Queued: -1, Completed: 5, Failed: 1, Retried: 2})

	assert.Equal(t, 5.0, testutil.ToFloat64(c.queueTasks.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.queueTasks.WithLabelValues("failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.queueTasks.WithLabelValues("retried")))
	// An unknown depth leaves the last value in place.
	assert.Equal(t, 4.0, testutil.ToFloat64(c.queueDepth))
}

func TestCollector_RecordDBConnections(t *testing.T) {
	c := NewCollector("test", zap.NewNop())
	c.RecordDBConnections(7, 3, 4)
	assert.Equal(t, 7.0, testutil.ToFloat64(c.dbConnectionsOpen))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.dbConnectionsIdle))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.dbConnectionsUsed))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("agentgraph", zap.NewNop())
	c.RecordWorkflowExecution("pipeline", "error", 0.2)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `agentgraph_workflow_executions_total{status="error",workflow="pipeline"} 1`), body)
	assert.Contains(t, body, "go_goroutines")
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "2xx", statusCode(204))
	assert.Equal(t, "3xx", statusCode(302))
	assert.Equal(t, "4xx", statusCode(429))
	assert.Equal(t, "5xx", statusCode(500))
	assert.Equal(t, "unknown", statusCode(0))
}
