package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 汇总 HTTP、工作流、节点、队列与数据库指标，实现 workflow.Observer
type Collector struct {
	registry *prometheus.Registry

	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 工作流指标
	workflowExecutionsTotal   *prometheus.CounterVec
	workflowExecutionDuration *prometheus.HistogramVec
	nodeExecutionsTotal       *prometheus.CounterVec
	nodeExecutionDuration     *prometheus.HistogramVec

	// 检查点指标
	checkpointOperations *prometheus.CounterVec

	// 队列指标
	queueTasks *prometheus.CounterVec
	queueDepth prometheus.Gauge

	// 数据库指标
	dbConnectionsOpen prometheus.Gauge
	dbConnectionsIdle prometheus.Gauge
	dbConnectionsUsed prometheus.Gauge

	logger *zap.Logger
}

// NewCollector 在独立 Registry 上注册全部指标，并附带 Go 运行时与进程指标
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	c.httpRequestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	c.workflowExecutionsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "workflow_executions_total",
		Help:      "Total number of workflow runs by outcome",
	}, []string{"workflow", "status"})

	c.workflowExecutionDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "workflow_execution_duration_seconds",
		Help:      "Workflow run duration in seconds",
		Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	}, []string{"workflow"})

	c.nodeExecutionsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "node_executions_total",
		Help:      "Total number of node executions by outcome",
	}, []string{"workflow", "node", "node_type", "status"})

	c.nodeExecutionDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "node_execution_duration_seconds",
		Help:      "Node execution duration in seconds",
		Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30, 120},
	}, []string{"workflow", "node_type"})

	c.checkpointOperations = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkpoint_operations_total",
		Help:      "Checkpoint store operations by backend and outcome",
	}, []string{"backend", "operation", "status"})

	c.queueTasks = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queue_tasks_total",
		Help:      "Queued workflow tasks by outcome",
	}, []string{"outcome"})

	c.queueDepth = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Tasks waiting in the queue backend",
	})

	c.dbConnectionsOpen = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_connections_open",
		Help:      "Number of open database connections",
	})
	c.dbConnectionsIdle = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_connections_idle",
		Help:      "Number of idle database connections",
	})
	c.dbConnectionsUsed = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_connections_in_use",
		Help:      "Number of database connections in use",
	})

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// Registry 返回底层 Registry
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler 返回 /metrics 处理器
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// =============================================================================
// 🎯 HTTP 指标
// =============================================================================

// RecordHTTPRequest 记录一次 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 🔀 工作流指标
// =============================================================================

// RecordWorkflowExecution 实现 workflow.Observer，duration 单位为秒
func (c *Collector) RecordWorkflowExecution(workflowID, status string, duration float64) {
	c.workflowExecutionsTotal.WithLabelValues(workflowID, status).Inc()
	c.workflowExecutionDuration.WithLabelValues(workflowID).Observe(duration)
}

// RecordNodeExecution 实现 workflow.Observer
func (c *Collector) RecordNodeExecution(workflowID, nodeID, nodeType, status string, duration float64) {
	c.nodeExecutionsTotal.WithLabelValues(workflowID, nodeID, nodeType, status).Inc()
	c.nodeExecutionDuration.WithLabelValues(workflowID, nodeType).Observe(duration)
}

// RecordCheckpointOperation 记录检查点存取
func (c *Collector) RecordCheckpointOperation(backend, operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.checkpointOperations.WithLabelValues(backend, operation, status).Inc()
}

// =============================================================================
// 📬 队列与数据库
// =============================================================================

// QueueSnapshot 与 queue.Stats 字段一致的快照
type QueueSnapshot struct {
	Queued    int64
	Completed int64
	Failed    int64
	Retried   int64
}

// RecordQueue 以计数快照更新队列指标。计数器只增加差值
func (c *Collector) RecordQueue(prev, cur QueueSnapshot) {
	if d := cur.Completed - prev.Completed; d > 0 {
		c.queueTasks.WithLabelValues("completed").Add(float64(d))
	}
	if d := cur.Failed - prev.Failed; d > 0 {
		c.queueTasks.WithLabelValues("failed").Add(float64(d))
	}
	if d := cur.Retried - prev.Retried; d > 0 {
		c.queueTasks.WithLabelValues("retried").Add(float64(d))
	}
	if cur.Queued >= 0 {
		c.queueDepth.Set(float64(cur.Queued))
	}
}

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(open, idle, inUse int) {
	c.dbConnectionsOpen.Set(float64(open))
	c.dbConnectionsIdle.Set(float64(idle))
	c.dbConnectionsUsed.Set(float64(inUse))
}

func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
