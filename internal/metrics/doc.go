// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 metrics 基于 Prometheus 采集服务运行指标。

Collector 在独立 Registry 上注册 HTTP 请求、工作流运行、节点执行、
检查点存取、任务队列与数据库连接池指标，并实现 workflow.Observer，
可直接通过 WithExecutorObserver 注入执行器。Handler 返回 /metrics
端点；InstrumentCheckpointStore 为任意检查点存储包一层计数。
*/
package metrics
