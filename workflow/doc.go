// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package workflow 提供基于图的多智能体工作流引擎。

# 概述

workflow 包实现了 agentgraph 的核心执行模型：一张由节点与有向边组成的图，
所有节点共享同一个 State。执行从入口节点开始深度优先遍历，支持条件边、
并行扇出、优先级排序、全局迭代预算、重试与超时、检查点恢复以及子图嵌套。

# 核心接口与类型

  - Graph / Node / Edge  — 图结构，节点类型包括 input、output、agent、tool、
    condition、subgraph、human、loop
  - State                — 并发安全的共享状态，含 input / iterations /
    node_events / node_results 等约定键
  - ExecutionConfig      — 重试、超时、退避与扇出失败策略，从
    state["execution_config"] 读取
  - Checkpoint / CheckpointStore — 状态与节点状态快照，FileCheckpointStore
    以 checkpoint_{name}.json 持久化
  - WorkflowDefinition   — JSON / YAML 工作流定义与校验
  - WorkflowExecutor     — 从定义构建图并执行，记录到 ExecutionStore，
    可经 TaskQueue 异步执行
  - Observer / Visitor   — 指标回调与访问拦截（如 ReenterOnce）

# 主要能力

  - 执行语义：已完成节点跳过、失败包装为 ExecutionError、并行分支
    fail-fast 或 best-effort
  - 可视化：ToMermaid / ToDOT / DrawASCII / Structure / ToDict
  - 追踪：OpenTelemetry span（workflow.execute / workflow.node）
*/
package workflow
