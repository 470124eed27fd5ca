// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package store 提供 workflow.CheckpointStore 与 workflow.ExecutionStore
的持久化后端。

# 后端

  - RedisCheckpointStore：检查点以 JSON 字符串保存在 Redis 中，
    并用一个集合索引所有名称，可选 TTL。
  - GormCheckpointStore：检查点保存在 workflow_checkpoints 表中。
  - GormExecutionStore：运行记录保存在 agentgraph_executions 表中，
    更新在事务内完成读改写。

表结构由 internal/migration 中的迁移脚本创建，测试中可使用
AutoMigrate 在内存 SQLite 上建表。
*/
package store
