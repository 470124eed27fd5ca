// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 migration 管理工作流持久化表（workflow_checkpoints 与
agentgraph_executions）的版本化 Schema，基于 golang-migrate 实现，
支持 PostgreSQL、MySQL 与 SQLite。

# 概述

各方言的 SQL 文件通过 embed.FS 内嵌，DefaultMigrator 以 iofs 源驱动
加载并执行。SQLite 使用纯 Go 驱动打开连接，无需 CGO。CLI 为
`agentgraph migrate` 子命令提供格式化输出。

# 核心类型

  - Migrator / DefaultMigrator：Up、Down、DownAll、Steps、Goto、Force、
    Version、Status、Info、Close。
  - Config：方言、连接 URL、版本表名与锁超时。
  - CLI：Run 按子命令名分发并输出结果。
  - NewMigratorFromConfig：由 database.Config 构造迁移器。
*/
package migration
