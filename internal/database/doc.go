// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 database 负责打开工作流持久化所用的 SQL 数据库，并管理其连接池。

# 概述

Open 根据 Config.Driver 选择 GORM 方言（postgres、mysql 或纯 Go 的
sqlite），应用连接池参数并探活，返回 PoolManager。PoolManager 持有
GORM 实例与底层 sql.DB，后台定时健康检查，并提供带重试的事务执行，
供执行记录存储在死锁或序列化失败时自动重放。

# 核心类型

  - Config：驱动、DSN 或分项连接参数，以及连接池配置。
  - PoolManager：连接池管理器，提供 DB()、Ping()、Stats()、Close()。
  - PoolConfig：最大空闲/打开连接数、生命周期与健康检查间隔。
  - TransactionFunc：事务回调函数类型。
*/
package database
