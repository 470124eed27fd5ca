// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package redisconn 管理 agentgraph 进程共享的 Redis 连接。

Manager 负责建立连接、后台健康检查与优雅关闭，并向 Redis 检查点
存储与分布式任务队列提供同一个 go-redis 客户端。启用 TLS 时使用
tlsutil 中的加固配置。

该包仅供内部使用。
*/
package redisconn
