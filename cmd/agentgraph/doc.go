// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 AgentGraph 服务端与命令行入口。

# 概述

cmd/agentgraph 是工作流执行引擎的可执行入口，提供 HTTP API、
本地执行、数据库迁移、健康检查和版本查询等子命令。程序支持
YAML 配置与 .env 文件加载、结构化日志（zap）、Prometheus 指标、
OpenTelemetry 追踪以及日志级别热更新。

# 核心类型

  - Server      — 主服务器，管理存储、任务队列、HTTP 与 Metrics 双端口及优雅关闭
  - Middleware  — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - AuthConfig  — API Key / JWT 认证配置

# 主要能力

  - 子命令：serve、run、migrate、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、
    RequestLogger、MetricsMiddleware、RateLimiter（基于 IP）、Auth
  - 存储后端：检查点 file / redis / sql，执行记录 memory / sql
  - 任务队列：memory 或 redis 后端，worker 数与重试次数可配置
  - 优雅关闭：信号监听 → 关闭 HTTP → 停止后台任务 → 停止队列 → 关闭 Metrics → 关闭连接
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
