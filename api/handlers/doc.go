// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 AgentGraph HTTP API 的请求处理器实现。

# 概述

handlers 包实现工作流运行的提交、查询、事件推送与健康检查，
所有 Handler 均遵循标准 net/http 接口，路由使用 Go 1.22 的方法与路径模式。

# 核心类型

  - RunHandler       — 同步/异步提交运行、查询运行记录、websocket 事件流
  - EventHub         — 按 run_id 将节点事件分发给订阅者
  - NotifyingStore   — 运行记录进入终态时推送 run_completed 并关闭订阅
  - HealthHandler    — 服务健康检查（/health, /healthz, /ready, /version）
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码，支持 Hijack

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON
  - 请求解码：DecodeJSONBody（1 MB 限制 + 严格模式）
  - types.ErrorCode → HTTP 状态码映射
  - 事件流：执行器默认回调 → EventHub → websocket 文本帧
*/
package handlers
