// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package queue 提供工作流排队执行使用的异步工作者队列。

# 概述

Engine 启动固定数量的工作者，从 Backend 中取出任务，按任务
元数据中的 handler_name 查找已注册的处理函数并执行。处理失败时
按线性退避（backoff × 尝试次数）重试，超过最大重试次数后记为失败。

# 后端

  - MemoryBackend：进程内有界通道。
  - RedisBackend：任务以 JSON 形式 RPUSH 到 Redis 列表，工作者通过
    BLPOP 取出，可在多个进程之间分发。

该包仅供内部使用。
*/
package queue
