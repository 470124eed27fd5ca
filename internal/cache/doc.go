// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 cache 提供基于 Redis 的缓存管理能力，以及运行记录的读缓存。

# 概述

Manager 复用调用方持有的 go-redis 客户端（通常来自 redisconn），
提供带键前缀与默认 TTL 的读写接口，并统计本进程的命中情况。
ExecutionStore 把它包装到 workflow.ExecutionStore 之前，用于缓解
客户端轮询 GET /api/v1/runs/{id} 对数据库的压力。

# 核心类型

  - Manager：缓存管理器，提供 Get/Set/Delete/Ping 与
    GetJSON/SetJSON 便捷序列化方法。
  - Config：键前缀与默认 TTL。
  - Stats：命中与未命中次数，HitRate 计算命中率。
  - ExecutionStore：只缓存终态记录，Update 先失效再回写。

# 错误语义

  - ErrCacheMiss / IsCacheMiss：未命中。
  - ErrClosed：Manager 已关闭。
*/
package cache
