// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 agentgraph 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 workflow、flows、store、
cmd 等上层模块提供统一的错误码与 Context 传播约定，以避免循环依赖。

# 核心类型

  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码与 Retryable 标记；
    errors.Is 按错误码匹配，便于与哨兵错误比较
  - Context 传播：WithTraceID / WithRunID / WithWorkflowID / WithNodeID

# 主要能力

  - 错误工具链：NewError / Errorf / IsErrorCode / IsRetryable / GetErrorCode
  - HTTPStatusOf：将错误码映射为 HTTP 响应状态
*/
package types
