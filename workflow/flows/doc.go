// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package flows 提供基于 workflow 引擎的预置多智能体编排模式。

# 概述

每个 Flow 持有一组智能体、执行配置以及运行时工厂，并通过 Run
在一个共享的 workflow.State 上执行。图式编排（轮询、并行、条件、
路由、循环、选择器、子工作流）先构建 workflow.Graph 再交给引擎遍历；
直接式编排（MapReduce、拍卖、投票、评审、协调者/工作者、P2P）
在 Base 提供的重试与并发收集能力之上直接驱动智能体运行时。

# 状态约定

  - input            运行输入
  - execution_config 超时、重试、退避与失败策略
  - task             可选任务描述，各编排有各自的默认值

直接式编排会把中间结果写回状态，例如 map_results、bids、votes、
drafts、worker_results 与 messages。
*/
package flows
