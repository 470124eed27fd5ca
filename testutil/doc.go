// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 AgentGraph 测试的共享工具和辅助函数。

# 概述

testutil 包为各包的单元测试提供统一的辅助能力，避免重复实现
相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertJSONEqual / AssertEventuallyTrue / AssertEventuallyEqual
  - 等待工具: WaitFor / WaitForChannel
  - 数据工具: MustJSON / MustParseJSON / WriteFile

# 子包

  - testutil/mocks: MockRuntime（可编排的 agent 运行时，支持流式与错误注入）、
    MockTool（工具）、MockSharedMemory（共享内存），均记录调用
  - testutil/fixtures: 预置工作流定义（流水线、分支、循环、工具节点）
    及其 YAML 文本

# 使用示例

	ctx := testutil.TestContext(t)
	rt := mocks.NewMockRuntime().WithResponse("writer", map[string]any{"draft": "v1"})
	exec := workflow.NewWorkflowExecutor(workflow.WithExecutorRuntimeFactory(rt.Factory()))
	res := exec.Execute(ctx, workflow.RequestFromDefinition(fixtures.Pipeline(), "topic"))
*/
package testutil
