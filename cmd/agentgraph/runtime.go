package main

import (
	"context"

	"github.com/BaSui01/agentgraph/config"
	"github.com/BaSui01/agentgraph/workflow"
)

// dryRunRuntime 不调用任何模型，只回显 agent、任务与可用工具。
// 用于在没有接入 agent 运行时的部署中验证拓扑、检查点与事件流
func dryRunRuntime(agent workflow.Agent, tools []workflow.Tool, _ workflow.SharedMemory) (workflow.AgentRuntime, error) {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name())
	}
	return workflow.RuntimeFunc(func(ctx context.Context, task string, input map[string]any) (map[string]any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out := map[string]any{
			"agent":  agent.ID(),
			"task":   task,
			"status": "completed",
		}
		if len(names) > 0 {
			out["tools"] = names
		}
		return out, nil
	}), nil
}

// executionConfig 把引擎配置转换为默认的重试/超时策略
func executionConfig(cfg config.EngineConfig) workflow.ExecutionConfig {
	return workflow.ExecutionConfig{
		TimeoutSeconds:    cfg.TimeoutSeconds,
		RetryCount:        cfg.RetryCount,
		BackoffBase:       cfg.BackoffBase,
		BackoffMultiplier: cfg.BackoffMultiplier,
		CancelOnFailure:   cfg.CancelOnFailure,
	}
}

// baseExecutorOptions 是 run 与 serve 共用的执行器选项
func baseExecutorOptions(cfg config.EngineConfig) []workflow.ExecutorOption {
	return []workflow.ExecutorOption{
		workflow.WithExecutorRuntimeFactory(dryRunRuntime),
		workflow.WithDefaultMaxIterations(cfg.MaxIterations),
		workflow.WithDefaultExecutionConfig(executionConfig(cfg)),
		workflow.WithExecutorStreaming(cfg.Streaming),
	}
}
