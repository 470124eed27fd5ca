package api

import (
	"github.com/BaSui01/agentgraph/types"
	"github.com/BaSui01/agentgraph/workflow"
)

// =============================================================================
// 运行请求类型
// =============================================================================

// RunRequest 是 POST /api/v1/runs 的请求体。
// @Description 工作流运行请求
type RunRequest struct {
	// 工作流定义
	Workflow workflow.WorkflowDefinition `json:"workflow"`
	// 写入 state["input"] 的输入
	Input any `json:"input,omitempty"`
	// 初始状态，例如 execution_config
	State map[string]any `json:"state,omitempty"`
	// 运行 ID，为空时由服务端生成
	RunID string `json:"run_id,omitempty" example:"6f1c..."`
	// 全局迭代预算
	MaxIterations int `json:"max_iterations,omitempty" example:"100"`
	// 从该 checkpoint 恢复
	ResumeFrom string `json:"resume_from,omitempty"`
	// 运行结束后保存的 checkpoint 名
	CheckpointName string `json:"checkpoint_name,omitempty"`
	// 为 Agent 提供共享内存
	SharedMemory bool `json:"shared_memory,omitempty"`
	// 异步执行：立即返回 run_id，结果通过查询或事件流获取
	Async bool `json:"async,omitempty"`
}

// Validate 校验请求
func (r *RunRequest) Validate() error {
	if err := r.Workflow.Validate(); err != nil {
		return err
	}
	if r.MaxIterations < 0 {
		return types.NewError(types.ErrInvalidRequest, "max_iterations must not be negative")
	}
	for _, name := range []string{r.ResumeFrom, r.CheckpointName} {
		if name == "" {
			continue
		}
		if err := workflow.ValidateCheckpointName(name); err != nil {
			return err
		}
	}
	return nil
}

// ExecuteRequest 转换为执行器请求
func (r *RunRequest) ExecuteRequest() workflow.ExecuteRequest {
	req := workflow.RequestFromDefinition(&r.Workflow, r.Input)
	req.State = r.State
	req.RunID = r.RunID
	req.MaxIterations = r.MaxIterations
	req.ResumeFrom = r.ResumeFrom
	req.CheckpointName = r.CheckpointName
	req.SharedMemory = r.SharedMemory
	return req
}

// RunAccepted 是异步运行的响应
// @Description 已受理的异步运行
type RunAccepted struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
	// 事件流地址
	EventsURL string `json:"events_url"`
}
