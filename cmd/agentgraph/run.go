package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/workflow"
)

// =============================================================================
// ▶️ run 命令
// =============================================================================

// runWorkflow 执行一个 JSON/YAML 工作流定义并把结果以 JSON 写到 out
func runWorkflow(args []string, out io.Writer) error {
	fset := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fset.String("config", "", "Path to config file")
	input := fset.String("input", "", "Input value (JSON, falls back to a plain string)")
	checkpointDir := fset.String("checkpoint-dir", "", "Directory for file checkpoints")
	resume := fset.String("resume", "", "Checkpoint name to resume from")
	save := fset.String("save", "", "Checkpoint name to save after the run")
	maxIterations := fset.Int("max-iterations", 0, "Global iteration budget (0 uses the config)")
	runID := fset.String("run-id", "", "Run id (generated when empty)")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if fset.NArg() != 1 {
		return errors.New("usage: agentgraph run [options] <definition.json|yaml>")
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	// stdout 只输出结果
	cfg.Log.OutputPaths = []string{"stderr"}
	logger, _ := initLogger(cfg.Log)
	defer logger.Sync()

	def, err := workflow.LoadDefinitionFile(fset.Arg(0))
	if err != nil {
		return err
	}
	if err := def.Validate(); err != nil {
		return err
	}

	req := workflow.RequestFromDefinition(def, parseInput(*input))
	req.RunID = *runID
	req.MaxIterations = *maxIterations
	req.ResumeFrom = *resume
	req.CheckpointName = *save
	req.CheckpointDir = *checkpointDir
	if req.CheckpointDir == "" && (req.ResumeFrom != "" || req.CheckpointName != "") {
		req.CheckpointDir = cfg.Engine.CheckpointDir
	}

	opts := append(baseExecutorOptions(cfg.Engine), workflow.WithExecutorLogger(logger))
	executor := workflow.NewWorkflowExecutor(opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("running workflow", zap.String("workflow", def.Name), zap.String("file", fset.Arg(0)))
	res := executor.Execute(ctx, req)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if res.Status != workflow.RunStatusSuccess {
		return fmt.Errorf("workflow %s failed: %s", def.Name, res.Error)
	}
	return nil
}

// parseInput 优先按 JSON 解析，失败时作为普通字符串
func parseInput(raw string) any {
	if raw == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}
