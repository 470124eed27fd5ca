package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/api"
	"github.com/BaSui01/agentgraph/types"
	"github.com/BaSui01/agentgraph/workflow"
)

// =============================================================================
// 🏃 运行 Handler
// =============================================================================

// RunExecutor 是 RunHandler 依赖的执行器能力
type RunExecutor interface {
	Execute(ctx context.Context, req workflow.ExecuteRequest) *workflow.ExecuteResult
	ExecuteQueued(ctx context.Context, req workflow.ExecuteRequest) (string, error)
}

const defaultListLimit = 50

// RunHandler 处理工作流运行的创建、查询与事件流
type RunHandler struct {
	executor RunExecutor
	store    workflow.ExecutionStore
	hub      *EventHub
	logger   *zap.Logger
}

// NewRunHandler 创建运行处理器
func NewRunHandler(executor RunExecutor, store workflow.ExecutionStore, hub *EventHub, logger *zap.Logger) *RunHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunHandler{
		executor: executor,
		store:    store,
		hub:      hub,
		logger:   logger.With(zap.String("handler", "runs")),
	}
}

// Register 注册路由
func (h *RunHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/runs", h.HandleCreate)
	mux.HandleFunc("GET /api/v1/runs", h.HandleList)
	mux.HandleFunc("GET /api/v1/runs/{id}", h.HandleGet)
	mux.HandleFunc("GET /api/v1/runs/{id}/events", h.HandleEvents)
}

// HandleCreate 处理 POST /api/v1/runs
// @Summary 执行工作流
// @Tags 运行
// @Accept json
// @Produce json
// @Param request body api.RunRequest true "运行请求"
// @Success 200 {object} Response "同步运行成功"
// @Success 202 {object} Response "异步运行已受理"
// @Failure 400 {object} Response "请求无效"
// @Failure 422 {object} Response "运行失败"
// @Router /api/v1/runs [post]
func (h *RunHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req api.RunRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	execReq := req.ExecuteRequest()
	if req.Async {
		runID, err := h.executor.ExecuteQueued(r.Context(), execReq)
		if err != nil {
			WriteError(w, r, err, h.logger)
			return
		}
		h.logger.Info("run queued", zap.String("run_id", runID), zap.String("workflow", req.Workflow.Name))
		WriteSuccess(w, r, http.StatusAccepted, api.RunAccepted{
			RunID:     runID,
			Status:    workflow.RunStatusQueued,
			EventsURL: "/api/v1/runs/" + runID + "/events",
		})
		return
	}

	result := h.executor.Execute(r.Context(), execReq)
	if result.Status != workflow.RunStatusSuccess {
		WriteJSON(w, http.StatusUnprocessableEntity, Response{
			Success: false,
			Data:    result,
			Error: &ErrorInfo{
				Code:    string(types.ErrNodeExecution),
				Message: result.Error,
			},
			RequestID: requestID(r),
		})
		return
	}
	WriteSuccess(w, r, http.StatusOK, result)
}

// HandleGet 处理 GET /api/v1/runs/{id}
// @Summary 查询运行记录
// @Tags 运行
// @Produce json
// @Param id path string true "运行 ID"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /api/v1/runs/{id} [get]
func (h *RunHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, http.StatusOK, rec)
}

// HandleList 处理 GET /api/v1/runs?limit=N
// @Summary 列出最近的运行
// @Tags 运行
// @Produce json
// @Param limit query int false "最大条数"
// @Success 200 {object} Response
// @Router /api/v1/runs [get]
func (h *RunHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			WriteError(w, r, types.NewError(types.ErrInvalidRequest, "limit must be a positive integer"), h.logger)
			return
		}
		limit = n
	}
	records, err := h.store.List(r.Context(), limit)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, http.StatusOK, records)
}

// HandleEvents 处理 GET /api/v1/runs/{id}/events，将节点事件以 JSON 文本帧推送，
// 运行结束后发送 run_completed 并正常关闭连接
func (h *RunHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	events, cancel := h.hub.Subscribe(runID)
	defer cancel()

	// 客户端只读；CloseRead 在对端关闭时取消 ctx
	ctx := conn.CloseRead(r.Context())

	// 订阅之后再检查记录，已结束的运行直接返回终态
	if rec, err := h.store.Get(ctx, runID); err == nil && finished(rec.Status) {
		final := map[string]any{"run_id": runID, "event": EventRunCompleted, "status": rec.Status}
		if rec.Error != "" {
			final["error"] = rec.Error
		}
		if err := wsjson.Write(ctx, conn, final); err == nil {
			conn.Close(websocket.StatusNormalClosure, "run finished")
		}
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "run finished")
				return
			}
			if err := wsjson.Write(ctx, conn, ev); err != nil {
				h.logger.Debug("websocket write failed", zap.String("run_id", runID), zap.Error(err))
				return
			}
		}
	}
}

func finished(status string) bool {
	return status == workflow.RunStatusSuccess || status == workflow.RunStatusError
}
