package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/pathfinder/api"
	"github.com/BaSui01/pathfinder/planner"
	"github.com/BaSui01/pathfinder/types"
)

// =============================================================================
// 🧭 规划 Handler
// =============================================================================

// PlanService 由 *planner.Planner 实现
type PlanService interface {
	Plan(ctx context.Context, req planner.Request) (*planner.Result, error)
	Stream(ctx context.Context, req planner.Request) (<-chan planner.Event, error)
}

// PlanRecorder 记录规划结果，由 metrics.Collector 实现
type PlanRecorder interface {
	PlanStarted() func()
	RecordPlan(res *planner.Result)
}

// PlanHandler 处理同步、SSE 与 websocket 三种规划请求。
// 每个请求通过 current 取当前的规划器，配置热更新后立即生效。
type PlanHandler struct {
	current        func() PlanService
	recorder       PlanRecorder
	originPatterns []string
	logger         *zap.Logger
}

// NewPlanHandler 创建规划处理器
func NewPlanHandler(current func() PlanService, logger *zap.Logger) *PlanHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlanHandler{current: current, logger: logger.With(zap.String("handler", "plan"))}
}

// WithRecorder 设置规划指标记录器
func (h *PlanHandler) WithRecorder(r PlanRecorder) *PlanHandler {
	h.recorder = r
	return h
}

// WithOriginPatterns 设置 websocket 允许的跨域 Origin
func (h *PlanHandler) WithOriginPatterns(patterns ...string) *PlanHandler {
	h.originPatterns = patterns
	return h
}

// HandlePlan 同步执行规划
// @Summary 规划
// @Tags 规划
// @Accept json
// @Produce json
// @Param request body api.PlanRequest true "规划请求"
// @Success 200 {object} api.Response
// @Failure 400 {object} api.Response
// @Router /api/v1/plan [post]
func (h *PlanHandler) HandlePlan(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	done := h.started()
	defer done()

	res, err := h.current().Plan(r.Context(), req)
	h.record(res, err)
	if err != nil {
		h.writePlanError(w, err)
		return
	}
	WriteSuccess(w, res)
}

// HandleStream 以 SSE 推送进度事件，最后输出 data: [DONE]
// @Summary 流式规划
// @Tags 规划
// @Accept json
// @Produce text/event-stream
// @Param request body api.PlanRequest true "规划请求"
// @Router /api/v1/plan/stream [post]
func (h *PlanHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, types.NewError(types.ErrInternalError, "streaming not supported"), h.logger)
		return
	}

	done := h.started()
	defer done()

	events, err := h.current().Stream(r.Context(), req)
	if err != nil {
		h.record(nil, err)
		h.writePlanError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	for ev := range events {
		h.recordEvent(ev)
		payload, err := json.Marshal(ev)
		if err != nil {
			h.logger.Error("failed to encode event", zap.Error(err))
			return
		}
		if ev.Type == planner.EventError {
			_, _ = w.Write([]byte("event: error\n"))
		}
		_, _ = w.Write([]byte("data: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		flusher.Flush()
	}

	if r.Context().Err() != nil {
		return
	}
	_, _ = w.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()
}

// HandleWebSocket 升级为 websocket：客户端发送一条 PlanRequest，
// 服务端逐条推送事件后以 1000 关闭
// @Summary websocket 规划
// @Tags 规划
// @Router /api/v1/plan/ws [get]
func (h *PlanHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxBodyBytes)

	ctx := r.Context()
	var body api.PlanRequest
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = wsjson.Read(readCtx, conn, &body)
	cancel()
	if err != nil {
		conn.Close(websocket.StatusUnsupportedData, "expected a JSON plan request")
		return
	}
	if verr := ValidateStruct(&body); verr != nil {
		_ = wsjson.Write(ctx, conn, planner.Event{Type: planner.EventError, Error: verr.Message})
		conn.Close(websocket.StatusPolicyViolation, "invalid request")
		return
	}
	req := h.withCaller(ctx, body.ToPlanner())

	done := h.started()
	defer done()

	// 客户端断开时 CloseRead 返回的 ctx 会被取消，规划随之停止
	ctx = conn.CloseRead(ctx)
	events, err := h.current().Stream(ctx, req)
	if err != nil {
		h.record(nil, err)
		_ = wsjson.Write(ctx, conn, planner.Event{Type: planner.EventError, Error: err.Error()})
		conn.Close(websocket.StatusInternalError, "plan failed")
		return
	}
	for ev := range events {
		h.recordEvent(ev)
		if err := wsjson.Write(ctx, conn, ev); err != nil {
			h.logger.Debug("websocket write failed", zap.Error(err))
			return
		}
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

// decode 解析并校验请求体；身份只取自已认证的调用方
func (h *PlanHandler) decode(w http.ResponseWriter, r *http.Request) (planner.Request, bool) {
	if !ValidateContentType(w, r, h.logger) {
		return planner.Request{}, false
	}
	var body api.PlanRequest
	if err := DecodeJSONBody(w, r, &body, h.logger); err != nil {
		return planner.Request{}, false
	}
	body.RawRequest = strings.TrimSpace(body.RawRequest)
	if verr := ValidateStruct(&body); verr != nil {
		WriteError(w, verr, h.logger)
		return planner.Request{}, false
	}
	return h.withCaller(r.Context(), body.ToPlanner()), true
}

// withCaller 将身份绑定到 JWT 调用方。未认证请求不得代替他人发起授权，
// 请求体里的 identity 一律丢弃。
func (h *PlanHandler) withCaller(ctx context.Context, req planner.Request) planner.Request {
	uid, ok := types.UserID(ctx)
	if !ok || uid == "" {
		if req.Identity != "" {
			h.logger.Debug("dropping unauthenticated identity claim")
		}
		req.Identity = ""
		return req
	}
	req.Identity = uid
	return req
}

func (h *PlanHandler) writePlanError(w http.ResponseWriter, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		WriteErrorMessage(w, http.StatusServiceUnavailable, types.ErrServiceUnavailable, "plan cancelled", h.logger)
		return
	}
	writeErr(w, err, h.logger)
}

func (h *PlanHandler) started() func() {
	if h.recorder == nil {
		return func() {}
	}
	return h.recorder.PlanStarted()
}

func (h *PlanHandler) record(res *planner.Result, err error) {
	if h.recorder == nil {
		return
	}
	if err != nil {
		h.recorder.RecordPlan(nil)
		return
	}
	h.recorder.RecordPlan(res)
}

func (h *PlanHandler) recordEvent(ev planner.Event) {
	switch ev.Type {
	case planner.EventResult:
		h.record(ev.Result, nil)
	case planner.EventError:
		h.record(nil, errors.New(ev.Error))
	}
}
