package api

import (
	"time"

	"github.com/BaSui01/pathfinder/planner"
)

// =============================================================================
// 通用响应
// =============================================================================

// Response 统一 API 响应结构
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// ErrorInfo 错误信息
type ErrorInfo struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
	HTTPStatus int    `json:"-"`
}

// =============================================================================
// 规划请求
// =============================================================================

// PlanRequest 规划请求体
// @Description 自然语言的出行需求，可附带覆盖项
type PlanRequest struct {
	// 原始需求，例如 "cozy cafe for 4 near Kensington Market"
	RawRequest string `json:"raw_request" validate:"required,max=2000" example:"cheap ramen for 3 in Toronto"`
	// 仅为兼容保留；实际身份只取自 JWT，未认证时被忽略
	Identity string `json:"identity,omitempty" validate:"omitempty,max=256"`
	// 覆盖解析出的意图字段
	Overrides *planner.IntentOverrides `json:"overrides,omitempty"`
}

// ToPlanner 转换为 planner.Request
func (r PlanRequest) ToPlanner() planner.Request {
	return planner.Request{RawRequest: r.RawRequest, Identity: r.Identity, Overrides: r.Overrides}
}

// =============================================================================
// 风险日志
// =============================================================================

// RiskQuery 风险日志查询参数
type RiskQuery struct {
	VenueID  string `validate:"omitempty,max=128"`
	RiskType string `validate:"omitempty,max=64"`
	Limit    int    `validate:"min=0,max=50"`
}

// RiskListResponse 风险日志列表
type RiskListResponse struct {
	Risks []RiskRecord `json:"risks"`
	Count int          `json:"count"`
}

// RiskRecord 一条风险记录
type RiskRecord struct {
	ID           uint      `json:"id"`
	VenueID      string    `json:"venue_id"`
	VenueName    string    `json:"venue_name"`
	RiskType     string    `json:"risk_type"`
	Description  string    `json:"description"`
	Severity     string    `json:"severity"`
	LoggedAt     time.Time `json:"logged_at"`
	QueryContext string    `json:"query_context,omitempty"`
}
