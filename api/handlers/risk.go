package handlers

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/BaSui01/pathfinder/api"
	"github.com/BaSui01/pathfinder/risklog"
	"github.com/BaSui01/pathfinder/types"
)

// RiskStore 风险日志的只读视图，由 *risklog.Store 实现
type RiskStore interface {
	Query(ctx context.Context, f risklog.Filter) ([]risklog.Record, error)
	Summarize(ctx context.Context, venueID string) (*risklog.Summary, error)
}

// RiskHandler 风险日志查询
type RiskHandler struct {
	store  RiskStore
	logger *zap.Logger
}

// NewRiskHandler store 为 nil 时所有请求返回 503
func NewRiskHandler(store RiskStore, logger *zap.Logger) *RiskHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RiskHandler{store: store, logger: logger.With(zap.String("handler", "risk"))}
}

// HandleList 按场所与类型查询，最新在前
// @Summary 风险日志
// @Tags 风险
// @Produce json
// @Param venue_id query string false "场所 ID"
// @Param risk_type query string false "风险类型"
// @Param limit query int false "最多 50 条"
// @Success 200 {object} api.RiskListResponse
// @Router /api/v1/risks [get]
func (h *RiskHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	q := r.URL.Query()
	query := api.RiskQuery{VenueID: q.Get("venue_id"), RiskType: q.Get("risk_type")}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			WriteError(w, types.NewInvalidRequestError("limit must be an integer"), h.logger)
			return
		}
		query.Limit = n
	}
	if verr := ValidateStruct(&query); verr != nil {
		WriteError(w, verr, h.logger)
		return
	}

	recs, err := h.store.Query(r.Context(), risklog.Filter{
		VenueID:  query.VenueID,
		RiskType: query.RiskType,
		Limit:    query.Limit,
	})
	if err != nil {
		writeErr(w, err, h.logger)
		return
	}

	out := api.RiskListResponse{Risks: make([]api.RiskRecord, 0, len(recs)), Count: len(recs)}
	for _, rec := range recs {
		out.Risks = append(out.Risks, api.RiskRecord{
			ID:           rec.ID,
			VenueID:      rec.VenueID,
			VenueName:    rec.VenueName,
			RiskType:     rec.RiskType,
			Description:  rec.Description,
			Severity:     rec.Severity,
			LoggedAt:     rec.LoggedAt,
			QueryContext: rec.QueryContext,
		})
	}
	WriteSuccess(w, out)
}

// HandleSummary 汇总某个场所（或全部场所）的风险
// @Summary 风险汇总
// @Tags 风险
// @Produce json
// @Param venue_id query string false "场所 ID，为空时汇总全部"
// @Success 200 {object} risklog.Summary
// @Router /api/v1/risks/summary [get]
func (h *RiskHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	sum, err := h.store.Summarize(r.Context(), r.URL.Query().Get("venue_id"))
	if err != nil {
		writeErr(w, err, h.logger)
		return
	}
	WriteSuccess(w, sum)
}

func (h *RiskHandler) available(w http.ResponseWriter) bool {
	if h.store != nil {
		return true
	}
	WriteErrorMessage(w, http.StatusServiceUnavailable, types.ErrNotConfigured, "risk log is not configured", h.logger)
	return false
}
