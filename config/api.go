// 配置管理 HTTP API。
//
// 查看脱敏配置、修改可热重载字段、从文件重载、回滚与变更历史。
package config

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/BaSui01/pathfinder/api"
)

// ConfigAPIHandler 处理 /api/v1/config 下的请求
type ConfigAPIHandler struct {
	manager *HotReloadManager
	apiKey  string
}

// configData 是响应中 Data 字段的结构
type configData struct {
	Message         string         `json:"message,omitempty"`
	Version         int            `json:"version,omitempty"`
	Config          map[string]any `json:"config,omitempty"`
	Fields          []FieldInfo    `json:"fields,omitempty"`
	Changes         []ConfigChange `json:"changes,omitempty"`
	RequiresRestart bool           `json:"requires_restart,omitempty"`
}

// ConfigUpdateRequest 字段路径到新值的映射
type ConfigUpdateRequest struct {
	Updates map[string]any `json:"updates"`
}

// NewConfigAPIHandler 创建处理器。apiKey 为空时所有请求都被拒绝。
func NewConfigAPIHandler(manager *HotReloadManager, apiKey string) *ConfigAPIHandler {
	return &ConfigAPIHandler{manager: manager, apiKey: apiKey}
}

// RegisterRoutes 注册路由，全部经过 API Key 校验
func (h *ConfigAPIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/config", h.requireKey(h.getConfig))
	mux.HandleFunc("PUT /api/v1/config", h.requireKey(h.updateConfig))
	mux.HandleFunc("POST /api/v1/config/reload", h.requireKey(h.reload))
	mux.HandleFunc("POST /api/v1/config/rollback", h.requireKey(h.rollback))
	mux.HandleFunc("GET /api/v1/config/fields", h.requireKey(h.fields))
	mux.HandleFunc("GET /api/v1/config/changes", h.requireKey(h.changes))
}

func (h *ConfigAPIHandler) requireKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("X-API-Key")
		if h.apiKey == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.apiKey)) != 1 {
			writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing API key")
			return
		}
		next(w, r)
	}
}

func (h *ConfigAPIHandler) getConfig(w http.ResponseWriter, r *http.Request) {
	writeAPIData(w, configData{
		Version: h.manager.CurrentVersion(),
		Config:  h.manager.SanitizedConfig(),
	})
}

func (h *ConfigAPIHandler) updateConfig(w http.ResponseWriter, r *http.Request) {
	var req ConfigUpdateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if len(req.Updates) == 0 {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "no updates provided")
		return
	}

	paths := make([]string, 0, len(req.Updates))
	for path := range req.Updates {
		if !IsHotReloadable(path) {
			writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", fmt.Sprintf("field %s cannot be changed at runtime", path))
			return
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if err := h.manager.UpdateField(path, req.Updates[path]); err != nil {
			writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", fmt.Sprintf("update %s: %v", path, err))
			return
		}
	}
	writeAPIData(w, configData{
		Message: "configuration updated",
		Version: h.manager.CurrentVersion(),
		Config:  h.manager.SanitizedConfig(),
	})
}

func (h *ConfigAPIHandler) reload(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.ReloadFromFile(); err != nil {
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", fmt.Sprintf("reload failed: %v", err))
		return
	}
	writeAPIData(w, configData{Message: "configuration reloaded", Version: h.manager.CurrentVersion()})
}

func (h *ConfigAPIHandler) rollback(w http.ResponseWriter, r *http.Request) {
	var err error
	if v := r.URL.Query().Get("version"); v != "" {
		version, convErr := strconv.Atoi(v)
		if convErr != nil {
			writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "version must be an integer")
			return
		}
		err = h.manager.RollbackToVersion(version)
	} else {
		err = h.manager.Rollback()
	}
	if err != nil {
		writeAPIError(w, http.StatusConflict, "INVALID_REQUEST", err.Error())
		return
	}
	writeAPIData(w, configData{Message: "configuration rolled back", Version: h.manager.CurrentVersion()})
}

func (h *ConfigAPIHandler) fields(w http.ResponseWriter, r *http.Request) {
	all := Fields()
	out := make([]FieldInfo, 0, len(all))
	for _, f := range all {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	writeAPIData(w, configData{Fields: out})
}

func (h *ConfigAPIHandler) changes(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	writeAPIData(w, configData{Changes: h.manager.ChangeLog(limit)})
}

func writeAPIData(w http.ResponseWriter, data configData) {
	writeAPIJSON(w, http.StatusOK, api.Response{Success: true, Data: data, Timestamp: time.Now()})
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeAPIJSON(w, status, api.Response{
		Success:   false,
		Error:     &api.ErrorInfo{Code: code, Message: message},
		Timestamp: time.Now(),
	})
}

func writeAPIJSON(w http.ResponseWriter, status int, body api.Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
