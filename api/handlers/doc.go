// Copyright (c) Pathfinder Authors.
// Licensed under the MIT License.

/*
包 handlers 实现 Pathfinder 的 HTTP 端点。

# 核心类型

  - PlanHandler：POST /api/v1/plan 同步规划；POST /api/v1/plan/stream
    以 SSE 推送进度，结尾为 data: [DONE]；GET /api/v1/plan/ws 通过
    websocket 推送同样的事件。规划器通过函数获取，配置热更新后即时生效。
  - RiskHandler：/api/v1/risks 与 /api/v1/risks/summary，风险日志只读查询。
  - HealthHandler：/health、/ready（并发执行 HealthCheck）与 /version。

# 辅助函数

WriteSuccess / WriteError 输出 api.Response 信封，错误码按 types.ErrorCode
映射为 HTTP 状态码。DecodeJSONBody 限制 1 MB 并拒绝未知字段，
ValidateStruct 使用 go-playground/validator 校验 DTO。
*/
package handlers
