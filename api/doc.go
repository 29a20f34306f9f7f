// Copyright (c) Pathfinder Authors.
// Licensed under the MIT License.

// Package api 定义 Pathfinder HTTP API 的请求与响应结构。
//
// # API 概览
//
//   - POST /api/v1/plan          同步规划，返回完整结果
//   - POST /api/v1/plan/stream   SSE 进度流，以 data: [DONE] 结束
//   - GET  /api/v1/plan/ws       WebSocket 进度流
//   - GET  /api/v1/risks         风险日志查询（最多 50 条）
//   - GET  /api/v1/risks/summary 单个场所的风险汇总
//   - /health /ready /version /metrics
//
// # 鉴权
//
// 配置 jwt.secret 后，请求需携带 Authorization: Bearer <token>，
// 令牌的 sub 即为调用方身份。管理接口（/api/v1/config）使用 X-API-Key。
package api
