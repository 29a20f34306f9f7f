// Copyright (c) Pathfinder Authors.
// Licensed under the MIT License.

// Package telemetry 初始化 OpenTelemetry 的 trace 与 metric 导出（OTLP/gRPC），
// 并提供 NodeMeter 记录管线节点指标。遥测关闭时全局 provider 保持 noop，
// workflow 的节点 span 与 HTTP 中间件的请求 span 因此零开销。
package telemetry
