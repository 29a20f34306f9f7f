// Copyright (c) Pathfinder Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的指标采集。

# 核心类型

  - Collector：在私有 Registry 上通过 promauto 注册全部指标，
    Handler 暴露 /metrics。

# 指标

  - HTTP：请求总数与耗时，按 method/path/status 分组，状态码归类为 2xx..5xx。
  - 管线节点：每个节点的执行次数（ok/error）与耗时，实现 workflow.NodeObserver。
  - 规划：按结果（ok/vetoed/exhausted/failed）计数，重试次数与结果数分布，在途规划数。
  - 外部调用：LLM 与各数据源的调用次数与耗时，实现 llm.CallRecorder 与 sources.CallRecorder。
  - 搜索缓存：命中/未命中，实现 cache.LookupRecorder。
  - 数据库：风险日志连接池的打开/空闲连接数。
*/
package metrics
