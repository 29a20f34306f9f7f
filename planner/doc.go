// Copyright (c) Pathfinder Authors.
// Licensed under the MIT License.

/*
Package planner 实现场地推荐流水线的核心：共享状态、各阶段与编排图。

# 概述

一次 Plan 调用从全新的 State 开始，按以下图执行：

	orchestrator → discovery → analysis → filter → review ─┬→ synthesis → end
	      ↑                                                 │
	      └──────────────── veto（仍有重试次数）─────────────┘

analysis 节点并发运行 aesthetic / cost / accessibility 三个只读阶段，
filter 节点是 analysis 汇合之后唯一允许裁剪候选列表的串行步骤。

# 协作方

外部依赖全部通过本包定义的窄接口注入（Generator、VenueSearcher、
PageScraper、Router、WeatherService、EventService、ProfileService、
ConsentService、CalendarChecker、RiskLog）。任何外部调用失败都会被
就地转换为中性结果并记录日志，不会中断整条流水线。

# 终止

review → orchestrator 回边受 MaxRetries 约束；超出后带着当前最佳结果
进入 synthesis，并在结果中标记 Exhausted。
*/
package planner
