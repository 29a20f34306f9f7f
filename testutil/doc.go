// Copyright (c) Pathfinder Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 Pathfinder 测试共享的辅助函数。

# 核心能力

  - 上下文辅助：TestContext / TestContextWithTimeout / CancelledContext，
    通过 t.Cleanup 自动取消
  - 断言：AssertJSONEqual
  - 异步：CollectEvents（收集规划流事件）
  - 数据：MustJSON / MustParseJSON

# 子包

  - testutil/mocks：规划协作者的可编排实现，包括 MockProvider（llm.Provider）、
    MockGenerator、MockSearcher、MockScraper、MockRouter、MockWeather、
    MockEvents、MockIdentity 与 MockRiskLog
  - testutil/fixtures：多伦多场所样例
*/
package testutil
