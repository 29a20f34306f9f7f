// Copyright (c) Pathfinder Authors.
// Licensed under the MIT License.

/*
包 llm 提供文本生成服务的统一接入层。

# 概述

流水线中的每个阶段都只需要一种能力：给定提示词（可附带图片与模型提示），
拿回一段文本或一个失败。本包把这种能力抽象为 [Provider]（底层模型服务）
与 [Generator]（面向阶段的调用入口，负责超时、重试、图片内联）。

# 核心类型

  - [Provider]：模型服务接口，提供 Completion / HealthCheck / Name
  - [Generator]：Generate(ctx, prompt, opts...)，附带 [WithImages] / [WithModel]
  - [DecodeJSON]：剥离 ``` 代码块围栏后解析结构化输出

# 错误语义

Provider 返回 *types.Error；RATE_LIMITED / UPSTREAM_TIMEOUT / 5xx 视为可重试。
结构化输出解析失败返回 MALFORMED_OUTPUT，由调用方降级为兜底值。
*/
package llm
