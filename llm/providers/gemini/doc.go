// Copyright (c) Pathfinder Authors.
// Licensed under the MIT License.

/*
# 概述

包 gemini 提供 Google Gemini 模型的 Provider 适配实现。该包直接对接
Gemini REST API（generativelanguage.googleapis.com），自行处理请求构建、
响应解析与多模态图片内联。

# 核心结构体

  - Provider：持有 http.Client 与 Config；使用 x-goog-api-key 请求头认证
  - Config：api_key / base_url / model / timeout
  - geminiRequest / geminiResponse：Gemini 原生请求/响应结构
  - geminiContent / geminiPart：多模态内容与分片（文本、inlineData 图片）

# 构造函数

  - New(cfg, logger)：创建实例，默认模型 gemini-2.5-flash
*/
package gemini
