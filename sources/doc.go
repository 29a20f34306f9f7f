// Copyright (c) Pathfinder Authors.
// Licensed under the MIT License.

/*
Package sources 提供管线所依赖的外部数据源 HTTP 客户端。

# 概述

每个客户端实现 planner 包中的一个协作者接口，并共享同一个带熔断的
基础客户端（sony/gobreaker）：非 2xx 响应统一映射为 *types.Error，
可重试错误计入熔断统计，熔断打开时直接返回 SERVICE_UNAVAILABLE。

# 客户端

  - GooglePlaces ：planner.VenueSearcher，Places Text Search（New）
  - Yelp         ：planner.VenueSearcher，Fusion businesses/search
  - Firecrawl    ：planner.PageScraper，/v1/map + /v1/scrape，令牌桶限流，429 重试
  - HTMLScraper  ：planner.PageScraper，直接抓取页面，x/net/html 解析链接与正文
  - Mapbox       ：planner.Router，Directions + Isochrone
  - OpenWeather  ：planner.WeatherService，当前天气与恶劣天气判定
  - PredictHQ    ：planner.EventService，附近事件

未配置 API Key 的客户端不应被构造；cmd 层据此决定注入哪些协作者。
*/
package sources
