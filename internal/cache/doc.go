// Copyright (c) Pathfinder Authors.
// Licensed under the MIT License.

/*
包 cache 提供基于 Redis 的 JSON 缓存，用作场所搜索结果缓存。

# 核心类型

  - Manager：持有 go-redis 客户端，提供 Get/Set/Delete 与
    GetJSON/SetJSON，实现 planner.SearchCache。所有键带 KeyPrefix 命名空间。
  - Config：地址、密码、连接池、默认 TTL 与健康检查间隔。
  - LookupRecorder：命中/未命中计数钩子，由 metrics.Collector 实现。

未命中返回 ErrCacheMiss，关闭后返回 ErrClosed。
*/
package cache
