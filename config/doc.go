// Copyright (c) Pathfinder Authors.
// Licensed under the MIT License.

// Package config 提供 Pathfinder 的配置管理：默认值、YAML 文件与
// PATHFINDER_ 前缀环境变量的分层加载，以及管线参数的热重载。
package config
