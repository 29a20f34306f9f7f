// Copyright (c) Pathfinder Authors.
// Licensed under the MIT License.

/*
Package risklog 持久化评审阶段发现的高严重度风险，供后续请求合并为历史风险。

表结构见 internal/migration 中的 risk_log 迁移；Store 基于 gorm，可运行在
PostgreSQL、MySQL 或 SQLite 上。写入经 database.PoolManager 的可重试事务完成。
*/
package risklog
