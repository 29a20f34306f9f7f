// Copyright (c) Pathfinder Authors.
// Licensed under the MIT License.

/*
包 migration 管理风险日志表 risk_log 的 Schema 迁移，基于 golang-migrate，
支持 PostgreSQL、MySQL 与 SQLite。

各方言的 SQL 文件通过 embed 内嵌在 migrations/<dialect>/ 下，
命名为 000001_create_risk_log.up.sql / .down.sql。

# 核心类型

  - Migrator / DefaultMigrator：Up、Down、Steps、Goto、Force、Version、Status、Info。
  - CLI：pathfinder migrate 子命令的终端输出。
  - NewMigratorFromConfig：从 config.DatabaseConfig 拼接连接串。
*/
package migration
