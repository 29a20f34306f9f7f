// Copyright (c) Pathfinder Authors.
// Licensed under the MIT License.

/*
包 database 管理风险日志使用的 GORM 连接池。

  - Open：按驱动名（postgres、mysql、sqlite）选择 gorm 方言并建立连接池。
  - PoolManager：连接池参数、后台健康检查（可选上报连接数）、
    WithTransaction 与 WithTransactionRetry。后者借助 internal/retry
    做指数退避，仅对死锁、序列化失败、断连与锁超时等瞬时错误重试。
*/
package database
