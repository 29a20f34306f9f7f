// Copyright (c) Pathfinder Authors.
// Licensed under the MIT License.

/*
pathfinder 是推荐服务的命令行入口。

子命令：

  - serve：启动 HTTP 服务（同步、SSE 与 websocket 规划接口，风险日志查询，
    健康探针与 Prometheus 指标），支持配置文件热重载。
  - plan：在命令行执行一次规划，结果以 JSON 输出到 stdout。
  - migrate：管理风险日志表的数据库迁移。
  - health：探测运行中的服务。
  - version：打印构建信息。

中间件顺序（外到内）：Recovery → RequestID → SecurityHeaders →
RequestLogger → OTelTracing → CORS → RateLimiter → JWTAuth → Metrics → ServeMux。
Metrics 必须紧贴 ServeMux，以便读取匹配后的路由模式。
*/
package main
