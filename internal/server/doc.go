// Copyright (c) Pathfinder Authors.
// Licensed under the MIT License.

/*
包 server 管理 Pathfinder API 与指标端口的 HTTP 服务器生命周期。

Manager 封装 net/http.Server：Start 非阻塞地监听（配置证书时走 HTTPS，
TLS 设置来自 tlsutil），Shutdown 在 ShutdownTimeout 内排空请求，
Wait 等待 ctx 结束或服务异常后关闭。进程信号由 cmd 层通过
signal.NotifyContext 转换为 ctx 取消。
*/
package server
