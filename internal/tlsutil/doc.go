// Copyright (c) Pathfinder Authors.
// Licensed under the MIT License.

// Package tlsutil 为外部 API 客户端与 HTTPS 服务端提供统一的 TLS 设置：
// TLS 1.2 起步，仅 AEAD 密码套件。
package tlsutil
