// Copyright (c) Pathfinder Authors.
// Licensed under the MIT License.

/*
Package identity 对接调用方身份：Auth0 管理 API 读取用户画像与 Google
IdP 令牌，Auth0 CIBA（backchannel）完成带外授权，并以用户的 Google 令牌
发送邮件、查询日历忙闲。

Auth0 管理令牌通过 golang.org/x/oauth2/clientcredentials 获取并自动缓存；
Google 调用使用 oauth2.StaticTokenSource 包装从 Auth0 取回的 IdP 令牌。

Service 同时满足 planner.ProfileService、planner.ConsentService 与
planner.CalendarChecker。
*/
package identity
