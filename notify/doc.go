// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package notify 提供 output 节点的外部通知端口。

  - Notifier：通知接口 Notify(ctx, Message)
  - LogNotifier：以结构化日志输出通知，适合本地运行
  - RedisNotifier：通过 Redis PUBLISH 推送 JSON 消息到 <prefix><channel>
*/
package notify
