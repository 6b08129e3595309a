// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 service 组合引擎、持久化与队列，是 CLI 与 HTTP 入口调用的业务层。

# 核心类型

  - RunService：Trigger 创建运行并入队；HandleJob 执行一次工作流调用并根据
    结果落库、在延迟暂停时按 ResumeAfter 重新入队；Resume 处理审批决定
    （拒绝即取消，通过则从暂停节点继续）；Cancel 终止未完成的运行。
  - SessionService：按 Agent 配置独立执行一次 Agent 会话并保存汇总。
  - ProfileSet：从 YAML 加载的 Agent 配置集合，实现 nodes.AgentResolver。
  - Locker：运行级互斥，Redis 实现见 internal/cache，单实例使用 MemoryLocker。
*/
package service
