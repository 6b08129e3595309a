// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package nodes 提供六种内置节点处理器，由 NewRegistry 组装为封闭的处理器注册表。

  - trigger：透传触发载荷与运行变量，标记工作流起点
  - agent：以上游输出文本为触发载荷运行一次 Agent 会话
  - condition：在沙箱化的 Lua 中求值布尔表达式
  - approval：首次到达时挂起，等待人工审批后恢复
  - delay：按 duration × unit 挂起
  - output：通过 notify.Notifier 发出终端通知

处理器之间不共享可变状态，每次调用所需的一切都通过参数传入。
*/
package nodes
