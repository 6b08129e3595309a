// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 agent 实现受安全限制约束的智能体会话执行器。

# 概述

[Executor] 运行一次有界的对话循环：调用 LLM → 检查响应 → 依次执行
零个或多个工具调用 → 将结果回填给模型 → 重复，直到终止条件出现。
每轮循环开始前按顺序检查四道安全闸门（动作数、Token 预算、墙钟时长、
连续错误数），任何一道触发都会以 aborted 结束会话。

# 审批

注册为 RequiresApproval 的工具永远不会被执行：执行器合成一条
"paused for review" 工具结果，以包含工具名的原因中止会话，并在
[ExecutionResult.PendingApproval] 中返回该调用，交由人工处理。

# 审计

每条 [ActionRecord] 都会镜像到可选的 [AuditSink]，写入失败只记录日志，
不会改变内存中的执行结果。
*/
package agent
