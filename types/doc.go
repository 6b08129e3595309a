// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 flowagent 执行引擎的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 agent、workflow、tools、
llm 等上层模块提供统一的类型契约，以避免循环依赖。

# 核心类型

  - Message：对话消息（Role、Content、ToolCalls、ToolResults）
  - ToolCall：模型发起的工具调用请求
  - ToolResultBlock：回填给模型的工具结果
  - Error / ErrorCode：结构化错误体系（预算耗尽、审批、工具、节点、持久化）

# 主要能力

  - Context 传播：WithSessionID / WithRunID / WithProjectID / WithTraceID
  - 错误工具链：NewError / AsError / IsErrorCode
*/
package types
