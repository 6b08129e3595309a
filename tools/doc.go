// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package tools 提供 Agent 可调用工具的注册与校验能力。

# 概述

工具（Tool）是带类型的副作用能力：名称、描述、JSON Schema 输入定义、
是否需要人工审批标记，以及执行函数。工具只注册一次，执行器对其只读。

# 核心类型

  - Definition：工具定义（Name / InputSchema / RequiresApproval / Execute）
  - Registry：工具查找接口
  - DefaultRegistry：线程安全的默认实现，注册时编译 JSON Schema
  - ToolContext：执行时传入的会话上下文

# 主要能力

  - 输入校验：基于 gojsonschema 的 JSON Schema 校验
  - 结果处理：Stringify 与 Truncate（10,000 字符上限）
  - 内置工具：get_current_time
*/
package tools
