// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的指标采集，覆盖 HTTP、LLM 调用、
Agent 会话、工作流节点、队列任务与持久化失败。

# 概述

Collector 使用 promauto 自动注册到默认 Registerer，所有指标按
namespace 隔离。Record 方法对 nil 接收者安全，引擎在未启用指标时
无需判空。

# 主要能力

  - LLM 指标：调用次数、耗时、Token 用量（input/output）、成本。
  - 会话指标：按终态统计会话数与时长，按结果统计工具调用。
  - 工作流指标：按结果统计执行次数，按节点类型统计执行与耗时。
  - 队列与持久化：任务处理结果、被吞掉的写入失败。
*/
package metrics
