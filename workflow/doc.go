// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package workflow 提供 DAG 工作流定义与执行引擎。

# 概述

工作流由类型化节点（trigger、agent、condition、approval、delay、output）
和可带标签的有向边组成。Executor 按拓扑序逐个执行节点，条件节点的未选分支
会被标记为 skipped；approval 与 delay 节点通过 Paused 结果挂起运行，
调用方随后携带已有输出从挂起节点恢复执行。

# 核心类型

  - Definition / Node / Edge / Variable：工作流定义，支持 YAML / JSON 加载与校验
  - TopologicalSort / UpstreamOutputs / Downstream：纯函数图工具
  - NodeHandler / HandlerRegistry：节点处理器契约
  - Outcome：三态结果 Completed / Failed / Paused
  - Executor：拓扑遍历、跳过传播、挂起与恢复
  - RunRecorder：节点运行与输出的持久化端口
  - Catalog：按 ID 管理的定义集合，可从目录加载并热更新

# 恢复语义

恢复时，拓扑序中位于恢复节点之前的节点以及已有输出的节点都不会再次执行，
因此 "挂起后以相同参数再次调用 Execute" 是幂等的。
*/
package workflow
