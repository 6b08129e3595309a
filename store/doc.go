// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 store 是会话、动作记录、工作流运行与节点运行的持久化层（GORM）。

# 核心类型

  - Store：对四张表的读写，错误统一包装为 types.ErrPersistence。
  - Recorder：把 Store 包装为 agent.AuditSink、workflow.RunRecorder
    与节点层的 SessionStore。写入失败只记录日志与指标，从不向引擎返回错误。

# 表

  - agent_sessions / agent_actions：会话汇总与追加写的动作记录。
  - workflow_runs / workflow_node_runs：运行状态、累计输出与逐节点记录。

postgres 与 mysql 的表结构由 internal/migration 的 SQL 迁移创建；
sqlite 或开发环境可调用 AutoMigrate。
*/
package store
