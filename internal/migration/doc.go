// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 基于 golang-migrate 管理 flowagent 的数据库 Schema，
支持 PostgreSQL、MySQL 与 SQLite。

各方言的 SQL 文件以 embed.FS 内嵌在 migrations/<dialect> 下，
与 store 包的 GORM 模型保持同一套表结构：agent_sessions、
agent_actions、workflow_runs 与 workflow_node_runs。

  - New：按 config.DatabaseConfig 选择方言与连接 URL 创建 DefaultMigrator。
  - Available：列出某方言的内嵌迁移。
  - CLI：为 `flowagent migrate` 子命令输出状态表与版本信息。
*/
package migration
