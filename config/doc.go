// Package config 提供 FlowAgent 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的顺序叠加，环境变量使用
// FLOWAGENT_<SECTION>_<FIELD> 形式，例如 FLOWAGENT_AGENT_MAX_DURATION=2m。
package config
