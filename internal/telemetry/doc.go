// Package telemetry 封装 OpenTelemetry SDK 初始化，为 flowagent 的
// 工作流与 Agent 追踪提供 TracerProvider 和 MeterProvider。
// 禁用时保持全局 noop 实现，不连接任何外部服务。
package telemetry
