// Package openaicompat 提供基于 OpenAI 兼容 Chat Completions 接口的 llm.Caller 实现。
// DeepSeek、Qwen、GLM 等兼容服务只需配置 BaseURL 与默认模型即可接入。
package openaicompat
