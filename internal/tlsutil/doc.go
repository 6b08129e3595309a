// Package tlsutil 集中提供出站连接的 TLS 设置：
// LLM Provider 的 HTTP 客户端与启用 TLS 的 Redis 连接共用同一份加固配置
// （TLS 1.2+，TLS 1.2 下仅 AEAD 密码套件）。
package tlsutil
