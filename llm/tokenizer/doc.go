// Package tokenizer 在 Provider 未返回用量时估算 Token 数，
// 支持 tiktoken 精确计数与按字符的 CJK 估算器。
package tokenizer
