// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 llm 定义智能体执行器消费的模型调用契约。

# 概述

执行器只依赖 [Caller] 接口：给定模型参数与调用上下文（系统提示、消息历史、
可用工具），返回模型响应以及用量元数据（输入/输出 Token、成本、耗时）。
具体的线协议由实现方负责，本包不规定任何 Provider 的请求格式。

# 错误语义

所有失败以 [*Error] 返回。[ErrProviderUnavailable] 与上游可重试错误表示
"Provider 暂不可用"，可由 [FallbackCaller] 在内部重试或切换到下一个 Provider；
[ErrInvalidRequest] 表示请求本身无效，不会触发故障转移。执行器对任何错误
一视同仁，记为一次失败的 llm_call 动作。

# 子包

  - retry：指数退避重试器
  - tokenizer：Provider 未返回用量时的 Token 估算
  - openaicompat：基于 OpenAI 兼容 HTTP 接口的 [Caller] 实现
*/
package llm
