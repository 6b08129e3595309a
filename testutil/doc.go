// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 FlowAgent 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / CancelledContext，自动注册 Cleanup
  - 时钟: ManualClock，可手动推进的确定性时钟
  - 异步断言: AssertEventuallyTrue，超时轮询等待条件满足
  - 数据工具: MustJSON

# 子包

  - testutil/mocks: ScriptedCaller（按脚本回放的 llm.Caller）与工具构造器
  - testutil/fixtures: 工作流定义样例（YAML）
*/
package testutil
