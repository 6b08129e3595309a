// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 queue 提供工作流运行的任务队列与 Worker。

# 概述

Queue 是引擎对外的唯一调度端口：Enqueue(key, payload, {Delay})。
延迟节点暂停后由服务层以 Delay 重新入队，审批通过后以零延迟入队。

# 实现

  - MemoryQueue：进程内实现，按到期时间排序，适用于单实例与测试。
  - RedisQueue：基于 Redis 有序集合，score 为到期时间（毫秒），
    通过 ZREM 的返回值保证多个 Worker 之间每个任务只被领取一次。

# Worker

Worker 周期性领取到期任务，按 key 分派给已注册的 Handler，
并发度由 errgroup.SetLimit 控制。Handler 的错误与 panic 只记录日志和指标，
不会终止 Worker。
*/
package queue
