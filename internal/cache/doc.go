// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 持有进程共享的 Redis 客户端，并提供 JSON 缓存与分布式锁。

# 概述

Manager 由 RedisConfig 创建，启动时 Ping 校验连接。任务队列与通知
直接复用 Client()，运行服务通过 TryLock/Unlock 保证同一运行在多个
Worker 之间不会被并发执行。

# 核心类型

  - Manager：Redis 客户端生命周期、Get/Set/GetJSON/SetJSON/Delete。
  - TryLock/Unlock：基于 SET NX 与令牌比较删除的互斥锁。
  - ErrCacheMiss：键不存在时的哨兵错误。
*/
package cache
