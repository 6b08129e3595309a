// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 database 负责打开 GORM 连接并管理连接池。

# 概述

Open 按配置的驱动（postgres、mysql、sqlite）构造 Dialector 并打开连接，
sqlite 使用纯 Go 的 glebarez 驱动，无需 CGO。PoolManager 封装底层 sql.DB
的连接池参数，后台定时探活并把打开/空闲连接数上报到 Prometheus。

# 核心类型

  - PoolManager：连接池管理器，提供 DB()、Ping()、Stats()、Close()。
  - PoolConfig：最大空闲连接数、最大打开连接数、连接生命周期与健康检查间隔。
*/
package database
