// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package config 提供 AgentGraph 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（前缀 AGENTGRAPH）的顺序叠加，
// 覆盖 HTTP 服务、图执行引擎、工作队列、Redis、数据库、日志与遥测。
// FileWatcher 以轮询方式监听配置文件，Loader.Watch 在文件变更时
// 重新加载并校验配置，供服务端热更新日志级别等运行时参数。
package config
