// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 server 管理 HTTP/HTTPS 服务器的生命周期：非阻塞启动、异步错误
传播与优雅关闭。

# 核心类型

  - Manager：封装 http.Server 与 net.Listener，提供 Start、Shutdown、
    Wait、Errors、Addr、IsRunning。配置了证书时以 tlsutil 的加固配置
    启动 HTTPS。
  - Config：监听地址、读写与空闲超时、请求头上限、关闭超时与证书。

`agentgraph serve` 用两个 Manager 分别承载 API 与 /metrics 端口，
通过 signal.NotifyContext 的上下文驱动 Wait 完成停机。
*/
package server
