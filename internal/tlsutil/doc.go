// Package tlsutil 集中提供 TLS 配置，供 Redis 连接、HTTP 服务端与
// 健康检查客户端使用（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
