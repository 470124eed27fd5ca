// Package telemetry 初始化 OpenTelemetry 的 TracerProvider 与 MeterProvider，
// 通过 OTLP gRPC 导出工作流运行与节点执行的链路。禁用时保持 noop。
package telemetry
