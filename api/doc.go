// Package api defines the request and response types of the AgentGraph
// HTTP API.
//
// # API Overview
//
//   - POST /api/v1/runs              execute a workflow definition (sync or async)
//   - GET  /api/v1/runs              list recent runs
//   - GET  /api/v1/runs/{id}         fetch one run record
//   - GET  /api/v1/runs/{id}/events  websocket stream of node events
//   - GET  /health, /ready, /version
//
// # Authentication
//
// Protected endpoints accept either an X-API-Key header or an
// Authorization: Bearer JWT, depending on server configuration.
package api
