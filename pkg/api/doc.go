// Package api defines the shared data types of codinit: the task request
// accepted by the streaming endpoints, the messages streamed back while a
// task is healed, the structured run log written for offline evaluation,
// error types, and ID generation.
//
// The package performs no I/O. JSON field names of the run log are part of
// the persisted format read by external dashboards and must not change.
//
// Core types:
//   - [TaskRequest]: a task submitted over WebSocket, SSE or MCP
//   - [StreamMessage]: one progress message of a running task
//   - [Run], [TaskLog], [GenerationAttempt]: the experiment log schema
//   - [APIError]: structured error with type, code, param, and message
package api
