// Package transport defines the handler interfaces and middleware chain
// shared by the HTTP, WebSocket and MCP front ends of codinit.
//
// # Handler Interfaces
//
// TaskRunner is the contract between a front end and the engine: it takes
// a task and writes its progress messages to a MessageWriter. Every front
// end provides its own MessageWriter (a WebSocket connection, an SSE
// stream, or a collector that keeps only the final message for MCP).
//
// # Middleware
//
// The middleware chain wraps TaskRunner with cross-cutting concerns.
// Built-in middleware provides panic recovery, request ID assignment
// (X-Request-ID), and structured logging via log/slog.
package transport
