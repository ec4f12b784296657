// ABOUTME: Package documentation for the gateway package
// ABOUTME: Describes the HTTP surface and its relationship to the conversation services

// Package gateway exposes the chat service over HTTP.
//
// It provides a synchronous exchange endpoint, an SSE streaming endpoint,
// a WebSocket streaming endpoint, transcript retrieval, user login, and a
// health check. All routes are served by a chi router with CORS applied
// from configuration. Streaming endpoints relay events from the stream
// dispatcher and always end with exactly one terminal event.
package gateway
