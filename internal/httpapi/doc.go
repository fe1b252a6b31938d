// Package httpapi exposes a Bridge over HTTP.
//
//	POST /v1/commands/{name}  dispatch a command; JSON body is its arguments
//	GET  /v1/commands         list command names
//	GET  /v1/events           event channel (WebSocket or NDJSON)
//	GET  /status, /healthz, /readyz, /metrics
//
// Synchronous commands answer 200 with their result. Capture commands answer
// 202 with a task id; the result arrives on the event channel. Only one
// event channel is registered at a time; a new connection replaces the old.
package httpapi
