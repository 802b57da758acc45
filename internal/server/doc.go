// ABOUTME: Package documentation for the server package
// ABOUTME: Describes the HTTP API surface and its SSE streams

// Package server exposes the conversation API over HTTP.
//
// Routes:
//
//	GET    /api/health                        liveness
//	POST   /api/conversations                 create (owner = caller)
//	GET    /api/conversations                 sidebar list with previews
//	GET    /api/conversations/{id}            conversation + ordered turns
//	DELETE /api/conversations/{id}            cascade delete
//	POST   /api/conversations/{id}/turns      submit a turn, stream SSE back
//	POST   /api/conversations/{id}/cancel     cancel the active generation
//	GET    /api/conversations/{id}/events     SSE feed of turns persisted by other clients
//
// The turns stream opens with a started event carrying the assigned message
// ids, then forwards reasoning/text/usage events as the model produces them,
// and always terminates with done. Generation failures arrive as error
// events, storage failures as persistence_failed; both still end in done.
//
// Authentication is bearer JWT when a secret is configured; without one the
// server runs single-tenant and skips 401 entirely. Entitlement maps to 403,
// missing conversations to 404, empty turns to 400, and a second concurrent
// turn on one conversation to 409.
package server
