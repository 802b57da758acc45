// ABOUTME: Package documentation for the provider package
// ABOUTME: Describes the streaming provider abstraction and the OpenRouter client

// Package provider abstracts remote language-model backends behind a
// push-stream interface.
//
// A Provider turns a Request (model, system prompt, context-window turns,
// optional per-call API key) into a finite channel of Events: text deltas,
// reasoning deltas, a usage report, and errors. The channel closing is the
// terminal signal; events already emitted are never retracted.
//
// OpenRouter is the production implementation, speaking the OpenAI-compatible
// chat completions API with SSE streaming. It is stateless per call aside
// from HTTP connection pooling and carries no timeout of its own — the
// generation driver in internal/chat enforces the wall-clock ceiling via
// context cancellation.
package provider
