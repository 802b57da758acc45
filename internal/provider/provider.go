// ABOUTME: Model provider abstraction consumed by the generation driver
// ABOUTME: Defines provider-agnostic turns, streaming events, and usage reporting

package provider

import "context"

// Role constants for provider turns.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one provider-agnostic message in a context window, produced by the
// window assembler and translated into the provider's wire format here.
type Turn struct {
	Role        string
	Text        string
	Attachments []Attachment
}

// Attachment is a file segment carried alongside a turn's text.
type Attachment struct {
	MediaType string
	URL       string
	Filename  string
}

// Request describes a single streaming generation call.
type Request struct {
	Model  string
	System string // system prompt, prepended when non-empty
	Turns  []Turn
	APIKey string // per-call override; empty means the provider's default key
}

// EventType identifies a provider stream event.
type EventType int

const (
	// EventTextDelta carries an incremental chunk of answer text.
	EventTextDelta EventType = iota
	// EventReasoningDelta carries an incremental chunk of visible reasoning.
	EventReasoningDelta
	// EventUsage carries the provider-reported token counts.
	EventUsage
	// EventError carries a generation failure. The stream may still deliver
	// buffered events after an error; the channel closing is the terminal
	// signal.
	EventError
)

// Event is one element of a provider's push stream.
type Event struct {
	Type  EventType
	Text  string // for text/reasoning deltas
	Usage *Usage // for EventUsage
	Err   string // for EventError
}

// Usage is the provider-reported token accounting for one generation.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// Provider streams model output for a request. The returned channel is a
// finite push stream: the provider closes it when generation ends, whether by
// completion, error, or context cancellation. Events already emitted are
// never retracted.
type Provider interface {
	Stream(ctx context.Context, req Request) (<-chan Event, error)
}
