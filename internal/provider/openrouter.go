// ABOUTME: OpenRouter streaming client speaking the OpenAI-compatible chat completions API
// ABOUTME: Parses SSE data lines into provider events with usage from the final chunk

package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const (
	// DefaultBaseURL is the OpenRouter API endpoint.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	// DefaultModel is used when a request does not name a model.
	DefaultModel = "arcee-ai/trinity-mini:free"
)

// eventBufferSize is the channel buffer for the event stream.
const eventBufferSize = 16

// OpenRouter is a Provider backed by the OpenRouter chat completions API.
// The client carries no per-call state beyond connection pooling and is safe
// for concurrent use.
type OpenRouter struct {
	baseURL      string
	apiKey       string
	defaultModel string
	client       *http.Client
	logger       *slog.Logger
}

// NewOpenRouter creates a client for the given endpoint and default API key.
// An empty baseURL selects the public OpenRouter endpoint. The HTTP client
// has no overall timeout; the generation driver owns the wall-clock ceiling.
func NewOpenRouter(baseURL, apiKey string) *OpenRouter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &OpenRouter{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		defaultModel: DefaultModel,
		client:       &http.Client{Timeout: 0},
		logger:       slog.Default().With("component", "openrouter"),
	}
}

// WithDefaultModel overrides the model used when a request names none.
func (o *OpenRouter) WithDefaultModel(model string) *OpenRouter {
	if model != "" {
		o.defaultModel = model
	}
	return o
}

// chatRequest is the wire request for POST /chat/completions.
type chatRequest struct {
	Model         string        `json:"model"`
	Messages      []chatMessage `json:"messages"`
	Stream        bool          `json:"stream"`
	StreamOptions struct {
		IncludeUsage bool `json:"include_usage"`
	} `json:"stream_options"`
}

// chatMessage is one wire message. Content is a plain string for text-only
// turns and a part array when attachments are present.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// chatChunk is one decoded SSE data payload.
type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			Reasoning string `json:"reasoning"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// Stream starts a streaming completion and returns the event channel.
// The channel is closed when the provider finishes, errors, or ctx is
// cancelled. A request-level failure before any bytes arrive is returned
// directly instead of through the channel.
func (o *OpenRouter) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	model := req.Model
	if model == "" {
		model = o.defaultModel
	}

	wire := chatRequest{Model: model, Stream: true}
	wire.StreamOptions.IncludeUsage = true
	if req.System != "" {
		wire.Messages = append(wire.Messages, chatMessage{Role: RoleSystem, Content: req.System})
	}
	for _, turn := range req.Turns {
		wire.Messages = append(wire.Messages, encodeTurn(turn))
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	apiKey := o.apiKey
	if req.APIKey != "" {
		apiKey = req.APIKey
	}
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling provider: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg := readErrorBody(resp.Body)
		return nil, fmt.Errorf("provider returned %d: %s", resp.StatusCode, msg)
	}

	events := make(chan Event, eventBufferSize)
	go o.consumeStream(ctx, resp.Body, events, model)
	return events, nil
}

// encodeTurn converts a provider-agnostic turn into the wire message form.
func encodeTurn(turn Turn) chatMessage {
	if len(turn.Attachments) == 0 {
		return chatMessage{Role: turn.Role, Content: turn.Text}
	}

	parts := []contentPart{}
	if turn.Text != "" {
		parts = append(parts, contentPart{Type: "text", Text: turn.Text})
	}
	for _, att := range turn.Attachments {
		// Only image attachments have a wire representation; other media
		// types are dropped from the provider payload.
		if strings.HasPrefix(att.MediaType, "image/") && att.URL != "" {
			parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: att.URL}})
		}
	}
	return chatMessage{Role: turn.Role, Content: parts}
}

// consumeStream reads SSE data lines from the response body and converts
// them into events. Always closes the channel.
func (o *OpenRouter) consumeStream(ctx context.Context, body io.ReadCloser, events chan<- Event, model string) {
	defer close(events)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			// SSE comments, event names, and blank keep-alives
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		if data == "[DONE]" {
			return
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			o.logger.Warn("skipping malformed chunk", "model", model, "error", err)
			continue
		}

		if chunk.Error != nil {
			o.emit(ctx, events, Event{Type: EventError, Err: chunk.Error.Message})
			return
		}

		for _, choice := range chunk.Choices {
			if choice.Delta.Reasoning != "" {
				if !o.emit(ctx, events, Event{Type: EventReasoningDelta, Text: choice.Delta.Reasoning}) {
					return
				}
			}
			if choice.Delta.Content != "" {
				if !o.emit(ctx, events, Event{Type: EventTextDelta, Text: choice.Delta.Content}) {
					return
				}
			}
		}

		if chunk.Usage != nil {
			usage := &Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
			if usage.TotalTokens == 0 {
				usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
			}
			if !o.emit(ctx, events, Event{Type: EventUsage, Usage: usage}) {
				return
			}
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		o.emit(ctx, events, Event{Type: EventError, Err: fmt.Sprintf("reading stream: %v", err)})
	}
}

// emit sends an event unless the context is done. Returns false to stop.
func (o *OpenRouter) emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// readErrorBody extracts a provider error message from a non-200 response.
func readErrorBody(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return "no error detail"
	}

	var wire struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &wire); err == nil && wire.Error.Message != "" {
		return wire.Error.Message
	}
	return strings.TrimSpace(string(data))
}
