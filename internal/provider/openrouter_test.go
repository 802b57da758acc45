// ABOUTME: Tests for the OpenRouter streaming client
// ABOUTME: Uses an httptest SSE server to verify parsing, usage, errors, and key override

package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sseServer returns an httptest server that records the request and writes
// the given SSE lines.
func sseServer(t *testing.T, gotReq *http.Request, gotBody *chatRequest, lines []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gotReq != nil {
			*gotReq = *r.Clone(context.Background())
		}
		if gotBody != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(gotBody))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n", line)
		}
	}))
}

func collectEvents(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("timed out waiting for events")
		}
	}
}

func TestOpenRouter_StreamDeltas(t *testing.T) {
	var body chatRequest
	srv := sseServer(t, nil, &body, []string{
		`data: {"choices":[{"delta":{"reasoning":"thinking "}}]}`,
		`data: {"choices":[{"delta":{"content":"Hello"}}]}`,
		`data: {"choices":[{"delta":{"content":" world"}}]}`,
		`data: {"choices":[{"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":32,"total_tokens":42}}`,
		`data: [DONE]`,
	})
	defer srv.Close()

	or := NewOpenRouter(srv.URL, "test-key")
	ch, err := or.Stream(context.Background(), Request{
		Model:  "test/model",
		System: "be terse",
		Turns:  []Turn{{Role: RoleUser, Text: "hi"}},
	})
	require.NoError(t, err)

	events := collectEvents(t, ch)
	require.Len(t, events, 4)
	assert.Equal(t, EventReasoningDelta, events[0].Type)
	assert.Equal(t, "thinking ", events[0].Text)
	assert.Equal(t, EventTextDelta, events[1].Type)
	assert.Equal(t, EventTextDelta, events[2].Type)
	assert.Equal(t, EventUsage, events[3].Type)
	assert.Equal(t, int64(42), events[3].Usage.TotalTokens)

	// Wire request shape: system prompt first, then the user turn
	require.Len(t, body.Messages, 2)
	assert.Equal(t, RoleSystem, body.Messages[0].Role)
	assert.Equal(t, RoleUser, body.Messages[1].Role)
	assert.True(t, body.Stream)
	assert.True(t, body.StreamOptions.IncludeUsage)
}

func TestOpenRouter_DefaultModel(t *testing.T) {
	var body chatRequest
	srv := sseServer(t, nil, &body, []string{`data: [DONE]`})
	defer srv.Close()

	or := NewOpenRouter(srv.URL, "k")
	ch, err := or.Stream(context.Background(), Request{Turns: []Turn{{Role: RoleUser, Text: "hi"}}})
	require.NoError(t, err)
	collectEvents(t, ch)

	assert.Equal(t, DefaultModel, body.Model)
}

func TestOpenRouter_APIKeyOverride(t *testing.T) {
	var gotReq http.Request
	srv := sseServer(t, &gotReq, nil, []string{`data: [DONE]`})
	defer srv.Close()

	or := NewOpenRouter(srv.URL, "default-key")

	ch, err := or.Stream(context.Background(), Request{
		Turns:  []Turn{{Role: RoleUser, Text: "hi"}},
		APIKey: "override-key",
	})
	require.NoError(t, err)
	collectEvents(t, ch)

	assert.Equal(t, "Bearer override-key", gotReq.Header.Get("Authorization"))
}

func TestOpenRouter_MidStreamError(t *testing.T) {
	srv := sseServer(t, nil, nil, []string{
		`data: {"choices":[{"delta":{"content":"partial"}}]}`,
		`data: {"error":{"message":"rate limited","code":429}}`,
	})
	defer srv.Close()

	or := NewOpenRouter(srv.URL, "k")
	ch, err := or.Stream(context.Background(), Request{Turns: []Turn{{Role: RoleUser, Text: "hi"}}})
	require.NoError(t, err)

	events := collectEvents(t, ch)
	require.Len(t, events, 2)
	assert.Equal(t, EventTextDelta, events[0].Type)
	assert.Equal(t, EventError, events[1].Type)
	assert.Equal(t, "rate limited", events[1].Err)
}

func TestOpenRouter_RequestLevelError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"invalid api key"}}`)
	}))
	defer srv.Close()

	or := NewOpenRouter(srv.URL, "bad")
	_, err := or.Stream(context.Background(), Request{Turns: []Turn{{Role: RoleUser, Text: "hi"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")
	assert.Contains(t, err.Error(), "401")
}

func TestEncodeTurn_Attachments(t *testing.T) {
	msg := encodeTurn(Turn{
		Role: RoleUser,
		Text: "what is this?",
		Attachments: []Attachment{
			{MediaType: "image/png", URL: "https://x/a.png", Filename: "a.png"},
			{MediaType: "application/pdf", URL: "https://x/b.pdf"}, // dropped
		},
	})

	parts, ok := msg.Content.([]contentPart)
	require.True(t, ok)
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].Type)
	assert.Equal(t, "image_url", parts[1].Type)
	assert.Equal(t, "https://x/a.png", parts[1].ImageURL.URL)

	// Text-only turns stay plain strings
	plain := encodeTurn(Turn{Role: RoleUser, Text: "hi"})
	assert.Equal(t, "hi", plain.Content)
}
