// ABOUTME: Tests for context window assembly
// ABOUTME: Covers the window bound, pruning order, and empty-turn rejection

package chat

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandchat/strand/internal/provider"
	"github.com/strandchat/strand/internal/store"
)

func textMsg(id, role, text string) *store.Message {
	return &store.Message{
		ID:        id,
		Role:      role,
		Parts:     store.Parts{store.TextPart(text)},
		CreatedAt: time.Now(),
	}
}

func TestAssembleWindow_Bound(t *testing.T) {
	var history []*store.Message
	for i := 0; i < 10; i++ {
		history = append(history, textMsg(fmt.Sprintf("m%d", i), store.RoleUser, fmt.Sprintf("turn %d", i)))
	}
	newTurn := textMsg("new", store.RoleUser, "latest")

	turns, err := AssembleWindow(history, newTurn, WindowPolicy{MaxPriorTurns: 3})
	require.NoError(t, err)

	// 3 prior + the new turn, never more
	require.Len(t, turns, 4)
	assert.Equal(t, "turn 7", turns[0].Text)
	assert.Equal(t, "turn 8", turns[1].Text)
	assert.Equal(t, "turn 9", turns[2].Text)
	assert.Equal(t, "latest", turns[3].Text)
}

func TestAssembleWindow_ShortHistory(t *testing.T) {
	history := []*store.Message{textMsg("m0", store.RoleUser, "only one")}
	newTurn := textMsg("new", store.RoleUser, "latest")

	turns, err := AssembleWindow(history, newTurn, DefaultWindowPolicy())
	require.NoError(t, err)
	require.Len(t, turns, 2)
}

func TestAssembleWindow_DropsPriorReasoning(t *testing.T) {
	history := []*store.Message{
		textMsg("u1", store.RoleUser, "question"),
		{
			ID:   "a1",
			Role: store.RoleAssistant,
			Parts: store.Parts{
				store.ReasoningPart("private chain of thought"),
				store.TextPart("the answer"),
			},
		},
	}
	newTurn := textMsg("new", store.RoleUser, "follow-up")

	turns, err := AssembleWindow(history, newTurn, DefaultWindowPolicy())
	require.NoError(t, err)
	require.Len(t, turns, 3)
	// Reasoning from the prior assistant turn must not be replayed
	assert.Equal(t, "the answer", turns[1].Text)
}

func TestAssembleWindow_DropsReasoningOnlyTurnEntirely(t *testing.T) {
	history := []*store.Message{
		textMsg("u1", store.RoleUser, "question"),
		{
			ID:    "a1",
			Role:  store.RoleAssistant,
			Parts: store.Parts{store.ReasoningPart("only reasoning, no answer")},
		},
	}
	newTurn := textMsg("new", store.RoleUser, "follow-up")

	turns, err := AssembleWindow(history, newTurn, DefaultWindowPolicy())
	require.NoError(t, err)

	// The reasoning-only assistant turn vanishes from the window
	require.Len(t, turns, 2)
	assert.Equal(t, provider.RoleUser, turns[0].Role)
	assert.Equal(t, "question", turns[0].Text)
	assert.Equal(t, "follow-up", turns[1].Text)
}

func TestAssembleWindow_DropsUnknownAndSourceSegments(t *testing.T) {
	history := []*store.Message{
		{
			ID:   "a1",
			Role: store.RoleAssistant,
			Parts: store.Parts{
				store.TextPart("answer"),
				{Type: store.PartTypeSource, URL: "https://ref", Title: "Ref"},
				{Type: "tool-invocation", Raw: []byte(`{"type":"tool-invocation"}`)},
			},
		},
	}
	newTurn := textMsg("new", store.RoleUser, "next")

	turns, err := AssembleWindow(history, newTurn, DefaultWindowPolicy())
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "answer", turns[0].Text)
	assert.Empty(t, turns[0].Attachments)
}

func TestAssembleWindow_CarriesFileAttachments(t *testing.T) {
	newTurn := &store.Message{
		ID:   "new",
		Role: store.RoleUser,
		Parts: store.Parts{
			store.TextPart("what is in this image?"),
			{Type: store.PartTypeFile, MediaType: "image/png", URL: "https://x/shot.png", Filename: "shot.png"},
		},
	}

	turns, err := AssembleWindow(nil, newTurn, DefaultWindowPolicy())
	require.NoError(t, err)
	require.Len(t, turns, 1)
	require.Len(t, turns[0].Attachments, 1)
	assert.Equal(t, "image/png", turns[0].Attachments[0].MediaType)
}

func TestAssembleWindow_EmptyTurnRejected(t *testing.T) {
	_, err := AssembleWindow(nil, &store.Message{ID: "new", Role: store.RoleUser}, DefaultWindowPolicy())
	assert.ErrorIs(t, err, ErrEmptyTurn)

	_, err = AssembleWindow(nil, nil, DefaultWindowPolicy())
	assert.ErrorIs(t, err, ErrEmptyTurn)
}
