// ABOUTME: Tests for conversation persistence
// ABOUTME: Covers CRUD, cascade delete, token accounting, and updated_at monotonicity

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGetConversation(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	now := time.Now()
	conv := &Conversation{
		ID:        "conv-123",
		OwnerID:   "user-1",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.CreateConversation(ctx, conv))

	got, err := s.GetConversation(ctx, "conv-123")
	require.NoError(t, err)
	assert.Equal(t, "conv-123", got.ID)
	assert.Equal(t, "user-1", got.OwnerID)
	assert.Equal(t, int64(0), got.TotalTokens)
	assert.Equal(t, now.UnixMilli(), got.CreatedAt.UnixMilli())
}

func TestCreateConversation_Duplicate(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	conv := &Conversation{ID: "conv-1", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.NoError(t, s.CreateConversation(ctx, conv))

	err := s.CreateConversation(ctx, conv)
	assert.ErrorIs(t, err, ErrDuplicateConversation)
}

func TestGetConversation_NotFound(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	_, err := s.GetConversation(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteConversation_CascadesToMessages(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	conv := &Conversation{ID: "conv-1", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.NoError(t, s.CreateConversation(ctx, conv))

	msg := &Message{
		ID:        "msg-1",
		Role:      RoleUser,
		Parts:     Parts{TextPart("hello")},
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.AppendMessage(ctx, "conv-1", msg))

	require.NoError(t, s.DeleteConversation(ctx, "conv-1"))

	_, err := s.GetConversation(ctx, "conv-1")
	assert.ErrorIs(t, err, ErrNotFound)

	msgs, err := s.ListMessages(ctx, "conv-1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestBumpConversation_TokenAccounting(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	created := time.Now().Add(-time.Minute)
	conv := &Conversation{ID: "conv-1", CreatedAt: created, UpdatedAt: created}
	require.NoError(t, s.CreateConversation(ctx, conv))

	require.NoError(t, s.BumpConversation(ctx, "conv-1", 42))

	got, err := s.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.TotalTokens)
	assert.True(t, got.UpdatedAt.After(created), "updated_at should advance")

	// Bumps accumulate, never reset
	require.NoError(t, s.BumpConversation(ctx, "conv-1", 0))
	require.NoError(t, s.BumpConversation(ctx, "conv-1", 8))

	got, err = s.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.TotalTokens)
}

func TestBumpConversation_RejectsNegativeDelta(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	err := s.BumpConversation(context.Background(), "conv-1", -1)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestBumpConversation_NotFound(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	err := s.BumpConversation(context.Background(), "ghost", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListConversations_OrderAndPreview(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for _, c := range []struct {
		id      string
		owner   string
		updated time.Time
	}{
		{"conv-old", "user-1", base},
		{"conv-new", "user-1", base.Add(time.Minute)},
		{"conv-other", "user-2", base.Add(2 * time.Minute)},
	} {
		require.NoError(t, s.CreateConversation(ctx, &Conversation{
			ID: c.id, OwnerID: c.owner, CreatedAt: base, UpdatedAt: c.updated,
		}))
	}

	require.NoError(t, s.AppendMessage(ctx, "conv-new", &Message{
		ID:        "m1",
		Role:      RoleAssistant,
		Parts:     Parts{ReasoningPart("thinking..."), TextPart("final answer")},
		CreatedAt: base,
	}))

	list, err := s.ListConversations(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "conv-new", list[0].ID)
	assert.Equal(t, "conv-old", list[1].ID)
	// Preview is text segments only; reasoning is excluded
	assert.Equal(t, "final answer", list[0].LastMessage)
	assert.Empty(t, list[1].LastMessage)

	// Empty owner lists everything (single-tenant mode)
	all, err := s.ListConversations(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
