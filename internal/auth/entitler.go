// ABOUTME: Conversation ownership checks backed by the store
// ABOUTME: Answers whether a caller may read or write a given conversation

package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/strandchat/strand/internal/store"
)

// ConversationReader is the slice of the store the entitler needs.
type ConversationReader interface {
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
}

// OwnerEntitler entitles callers by conversation ownership. Conversations
// without an owner are open to every caller, which is what single-tenant
// deployments produce.
type OwnerEntitler struct {
	store ConversationReader
}

// NewOwnerEntitler creates an entitler backed by the given store.
func NewOwnerEntitler(s ConversationReader) *OwnerEntitler {
	return &OwnerEntitler{store: s}
}

// IsEntitled reports whether callerID may act on the conversation. A missing
// conversation is not an entitlement failure; existence is checked separately
// so handlers can return 404 instead of 403.
func (e *OwnerEntitler) IsEntitled(ctx context.Context, callerID, conversationID string) (bool, error) {
	conv, err := e.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return true, nil
		}
		return false, fmt.Errorf("looking up conversation: %w", err)
	}
	if conv.OwnerID == "" {
		return true, nil
	}
	return conv.OwnerID == callerID, nil
}
