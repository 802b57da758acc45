// ABOUTME: Store interface and data types for strand persistence
// ABOUTME: Defines Conversation, Message structs and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateConversation is returned when trying to create a conversation that already exists
var ErrDuplicateConversation = errors.New("conversation already exists")

// Role constants for message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation represents a chat session owned by a single user.
// OwnerID is empty in single-tenant mode.
type Conversation struct {
	ID          string
	OwnerID     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	TotalTokens int64
}

// Message represents a single turn within a conversation.
// Parts is an ordered list of typed content segments; order is significant
// (reasoning precedes text on assistant turns).
type Message struct {
	ID             string
	ConversationID string
	Role           string
	Parts          Parts
	CreatedAt      time.Time
	Tokens         int64 // usage attributed to this turn, 0 if unknown
}

// ConversationSummary is a listing row for the sidebar: conversation metadata
// plus a text preview extracted from the most recent message.
type ConversationSummary struct {
	ID          string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastMessage string
}

// Store defines the interface for conversation and turn persistence
type Store interface {
	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context, ownerID string) ([]*ConversationSummary, error)
	DeleteConversation(ctx context.Context, id string) error

	// BumpConversation sets updated_at to now and adds tokensDelta to
	// total_tokens in a single statement, atomic with respect to
	// concurrent bumps on the same conversation.
	BumpConversation(ctx context.Context, id string, tokensDelta int64) error

	// Messages (turns)
	//
	// AppendMessage is an upsert: a second write with the same message ID
	// replaces role, parts, created_at and tokens rather than creating a
	// duplicate row. Safe to retry.
	AppendMessage(ctx context.Context, conversationID string, msg *Message) error
	ListMessages(ctx context.Context, conversationID string) ([]*Message, error)

	// PruneMessages deletes every message of the conversation whose ID is
	// not in keepIDs. Used after a regeneration to drop orphaned drafts.
	PruneMessages(ctx context.Context, conversationID string, keepIDs map[string]bool) error

	// Close releases any resources held by the store
	Close() error
}
