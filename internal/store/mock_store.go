// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject write failures

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation // keyed by conversation ID
	messages      map[string][]*Message    // keyed by conversation ID, insertion order
	seq           map[string]int           // insertion counter per message ID

	// FailAppend, when set, is returned from AppendMessage. Used to test
	// the persistence-failure path.
	FailAppend error
	// FailBump, when set, is returned from BumpConversation.
	FailBump error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]*Message),
		seq:           make(map[string]int),
	}
}

// CreateConversation stores a new conversation.
func (m *MockStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversations[conv.ID]; ok {
		return ErrDuplicateConversation
	}

	// Make a copy to avoid external modification
	c := *conv
	m.conversations[c.ID] = &c
	return nil
}

// GetConversation retrieves a conversation by ID.
func (m *MockStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}

	result := *c
	return &result, nil
}

// ListConversations lists conversations for an owner, newest-updated first.
func (m *MockStore) ListConversations(ctx context.Context, ownerID string) ([]*ConversationSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var summaries []*ConversationSummary
	for _, c := range m.conversations {
		if ownerID != "" && c.OwnerID != ownerID {
			continue
		}
		sum := &ConversationSummary{
			ID:        c.ID,
			CreatedAt: c.CreatedAt,
			UpdatedAt: c.UpdatedAt,
		}
		if msgs := m.messages[c.ID]; len(msgs) > 0 {
			last := msgs[0]
			for _, msg := range msgs[1:] {
				if !msg.CreatedAt.Before(last.CreatedAt) {
					last = msg
				}
			}
			sum.LastMessage = last.Parts.TextContent()
		}
		summaries = append(summaries, sum)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

// DeleteConversation removes a conversation and its messages.
func (m *MockStore) DeleteConversation(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversations[id]; !ok {
		return ErrNotFound
	}
	delete(m.conversations, id)
	delete(m.messages, id)
	return nil
}

// BumpConversation advances updated_at and accumulates tokens.
func (m *MockStore) BumpConversation(ctx context.Context, id string, tokensDelta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailBump != nil {
		return m.FailBump
	}

	c, ok := m.conversations[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	if now.After(c.UpdatedAt) {
		c.UpdatedAt = now
	}
	c.TotalTokens += tokensDelta
	return nil
}

// AppendMessage upserts a message by ID.
func (m *MockStore) AppendMessage(ctx context.Context, conversationID string, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailAppend != nil {
		return m.FailAppend
	}
	if _, ok := m.conversations[conversationID]; !ok {
		return ErrNotFound
	}

	stored := *msg
	stored.ConversationID = conversationID

	msgs := m.messages[conversationID]
	for i, existing := range msgs {
		if existing.ID == msg.ID {
			msgs[i] = &stored
			return nil
		}
	}
	m.seq[msg.ID] = len(m.seq)
	m.messages[conversationID] = append(msgs, &stored)
	return nil
}

// ListMessages returns messages ordered by created_at, ties by insertion order.
func (m *MockStore) ListMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.messages[conversationID]
	result := make([]*Message, len(msgs))
	for i, msg := range msgs {
		c := *msg
		result[i] = &c
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return m.seq[result[i].ID] < m.seq[result[j].ID]
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// PruneMessages deletes messages not present in keepIDs.
func (m *MockStore) PruneMessages(ctx context.Context, conversationID string, keepIDs map[string]bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := m.messages[conversationID]
	var kept []*Message
	for _, msg := range msgs {
		if keepIDs[msg.ID] {
			kept = append(kept, msg)
		}
	}
	m.messages[conversationID] = kept
	return nil
}

// Close is a no-op for the mock.
func (m *MockStore) Close() error {
	return nil
}
