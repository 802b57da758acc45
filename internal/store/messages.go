// ABOUTME: SQLite operations for message (turn) rows
// ABOUTME: Idempotent upsert append, ordered listing, and orphan pruning

package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// AppendMessage writes a turn with upsert semantics: a message with the same
// id replaces its role, parts, created_at and tokens rather than creating a
// duplicate row. This makes retries and regeneration safe.
func (s *SQLiteStore) AppendMessage(ctx context.Context, conversationID string, msg *Message) error {
	partsJSON, err := EncodeParts(msg.Parts)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO messages (id, conversation_id, role, parts, created_at, tokens)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			role = excluded.role,
			parts = excluded.parts,
			created_at = excluded.created_at,
			tokens = excluded.tokens
	`

	_, err = s.db.ExecContext(ctx, query,
		msg.ID,
		conversationID,
		msg.Role,
		partsJSON,
		msg.CreatedAt.UnixMilli(),
		msg.Tokens,
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return ErrNotFound
		}
		return fmt.Errorf("upserting message: %w", err)
	}

	s.logger.Debug("message appended",
		"conversation_id", conversationID,
		"message_id", msg.ID,
		"role", msg.Role)
	return nil
}

// ListMessages returns all turns of a conversation ordered by created_at ASC,
// ties broken by insertion order.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	query := `
		SELECT id, conversation_id, role, parts, created_at, tokens
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, rowid ASC
	`

	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg := &Message{}
		var partsJSON string
		var createdMs int64

		if err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.Role,
			&partsJSON,
			&createdMs,
			&msg.Tokens,
		); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}

		msg.CreatedAt = time.UnixMilli(createdMs)
		msg.Parts, err = DecodeParts(partsJSON)
		if err != nil {
			return nil, fmt.Errorf("message %s: %w", msg.ID, err)
		}

		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}

	return messages, nil
}

// PruneMessages deletes every message of the conversation whose id is not in
// keepIDs. Called after a regeneration so discarded drafts don't linger.
func (s *SQLiteStore) PruneMessages(ctx context.Context, conversationID string, keepIDs map[string]bool) error {
	query := `SELECT id FROM messages WHERE conversation_id = ?`
	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return fmt.Errorf("querying message ids: %w", err)
	}

	var doomed []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scanning message id: %w", err)
		}
		if !keepIDs[id] {
			doomed = append(doomed, id)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterating message ids: %w", err)
	}
	rows.Close()

	for _, id := range doomed {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id); err != nil {
			return fmt.Errorf("deleting message %s: %w", id, err)
		}
	}

	if len(doomed) > 0 {
		s.logger.Debug("pruned orphaned messages",
			"conversation_id", conversationID,
			"count", len(doomed))
	}
	return nil
}
