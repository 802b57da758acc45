// ABOUTME: SQLite operations for conversation rows
// ABOUTME: Create/get/list/delete plus the atomic updated_at/total_tokens bump

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CreateConversation inserts a new conversation row.
// Returns ErrDuplicateConversation if the id is already taken.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	query := `
		INSERT INTO conversations (id, owner_id, created_at, updated_at, total_tokens)
		VALUES (?, ?, ?, ?, ?)
	`

	var owner sql.NullString
	if conv.OwnerID != "" {
		owner = sql.NullString{String: conv.OwnerID, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		conv.ID,
		owner,
		conv.CreatedAt.UnixMilli(),
		conv.UpdatedAt.UnixMilli(),
		conv.TotalTokens,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateConversation
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}

	s.logger.Debug("conversation created",
		"conversation_id", conv.ID,
		"owner_id", conv.OwnerID)
	return nil
}

// GetConversation retrieves a conversation by id.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	query := `
		SELECT id, owner_id, created_at, updated_at, total_tokens
		FROM conversations
		WHERE id = ?
	`

	conv := &Conversation{}
	var owner sql.NullString
	var createdMs, updatedMs int64

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&conv.ID,
		&owner,
		&createdMs,
		&updatedMs,
		&conv.TotalTokens,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	conv.OwnerID = owner.String
	conv.CreatedAt = time.UnixMilli(createdMs)
	conv.UpdatedAt = time.UnixMilli(updatedMs)
	return conv, nil
}

// ListConversations returns conversations ordered by updated_at DESC with a
// text preview taken from each conversation's most recent message. An empty
// ownerID lists all conversations (single-tenant mode).
func (s *SQLiteStore) ListConversations(ctx context.Context, ownerID string) ([]*ConversationSummary, error) {
	query := `
		SELECT c.id, c.created_at, c.updated_at,
		       (SELECT m.parts FROM messages m
		        WHERE m.conversation_id = c.id
		        ORDER BY m.created_at DESC, m.rowid DESC
		        LIMIT 1)
		FROM conversations c
	`
	var args []any
	if ownerID != "" {
		query += ` WHERE c.owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY c.updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var summaries []*ConversationSummary
	for rows.Next() {
		sum := &ConversationSummary{}
		var createdMs, updatedMs int64
		var lastParts sql.NullString

		if err := rows.Scan(&sum.ID, &createdMs, &updatedMs, &lastParts); err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}
		sum.CreatedAt = time.UnixMilli(createdMs)
		sum.UpdatedAt = time.UnixMilli(updatedMs)

		if lastParts.Valid {
			// Preview failures are not fatal; the row still lists.
			if parts, err := DecodeParts(lastParts.String); err == nil {
				sum.LastMessage = parts.TextContent()
			}
		}

		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversation rows: %w", err)
	}

	return summaries, nil
}

// DeleteConversation removes a conversation; its messages cascade-delete.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("conversation deleted", "conversation_id", id)
	return nil
}

// BumpConversation advances updated_at and accumulates tokensDelta into
// total_tokens in one statement. updated_at never moves backwards even if
// the wall clock does.
func (s *SQLiteStore) BumpConversation(ctx context.Context, id string, tokensDelta int64) error {
	if tokensDelta < 0 {
		return fmt.Errorf("tokens delta must be non-negative, got %d", tokensDelta)
	}

	query := `
		UPDATE conversations
		SET updated_at = MAX(updated_at, ?),
		    total_tokens = total_tokens + ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, time.Now().UnixMilli(), tokensDelta, id)
	if err != nil {
		return fmt.Errorf("bumping conversation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("conversation bumped",
		"conversation_id", id,
		"tokens_delta", tokensDelta)
	return nil
}
