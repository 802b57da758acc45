// ABOUTME: HTTP API handlers for conversations and turn streaming via SSE
// ABOUTME: Maps store and chat errors onto 400/403/404/409 JSON responses

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/strandchat/strand/internal/chat"
	"github.com/strandchat/strand/internal/provider"
	"github.com/strandchat/strand/internal/store"
)

// CreateConversationRequest is the JSON request body for POST /api/conversations.
// The id is optional; the server generates one when omitted.
type CreateConversationRequest struct {
	ID string `json:"id,omitempty"`
}

// ConversationResponse is the JSON representation of a conversation.
type ConversationResponse struct {
	ID          string `json:"id"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
	TotalTokens int64  `json:"total_tokens"`
}

// ConversationSummaryResponse is one entry of GET /api/conversations.
type ConversationSummaryResponse struct {
	ID          string `json:"id"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
	LastMessage string `json:"last_message,omitempty"`
}

// ListConversationsResponse is the JSON response for GET /api/conversations.
type ListConversationsResponse struct {
	Conversations []ConversationSummaryResponse `json:"conversations"`
}

// MessageResponse is the JSON representation of one stored turn.
type MessageResponse struct {
	ID        string      `json:"id"`
	Role      string      `json:"role"`
	Parts     store.Parts `json:"parts"`
	CreatedAt string      `json:"created_at"`
	Tokens    int64       `json:"tokens,omitempty"`
}

// GetConversationResponse is the JSON response for GET /api/conversations/{id}.
type GetConversationResponse struct {
	Conversation ConversationResponse `json:"conversation"`
	Messages     []MessageResponse    `json:"messages"`
}

// TurnPayload is the new user turn inside a SendTurnRequest.
type TurnPayload struct {
	ID    string      `json:"id,omitempty"`
	Parts store.Parts `json:"parts"`
}

// SendTurnRequest is the JSON request body for POST /api/conversations/{id}/turns.
// Setting assistant_id marks a regeneration: the prior draft with that id is
// replaced and later drafts are pruned.
type SendTurnRequest struct {
	Turn        TurnPayload `json:"turn"`
	Model       string      `json:"model,omitempty"`
	APIKey      string      `json:"api_key,omitempty"`
	AssistantID string      `json:"assistant_id,omitempty"`
}

// CancelResponse is the JSON response for POST /api/conversations/{id}/cancel.
type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// handleHealth handles GET /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleCreateConversation handles POST /api/conversations.
// The conversation is owned by the authenticated caller; anonymous callers
// create ownerless conversations.
func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}

	now := time.Now()
	conv := &store.Conversation{
		ID:        id,
		OwnerID:   callerID(r),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateConversation(r.Context(), conv); err != nil {
		if errors.Is(err, store.ErrDuplicateConversation) {
			s.sendJSONError(w, http.StatusConflict, "conversation already exists")
			return
		}
		s.logger.Error("failed to create conversation", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(conversationResponse(conv))
}

// handleListConversations handles GET /api/conversations.
// Returns the caller's conversations, newest-updated first, with a text
// preview of the most recent turn.
func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.store.ListConversations(r.Context(), callerID(r))
	if err != nil {
		s.logger.Error("failed to list conversations", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := ListConversationsResponse{
		Conversations: make([]ConversationSummaryResponse, len(summaries)),
	}
	for i, sum := range summaries {
		response.Conversations[i] = ConversationSummaryResponse{
			ID:          sum.ID,
			CreatedAt:   sum.CreatedAt.Format(time.RFC3339),
			UpdatedAt:   sum.UpdatedAt.Format(time.RFC3339),
			LastMessage: sum.LastMessage,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// loadAuthorized fetches a conversation and enforces ownership. Writes the
// error response and returns nil when the caller may not proceed.
func (s *Server) loadAuthorized(w http.ResponseWriter, r *http.Request, id string) *store.Conversation {
	conv, err := s.store.GetConversation(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return nil
	}
	if err != nil {
		s.logger.Error("failed to get conversation", "error", err, "conversation_id", id)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return nil
	}
	if conv.OwnerID != "" && conv.OwnerID != callerID(r) {
		s.sendJSONError(w, http.StatusForbidden, "not entitled to conversation")
		return nil
	}
	return conv
}

// handleGetConversation handles GET /api/conversations/{id}.
func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request, id string) {
	conv := s.loadAuthorized(w, r, id)
	if conv == nil {
		return
	}

	messages, err := s.store.ListMessages(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to list messages", "error", err, "conversation_id", id)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := GetConversationResponse{
		Conversation: conversationResponse(conv),
		Messages:     make([]MessageResponse, len(messages)),
	}
	for i, msg := range messages {
		response.Messages[i] = MessageResponse{
			ID:        msg.ID,
			Role:      msg.Role,
			Parts:     msg.Parts,
			CreatedAt: msg.CreatedAt.Format(time.RFC3339Nano),
			Tokens:    msg.Tokens,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleDeleteConversation handles DELETE /api/conversations/{id}.
func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request, id string) {
	if conv := s.loadAuthorized(w, r, id); conv == nil {
		return
	}

	if err := s.store.DeleteConversation(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.sendJSONError(w, http.StatusNotFound, "conversation not found")
			return
		}
		s.logger.Error("failed to delete conversation", "error", err, "conversation_id", id)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleSendTurn handles POST /api/conversations/{id}/turns.
// Accepts the new user turn and streams the generation back as SSE. The
// stream opens with a started event carrying the assigned ids, then mirrors
// the reconciler's event sequence, terminating with done.
func (s *Server) handleSendTurn(w http.ResponseWriter, r *http.Request, id string) {
	var req SendTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	// Existence is checked before entitlement so missing conversations
	// surface as 404, never 403.
	if _, err := s.store.GetConversation(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.sendJSONError(w, http.StatusNotFound, "conversation not found")
			return
		}
		s.logger.Error("failed to get conversation", "error", err, "conversation_id", id)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	// Check streaming support before starting the generation (fail fast)
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming not supported")
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sess, err := s.chat.HandleTurn(r.Context(), &chat.TurnRequest{
		ConversationID: id,
		CallerID:       callerID(r),
		Turn: &store.Message{
			ID:    req.Turn.ID,
			Role:  store.RoleUser,
			Parts: req.Turn.Parts,
		},
		Model:       req.Model,
		APIKey:      req.APIKey,
		AssistantID: req.AssistantID,
	})
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrForbidden):
			s.sendJSONError(w, http.StatusForbidden, "not entitled to conversation")
		case errors.Is(err, chat.ErrEmptyTurn):
			s.sendJSONError(w, http.StatusBadRequest, "turn has no content")
		case errors.Is(err, chat.ErrGenerationInFlight):
			s.sendJSONError(w, http.StatusConflict, "generation already in flight")
		default:
			s.logger.Error("failed to handle turn", "error", err, "conversation_id", id)
			s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	s.writeSSEEvent(w, "started", map[string]string{
		"conversation_id": sess.ConversationID,
		"user_message_id": sess.UserMessageID,
		"assistant_id":    sess.AssistantID,
	})
	flusher.Flush()

	s.streamTurn(r, w, flusher, sess)
}

// streamTurn forwards reconciler events as SSE until done or client
// disconnect. Persistence continues server-side either way.
func (s *Server) streamTurn(r *http.Request, w http.ResponseWriter, flusher http.Flusher, sess *chat.TurnSession) {
	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("client disconnected mid-stream",
				"conversation_id", sess.ConversationID)
			return

		case ev, ok := <-sess.Events:
			if !ok {
				return
			}
			s.writeSSEEvent(w, string(ev.Type), sseData(ev))
			flusher.Flush()
			if ev.Type == chat.EventDone {
				return
			}
		}
	}
}

// sseData maps a stream event onto its SSE data payload.
func sseData(ev chat.StreamEvent) interface{} {
	switch ev.Type {
	case chat.EventText, chat.EventReasoning:
		return map[string]string{"text": ev.Text}
	case chat.EventUsage:
		usage := ev.Usage
		if usage == nil {
			usage = &provider.Usage{}
		}
		return map[string]int64{
			"prompt_tokens":     usage.PromptTokens,
			"completion_tokens": usage.CompletionTokens,
			"total_tokens":      usage.TotalTokens,
		}
	case chat.EventError, chat.EventPersistenceFailed:
		return map[string]string{"error": ev.Err}
	default:
		return map[string]string{}
	}
}

// handleCancel handles POST /api/conversations/{id}/cancel.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request, id string) {
	if conv := s.loadAuthorized(w, r, id); conv == nil {
		return
	}

	cancelled := s.chat.CancelActive(id)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(CancelResponse{Cancelled: cancelled})
}

// handleConversationEvents handles GET /api/conversations/{id}/events.
// Streams turns persisted by other clients of the same conversation as SSE,
// so a second tab sees completed turns without polling.
func (s *Server) handleConversationEvents(w http.ResponseWriter, r *http.Request, id string) {
	if conv := s.loadAuthorized(w, r, id); conv == nil {
		return
	}
	if s.bcast == nil {
		s.sendJSONError(w, http.StatusNotFound, "event streaming disabled")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sub, subID := s.bcast.Subscribe(r.Context(), id)
	defer s.bcast.Unsubscribe(id, subID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-sub:
			if !ok {
				return
			}
			s.writeSSEEvent(w, "turn", MessageResponse{
				ID:        msg.ID,
				Role:      msg.Role,
				Parts:     msg.Parts,
				CreatedAt: msg.CreatedAt.Format(time.RFC3339Nano),
				Tokens:    msg.Tokens,
			})
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes a single SSE event to the response writer.
func (s *Server) writeSSEEvent(w http.ResponseWriter, event string, data interface{}) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func conversationResponse(conv *store.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:          conv.ID,
		CreatedAt:   conv.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   conv.UpdatedAt.Format(time.RFC3339),
		TotalTokens: conv.TotalTokens,
	}
}
