// ABOUTME: HTTP server wiring routes, auth middleware, and lifecycle
// ABOUTME: Owns the net/http server and graceful shutdown

package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/strandchat/strand/internal/auth"
	"github.com/strandchat/strand/internal/chat"
	"github.com/strandchat/strand/internal/store"
)

// Server exposes the conversation API over HTTP.
type Server struct {
	store    store.Store
	chat     *chat.Service
	bcast    *chat.Broadcaster
	verifier auth.TokenVerifier // nil runs single-tenant anonymous mode
	logger   *slog.Logger

	httpServer *http.Server
}

// New creates a Server. Pass nil logger for the default; a nil verifier
// disables bearer auth and treats every caller as the anonymous user.
func New(st store.Store, svc *chat.Service, bcast *chat.Broadcaster, verifier auth.TokenVerifier, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:    st,
		chat:     svc,
		bcast:    bcast,
		verifier: verifier,
		logger:   logger.With("component", "server"),
	}
}

// Handler builds the full route tree with auth middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/conversations", s.handleConversations)
	mux.HandleFunc("/api/conversations/", s.handleConversationSubtree)
	return auth.Middleware(s.verifier)(mux)
}

// Start begins serving on addr and blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	s.logger.Info("http server listening", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// handleConversations routes /api/conversations by method.
func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListConversations(w, r)
	case http.MethodPost:
		s.handleCreateConversation(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleConversationSubtree routes /api/conversations/{id}[/turns|/cancel|/events].
func (s *Server) handleConversationSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/conversations/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		s.sendJSONError(w, http.StatusBadRequest, "conversation id is required")
		return
	}

	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			s.handleGetConversation(w, r, id)
		case http.MethodDelete:
			s.handleDeleteConversation(w, r, id)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case "turns":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.handleSendTurn(w, r, id)
	case "cancel":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.handleCancel(w, r, id)
	case "events":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.handleConversationEvents(w, r, id)
	default:
		s.sendJSONError(w, http.StatusNotFound, "unknown resource")
	}
}

// callerID extracts the authenticated user id, empty for anonymous callers.
func callerID(r *http.Request) string {
	if id := auth.FromContext(r.Context()); id != nil {
		return id.UserID
	}
	return ""
}
