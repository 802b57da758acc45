// ABOUTME: Session reconciler merging streaming generation output with durable storage
// ABOUTME: Persists turns on a detached context so client disconnects never lose output

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/strandchat/strand/internal/provider"
	"github.com/strandchat/strand/internal/store"
)

// ErrForbidden is returned when the caller is not entitled to the conversation.
var ErrForbidden = errors.New("not entitled to conversation")

// ErrGenerationInFlight is returned when a conversation already has an active
// generation. One writer per conversation keeps turn ordering deterministic.
var ErrGenerationInFlight = errors.New("generation already in flight for conversation")

// persistTimeout bounds each store write during reconciliation. Writes run on
// a background context so a cancelled request never cancels persistence.
const persistTimeout = 5 * time.Second

// forwardTimeout bounds outward delivery of one event before it is dropped
// for a slow consumer. Outward delivery must never block persistence.
const forwardTimeout = 5 * time.Second

// TurnStore defines what the reconciler needs from storage.
type TurnStore interface {
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]*store.Message, error)
	AppendMessage(ctx context.Context, conversationID string, msg *store.Message) error
	BumpConversation(ctx context.Context, id string, tokensDelta int64) error
	PruneMessages(ctx context.Context, conversationID string, keepIDs map[string]bool) error
}

// Entitler answers whether a caller may act on a conversation.
type Entitler interface {
	IsEntitled(ctx context.Context, callerID, conversationID string) (bool, error)
}

// Options configures a Service.
type Options struct {
	// Window bounds the provider context. Zero value means the default policy.
	Window WindowPolicy
	// SystemPrompt is prepended to every generation.
	SystemPrompt string
	// GenerationTimeout is the wall-clock ceiling per generation; expiry
	// behaves like caller cancellation. Zero disables the ceiling.
	GenerationTimeout time.Duration
}

// Service is the session reconciler: it assembles the context window, drives
// the provider, streams output to the caller, and reconciles the produced
// turns into the store exactly once.
type Service struct {
	store    TurnStore
	provider provider.Provider
	entitler Entitler
	bcast    *Broadcaster
	opts     Options
	logger   *slog.Logger

	mu     sync.Mutex
	active map[string]*Generation // conversationID -> in-flight generation
}

// New creates a Service. Pass nil logger for the default; bcast may be nil
// when cross-client fan-out is not wanted.
func New(ts TurnStore, p provider.Provider, entitler Entitler, bcast *Broadcaster, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Window.MaxPriorTurns == 0 {
		opts.Window = DefaultWindowPolicy()
	}
	return &Service{
		store:    ts,
		provider: p,
		entitler: entitler,
		bcast:    bcast,
		opts:     opts,
		logger:   logger.With("component", "chat"),
		active:   make(map[string]*Generation),
	}
}

// TurnRequest carries one inbound user turn.
type TurnRequest struct {
	ConversationID string
	CallerID       string
	Turn           *store.Message // the new user turn; ID is generated if empty
	Model          string         // empty selects the provider default
	APIKey         string         // optional per-call credential override
	AssistantID    string         // pre-assigned assistant id; marks a regeneration
}

// TurnSession is the result of accepting a turn: identifiers assigned to the
// pending turns plus the outward event stream, which terminates with exactly
// one done event.
type TurnSession struct {
	ConversationID string
	UserMessageID  string
	AssistantID    string
	Events         <-chan StreamEvent
}

// HandleTurn validates and authorizes the request, starts the generation,
// and returns the outward stream.
//
// Key principle: the reconciler keeps consuming the generation to completion
// on a detached context. The caller going away stops outward delivery only —
// generation cost has been incurred, so the produced turns are persisted
// regardless of client presence.
func (s *Service) HandleTurn(ctx context.Context, req *TurnRequest) (*TurnSession, error) {
	// 1. Authorize before any side effect.
	ok, err := s.entitler.IsEntitled(ctx, req.CallerID, req.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("entitlement check failed: %w", err)
	}
	if !ok {
		return nil, ErrForbidden
	}

	// 2. Validate the turn before any side effect.
	if req.Turn == nil || req.Turn.Parts.Empty() {
		return nil, ErrEmptyTurn
	}

	history, err := s.store.ListMessages(ctx, req.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	turns, err := AssembleWindow(history, req.Turn, s.opts.Window)
	if err != nil {
		return nil, err
	}

	userID := req.Turn.ID
	if userID == "" {
		userID = uuid.New().String()
	}
	assistantID := req.AssistantID
	if assistantID == "" {
		assistantID = uuid.New().String()
	}

	// 3. Start the generation on a context detached from the request, so a
	// client disconnect does not cancel it. Explicit cancellation goes
	// through CancelActive.
	genCtx := context.WithoutCancel(ctx)

	s.mu.Lock()
	if _, exists := s.active[req.ConversationID]; exists {
		s.mu.Unlock()
		return nil, ErrGenerationInFlight
	}
	gen := startGeneration(genCtx, s.provider, provider.Request{
		Model:  req.Model,
		System: s.opts.SystemPrompt,
		Turns:  turns,
		APIKey: req.APIKey,
	}, s.opts.GenerationTimeout, s.logger)
	s.active[req.ConversationID] = gen
	s.mu.Unlock()

	s.logger.Debug("turn accepted",
		"conversation_id", req.ConversationID,
		"user_message_id", userID,
		"assistant_id", assistantID,
		"window_turns", len(turns))

	out := make(chan StreamEvent, 64)
	go s.reconcile(gen, out, history, req, userID, assistantID)

	return &TurnSession{
		ConversationID: req.ConversationID,
		UserMessageID:  userID,
		AssistantID:    assistantID,
		Events:         out,
	}, nil
}

// CancelActive cancels the in-flight generation for a conversation, if any.
// Persistence of the partial output still runs to completion.
func (s *Service) CancelActive(conversationID string) bool {
	s.mu.Lock()
	gen, ok := s.active[conversationID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	gen.Cancel()
	return true
}

// reconcile consumes the generation, forwards events outward without ever
// blocking on the consumer, and persists the produced turns when the stream
// terminates.
func (s *Service) reconcile(gen *Generation, out chan<- StreamEvent, history []*store.Message, req *TurnRequest, userID, assistantID string) {
	defer close(out)
	defer func() {
		s.mu.Lock()
		delete(s.active, req.ConversationID)
		s.mu.Unlock()
	}()

	var textBuf, reasoningBuf string

	for ev := range gen.Events() {
		switch ev.Type {
		case EventText:
			textBuf += ev.Text
		case EventReasoning:
			reasoningBuf += ev.Text
		case EventDone:
			// Persist before releasing the terminal event so a consumer
			// observing done can immediately re-read durable state.
			if perr := s.persistTurns(history, req, userID, assistantID, reasoningBuf, textBuf, gen.Usage()); perr != nil {
				s.logger.Error("persistence failed",
					"conversation_id", req.ConversationID,
					"error", perr)
				s.forward(out, StreamEvent{Type: EventPersistenceFailed, Err: perr.Error()})
			}
			gen.finalize()
			s.forward(out, ev)
			return
		}
		s.forward(out, ev)
	}
}

// forward delivers one event outward, dropping it if the consumer stays slow
// past forwardTimeout. Outward failure never blocks reconciliation.
func (s *Service) forward(out chan<- StreamEvent, ev StreamEvent) {
	select {
	case out <- ev:
	case <-time.After(forwardTimeout):
		s.logger.Warn("outward stream full, dropping event", "event", ev.Type)
	}
}

// persistTurns writes the user turn, the assistant turn (when any content
// was produced), the conversation aggregates, and — on a regeneration —
// prunes orphaned drafts. Runs on background contexts so a disconnected or
// cancelled request never aborts persistence. Returns the first failure;
// later steps still run.
func (s *Service) persistTurns(history []*store.Message, req *TurnRequest, userID, assistantID, reasoning, text string, usage provider.Usage) error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	// Strictly increasing timestamps for the two turns of this request,
	// even when the clock tick is coarser than the gap between writes.
	base := time.Now()
	userTurn := &store.Message{
		ID:        userID,
		Role:      store.RoleUser,
		Parts:     req.Turn.Parts,
		CreatedAt: base,
	}
	record(s.persistMessage(req.ConversationID, userTurn))

	produced := reasoning != "" || text != ""
	var assistantTurn *store.Message
	if produced {
		// Fixed part order: reasoning precedes the visible answer.
		var parts store.Parts
		if reasoning != "" {
			parts = append(parts, store.ReasoningPart(reasoning))
		}
		if text != "" {
			parts = append(parts, store.TextPart(text))
		}
		assistantTurn = &store.Message{
			ID:        assistantID,
			Role:      store.RoleAssistant,
			Parts:     parts,
			CreatedAt: base.Add(time.Millisecond),
			Tokens:    usage.TotalTokens,
		}
		record(s.persistMessage(req.ConversationID, assistantTurn))
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	record(s.store.BumpConversation(ctx, req.ConversationID, usage.TotalTokens))
	cancel()

	// On a regeneration the caller re-used the user turn id and pre-assigned
	// the assistant id; drafts that followed the original user turn are now
	// orphaned. Prune only once a replacement was actually written.
	if req.AssistantID != "" && produced {
		keep := keepSetForRegeneration(history, userID, assistantID)
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		record(s.store.PruneMessages(ctx, req.ConversationID, keep))
		cancel()
	}

	if firstErr == nil && s.bcast != nil {
		s.bcast.Publish(req.ConversationID, userTurn)
		if assistantTurn != nil {
			s.bcast.Publish(req.ConversationID, assistantTurn)
		}
	}

	s.logger.Debug("turns reconciled",
		"conversation_id", req.ConversationID,
		"assistant_written", produced,
		"total_tokens", usage.TotalTokens)
	return firstErr
}

// persistMessage writes one turn with its own timeout context.
func (s *Service) persistMessage(conversationID string, msg *store.Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := s.store.AppendMessage(ctx, conversationID, msg); err != nil {
		return fmt.Errorf("persisting %s turn %s: %w", msg.Role, msg.ID, err)
	}
	return nil
}

// keepSetForRegeneration computes the surviving message ids after a
// regeneration: everything up to and including the regenerated user turn,
// plus the replacement pair. Drafts that followed the user turn are dropped.
func keepSetForRegeneration(history []*store.Message, userID, assistantID string) map[string]bool {
	keep := map[string]bool{userID: true, assistantID: true}

	var userCreatedAt time.Time
	found := false
	for _, msg := range history {
		if msg.ID == userID {
			userCreatedAt = msg.CreatedAt
			found = true
			break
		}
	}

	for _, msg := range history {
		if found && msg.CreatedAt.After(userCreatedAt) {
			continue
		}
		keep[msg.ID] = true
	}
	return keep
}
