// ABOUTME: Generation driver wrapping a provider stream into a finite event sequence
// ABOUTME: Owns the wall-clock ceiling, cancellation, usage aggregation, and terminal done

package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/strandchat/strand/internal/provider"
)

// StreamEventType identifies an outward stream event.
type StreamEventType string

const (
	// EventText carries an incremental chunk of answer text.
	EventText StreamEventType = "text"
	// EventReasoning carries an incremental chunk of visible reasoning.
	EventReasoning StreamEventType = "reasoning"
	// EventUsage carries the aggregated token counts, emitted near done.
	EventUsage StreamEventType = "usage"
	// EventError reports a generation failure. The stream still terminates
	// with done so consumers always get a terminal signal.
	EventError StreamEventType = "error"
	// EventPersistenceFailed reports that the generation streamed but could
	// not be durably stored. Distinct from EventError: the two failure
	// domains must be distinguishable by the caller.
	EventPersistenceFailed StreamEventType = "persistence_failed"
	// EventDone terminates every stream, exactly once.
	EventDone StreamEventType = "done"
)

// StreamEvent is one element of the outward turn stream.
type StreamEvent struct {
	Type  StreamEventType
	Text  string          // for text/reasoning
	Usage *provider.Usage // for usage
	Err   string          // for error / persistence_failed
}

// GenerationState tracks a generation through its lifecycle.
type GenerationState int

const (
	StatePending GenerationState = iota
	StateStreaming
	StateCompleted
	StateFailed
	StateFinalized
)

// cancelReasonStopped is reported when the caller cancels a generation.
const cancelReasonStopped = "generation cancelled"

// cancelReasonTimeout is reported when the wall-clock ceiling expires.
const cancelReasonTimeout = "generation timed out"

// Generation is a handle to one in-flight model generation. Its event
// channel is lazy, append-only, finite, and non-restartable: the pump closes
// it after a single terminal done, which is emitted on completion, provider
// error, cancellation, and timeout alike.
type Generation struct {
	events chan StreamEvent

	mu           sync.Mutex
	state        GenerationState
	cancelReason string
	usage        *provider.Usage
	errText      string

	cancel context.CancelFunc
	logger *slog.Logger
}

// startGeneration invokes the provider and begins pumping events. ctx should
// already be detached from the client connection; the driver layers the
// timeout ceiling on top. The returned handle never fails to produce a
// stream: a provider call that errors immediately yields error then done.
func startGeneration(ctx context.Context, p provider.Provider, req provider.Request, timeout time.Duration, logger *slog.Logger) *Generation {
	genCtx, cancel := context.WithCancel(ctx)

	g := &Generation{
		events: make(chan StreamEvent, 64),
		state:  StatePending,
		cancel: cancel,
		logger: logger.With("model", req.Model),
	}

	if timeout > 0 {
		time.AfterFunc(timeout, func() {
			g.cancelWithReason(cancelReasonTimeout)
		})
	}

	go g.pump(genCtx, p, req)
	return g
}

// Events returns the event stream. It terminates with exactly one done.
func (g *Generation) Events() <-chan StreamEvent {
	return g.events
}

// Cancel signals the provider to stop generating. Best effort: events
// already emitted are not retracted, and partial output still flows to
// persistence.
func (g *Generation) Cancel() {
	g.cancelWithReason(cancelReasonStopped)
}

// State returns the current lifecycle state.
func (g *Generation) State() GenerationState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Usage returns the aggregated token counts, zero-valued if the provider
// reported none. Stable once the stream has terminated.
func (g *Generation) Usage() provider.Usage {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.usage == nil {
		return provider.Usage{}
	}
	return *g.usage
}

// finalize marks the generation finalized once persistence has been
// attempted, regardless of the persistence outcome.
func (g *Generation) finalize() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = StateFinalized
}

func (g *Generation) cancelWithReason(reason string) {
	g.mu.Lock()
	if g.state != StatePending && g.state != StateStreaming {
		g.mu.Unlock()
		return
	}
	if g.cancelReason == "" {
		g.cancelReason = reason
	}
	g.mu.Unlock()
	g.cancel()
}

// pump consumes the provider stream, normalizes events, and guarantees the
// error-then-done terminal sequence.
func (g *Generation) pump(ctx context.Context, p provider.Provider, req provider.Request) {
	defer close(g.events)
	defer g.cancel()

	g.setState(StateStreaming)

	src, err := p.Stream(ctx, req)
	if err != nil {
		g.fail(err.Error())
		return
	}

	sawError := false
	for ev := range src {
		switch ev.Type {
		case provider.EventTextDelta:
			g.events <- StreamEvent{Type: EventText, Text: ev.Text}
		case provider.EventReasoningDelta:
			g.events <- StreamEvent{Type: EventReasoning, Text: ev.Text}
		case provider.EventUsage:
			g.mu.Lock()
			g.usage = ev.Usage
			g.mu.Unlock()
		case provider.EventError:
			// Remaining buffered events still flow; done comes after the
			// channel drains.
			sawError = true
			g.setError(ev.Err)
			g.events <- StreamEvent{Type: EventError, Err: ev.Err}
		}
	}

	// A cancelled or timed-out generation surfaces as an error variant so
	// the caller sees why the stream stopped early.
	g.mu.Lock()
	reason := g.cancelReason
	g.mu.Unlock()
	if reason != "" && !sawError {
		sawError = true
		g.setError(reason)
		g.events <- StreamEvent{Type: EventError, Err: reason}
	}

	g.events <- StreamEvent{Type: EventUsage, Usage: g.usagePtr()}

	if sawError {
		g.setState(StateFailed)
	} else {
		g.setState(StateCompleted)
	}
	g.events <- StreamEvent{Type: EventDone}
}

// fail emits the terminal sequence for a generation that never streamed.
func (g *Generation) fail(errText string) {
	g.setError(errText)
	g.events <- StreamEvent{Type: EventError, Err: errText}
	g.events <- StreamEvent{Type: EventUsage, Usage: g.usagePtr()}
	g.setState(StateFailed)
	g.events <- StreamEvent{Type: EventDone}
}

func (g *Generation) usagePtr() *provider.Usage {
	u := g.Usage()
	return &u
}

func (g *Generation) setState(s GenerationState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	// Finalized is sticky
	if g.state == StateFinalized {
		return
	}
	g.state = s
}

func (g *Generation) setError(text string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.errText == "" {
		g.errText = text
	}
}
