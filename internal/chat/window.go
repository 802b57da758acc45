// ABOUTME: Context window assembly with bounded history and pruning rules
// ABOUTME: Converts stored turns plus the new turn into provider-agnostic model turns

package chat

import (
	"errors"

	"github.com/strandchat/strand/internal/provider"
	"github.com/strandchat/strand/internal/store"
)

// ErrEmptyTurn is returned when the submitted turn has no content parts.
var ErrEmptyTurn = errors.New("turn has no content parts")

// DefaultMaxPriorTurns is the default window bound: how many stored turns are
// sent to the provider alongside the new turn. Full history stays in the
// store regardless; the window only limits provider context and token cost.
const DefaultMaxPriorTurns = 3

// WindowPolicy bounds and filters the context sent to the model provider.
type WindowPolicy struct {
	// MaxPriorTurns is the number of most recent stored turns to include.
	MaxPriorTurns int
	// KeepReasoning retains reasoning segments from prior turns. Off by
	// default: reasoning is provider-session-specific and must not be
	// replayed as fact.
	KeepReasoning bool
}

// DefaultWindowPolicy returns the standard policy.
func DefaultWindowPolicy() WindowPolicy {
	return WindowPolicy{MaxPriorTurns: DefaultMaxPriorTurns}
}

// AssembleWindow builds the provider context: the most recent MaxPriorTurns
// stored turns plus the new turn, pruned in order: (1) unsupported segment
// types (tool traffic, sources, unknown variants) are dropped, (2) reasoning
// is dropped from prior turns, (3) turns left empty are dropped entirely.
// The result never exceeds MaxPriorTurns+1 turns.
//
// An empty new turn fails with ErrEmptyTurn; callers must not submit one.
func AssembleWindow(prior []*store.Message, newTurn *store.Message, policy WindowPolicy) ([]provider.Turn, error) {
	if newTurn == nil || newTurn.Parts.Empty() {
		return nil, ErrEmptyTurn
	}
	if policy.MaxPriorTurns < 0 {
		policy.MaxPriorTurns = 0
	}

	if len(prior) > policy.MaxPriorTurns {
		prior = prior[len(prior)-policy.MaxPriorTurns:]
	}

	turns := make([]provider.Turn, 0, len(prior)+1)
	for _, msg := range prior {
		turn, ok := convertTurn(msg, policy.KeepReasoning)
		if !ok {
			continue
		}
		turns = append(turns, turn)
	}

	turn, ok := convertTurn(newTurn, true)
	if !ok {
		return nil, ErrEmptyTurn
	}
	turns = append(turns, turn)

	return turns, nil
}

// convertTurn flattens a stored message into a provider turn. Returns false
// when nothing survives pruning.
func convertTurn(msg *store.Message, keepReasoning bool) (provider.Turn, bool) {
	turn := provider.Turn{Role: msg.Role}

	var text string
	for _, part := range msg.Parts {
		switch part.Type {
		case store.PartTypeText:
			text += part.Text
		case store.PartTypeReasoning:
			if keepReasoning {
				text += part.Text
			}
		case store.PartTypeFile:
			turn.Attachments = append(turn.Attachments, provider.Attachment{
				MediaType: part.MediaType,
				URL:       part.URL,
				Filename:  part.Filename,
			})
		default:
			// sources and unknown variants are never replayed
		}
	}

	turn.Text = text
	if turn.Text == "" && len(turn.Attachments) == 0 {
		return provider.Turn{}, false
	}
	return turn, true
}
