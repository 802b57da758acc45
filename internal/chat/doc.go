// ABOUTME: Package documentation for the chat package
// ABOUTME: Describes window assembly, the generation driver, and the session reconciler

// Package chat contains the conversation streaming-and-persistence core.
//
// Three pieces cooperate per turn:
//
//   - AssembleWindow builds a bounded, pruned context window from stored
//     history plus the new user turn. History beyond the window stays in the
//     store; the window only limits what the provider sees.
//
//   - Generation (the driver) wraps a provider stream into a finite event
//     sequence with a guaranteed terminal done, aggregating usage and
//     enforcing the wall-clock ceiling. Cancellation and timeout surface as
//     an error variant; partial output is never retracted.
//
//   - Service (the reconciler) orchestrates a turn: authorize, assemble,
//     generate, stream outward, then persist exactly the turns that were
//     produced. Consumption runs on a context detached from the request, so
//     a client disconnect stops outward delivery only — persistence is
//     attempted regardless. Generation failures and persistence failures are
//     distinct terminal events; the caller can always tell them apart.
//
// The design assumes at most one in-flight turn per conversation; Service
// enforces it with ErrGenerationInFlight rather than leaving interleaving
// undefined. Broadcaster fans persisted turns out to other live clients of
// the same conversation.
package chat
