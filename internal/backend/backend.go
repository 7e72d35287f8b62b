// Package backend exposes one capability to the relay: produce a reply for a
// user message given the stored conversation state. The concrete responder
// is chosen once at startup; the variants differ in who owns conversational
// memory (the caller, the backend, or nobody).
package backend

import (
	"context"

	"messenger-relay/internal/conversation"
)

// Result is the outcome of one backend invocation. History is the full
// transcript the backend wants persisted going forward; callers persist it
// verbatim instead of merging. Session is the continuation token to store
// for stateful backends (unchanged pass-through otherwise).
type Result struct {
	Reply   string
	History []conversation.Turn
	Session string
}

// Responder produces a reply for a new user message. prior is the stored
// transcript, session the stored continuation token (may be empty). Any
// transport error, non-success status or malformed response comes back as an
// ordinary error; implementations never panic across this boundary.
type Responder interface {
	Respond(ctx context.Context, prior []conversation.Turn, userText, session string) (*Result, error)
}

// appendExchange extends prior with the new user turn and the produced reply
// without aliasing the caller's slice.
func appendExchange(prior []conversation.Turn, userText, reply string) []conversation.Turn {
	out := make([]conversation.Turn, 0, len(prior)+2)
	out = append(out, prior...)
	out = append(out,
		conversation.NewTurn(conversation.RoleUser, userText),
		conversation.NewTurn(conversation.RoleAssistant, reply),
	)
	return out
}
