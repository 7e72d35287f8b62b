// Package store persists per-user conversation records. Implementations can
// be remote (Airtable), local (SQLite) or in-memory.
package store

import (
	"context"

	"messenger-relay/internal/conversation"
)

// Conversations abstracts the conversation store. At most one record exists
// per external user id.
//
// Load returns (nil, nil) when no record exists yet. A transport or store
// failure returns an error; callers are expected to degrade to an empty
// history and let a later Save perform the create.
//
// Save updates the row named by rec.ID, or creates one and assigns rec.ID
// when it is empty. The assigned ID is what makes repeated saves idempotent.
// Implementations must be safe for concurrent use.
type Conversations interface {
	Load(ctx context.Context, userID string) (*conversation.Record, error)
	Save(ctx context.Context, rec *conversation.Record) error
}
