package store

import (
	"context"
	"fmt"
	"sync"

	"messenger-relay/internal/conversation"
)

// Memory is an in-process Conversations implementation for tests and
// credential-less development runs. Records are kept as their serialized
// form so the encode/decode path is exercised the same way as in the
// external stores.
type Memory struct {
	mu     sync.Mutex
	rows   map[string]*memoryRow // keyed by record ID
	byUser map[string]string     // user id -> record ID
	next   int
}

type memoryRow struct {
	userID  string
	session string
	history string
}

func NewMemory() *Memory {
	return &Memory{
		rows:   make(map[string]*memoryRow),
		byUser: make(map[string]string),
	}
}

func (m *Memory) Load(_ context.Context, userID string) (*conversation.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byUser[userID]
	if !ok {
		return nil, nil
	}
	row := m.rows[id]
	return &conversation.Record{
		ID:            id,
		UserID:        row.userID,
		SessionHandle: row.session,
		Turns:         conversation.DecodeHistory(row.history),
	}, nil
}

func (m *Memory) Save(_ context.Context, rec *conversation.Record) error {
	history, err := conversation.EncodeHistory(rec.Turns)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		if id, ok := m.byUser[rec.UserID]; ok {
			// Row already created by a concurrent save for the same user.
			rec.ID = id
		} else {
			m.next++
			rec.ID = fmt.Sprintf("mem-%d", m.next)
			m.byUser[rec.UserID] = rec.ID
		}
	}
	m.rows[rec.ID] = &memoryRow{userID: rec.UserID, session: rec.SessionHandle, history: history}
	return nil
}

// Len reports the number of stored rows.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}
