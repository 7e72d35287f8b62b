package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"messenger-relay/internal/conversation"
)

// SQLite is a Conversations implementation backed by a local SQLite file.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path and ensures the schema.
func NewSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure database dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL UNIQUE,
			session_handle TEXT NOT NULL DEFAULT '',
			history TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Load(ctx context.Context, userID string) (*conversation.Record, error) {
	var (
		id      string
		session string
		history string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, session_handle, history FROM conversations WHERE user_id = ?", userID).
		Scan(&id, &session, &history)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select conversation: %w", err)
	}
	return &conversation.Record{
		ID:            id,
		UserID:        userID,
		SessionHandle: session,
		Turns:         conversation.DecodeHistory(history),
	}, nil
}

func (s *SQLite) Save(ctx context.Context, rec *conversation.Record) error {
	history, err := conversation.EncodeHistory(rec.Turns)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	now := time.Now().UTC()

	if rec.ID != "" {
		_, err := s.db.ExecContext(ctx,
			"UPDATE conversations SET session_handle = ?, history = ?, updated_at = ? WHERE id = ?",
			rec.SessionHandle, history, now, rec.ID)
		if err != nil {
			return fmt.Errorf("update conversation: %w", err)
		}
		return nil
	}

	// Create. The unique user_id index absorbs the race where a concurrent
	// delivery for the same user created the row first; read the winning id
	// back afterwards.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, session_handle, history, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			session_handle = excluded.session_handle,
			history = excluded.history,
			updated_at = excluded.updated_at`,
		uuid.NewString(), rec.UserID, rec.SessionHandle, history, now, now)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		"SELECT id FROM conversations WHERE user_id = ?", rec.UserID).Scan(&rec.ID); err != nil {
		return fmt.Errorf("read back conversation id: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error { return s.db.Close() }
