// Copyright (c) 2025 Encadri Project
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cache is the local message history cache. It keeps the last
// messages of each conversation in a sqlite database so the chat view
// can show something while the server is unreachable. Cached history is
// always presented as stale; server history replaces it on the next
// successful fetch.
package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/bahadhay/encadri-tui/internal/model"
)

// MessageCache stores serialized messages keyed by conversation.
type MessageCache struct {
	db *sql.DB
}

// Open opens or creates the cache database at path.
func Open(path string) (*MessageCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	c := &MessageCache{db: db}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate cache: %w", err)
	}
	return c, nil
}

// Close closes the underlying database.
func (c *MessageCache) Close() error {
	return c.db.Close()
}

func (c *MessageCache) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS cached_messages (
			conversation_id TEXT NOT NULL,
			message_id TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			payload TEXT NOT NULL,
			PRIMARY KEY (conversation_id, message_id)
		);

		CREATE INDEX IF NOT EXISTS idx_cached_messages_conversation
			ON cached_messages(conversation_id, created_at);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Put inserts or replaces one message.
func (c *MessageCache) Put(msg model.Message) error {
	if msg.ID == "" || msg.ConversationID == "" {
		return fmt.Errorf("message missing id or conversation id")
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize message: %w", err)
	}
	_, err = c.db.Exec(`
		INSERT INTO cached_messages (conversation_id, message_id, created_at, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(conversation_id, message_id) DO UPDATE SET
			created_at = excluded.created_at,
			payload = excluded.payload
	`, msg.ConversationID, msg.ID, msg.CreatedAt.UTC(), string(payload))
	return err
}

// ReplaceConversation atomically swaps a conversation's cached history
// for a fresh server snapshot.
func (c *MessageCache) ReplaceConversation(conversationID string, msgs []model.Message) error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM cached_messages WHERE conversation_id = ?`, conversationID); err != nil {
		return err
	}
	for _, msg := range msgs {
		if msg.ID == "" {
			continue
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to serialize message %s: %w", msg.ID, err)
		}
		_, err = tx.Exec(`
			INSERT INTO cached_messages (conversation_id, message_id, created_at, payload)
			VALUES (?, ?, ?, ?)
		`, conversationID, msg.ID, msg.CreatedAt.UTC(), string(payload))
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// History returns up to limit cached messages for a conversation, oldest
// first. A limit <= 0 returns everything.
func (c *MessageCache) History(conversationID string, limit int) ([]model.Message, error) {
	query := `
		SELECT payload FROM cached_messages
		WHERE conversation_id = ?
		ORDER BY created_at DESC
	`
	args := []any{conversationID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var msg model.Message
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			// A corrupt row is skipped rather than failing the whole read.
			continue
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Newest-limit rows were selected descending; flip to display order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Prune removes all but the newest keep messages per conversation.
func (c *MessageCache) Prune(conversationID string, keep int) error {
	if keep <= 0 {
		_, err := c.db.Exec(`DELETE FROM cached_messages WHERE conversation_id = ?`, conversationID)
		return err
	}
	_, err := c.db.Exec(`
		DELETE FROM cached_messages
		WHERE conversation_id = ? AND message_id NOT IN (
			SELECT message_id FROM cached_messages
			WHERE conversation_id = ?
			ORDER BY created_at DESC
			LIMIT ?
		)
	`, conversationID, conversationID, keep)
	return err
}
