// Copyright (c) 2025 Encadri Project
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures shared by the chat and
// notification clients: messages, reactions, presence and typing state.
package model

import (
	"sort"
	"strings"
	"time"
)

// =============================================================================
// MESSAGE KIND
// =============================================================================

// Kind classifies a chat message.
type Kind string

const (
	KindText   Kind = "text"
	KindSystem Kind = "system"
	KindFile   Kind = "file"
	KindImage  Kind = "image"
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// Valid reports whether the kind is one of the known message kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindSystem, KindFile, KindImage:
		return true
	}
	return false
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Reaction is one emoji reaction on a message. The server keeps the
// authoritative set; clients always replace their local list with the
// pushed snapshot instead of applying deltas.
type Reaction struct {
	Emoji     string    `json:"emoji"`
	UserEmail string    `json:"userEmail"`
	UserName  string    `json:"userName,omitempty"`
	ReactedAt time.Time `json:"reactedAt"`
}

// Attachment describes a file or image referenced by a message. The URL
// must point at durable storage; messages are never sent with local-only
// attachment references.
type Attachment struct {
	URL         string `json:"url"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}

// ReplyRef references an earlier message being replied to, with a cached
// snapshot of its content and sender for rendering. The server does not
// guarantee the target is still visible to the client.
type ReplyRef struct {
	MessageID  string `json:"messageId"`
	Content    string `json:"content,omitempty"`
	SenderName string `json:"senderName,omitempty"`
}

// Message is a single chat message as exchanged with the hub. ID is
// server-assigned and absent until the server echoes the message back.
type Message struct {
	ID             string `json:"id,omitempty"`
	ProjectID      string `json:"projectId,omitempty"`
	ConversationID string `json:"conversationId"`

	SenderEmail    string `json:"senderEmail"`
	SenderName     string `json:"senderName,omitempty"`
	RecipientEmail string `json:"recipientEmail,omitempty"`

	Content string `json:"content"`
	Kind    Kind   `json:"kind"`

	IsRead bool       `json:"isRead"`
	ReadAt *time.Time `json:"readAt,omitempty"`

	ReplyTo    *ReplyRef   `json:"replyTo,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
	Reactions  []Reaction  `json:"reactions,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// IsFromSelf reports whether the message was sent by the given user.
func (m *Message) IsFromSelf(email string) bool {
	return strings.EqualFold(m.SenderEmail, email)
}

// Between reports whether the message belongs to the 1:1 conversation
// between the two given participants, in either direction.
func (m *Message) Between(a, b string) bool {
	return (strings.EqualFold(m.SenderEmail, a) && strings.EqualFold(m.RecipientEmail, b)) ||
		(strings.EqualFold(m.SenderEmail, b) && strings.EqualFold(m.RecipientEmail, a))
}

// HasReaction reports whether the given user already reacted with emoji.
func (m *Message) HasReaction(emoji, email string) bool {
	for _, r := range m.Reactions {
		if r.Emoji == emoji && strings.EqualFold(r.UserEmail, email) {
			return true
		}
	}
	return false
}

// Preview returns the content truncated to maxLen runes for list display.
func (m *Message) Preview(maxLen int) string {
	runes := []rune(m.Content)
	if len(runes) <= maxLen {
		return m.Content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// =============================================================================
// ROOM ID DERIVATION
// =============================================================================

// RoomID derives the deterministic conversation identifier for a 1:1 pair.
// Both ends derive the same id regardless of who initiates: emails are
// lowercased, sorted lexicographically and joined. This is what makes a
// room join idempotent across both participants.
func RoomID(a, b string) string {
	pair := []string{strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))}
	sort.Strings(pair)
	return pair[0] + "_" + pair[1]
}
