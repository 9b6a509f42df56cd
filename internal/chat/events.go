// Copyright (c) 2025 Encadri Project
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat wraps a hub connection scoped to the chat hub: room
// lifecycle, message send, typing indicators, read receipts, reactions
// and presence, as typed operations and event streams.
package chat

import (
	"time"

	"github.com/bahadhay/encadri-tui/internal/model"
)

// Hub event names pushed by the chat hub.
const (
	EventReceiveMessage  = "ReceiveMessage"
	EventTypingIndicator = "TypingIndicator"
	EventMessageRead     = "MessageRead"
	EventUserOnline      = "UserOnline"
	EventUserOffline     = "UserOffline"
	EventUserJoinedRoom  = "UserJoinedRoom"
	EventUserLeftRoom    = "UserLeftRoom"
	EventReactionUpdated = "ReactionUpdated"
	EventUserLastSeen    = "UserLastSeenUpdated"
)

// Hub method names invoked on the chat hub.
const (
	methodJoinRoom       = "JoinRoom"
	methodLeaveRoom      = "LeaveRoom"
	methodSendMessage    = "SendMessage"
	methodSendTyping     = "SendTypingIndicator"
	methodMarkRead       = "MarkMessageAsRead"
	methodGetOnlineUsers = "GetOnlineUsers"
	methodGetMessages    = "GetMessages"
	methodToggleReaction = "ToggleReaction"
	methodUpdateLastSeen = "UpdateLastSeen"
)

// =============================================================================
// EVENT PAYLOADS
// =============================================================================

// Event payloads are parsed into closed types at the connection boundary
// so reconciliation logic downstream never shape-checks raw JSON.

// ReadReceipt reports that a message was read. It is broadcast to the
// sender's sessions, not back to the reader.
type ReadReceipt struct {
	MessageID   string    `json:"messageId"`
	ReaderEmail string    `json:"readerEmail"`
	ReadAt      time.Time `json:"readAt"`
}

// PresenceChange reports a user coming online.
type PresenceChange struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// RoomPresence reports a user joining or leaving a room.
type RoomPresence struct {
	RoomID    string `json:"roomId"`
	UserEmail string `json:"userEmail"`
}

// ReactionUpdate carries the full replacement reaction set for a message.
// The server is authoritative: local lists are replaced, never merged.
type ReactionUpdate struct {
	MessageID string           `json:"messageId"`
	Reactions []model.Reaction `json:"reactions"`
}

// LastSeenUpdate reports a user's last-seen timestamp.
type LastSeenUpdate struct {
	Email    string    `json:"email"`
	LastSeen time.Time `json:"lastSeen"`
}

// =============================================================================
// REQUEST DTOS
// =============================================================================

// SendMessageRequest is the outbound message DTO. Delivery is
// fire-and-forget: no local id is assigned, and the message becomes
// visible only when the server echoes it through ReceiveMessage.
type SendMessageRequest struct {
	ConversationID string            `json:"conversationId"`
	RoomID         string            `json:"roomId"`
	RecipientEmail string            `json:"recipientEmail"`
	Content        string            `json:"content"`
	Kind           model.Kind        `json:"kind"`
	ReplyTo        *model.ReplyRef   `json:"replyTo,omitempty"`
	Attachment     *model.Attachment `json:"attachment,omitempty"`
}

// ToggleReactionRequest toggles one emoji for one actor on one message.
type ToggleReactionRequest struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
	UserEmail string `json:"userEmail"`
	UserName  string `json:"userName,omitempty"`
}
