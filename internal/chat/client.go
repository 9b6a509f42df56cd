// Copyright (c) 2025 Encadri Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/bahadhay/encadri-tui/internal/hub"
	"github.com/bahadhay/encadri-tui/internal/model"
)

// Conn is the slice of the hub connection the chat client needs.
// *hub.Connection satisfies it; tests substitute fakes.
type Conn interface {
	Start(ctx context.Context, identity hub.Identity) error
	Stop()
	State() hub.State
	Invoke(ctx context.Context, target string, result any, args ...any) error
	On(event string, h hub.EventHandler)
	OnStateChange(f func(hub.State))
}

// =============================================================================
// CHAT SESSION CLIENT
// =============================================================================

// Client owns one hub connection scoped to the chat hub. It translates
// raw pushed events into typed payloads at the boundary and fans them out
// to subscribers in registration order. Joined rooms are tracked so they
// can be re-joined after an automatic reconnect.
type Client struct {
	conn     Conn
	identity hub.Identity
	logger   *log.Logger

	mu     sync.RWMutex
	joined map[string]struct{}

	onMessage  []func(model.Message)
	onTyping   []func(model.TypingIndicator)
	onRead     []func(ReadReceipt)
	onReaction []func(ReactionUpdate)
	onOnline   []func(PresenceChange)
	onOffline  []func(email string)
	onJoined   []func(RoomPresence)
	onLeft     []func(RoomPresence)
	onLastSeen []func(LastSeenUpdate)
}

// NewClient creates a chat session client over the given connection.
func NewClient(conn Conn, identity hub.Identity) *Client {
	c := &Client{
		conn:     conn,
		identity: identity,
		logger:   log.Default(),
		joined:   make(map[string]struct{}),
	}
	c.registerHandlers()
	conn.OnStateChange(c.handleStateChange)
	return c
}

// WithLogger sets the logger used for dropped-event diagnostics.
func (c *Client) WithLogger(l *log.Logger) *Client {
	if l != nil {
		c.logger = l
	}
	return c
}

// Identity returns the identity this client connects as.
func (c *Client) Identity() hub.Identity {
	return c.identity
}

// Start establishes the chat hub session.
func (c *Client) Start(ctx context.Context) error {
	return c.conn.Start(ctx, c.identity)
}

// Stop tears down the chat hub session.
func (c *Client) Stop() {
	c.conn.Stop()
}

// State returns the underlying connection state.
func (c *Client) State() hub.State {
	return c.conn.State()
}

// =============================================================================
// OPERATIONS
// =============================================================================

// JoinRoom tells the hub this connection is interested in a room. Join is
// idempotent server-side and safe to repeat.
func (c *Client) JoinRoom(ctx context.Context, roomID string) error {
	if err := c.conn.Invoke(ctx, methodJoinRoom, nil, roomID, c.identity.Email); err != nil {
		return err
	}
	c.mu.Lock()
	c.joined[roomID] = struct{}{}
	c.mu.Unlock()
	return nil
}

// LeaveRoom withdraws interest in a room.
func (c *Client) LeaveRoom(ctx context.Context, roomID string) error {
	c.mu.Lock()
	delete(c.joined, roomID)
	c.mu.Unlock()
	return c.conn.Invoke(ctx, methodLeaveRoom, nil, roomID, c.identity.Email)
}

// SendMessage submits a message. The caller must not assume it is visible
// until the corresponding ReceiveMessage event arrives.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) error {
	return c.conn.Invoke(ctx, methodSendMessage, nil, req)
}

// SendTypingIndicator signals typing state for a room. Best-effort;
// callers are expected to debounce and to send an explicit stop.
func (c *Client) SendTypingIndicator(ctx context.Context, roomID string, isTyping bool) error {
	return c.conn.Invoke(ctx, methodSendTyping, nil, roomID, c.identity.Email, c.identity.Name, isTyping)
}

// MarkMessageAsRead informs the server a message was read. The resulting
// MessageRead event goes to the sender's sessions, not the reader's.
func (c *Client) MarkMessageAsRead(ctx context.Context, messageID string) error {
	return c.conn.Invoke(ctx, methodMarkRead, nil, messageID, c.identity.Email)
}

// ToggleReaction adds the emoji if the actor does not already have it on
// the message, removes it otherwise. The pushed ReactionUpdated snapshot
// is authoritative for the resulting set.
func (c *Client) ToggleReaction(ctx context.Context, messageID, emoji string) error {
	req := ToggleReactionRequest{
		MessageID: messageID,
		Emoji:     emoji,
		UserEmail: c.identity.Email,
		UserName:  c.identity.Name,
	}
	return c.conn.Invoke(ctx, methodToggleReaction, nil, req)
}

// GetMessages fetches paged history for the 1:1 pair (self, other) within
// a conversation.
func (c *Client) GetMessages(ctx context.Context, conversationID string, limit int, otherEmail string) ([]model.Message, error) {
	var msgs []model.Message
	err := c.conn.Invoke(ctx, methodGetMessages, &msgs, conversationID, limit, c.identity.Email, otherEmail)
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// GetOnlineUsers requests a point-in-time snapshot of online users.
func (c *Client) GetOnlineUsers(ctx context.Context) ([]model.Presence, error) {
	var users []model.Presence
	if err := c.conn.Invoke(ctx, methodGetOnlineUsers, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// UpdateLastSeen reports activity for the connected user.
func (c *Client) UpdateLastSeen(ctx context.Context) error {
	return c.conn.Invoke(ctx, methodUpdateLastSeen, nil, c.identity.Email)
}

// =============================================================================
// EVENT SUBSCRIPTION
// =============================================================================

// OnMessage subscribes to new messages.
func (c *Client) OnMessage(f func(model.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = append(c.onMessage, f)
}

// OnTyping subscribes to typing-indicator changes.
func (c *Client) OnTyping(f func(model.TypingIndicator)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTyping = append(c.onTyping, f)
}

// OnMessageRead subscribes to read receipts.
func (c *Client) OnMessageRead(f func(ReadReceipt)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRead = append(c.onRead, f)
}

// OnReactionUpdated subscribes to reaction-set replacement snapshots.
func (c *Client) OnReactionUpdated(f func(ReactionUpdate)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReaction = append(c.onReaction, f)
}

// OnUserOnline subscribes to users coming online.
func (c *Client) OnUserOnline(f func(PresenceChange)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onOnline = append(c.onOnline, f)
}

// OnUserOffline subscribes to users going offline.
func (c *Client) OnUserOffline(f func(email string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onOffline = append(c.onOffline, f)
}

// OnUserJoinedRoom subscribes to room join notifications.
func (c *Client) OnUserJoinedRoom(f func(RoomPresence)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onJoined = append(c.onJoined, f)
}

// OnUserLeftRoom subscribes to room leave notifications.
func (c *Client) OnUserLeftRoom(f func(RoomPresence)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLeft = append(c.onLeft, f)
}

// OnLastSeenUpdated subscribes to last-seen updates.
func (c *Client) OnLastSeenUpdated(f func(LastSeenUpdate)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLastSeen = append(c.onLastSeen, f)
}

// OnStateChange exposes connection-state transitions to callers.
func (c *Client) OnStateChange(f func(hub.State)) {
	c.conn.OnStateChange(f)
}

// =============================================================================
// EVENT TRANSLATION
// =============================================================================

// registerHandlers installs the raw-to-typed boundary. Payloads that do
// not parse are logged and dropped; a malformed frame must never take the
// event loop down.
func (c *Client) registerHandlers() {
	c.conn.On(EventReceiveMessage, func(data json.RawMessage) {
		var msg model.Message
		if !c.parse(EventReceiveMessage, data, &msg) {
			return
		}
		if !msg.Kind.Valid() {
			msg.Kind = model.KindText
		}
		for _, f := range c.messageSubs() {
			f(msg)
		}
	})

	c.conn.On(EventTypingIndicator, func(data json.RawMessage) {
		var ind model.TypingIndicator
		if !c.parse(EventTypingIndicator, data, &ind) {
			return
		}
		for _, f := range c.typingSubs() {
			f(ind)
		}
	})

	c.conn.On(EventMessageRead, func(data json.RawMessage) {
		var receipt ReadReceipt
		if !c.parse(EventMessageRead, data, &receipt) {
			return
		}
		for _, f := range c.readSubs() {
			f(receipt)
		}
	})

	c.conn.On(EventReactionUpdated, func(data json.RawMessage) {
		var update ReactionUpdate
		if !c.parse(EventReactionUpdated, data, &update) {
			return
		}
		for _, f := range c.reactionSubs() {
			f(update)
		}
	})

	c.conn.On(EventUserOnline, func(data json.RawMessage) {
		var change PresenceChange
		if !c.parse(EventUserOnline, data, &change) {
			return
		}
		for _, f := range c.onlineSubs() {
			f(change)
		}
	})

	c.conn.On(EventUserOffline, func(data json.RawMessage) {
		var change PresenceChange
		if !c.parse(EventUserOffline, data, &change) {
			return
		}
		for _, f := range c.offlineSubs() {
			f(change.Email)
		}
	})

	c.conn.On(EventUserJoinedRoom, func(data json.RawMessage) {
		var rp RoomPresence
		if !c.parse(EventUserJoinedRoom, data, &rp) {
			return
		}
		for _, f := range c.joinedSubs() {
			f(rp)
		}
	})

	c.conn.On(EventUserLeftRoom, func(data json.RawMessage) {
		var rp RoomPresence
		if !c.parse(EventUserLeftRoom, data, &rp) {
			return
		}
		for _, f := range c.leftSubs() {
			f(rp)
		}
	})

	c.conn.On(EventUserLastSeen, func(data json.RawMessage) {
		var update LastSeenUpdate
		if !c.parse(EventUserLastSeen, data, &update) {
			return
		}
		for _, f := range c.lastSeenSubs() {
			f(update)
		}
	})
}

func (c *Client) parse(event string, data json.RawMessage, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		c.logger.Printf("chat: dropping %s event: %v", event, err)
		return false
	}
	return true
}

// handleStateChange re-joins tracked rooms after an automatic reconnect.
// Events lost while disconnected are not replayed; the view layer
// refreshes history instead.
func (c *Client) handleStateChange(s hub.State) {
	if s != hub.StateConnected {
		return
	}
	c.mu.RLock()
	rooms := make([]string, 0, len(c.joined))
	for room := range c.joined {
		rooms = append(rooms, room)
	}
	c.mu.RUnlock()
	for _, room := range rooms {
		if err := c.conn.Invoke(context.Background(), methodJoinRoom, nil, room, c.identity.Email); err != nil {
			c.logger.Printf("chat: rejoin %s failed: %v", room, err)
		}
	}
}

// Subscriber snapshots: fan-out happens outside the lock so handlers may
// subscribe further without deadlocking.

func (c *Client) messageSubs() []func(model.Message) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]func(model.Message){}, c.onMessage...)
}

func (c *Client) typingSubs() []func(model.TypingIndicator) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]func(model.TypingIndicator){}, c.onTyping...)
}

func (c *Client) readSubs() []func(ReadReceipt) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]func(ReadReceipt){}, c.onRead...)
}

func (c *Client) reactionSubs() []func(ReactionUpdate) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]func(ReactionUpdate){}, c.onReaction...)
}

func (c *Client) onlineSubs() []func(PresenceChange) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]func(PresenceChange){}, c.onOnline...)
}

func (c *Client) offlineSubs() []func(string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]func(string){}, c.onOffline...)
}

func (c *Client) joinedSubs() []func(RoomPresence) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]func(RoomPresence){}, c.onJoined...)
}

func (c *Client) leftSubs() []func(RoomPresence) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]func(RoomPresence){}, c.onLeft...)
}

func (c *Client) lastSeenSubs() []func(LastSeenUpdate) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]func(LastSeenUpdate){}, c.onLastSeen...)
}
