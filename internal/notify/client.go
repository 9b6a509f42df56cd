// Copyright (c) 2025 Encadri Project
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package notify wraps the notification hub connection: it seeds the
// local notification list on connect, tracks the unread count, and
// applies read/delete mutations only after the server acknowledges them.
package notify

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/bahadhay/encadri-tui/internal/hub"
	"github.com/bahadhay/encadri-tui/internal/model"
)

// Hub event names pushed by the notification hub.
const (
	EventNewNotification = "NewNotification"
	EventUnreadCount     = "UnreadCountUpdated"
)

// Hub method names invoked on the notification hub.
const (
	methodGetNotifications = "GetNotifications"
	methodMarkAsRead       = "MarkAsRead"
	methodMarkAllAsRead    = "MarkAllAsRead"
	methodDeleteNotif      = "DeleteNotification"
)

const defaultSeedLimit = 50

// Conn is the slice of the hub connection the notification client needs.
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
// NOTIFICATION SESSION CLIENT
// =============================================================================

// Client owns one hub connection scoped to the per-user notification
// channel. It is independent of the chat connection and shares no
// transport state with it.
//
// Local state is never mutated optimistically: mark-read, mark-all-read
// and delete change the list only after the server round-trip succeeds,
// so the unread badge cannot diverge from server truth.
type Client struct {
	conn      Conn
	identity  hub.Identity
	logger    *log.Logger
	seedLimit int

	mu            sync.RWMutex
	notifications []model.Notification
	unread        int
	lastState     hub.State

	onChange []func()
	onToast  []func(model.Notification)
	onUnread []func(int)
}

// NewClient creates a notification session client over the given
// connection.
func NewClient(conn Conn, identity hub.Identity) *Client {
	c := &Client{
		conn:      conn,
		identity:  identity,
		logger:    log.Default(),
		seedLimit: defaultSeedLimit,
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

// WithSeedLimit bounds the initial list pulled on connect.
func (c *Client) WithSeedLimit(n int) *Client {
	if n > 0 {
		c.seedLimit = n
	}
	return c
}

// Start establishes the notification hub session and seeds the local
// list from the server.
func (c *Client) Start(ctx context.Context) error {
	if err := c.conn.Start(ctx, c.identity); err != nil {
		return err
	}
	return c.Refresh(ctx)
}

// Stop tears down the notification hub session.
func (c *Client) Stop() {
	c.conn.Stop()
}

// State returns the underlying connection state.
func (c *Client) State() hub.State {
	return c.conn.State()
}

// =============================================================================
// LOCAL STATE
// =============================================================================

// Notifications returns a copy of the current list, newest first.
func (c *Client) Notifications() []model.Notification {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]model.Notification{}, c.notifications...)
}

// UnreadCount returns the current unread count.
func (c *Client) UnreadCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.unread
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Refresh replaces the local list with the server's view.
func (c *Client) Refresh(ctx context.Context) error {
	var list []model.Notification
	err := c.conn.Invoke(ctx, methodGetNotifications, &list, c.identity.Email, c.seedLimit)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.notifications = list
	c.unread = countUnread(list)
	c.mu.Unlock()
	c.notifyChange()
	c.notifyUnread()
	return nil
}

// MarkAsRead marks one notification read on the server, then locally.
// On error the local flag is left untouched.
func (c *Client) MarkAsRead(ctx context.Context, id string) error {
	if err := c.conn.Invoke(ctx, methodMarkAsRead, nil, id, c.identity.Email); err != nil {
		return err
	}
	c.mu.Lock()
	for i := range c.notifications {
		if c.notifications[i].ID == id {
			c.notifications[i].IsRead = true
			break
		}
	}
	c.unread = countUnread(c.notifications)
	c.mu.Unlock()
	c.notifyChange()
	c.notifyUnread()
	return nil
}

// MarkAllAsRead marks every notification read on the server, then
// locally.
func (c *Client) MarkAllAsRead(ctx context.Context) error {
	if err := c.conn.Invoke(ctx, methodMarkAllAsRead, nil, c.identity.Email); err != nil {
		return err
	}
	c.mu.Lock()
	for i := range c.notifications {
		c.notifications[i].IsRead = true
	}
	c.unread = 0
	c.mu.Unlock()
	c.notifyChange()
	c.notifyUnread()
	return nil
}

// DeleteNotification removes one notification on the server, then
// locally.
func (c *Client) DeleteNotification(ctx context.Context, id string) error {
	if err := c.conn.Invoke(ctx, methodDeleteNotif, nil, id, c.identity.Email); err != nil {
		return err
	}
	c.mu.Lock()
	kept := c.notifications[:0]
	for _, n := range c.notifications {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	c.notifications = kept
	c.unread = countUnread(kept)
	c.mu.Unlock()
	c.notifyChange()
	c.notifyUnread()
	return nil
}

// =============================================================================
// SUBSCRIPTION
// =============================================================================

// OnChange subscribes to any change of the local notification list.
func (c *Client) OnChange(f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = append(c.onChange, f)
}

// OnToast subscribes to notifications that warrant transient toast
// presentation. Invitations never reach these subscribers; they stay in
// the persistent list with accept/decline affordances.
func (c *Client) OnToast(f func(model.Notification)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onToast = append(c.onToast, f)
}

// OnUnreadCount subscribes to unread-count changes.
func (c *Client) OnUnreadCount(f func(int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnread = append(c.onUnread, f)
}

// OnStateChange subscribes to connection state changes of the
// underlying hub session.
func (c *Client) OnStateChange(f func(hub.State)) {
	c.conn.OnStateChange(f)
}

// =============================================================================
// EVENT HANDLING
// =============================================================================

func (c *Client) registerHandlers() {
	c.conn.On(EventNewNotification, func(data json.RawMessage) {
		var n model.Notification
		if err := json.Unmarshal(data, &n); err != nil {
			c.logger.Printf("notify: dropping %s event: %v", EventNewNotification, err)
			return
		}
		c.mu.Lock()
		c.notifications = append([]model.Notification{n}, c.notifications...)
		c.unread = countUnread(c.notifications)
		c.mu.Unlock()
		c.notifyChange()
		c.notifyUnread()
		if n.ShouldToast() {
			for _, f := range c.toastSubs() {
				f(n)
			}
		}
	})

	c.conn.On(EventUnreadCount, func(data json.RawMessage) {
		var count int
		if err := json.Unmarshal(data, &count); err != nil {
			c.logger.Printf("notify: dropping %s event: %v", EventUnreadCount, err)
			return
		}
		c.mu.Lock()
		c.unread = count
		c.mu.Unlock()
		c.notifyUnread()
	})
}

// handleStateChange re-seeds the list after an automatic reconnect,
// since pushes in flight during the outage are lost. The very first
// Connected is skipped; Start already seeds that session.
func (c *Client) handleStateChange(s hub.State) {
	c.mu.Lock()
	prev := c.lastState
	c.lastState = s
	c.mu.Unlock()
	if s != hub.StateConnected || prev != hub.StateReconnecting {
		return
	}
	if err := c.Refresh(context.Background()); err != nil {
		c.logger.Printf("notify: refresh after reconnect failed: %v", err)
	}
}

func (c *Client) notifyChange() {
	c.mu.RLock()
	subs := append([]func(){}, c.onChange...)
	c.mu.RUnlock()
	for _, f := range subs {
		f()
	}
}

func (c *Client) notifyUnread() {
	c.mu.RLock()
	count := c.unread
	subs := append([]func(int){}, c.onUnread...)
	c.mu.RUnlock()
	for _, f := range subs {
		f(count)
	}
}

func (c *Client) toastSubs() []func(model.Notification) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]func(model.Notification){}, c.onToast...)
}

func countUnread(list []model.Notification) int {
	n := 0
	for _, item := range list {
		if !item.IsRead {
			n++
		}
	}
	return n
}
