// Copyright (c) 2025 Encadri Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/bahadhay/encadri-tui/internal/hub"
	"github.com/bahadhay/encadri-tui/internal/model"
)

type invocation struct {
	target string
	args   []any
}

type fakeConn struct {
	mu        sync.Mutex
	invokes   []invocation
	invokeErr map[string]error
	results   map[string]any
	handlers  map[string][]hub.EventHandler
	stateSubs []func(hub.State)
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		invokeErr: make(map[string]error),
		results:   make(map[string]any),
		handlers:  make(map[string][]hub.EventHandler),
	}
}

func (f *fakeConn) Start(context.Context, hub.Identity) error { return nil }
func (f *fakeConn) Stop()                                     {}
func (f *fakeConn) State() hub.State                          { return hub.StateConnected }

func (f *fakeConn) Invoke(_ context.Context, target string, result any, args ...any) error {
	f.mu.Lock()
	f.invokes = append(f.invokes, invocation{target: target, args: args})
	err := f.invokeErr[target]
	res, ok := f.results[target]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if ok && result != nil {
		data, merr := json.Marshal(res)
		if merr != nil {
			return merr
		}
		return json.Unmarshal(data, result)
	}
	return nil
}

func (f *fakeConn) On(event string, h hub.EventHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = append(f.handlers[event], h)
}

func (f *fakeConn) OnStateChange(fn func(hub.State)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stateSubs = append(f.stateSubs, fn)
}

func (f *fakeConn) emit(t *testing.T, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	f.mu.Lock()
	handlers := append([]hub.EventHandler{}, f.handlers[event]...)
	f.mu.Unlock()
	for _, h := range handlers {
		h(data)
	}
}

func (f *fakeConn) invocations(target string) []invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []invocation
	for _, inv := range f.invokes {
		if inv.target == target {
			out = append(out, inv)
		}
	}
	return out
}

func newTestClient() (*Client, *fakeConn) {
	conn := newFakeConn()
	return NewClient(conn, hub.Identity{Email: "s@x.com", Name: "Sam"}), conn
}

// =============================================================================
// SEEDING
// =============================================================================

func TestNotify_StartSeedsList(t *testing.T) {
	client, conn := newTestClient()
	conn.results["GetNotifications"] = []model.Notification{
		{ID: "n1", Title: "Milestone due", IsRead: false},
		{ID: "n2", Title: "Meeting scheduled", IsRead: true},
	}

	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	args := conn.invocations("GetNotifications")[0].args
	if args[0] != "s@x.com" || args[1] != defaultSeedLimit {
		t.Errorf("GetNotifications args = %v", args)
	}
	if got := client.Notifications(); len(got) != 2 {
		t.Fatalf("list size = %d, want 2", len(got))
	}
	if client.UnreadCount() != 1 {
		t.Errorf("unread = %d, want 1", client.UnreadCount())
	}
}

func TestNotify_SeedLimitOverride(t *testing.T) {
	client, conn := newTestClient()
	client.WithSeedLimit(10)

	if err := client.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if args := conn.invocations("GetNotifications")[0].args; args[1] != 10 {
		t.Errorf("seed limit arg = %v, want 10", args[1])
	}
}

func (f *fakeConn) changeState(s hub.State) {
	f.mu.Lock()
	subs := append([]func(hub.State){}, f.stateSubs...)
	f.mu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
}

func TestNotify_ReseedOnReconnect(t *testing.T) {
	client, conn := newTestClient()
	conn.results["GetNotifications"] = []model.Notification{{ID: "n1"}}

	conn.changeState(hub.StateReconnecting)
	conn.changeState(hub.StateConnected)

	if len(conn.invocations("GetNotifications")) != 1 {
		t.Error("reconnect should trigger a refresh")
	}
	if len(client.Notifications()) != 1 {
		t.Error("refresh should replace local list")
	}
}

func TestNotify_StartSeedsOnce(t *testing.T) {
	client, conn := newTestClient()
	conn.results["GetNotifications"] = []model.Notification{{ID: "n1"}}

	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	conn.changeState(hub.StateConnecting)
	conn.changeState(hub.StateConnected)

	if got := len(conn.invocations("GetNotifications")); got != 1 {
		t.Errorf("initial connect fetched the list %d times, want 1", got)
	}
}

// =============================================================================
// PUSHED EVENTS
// =============================================================================

func TestNotify_NewNotificationPrepends(t *testing.T) {
	client, conn := newTestClient()

	conn.emit(t, EventNewNotification, model.Notification{ID: "n1", Title: "old"})
	conn.emit(t, EventNewNotification, model.Notification{ID: "n2", Title: "new"})

	list := client.Notifications()
	if len(list) != 2 || list[0].ID != "n2" {
		t.Errorf("list = %v, want newest first", list)
	}
	if client.UnreadCount() != 2 {
		t.Errorf("unread = %d, want 2", client.UnreadCount())
	}
}

func TestNotify_ToastSuppressedForInvitations(t *testing.T) {
	client, conn := newTestClient()

	var toasts []model.Notification
	client.OnToast(func(n model.Notification) { toasts = append(toasts, n) })

	conn.emit(t, EventNewNotification, model.Notification{ID: "n1", Type: model.TypeInvitation, Title: "Join project X"})
	conn.emit(t, EventNewNotification, model.Notification{ID: "n2", Type: "milestone", Title: "Due soon"})

	if len(toasts) != 1 || toasts[0].ID != "n2" {
		t.Errorf("toasts = %v, want only the non-invitation", toasts)
	}
	// The invitation still lands in the list.
	if len(client.Notifications()) != 2 {
		t.Errorf("list size = %d, want 2", len(client.Notifications()))
	}
}

func TestNotify_UnreadCountPush(t *testing.T) {
	client, conn := newTestClient()

	var seen []int
	client.OnUnreadCount(func(n int) { seen = append(seen, n) })

	conn.emit(t, EventUnreadCount, 7)

	if client.UnreadCount() != 7 {
		t.Errorf("unread = %d, want 7", client.UnreadCount())
	}
	if len(seen) != 1 || seen[0] != 7 {
		t.Errorf("subscriber saw %v", seen)
	}
}

// =============================================================================
// SERVER-ACKNOWLEDGED MUTATIONS
// =============================================================================

func TestNotify_MarkAsRead(t *testing.T) {
	client, conn := newTestClient()
	conn.results["GetNotifications"] = []model.Notification{
		{ID: "n1", IsRead: false},
		{ID: "n2", IsRead: false},
	}
	if err := client.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if err := client.MarkAsRead(context.Background(), "n1"); err != nil {
		t.Fatalf("MarkAsRead: %v", err)
	}

	args := conn.invocations("MarkAsRead")[0].args
	if args[0] != "n1" || args[1] != "s@x.com" {
		t.Errorf("MarkAsRead args = %v", args)
	}
	list := client.Notifications()
	if !list[0].IsRead || list[1].IsRead {
		t.Errorf("list = %v", list)
	}
	if client.UnreadCount() != 1 {
		t.Errorf("unread = %d, want 1", client.UnreadCount())
	}
}

func TestNotify_MarkAsReadServerErrorLeavesStateUntouched(t *testing.T) {
	client, conn := newTestClient()
	conn.results["GetNotifications"] = []model.Notification{{ID: "n1", IsRead: false}}
	if err := client.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	conn.mu.Lock()
	conn.invokeErr["MarkAsRead"] = errors.New("boom")
	conn.mu.Unlock()

	if err := client.MarkAsRead(context.Background(), "n1"); err == nil {
		t.Fatal("expected error")
	}
	if client.Notifications()[0].IsRead {
		t.Error("read flag must not change when the server call fails")
	}
	if client.UnreadCount() != 1 {
		t.Errorf("unread = %d, want 1", client.UnreadCount())
	}
}

func TestNotify_MarkAllAsRead(t *testing.T) {
	client, conn := newTestClient()
	conn.results["GetNotifications"] = []model.Notification{
		{ID: "n1"}, {ID: "n2"}, {ID: "n3", IsRead: true},
	}
	if err := client.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if err := client.MarkAllAsRead(context.Background()); err != nil {
		t.Fatalf("MarkAllAsRead: %v", err)
	}
	if args := conn.invocations("MarkAllAsRead")[0].args; args[0] != "s@x.com" {
		t.Errorf("MarkAllAsRead args = %v", args)
	}
	for _, n := range client.Notifications() {
		if !n.IsRead {
			t.Errorf("notification %s still unread", n.ID)
		}
	}
	if client.UnreadCount() != 0 {
		t.Errorf("unread = %d, want 0", client.UnreadCount())
	}
}

func TestNotify_DeleteNotification(t *testing.T) {
	client, conn := newTestClient()
	conn.results["GetNotifications"] = []model.Notification{{ID: "n1"}, {ID: "n2"}}
	if err := client.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if err := client.DeleteNotification(context.Background(), "n1"); err != nil {
		t.Fatalf("DeleteNotification: %v", err)
	}
	args := conn.invocations("DeleteNotification")[0].args
	if args[0] != "n1" || args[1] != "s@x.com" {
		t.Errorf("DeleteNotification args = %v", args)
	}
	list := client.Notifications()
	if len(list) != 1 || list[0].ID != "n2" {
		t.Errorf("list = %v", list)
	}
}

func TestNotify_DeleteServerErrorKeepsEntry(t *testing.T) {
	client, conn := newTestClient()
	conn.results["GetNotifications"] = []model.Notification{{ID: "n1"}}
	if err := client.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	conn.mu.Lock()
	conn.invokeErr["DeleteNotification"] = errors.New("boom")
	conn.mu.Unlock()

	if err := client.DeleteNotification(context.Background(), "n1"); err == nil {
		t.Fatal("expected error")
	}
	if len(client.Notifications()) != 1 {
		t.Error("entry must survive a failed delete")
	}
}

func TestNotify_ChangeSubscriber(t *testing.T) {
	client, conn := newTestClient()

	changes := 0
	client.OnChange(func() { changes++ })

	conn.emit(t, EventNewNotification, model.Notification{ID: "n1"})
	if err := client.MarkAsRead(context.Background(), "n1"); err != nil {
		t.Fatalf("MarkAsRead: %v", err)
	}

	if changes != 2 {
		t.Errorf("change callbacks = %d, want 2", changes)
	}
}
