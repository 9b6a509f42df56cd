// Copyright (c) 2025 Encadri Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/bahadhay/encadri-tui/internal/hub"
	"github.com/bahadhay/encadri-tui/internal/model"
)

// =============================================================================
// FAKE CONNECTION
// =============================================================================

type invocation struct {
	target string
	args   []any
}

// fakeConn records invocations and lets tests emit server events.
type fakeConn struct {
	mu        sync.Mutex
	state     hub.State
	invokes   []invocation
	invokeErr error
	results   map[string]any
	handlers  map[string][]hub.EventHandler
	stateSubs []func(hub.State)
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		state:    hub.StateConnected,
		results:  make(map[string]any),
		handlers: make(map[string][]hub.EventHandler),
	}
}

func (f *fakeConn) Start(context.Context, hub.Identity) error { return nil }
func (f *fakeConn) Stop()                                     {}
func (f *fakeConn) State() hub.State                          { return f.state }

func (f *fakeConn) Invoke(_ context.Context, target string, result any, args ...any) error {
	f.mu.Lock()
	f.invokes = append(f.invokes, invocation{target: target, args: args})
	err := f.invokeErr
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

func (f *fakeConn) emitRaw(event string, data []byte) {
	f.mu.Lock()
	handlers := append([]hub.EventHandler{}, f.handlers[event]...)
	f.mu.Unlock()
	for _, h := range handlers {
		h(data)
	}
}

func (f *fakeConn) changeState(s hub.State) {
	f.mu.Lock()
	f.state = s
	subs := append([]func(hub.State){}, f.stateSubs...)
	f.mu.Unlock()
	for _, fn := range subs {
		fn(s)
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
// OPERATION TESTS
// =============================================================================

func TestClient_JoinRoomArgs(t *testing.T) {
	client, conn := newTestClient()
	if err := client.JoinRoom(context.Background(), "a@x.com_s@x.com"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}

	joins := conn.invocations("JoinRoom")
	if len(joins) != 1 {
		t.Fatalf("JoinRoom invocations = %d, want 1", len(joins))
	}
	if joins[0].args[0] != "a@x.com_s@x.com" || joins[0].args[1] != "s@x.com" {
		t.Errorf("JoinRoom args = %v", joins[0].args)
	}
}

func TestClient_JoinRoomNotConnected(t *testing.T) {
	client, conn := newTestClient()
	conn.invokeErr = hub.ErrNotConnected

	err := client.JoinRoom(context.Background(), "room")
	if err == nil {
		t.Fatal("expected ErrNotConnected")
	}

	// Failed joins must not be tracked for rejoin.
	conn.invokeErr = nil
	conn.changeState(hub.StateConnected)
	if len(conn.invocations("JoinRoom")) != 1 {
		t.Error("failed join should not be rejoined on reconnect")
	}
}

func TestClient_RejoinOnReconnect(t *testing.T) {
	client, conn := newTestClient()
	if err := client.JoinRoom(context.Background(), "room-1"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}

	conn.changeState(hub.StateReconnecting)
	conn.changeState(hub.StateConnected)

	if got := len(conn.invocations("JoinRoom")); got != 2 {
		t.Errorf("JoinRoom invocations = %d, want 2 (rejoin after reconnect)", got)
	}
}

func TestClient_LeaveRoomUntracks(t *testing.T) {
	client, conn := newTestClient()
	if err := client.JoinRoom(context.Background(), "room-1"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	if err := client.LeaveRoom(context.Background(), "room-1"); err != nil {
		t.Fatalf("LeaveRoom: %v", err)
	}

	conn.changeState(hub.StateConnected)
	if got := len(conn.invocations("JoinRoom")); got != 1 {
		t.Errorf("left room should not be rejoined, JoinRoom invocations = %d", got)
	}
}

func TestClient_SendMessage(t *testing.T) {
	client, conn := newTestClient()
	req := SendMessageRequest{
		ConversationID: "p@x.com_s@x.com",
		RoomID:         "p@x.com_s@x.com",
		RecipientEmail: "p@x.com",
		Content:        "hi",
		Kind:           model.KindText,
	}
	if err := client.SendMessage(context.Background(), req); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	sends := conn.invocations("SendMessage")
	if len(sends) != 1 {
		t.Fatalf("SendMessage invocations = %d, want 1", len(sends))
	}
	sent, ok := sends[0].args[0].(SendMessageRequest)
	if !ok {
		t.Fatalf("arg type = %T", sends[0].args[0])
	}
	if sent.Content != "hi" || sent.RecipientEmail != "p@x.com" {
		t.Errorf("sent dto = %+v", sent)
	}
}

func TestClient_ToggleReactionCarriesIdentity(t *testing.T) {
	client, conn := newTestClient()
	if err := client.ToggleReaction(context.Background(), "msg-1", "👍"); err != nil {
		t.Fatalf("ToggleReaction: %v", err)
	}

	toggles := conn.invocations("ToggleReaction")
	req := toggles[0].args[0].(ToggleReactionRequest)
	if req.MessageID != "msg-1" || req.Emoji != "👍" || req.UserEmail != "s@x.com" || req.UserName != "Sam" {
		t.Errorf("toggle dto = %+v", req)
	}
}

func TestClient_GetMessages(t *testing.T) {
	client, conn := newTestClient()
	conn.results["GetMessages"] = []model.Message{
		{ID: "m1", Content: "hello"},
		{ID: "m2", Content: "world"},
	}

	msgs, err := client.GetMessages(context.Background(), "conv", 50, "p@x.com")
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "m1" {
		t.Errorf("msgs = %v", msgs)
	}

	args := conn.invocations("GetMessages")[0].args
	if args[0] != "conv" || args[1] != 50 || args[2] != "s@x.com" || args[3] != "p@x.com" {
		t.Errorf("GetMessages args = %v", args)
	}
}

func TestClient_GetOnlineUsers(t *testing.T) {
	client, conn := newTestClient()
	conn.results["GetOnlineUsers"] = []model.Presence{{Email: "a@x.com", Online: true}}

	users, err := client.GetOnlineUsers(context.Background())
	if err != nil {
		t.Fatalf("GetOnlineUsers: %v", err)
	}
	if len(users) != 1 || users[0].Email != "a@x.com" {
		t.Errorf("users = %v", users)
	}
}

func TestClient_MarkMessageAsRead(t *testing.T) {
	client, conn := newTestClient()
	if err := client.MarkMessageAsRead(context.Background(), "msg-9"); err != nil {
		t.Fatalf("MarkMessageAsRead: %v", err)
	}
	args := conn.invocations("MarkMessageAsRead")[0].args
	if args[0] != "msg-9" || args[1] != "s@x.com" {
		t.Errorf("MarkMessageAsRead args = %v", args)
	}
}

// =============================================================================
// EVENT TRANSLATION TESTS
// =============================================================================

func TestClient_MessageEventFanout(t *testing.T) {
	client, conn := newTestClient()

	var got []model.Message
	client.OnMessage(func(m model.Message) { got = append(got, m) })
	client.OnMessage(func(m model.Message) { got = append(got, m) })

	conn.emit(t, EventReceiveMessage, model.Message{
		ID: "m1", SenderEmail: "p@x.com", Content: "hi", Kind: model.KindText, CreatedAt: time.Now(),
	})

	if len(got) != 2 {
		t.Fatalf("fanout count = %d, want 2", len(got))
	}
	if got[0].ID != "m1" || got[0].Content != "hi" {
		t.Errorf("message = %+v", got[0])
	}
}

func TestClient_UnknownKindNormalized(t *testing.T) {
	client, conn := newTestClient()

	var got model.Message
	client.OnMessage(func(m model.Message) { got = m })
	conn.emitRaw(EventReceiveMessage, []byte(`{"id":"m1","content":"x","kind":"hologram"}`))

	if got.Kind != model.KindText {
		t.Errorf("Kind = %q, want normalized text", got.Kind)
	}
}

func TestClient_MalformedEventDropped(t *testing.T) {
	client, conn := newTestClient()

	called := false
	client.OnMessage(func(model.Message) { called = true })
	conn.emitRaw(EventReceiveMessage, []byte(`{broken`))

	if called {
		t.Error("malformed payload should be dropped before fanout")
	}

	// The stream keeps working afterwards.
	conn.emit(t, EventReceiveMessage, model.Message{ID: "m2"})
	if !called {
		t.Error("subsequent valid events should still be delivered")
	}
}

func TestClient_TypedEvents(t *testing.T) {
	client, conn := newTestClient()

	var receipt ReadReceipt
	client.OnMessageRead(func(r ReadReceipt) { receipt = r })
	conn.emit(t, EventMessageRead, ReadReceipt{MessageID: "m1", ReaderEmail: "p@x.com"})
	if receipt.MessageID != "m1" {
		t.Errorf("receipt = %+v", receipt)
	}

	var update ReactionUpdate
	client.OnReactionUpdated(func(u ReactionUpdate) { update = u })
	conn.emit(t, EventReactionUpdated, ReactionUpdate{
		MessageID: "m1",
		Reactions: []model.Reaction{{Emoji: "❤️", UserEmail: "b@x.com"}},
	})
	if update.MessageID != "m1" || len(update.Reactions) != 1 {
		t.Errorf("update = %+v", update)
	}

	var offline string
	client.OnUserOffline(func(email string) { offline = email })
	conn.emit(t, EventUserOffline, PresenceChange{Email: "p@x.com"})
	if offline != "p@x.com" {
		t.Errorf("offline = %q", offline)
	}
}
