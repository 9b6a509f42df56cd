// Copyright (c) 2025 Encadri Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"testing"
	"time"
)

// =============================================================================
// ROOM ID TESTS
// =============================================================================

func TestRoomID_Deterministic(t *testing.T) {
	pairs := [][2]string{
		{"alice@x.com", "bob@x.com"},
		{"bob@x.com", "alice@x.com"},
		{"Supervisor@uni.edu", "student@uni.edu"},
		{" a@x.com ", "b@x.com"},
	}
	for _, p := range pairs {
		if RoomID(p[0], p[1]) != RoomID(p[1], p[0]) {
			t.Errorf("RoomID(%q,%q) != RoomID(%q,%q)", p[0], p[1], p[1], p[0])
		}
	}
}

func TestRoomID_Value(t *testing.T) {
	got := RoomID("bob@x.com", "alice@x.com")
	want := "alice@x.com_bob@x.com"
	if got != want {
		t.Errorf("RoomID = %q, want %q", got, want)
	}
}

func TestRoomID_CaseInsensitive(t *testing.T) {
	if RoomID("Alice@X.com", "BOB@x.com") != RoomID("alice@x.com", "bob@x.com") {
		t.Error("RoomID should be case-insensitive")
	}
}

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestMessage_Between(t *testing.T) {
	msg := &Message{SenderEmail: "p@x.com", RecipientEmail: "s@x.com"}

	if !msg.Between("s@x.com", "p@x.com") {
		t.Error("message between s and p should match in either order")
	}
	if !msg.Between("p@x.com", "s@x.com") {
		t.Error("message between p and s should match")
	}
	if msg.Between("q@x.com", "s@x.com") {
		t.Error("message from p should not match pair (q, s)")
	}
}

func TestMessage_HasReaction(t *testing.T) {
	msg := &Message{Reactions: []Reaction{
		{Emoji: "👍", UserEmail: "a@x.com"},
	}}

	if !msg.HasReaction("👍", "a@x.com") {
		t.Error("expected existing reaction to be found")
	}
	if msg.HasReaction("❤️", "a@x.com") {
		t.Error("different emoji should not match")
	}
	if msg.HasReaction("👍", "b@x.com") {
		t.Error("different user should not match")
	}
	if !msg.HasReaction("👍", "A@X.COM") {
		t.Error("reaction lookup should be email case-insensitive")
	}
}

func TestMessage_Preview(t *testing.T) {
	msg := &Message{Content: "hello world"}
	if got := msg.Preview(50); got != "hello world" {
		t.Errorf("Preview = %q, want full content", got)
	}
	if got := msg.Preview(8); got != "hello..." {
		t.Errorf("Preview = %q, want %q", got, "hello...")
	}
}

func TestKind_Valid(t *testing.T) {
	for _, k := range []Kind{KindText, KindSystem, KindFile, KindImage} {
		if !k.Valid() {
			t.Errorf("Kind %q should be valid", k)
		}
	}
	if Kind("video").Valid() {
		t.Error("unknown kind should not be valid")
	}
}

// =============================================================================
// NOTIFICATION TESTS
// =============================================================================

func TestNotification_ShouldToast(t *testing.T) {
	n := &Notification{Type: "milestone"}
	if !n.ShouldToast() {
		t.Error("non-invitation notifications should toast")
	}

	inv := &Notification{Type: TypeInvitation}
	if inv.ShouldToast() {
		t.Error("invitations must not be surfaced as toasts")
	}
	if !inv.IsInvitation() {
		t.Error("IsInvitation should be true for invitation type")
	}
}

// =============================================================================
// PRESENCE TESTS
// =============================================================================

func TestPresenceSet_OnlineOffline(t *testing.T) {
	p := NewPresenceSet()

	p.SetOnline("a@x.com", "Alice")
	if !p.IsOnline("a@x.com") {
		t.Error("a@x.com should be online")
	}
	if !p.IsOnline("A@X.com") {
		t.Error("presence lookup should be case-insensitive")
	}

	p.SetOffline("a@x.com")
	if p.IsOnline("a@x.com") {
		t.Error("a@x.com should be offline")
	}

	rec, ok := p.Get("a@x.com")
	if !ok {
		t.Fatal("record should survive going offline")
	}
	if rec.Name != "Alice" {
		t.Errorf("Name = %q, want Alice", rec.Name)
	}
	if rec.LastSeen.IsZero() {
		t.Error("LastSeen should be set when going offline")
	}
}

func TestPresenceSet_Online_Sorted(t *testing.T) {
	p := NewPresenceSet()
	p.SetOnline("c@x.com", "")
	p.SetOnline("a@x.com", "")
	p.SetOnline("b@x.com", "")
	p.SetOffline("b@x.com")

	online := p.Online()
	if len(online) != 2 {
		t.Fatalf("len(Online) = %d, want 2", len(online))
	}
	if online[0].Email != "a@x.com" || online[1].Email != "c@x.com" {
		t.Errorf("Online not sorted: %v", online)
	}
}

func TestPresenceSet_Replace(t *testing.T) {
	p := NewPresenceSet()
	p.SetOnline("stale@x.com", "")

	p.Replace([]Presence{{Email: "Fresh@X.com", Online: true}})
	if p.IsOnline("stale@x.com") {
		t.Error("Replace should drop accumulated records")
	}
	if !p.IsOnline("fresh@x.com") {
		t.Error("Replace should install snapshot records")
	}
}

func TestPresenceSet_SetLastSeen(t *testing.T) {
	p := NewPresenceSet()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p.SetLastSeen("a@x.com", at)

	rec, ok := p.Get("a@x.com")
	if !ok || !rec.LastSeen.Equal(at) {
		t.Errorf("LastSeen = %v, want %v", rec.LastSeen, at)
	}
}

// =============================================================================
// TYPING TESTS
// =============================================================================

func TestTypingSet_Supersede(t *testing.T) {
	ts := NewTypingSet()

	ts.Apply(TypingIndicator{RoomID: "r", UserEmail: "a@x.com", IsTyping: true})
	ts.Apply(TypingIndicator{RoomID: "r", UserEmail: "a@x.com", UserName: "Alice", IsTyping: true})
	typing := ts.Typing()
	if len(typing) != 1 {
		t.Fatalf("len(Typing) = %d, want 1 (supersede, not accumulate)", len(typing))
	}
	if typing[0].UserName != "Alice" {
		t.Errorf("latest indicator should win, got %+v", typing[0])
	}

	ts.Apply(TypingIndicator{RoomID: "r", UserEmail: "a@x.com", IsTyping: false})
	if len(ts.Typing()) != 0 {
		t.Error("stopped indicator should clear the entry")
	}
}

func TestTypingSet_Clear(t *testing.T) {
	ts := NewTypingSet()
	ts.Apply(TypingIndicator{UserEmail: "a@x.com", IsTyping: true})
	ts.Clear()
	if len(ts.Typing()) != 0 {
		t.Error("Clear should empty the set")
	}
}
