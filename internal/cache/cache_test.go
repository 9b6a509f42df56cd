// Copyright (c) 2025 Encadri Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/bahadhay/encadri-tui/internal/model"
)

func openTestCache(t *testing.T) *MessageCache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func msg(id, conv, content string, at time.Time) model.Message {
	return model.Message{
		ID:             id,
		ConversationID: conv,
		SenderEmail:    "a@x.com",
		Content:        content,
		Kind:           model.KindText,
		CreatedAt:      at,
	}
}

func TestCache_PutAndHistory(t *testing.T) {
	c := openTestCache(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, content := range []string{"first", "second", "third"} {
		if err := c.Put(msg(content, "conv", content, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	got, err := c.History("conv", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 3 || got[0].Content != "first" || got[2].Content != "third" {
		t.Errorf("history = %v, want oldest first", got)
	}
}

func TestCache_HistoryLimitKeepsNewest(t *testing.T) {
	c := openTestCache(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		if err := c.Put(msg(id, "conv", id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	got, err := c.History("conv", 2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 2 || got[0].ID != "d" || got[1].ID != "e" {
		t.Errorf("history = %v, want the two newest in display order", got)
	}
}

func TestCache_PutUpsert(t *testing.T) {
	c := openTestCache(t)
	at := time.Now().UTC()
	if err := c.Put(msg("m1", "conv", "old", at)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.Put(msg("m1", "conv", "new", at)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := c.History("conv", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 1 || got[0].Content != "new" {
		t.Errorf("history = %v, want single upserted row", got)
	}
}

func TestCache_ReplaceConversation(t *testing.T) {
	c := openTestCache(t)
	at := time.Now().UTC()
	if err := c.Put(msg("m1", "conv", "stale", at)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	fresh := []model.Message{
		msg("m2", "conv", "server one", at.Add(time.Minute)),
		msg("m3", "conv", "server two", at.Add(2*time.Minute)),
	}
	if err := c.ReplaceConversation("conv", fresh); err != nil {
		t.Fatalf("ReplaceConversation: %v", err)
	}

	got, err := c.History("conv", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 2 || got[0].ID != "m2" {
		t.Errorf("history = %v, want the server snapshot only", got)
	}
}

func TestCache_ConversationsIsolated(t *testing.T) {
	c := openTestCache(t)
	at := time.Now().UTC()
	if err := c.Put(msg("m1", "conv-a", "a", at)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.Put(msg("m2", "conv-b", "b", at)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := c.History("conv-a", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 1 || got[0].ID != "m1" {
		t.Errorf("history = %v", got)
	}
}

func TestCache_Prune(t *testing.T) {
	c := openTestCache(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		if err := c.Put(msg(id, "conv", id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	if err := c.Prune("conv", 2); err != nil {
		t.Fatalf("Prune: %v", err)
	}
	got, err := c.History("conv", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 2 || got[0].ID != "d" {
		t.Errorf("after prune = %v, want the two newest", got)
	}
}

func TestCache_RejectsIncompleteMessage(t *testing.T) {
	c := openTestCache(t)
	if err := c.Put(model.Message{Content: "no ids"}); err == nil {
		t.Error("Put should reject a message without id and conversation id")
	}
}
