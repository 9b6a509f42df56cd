// Copyright (c) 2025 Encadri Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// PRESENCE
// =============================================================================

// Presence is the observed online state of one user. Presence is an
// accumulating client-side cache fed by online/offline push events; it is
// never persisted and there is no authoritative snapshot beyond an
// explicit list-online-users query.
type Presence struct {
	Email    string    `json:"email"`
	Name     string    `json:"name,omitempty"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"lastSeen,omitempty"`
}

// PresenceSet accumulates presence records keyed by email. All writers go
// through the hub event-handling flow; the mutex covers reads from the UI.
type PresenceSet struct {
	mu      sync.RWMutex
	byEmail map[string]*Presence
}

// NewPresenceSet returns an empty presence set.
func NewPresenceSet() *PresenceSet {
	return &PresenceSet{byEmail: make(map[string]*Presence)}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SetOnline records that a user came online.
func (p *PresenceSet) SetOnline(email, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := normalizeEmail(email)
	rec, ok := p.byEmail[key]
	if !ok {
		rec = &Presence{Email: key}
		p.byEmail[key] = rec
	}
	if name != "" {
		rec.Name = name
	}
	rec.Online = true
}

// SetOffline records that a user went offline. Unknown users are recorded
// too, so a later online event completes the entry.
func (p *PresenceSet) SetOffline(email string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := normalizeEmail(email)
	rec, ok := p.byEmail[key]
	if !ok {
		rec = &Presence{Email: key}
		p.byEmail[key] = rec
	}
	rec.Online = false
	rec.LastSeen = time.Now()
}

// SetLastSeen folds a last-seen update into the set.
func (p *PresenceSet) SetLastSeen(email string, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := normalizeEmail(email)
	rec, ok := p.byEmail[key]
	if !ok {
		rec = &Presence{Email: key}
		p.byEmail[key] = rec
	}
	rec.LastSeen = at
}

// IsOnline reports whether the user is currently observed online.
func (p *PresenceSet) IsOnline(email string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rec, ok := p.byEmail[normalizeEmail(email)]
	return ok && rec.Online
}

// Get returns the presence record for a user, if any.
func (p *PresenceSet) Get(email string) (Presence, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rec, ok := p.byEmail[normalizeEmail(email)]
	if !ok {
		return Presence{}, false
	}
	return *rec, true
}

// Online returns the users currently observed online, sorted by email.
func (p *PresenceSet) Online() []Presence {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Presence, 0, len(p.byEmail))
	for _, rec := range p.byEmail {
		if rec.Online {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}

// Replace resets the set from a point-in-time online-users snapshot.
func (p *PresenceSet) Replace(users []Presence) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byEmail = make(map[string]*Presence, len(users))
	for _, u := range users {
		rec := u
		rec.Email = normalizeEmail(u.Email)
		p.byEmail[rec.Email] = &rec
	}
}

// =============================================================================
// TYPING INDICATORS
// =============================================================================

// TypingIndicator is the ephemeral typing state of one user in one room.
type TypingIndicator struct {
	RoomID    string `json:"roomId"`
	UserEmail string `json:"userEmail"`
	UserName  string `json:"userName,omitempty"`
	IsTyping  bool   `json:"isTyping"`
}

// TypingSet tracks who is currently typing, keyed by email. A new
// indicator for the same user supersedes the previous one; an explicit
// stopped indicator clears it.
type TypingSet struct {
	mu      sync.RWMutex
	byEmail map[string]TypingIndicator
}

// NewTypingSet returns an empty typing set.
func NewTypingSet() *TypingSet {
	return &TypingSet{byEmail: make(map[string]TypingIndicator)}
}

// Apply folds an indicator into the set.
func (t *TypingSet) Apply(ind TypingIndicator) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := normalizeEmail(ind.UserEmail)
	if ind.IsTyping {
		t.byEmail[key] = ind
		return
	}
	delete(t.byEmail, key)
}

// Clear empties the set. Called when the active conversation changes.
func (t *TypingSet) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byEmail = make(map[string]TypingIndicator)
}

// Typing returns the users currently typing, sorted by email.
func (t *TypingSet) Typing() []TypingIndicator {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]TypingIndicator, 0, len(t.byEmail))
	for _, ind := range t.byEmail {
		out = append(out, ind)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserEmail < out[j].UserEmail })
	return out
}
