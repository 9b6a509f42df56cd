// Copyright (c) 2025 Encadri Project
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package directory derives the set of eligible chat partners from
// project membership and tracks which conversation is currently active.
package directory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/bahadhay/encadri-tui/internal/api"
	"github.com/bahadhay/encadri-tui/internal/model"
)

// ProjectService is the slice of the REST client the directory needs.
// *api.Client satisfies it; tests substitute fakes.
type ProjectService interface {
	ProjectsForUser(ctx context.Context, email string) ([]api.Project, error)
}

// Partner is an eligible chat counterpart: any member of any project
// the user belongs to, except the user themselves.
type Partner struct {
	Email    string
	Name     string
	Role     string
	Projects []string // project ids shared with the user
}

// =============================================================================
// CONVERSATION DIRECTORY
// =============================================================================

// Directory holds the derived partner list and the active conversation
// selection. It is refreshed from the project service, not maintained
// incrementally; project membership changes rarely.
type Directory struct {
	svc       ProjectService
	selfEmail string

	mu       sync.RWMutex
	partners []Partner
	active   string // active partner email, empty if none
}

// New creates a directory for the given user.
func New(svc ProjectService, selfEmail string) *Directory {
	return &Directory{
		svc:       svc,
		selfEmail: strings.ToLower(strings.TrimSpace(selfEmail)),
	}
}

// Refresh pulls project membership and rebuilds the partner list. The
// previous list is kept on error. An active selection that no longer
// resolves to a partner is cleared.
func (d *Directory) Refresh(ctx context.Context) error {
	projects, err := d.svc.ProjectsForUser(ctx, d.selfEmail)
	if err != nil {
		return err
	}

	byEmail := make(map[string]*Partner)
	for _, p := range projects {
		for _, m := range p.Members() {
			email := strings.ToLower(strings.TrimSpace(m.Email))
			if email == "" || email == d.selfEmail {
				continue
			}
			entry, ok := byEmail[email]
			if !ok {
				entry = &Partner{Email: email, Name: m.Name, Role: m.Role}
				byEmail[email] = entry
			}
			if entry.Name == "" {
				entry.Name = m.Name
			}
			entry.Projects = append(entry.Projects, p.ID)
		}
	}

	partners := make([]Partner, 0, len(byEmail))
	for _, p := range byEmail {
		partners = append(partners, *p)
	}
	sort.Slice(partners, func(i, j int) bool {
		if partners[i].Name != partners[j].Name {
			return partners[i].Name < partners[j].Name
		}
		return partners[i].Email < partners[j].Email
	})

	d.mu.Lock()
	d.partners = partners
	if d.active != "" {
		if _, ok := byEmail[d.active]; !ok {
			d.active = ""
		}
	}
	d.mu.Unlock()
	return nil
}

// Partners returns a copy of the current partner list, sorted by name.
func (d *Directory) Partners() []Partner {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Partner{}, d.partners...)
}

// Lookup finds a partner by email.
func (d *Directory) Lookup(email string) (Partner, bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, p := range d.partners {
		if p.Email == email {
			return p, true
		}
	}
	return Partner{}, false
}

// SetActive selects the active conversation partner. The partner must be
// in the directory; unknown emails are rejected so the view never binds
// to a conversation the user cannot legitimately hold.
func (d *Directory) SetActive(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.partners {
		if p.Email == email {
			d.active = email
			return true
		}
	}
	return false
}

// ClearActive deselects the active conversation.
func (d *Directory) ClearActive() {
	d.mu.Lock()
	d.active = ""
	d.mu.Unlock()
}

// Active returns the active partner, if any.
func (d *Directory) Active() (Partner, bool) {
	d.mu.RLock()
	active := d.active
	d.mu.RUnlock()
	if active == "" {
		return Partner{}, false
	}
	return d.Lookup(active)
}

// ActiveRoomID returns the derived conversation id for the active
// partner, or empty if none is selected.
func (d *Directory) ActiveRoomID() string {
	p, ok := d.Active()
	if !ok {
		return ""
	}
	return model.RoomID(d.selfEmail, p.Email)
}
