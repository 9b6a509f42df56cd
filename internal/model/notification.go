// Copyright (c) 2025 Encadri Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// =============================================================================
// NOTIFICATION TYPE
// =============================================================================

// TypeInvitation is the reserved notification type for project invitations.
// Invitations are rendered persistently in the notification list and are
// never surfaced as transient toasts.
const TypeInvitation = "invitation"

// Notification priorities as sent by the server.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// Notification is a server-created notification pushed to the owning
// user's sessions. Clients mutate read/delete state only through server
// round-trips, never optimistically.
type Notification struct {
	ID        string     `json:"id"`
	UserEmail string     `json:"userEmail"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Link      string     `json:"link,omitempty"`
	Priority  string     `json:"priority,omitempty"`
	IsRead    bool       `json:"isRead"`
	CreatedAt time.Time  `json:"createdAt"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
}

// IsInvitation reports whether this notification is a project invitation.
func (n *Notification) IsInvitation() bool {
	return n.Type == TypeInvitation
}

// ShouldToast reports whether the notification should be presented as a
// transient toast. Invitations are excluded: they stay in the list UI.
func (n *Notification) ShouldToast() bool {
	return !n.IsInvitation()
}
