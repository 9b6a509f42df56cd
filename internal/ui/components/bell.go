// Copyright (c) 2025 Encadri Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"

	"github.com/bahadhay/encadri-tui/internal/model"
	"github.com/bahadhay/encadri-tui/internal/ui/styles"
	"github.com/bahadhay/encadri-tui/internal/util"
)

// Bell renders the notification bell with its unread badge and, when
// open, the notification list. Invitations stay in this list with a
// distinct tag; they never appear as toasts.
type Bell struct {
	theme    *styles.Theme
	unread   int
	open     bool
	selected int
}

// NewBell creates a closed bell.
func NewBell(theme *styles.Theme) *Bell {
	return &Bell{theme: theme}
}

// SetUnread updates the badge count.
func (b *Bell) SetUnread(n int) {
	if n < 0 {
		n = 0
	}
	b.unread = n
}

// Unread returns the badge count.
func (b *Bell) Unread() int {
	return b.unread
}

// Toggle opens or closes the list.
func (b *Bell) Toggle() {
	b.open = !b.open
	b.selected = 0
}

// Open reports whether the list is showing.
func (b *Bell) Open() bool {
	return b.open
}

// Move shifts the selection by delta, clamped to the list.
func (b *Bell) Move(delta, listLen int) {
	b.selected += delta
	if b.selected < 0 {
		b.selected = 0
	}
	if b.selected >= listLen {
		b.selected = listLen - 1
	}
	if b.selected < 0 {
		b.selected = 0
	}
}

// Selected returns the selected index.
func (b *Bell) Selected() int {
	return b.selected
}

// BadgeView renders the bell glyph with the unread badge.
func (b *Bell) BadgeView() string {
	bell := b.theme.Bell.Render("🔔")
	if b.unread == 0 {
		return bell
	}
	label := fmt.Sprintf("%d", b.unread)
	if b.unread > 99 {
		label = "99+"
	}
	return bell + b.theme.UnreadBadge.Render(label)
}

// ListView renders the notification list.
func (b *Bell) ListView(notifications []model.Notification, width int) string {
	if !b.open {
		return ""
	}
	if len(notifications) == 0 {
		return b.theme.TypingLine.Render("no notifications")
	}

	out := ""
	for i, n := range notifications {
		marker := "  "
		if !n.IsRead {
			marker = "• "
		}
		line := marker + n.Title
		if n.IsInvitation() {
			line += " ✉ invitation"
		}
		line = util.TruncateWidth(line, width)
		if i == b.selected {
			line = b.theme.PartnerSelected.Render(line)
		} else if n.IsRead {
			line = b.theme.PartnerOffline.Render(line)
		} else {
			line = b.theme.PartnerItem.Render(line)
		}
		out += line + "\n"
	}
	return out
}
