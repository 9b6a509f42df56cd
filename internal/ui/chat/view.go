// Copyright (c) 2025 Encadri Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bahadhay/encadri-tui/internal/model"
	"github.com/bahadhay/encadri-tui/internal/util"
)

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 {
		return "loading…"
	}

	main := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.sidebarView(),
		m.conversationView(),
	)

	sections := []string{main, m.inputView(), m.statusBarView()}
	screen := lipgloss.JoinVertical(lipgloss.Left, sections...)

	if toasts := m.toasts.View(m.width / 2); toasts != "" {
		screen = lipgloss.JoinVertical(lipgloss.Right, screen, toasts)
	}
	return screen
}

// =============================================================================
// SIDEBAR
// =============================================================================

func (m *Model) sidebarView() string {
	partners := m.dir.Partners()
	height := m.height - inputHeight - statusBarHeight

	var b strings.Builder
	b.WriteString(m.theme.PartnerSelected.Render("Conversations"))
	b.WriteString("\n\n")

	active, _ := m.dir.Active()
	for i, p := range partners {
		dot := m.theme.PartnerOffline.Render("○")
		if m.presence.IsOnline(p.Email) {
			dot = m.theme.PartnerOnline.Render("●")
		}
		name := p.Name
		if name == "" {
			name = p.Email
		}
		name = util.TruncateWidth(name, sidebarWidth-3)
		line := dot + " " + name
		switch {
		case p.Email == active.Email:
			line = m.theme.PartnerSelected.Render(line)
		case i == m.sidebarIdx:
			line = m.theme.PartnerItem.Underline(true).Render(line)
		default:
			line = m.theme.PartnerItem.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if m.bell.Open() {
		b.WriteString("\n")
		b.WriteString(m.theme.PartnerSelected.Render("Notifications"))
		b.WriteString("\n")
		b.WriteString(m.bell.ListView(m.notifier.Notifications(), sidebarWidth-1))
	}

	return m.theme.Sidebar.
		Width(sidebarWidth).
		Height(height).
		Render(b.String())
}

// =============================================================================
// CONVERSATION
// =============================================================================

func (m *Model) conversationView() string {
	if _, ok := m.dir.Active(); !ok {
		return lipgloss.Place(
			m.viewport.Width, m.viewport.Height,
			lipgloss.Center, lipgloss.Center,
			m.theme.TypingLine.Render("select a conversation (tab)"),
		)
	}
	if m.switching {
		return lipgloss.Place(
			m.viewport.Width, m.viewport.Height,
			lipgloss.Center, lipgloss.Center,
			m.spin.View()+" opening conversation…",
		)
	}
	return m.viewport.View()
}

// refreshViewport re-renders the message list into the viewport,
// preserving bottom-follow when the user was at the bottom.
func (m *Model) refreshViewport() {
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderMessages())
	if atBottom {
		m.viewport.GotoBottom()
	}
}

func (m *Model) renderMessages() string {
	msgs := m.controller.Messages()
	width := m.viewport.Width
	now := time.Now()

	var b strings.Builder
	if m.controller.Stale() {
		b.WriteString(m.theme.StaleBanner.Render("⚠ showing cached history — server unreachable"))
		b.WriteString("\n\n")
	}

	for _, msg := range msgs {
		b.WriteString(m.renderMessage(msg, width, now))
		b.WriteString("\n")
	}

	if typing := m.controller.TypingUsers(); len(typing) > 0 {
		names := make([]string, 0, len(typing))
		for _, t := range typing {
			if t.UserName != "" {
				names = append(names, t.UserName)
			} else {
				names = append(names, t.UserEmail)
			}
		}
		b.WriteString(m.theme.TypingLine.Render(strings.Join(names, ", ") + " is typing…"))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) renderMessage(msg model.Message, width int, now time.Time) string {
	sender := msg.SenderName
	if sender == "" {
		sender = msg.SenderEmail
	}
	nameStyle := m.theme.PartnerMessage
	if msg.IsFromSelf(m.selfEmail) {
		sender = "you"
		nameStyle = m.theme.OwnMessage
	}
	if msg.Kind == model.KindSystem {
		return m.theme.SystemMessage.Render(util.TruncateWidth(msg.Content, width))
	}

	header := nameStyle.Render(sender) + " " + m.theme.Timestamp.Render(util.FormatTimestamp(msg.CreatedAt, now))
	if msg.IsFromSelf(m.selfEmail) && msg.IsRead {
		header += " " + m.theme.ReadMark.Render("✓✓")
	}

	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")

	if msg.ReplyTo != nil {
		quote := msg.ReplyTo.SenderName + ": " + msg.ReplyTo.Content
		b.WriteString(m.theme.ReplyQuote.Render(util.TruncateWidth(quote, width-4)))
		b.WriteString("\n")
	}

	if msg.Content != "" {
		b.WriteString(util.TruncateWidth(msg.Content, width))
		b.WriteString("\n")
	}

	if msg.Attachment != nil {
		label := fmt.Sprintf("📎 %s (%s)", msg.Attachment.Name, util.FormatSize(msg.Attachment.Size))
		b.WriteString(m.theme.Attachment.Render(label))
		b.WriteString("\n")
	}

	if len(msg.Reactions) > 0 {
		counts := make(map[string]int)
		order := []string{}
		for _, r := range msg.Reactions {
			if counts[r.Emoji] == 0 {
				order = append(order, r.Emoji)
			}
			counts[r.Emoji]++
		}
		parts := make([]string, 0, len(order))
		for _, emoji := range order {
			parts = append(parts, fmt.Sprintf("%s %d", emoji, counts[emoji]))
		}
		b.WriteString(m.theme.Reaction.Render(strings.Join(parts, "  ")))
		b.WriteString("\n")
	}
	return b.String()
}

// =============================================================================
// INPUT AND STATUS
// =============================================================================

func (m *Model) inputView() string {
	width := m.width - 2
	box := m.theme.InputBox.Width(width).Render(m.input.View())
	att, staged := m.controller.StagedAttachment()
	if !staged {
		return box
	}
	label := "📎 uploading…"
	if att != nil {
		label = fmt.Sprintf("📎 %s (%s) ready, ctrl+x to clear", att.Name, util.FormatSize(att.Size))
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.theme.Attachment.Render(label), box)
}

func (m *Model) statusBarView() string {
	label, severity := m.connLabel()
	var stateStyle lipgloss.Style
	switch severity {
	case 0:
		stateStyle = m.theme.StateConnected
	case 1:
		stateStyle = m.theme.StateConnecting
	default:
		stateStyle = m.theme.StateLost
	}

	left := stateStyle.Render("◆ " + label)
	right := m.bell.BadgeView() + "  " + m.theme.StatusBar.Render("tab: switch · ctrl+a: attach · ctrl+n: notifications · esc: quit")

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}
