// Copyright (c) 2025 Encadri Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bahadhay/encadri-tui/internal/chatview"
	"github.com/bahadhay/encadri-tui/internal/hub"
	"github.com/bahadhay/encadri-tui/internal/ui/components"
)

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.theme.Resize(msg.Width, msg.Height)
		m.viewport.Width = msg.Width - sidebarWidth - 1
		m.viewport.Height = msg.Height - inputHeight - statusBarHeight
		m.input.Width = msg.Width - sidebarWidth - 6
		m.refreshViewport()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case RefreshMsg:
		m.bell.SetUnread(m.notifier.UnreadCount())
		m.refreshViewport()
		return m, nil

	case ConnStateMsg:
		if msg.Hub == "chat" {
			m.chatState = msg.State
		} else {
			m.notifyState = msg.State
		}
		return m, nil

	case NotificationToastMsg:
		cmd := m.toasts.Push(components.NewInfoToast(msg.Notification.Title, msg.Notification.Message))
		return m, cmd

	case components.ToastExpiredMsg:
		m.toasts.Expire(msg.ID)
		return m, nil

	case switchDoneMsg:
		m.switching = false
		if msg.err != nil {
			m.err = msg.err
			return m, m.toasts.Push(components.NewErrorToast("could not open conversation: " + msg.err.Error()))
		}
		m.refreshViewport()
		m.viewport.GotoBottom()
		return m, nil

	case sendDoneMsg:
		if msg.err != nil {
			return m, m.toasts.Push(components.NewErrorToast("send failed: " + msg.err.Error()))
		}
		return m, nil

	case attachDoneMsg:
		if msg.err != nil {
			return m, m.toasts.Push(components.NewErrorToast("attach failed: " + msg.err.Error()))
		}
		return m, m.toasts.Push(components.NewInfoToast("attached", msg.name+" will ride the next message"))

	default:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		if m.bell.Open() {
			m.bell.Toggle()
			return m, nil
		}
		if m.attaching {
			m.exitAttachMode()
			return m, nil
		}
		return m, tea.Quit

	case "ctrl+n":
		m.bell.Toggle()
		return m, nil

	case "ctrl+a":
		if !m.attaching {
			m.attaching = true
			m.draft = m.input.Value()
			m.input.Reset()
			m.input.Placeholder = "path to file…"
		}
		return m, nil

	case "ctrl+x":
		if _, staged := m.controller.StagedAttachment(); staged {
			m.controller.ClearStaged()
			return m, m.toasts.Push(components.NewInfoToast("attachment cleared", ""))
		}
		return m, nil

	case "up", "down":
		if m.bell.Open() {
			delta := -1
			if msg.String() == "down" {
				delta = 1
			}
			m.bell.Move(delta, len(m.notifier.Notifications()))
			return m, nil
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case "ctrl+p", "ctrl+k":
		return m.cyclePartner(-1)

	case "ctrl+j", "tab":
		return m.cyclePartner(1)

	case "enter":
		if m.bell.Open() {
			return m, m.markSelectedRead()
		}
		if m.attaching {
			path := strings.TrimSpace(m.input.Value())
			m.exitAttachMode()
			if path == "" {
				return m, nil
			}
			return m, m.attachCmd(path)
		}
		content := strings.TrimSpace(m.input.Value())
		_, staged := m.controller.StagedAttachment()
		if content == "" && !staged {
			return m, nil
		}
		m.input.Reset()
		return m, m.sendCmd(content)

	default:
		if m.bell.Open() {
			return m.handleBellKey(msg)
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		// Keystrokes in the message input signal typing, throttled and
		// auto-stopped downstream; path entry is not typing.
		if !m.attaching && (msg.Type == tea.KeyRunes || msg.Type == tea.KeySpace) {
			go m.controller.NotifyTyping(context.Background()) //nolint:errcheck
		}
		return m, cmd
	}
}

// exitAttachMode restores the message draft after the file-path prompt.
func (m *Model) exitAttachMode() {
	m.attaching = false
	m.input.Reset()
	m.input.SetValue(m.draft)
	m.input.Placeholder = "type a message…"
	m.draft = ""
}

func (m *Model) handleBellKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "r":
		return m, func() tea.Msg {
			if err := m.notifier.MarkAllAsRead(context.Background()); err != nil {
				return sendDoneMsg{err: err}
			}
			return RefreshMsg{}
		}
	case "x":
		list := m.notifier.Notifications()
		idx := m.bell.Selected()
		if idx >= len(list) {
			return m, nil
		}
		id := list[idx].ID
		return m, func() tea.Msg {
			if err := m.notifier.DeleteNotification(context.Background(), id); err != nil {
				return sendDoneMsg{err: err}
			}
			return RefreshMsg{}
		}
	}
	return m, nil
}

func (m *Model) markSelectedRead() tea.Cmd {
	list := m.notifier.Notifications()
	idx := m.bell.Selected()
	if idx >= len(list) || list[idx].IsRead {
		return nil
	}
	id := list[idx].ID
	return func() tea.Msg {
		if err := m.notifier.MarkAsRead(context.Background(), id); err != nil {
			return sendDoneMsg{err: err}
		}
		return RefreshMsg{}
	}
}

// cyclePartner moves the sidebar selection and switches the active
// conversation to it.
func (m *Model) cyclePartner(delta int) (tea.Model, tea.Cmd) {
	partners := m.dir.Partners()
	if len(partners) == 0 {
		return m, nil
	}
	m.sidebarIdx = (m.sidebarIdx + delta + len(partners)) % len(partners)
	p := partners[m.sidebarIdx]
	m.dir.SetActive(p.Email)

	projectID := ""
	if len(p.Projects) > 0 {
		projectID = p.Projects[0]
	}
	m.switching = true
	return m, m.switchCmd(chatview.Partner{Email: p.Email, Name: p.Name, ProjectID: projectID})
}

// connLabel summarizes the two hub states for the status bar, worst
// first.
func (m *Model) connLabel() (string, int) {
	worst := m.chatState
	if rank(m.notifyState) > rank(worst) {
		worst = m.notifyState
	}
	switch worst {
	case hub.StateConnected:
		return "connected", 0
	case hub.StateConnecting:
		return "connecting…", 1
	case hub.StateReconnecting:
		return "reconnecting…", 1
	default:
		return "offline", 2
	}
}

func rank(s hub.State) int {
	switch s {
	case hub.StateConnected:
		return 0
	case hub.StateConnecting, hub.StateReconnecting:
		return 1
	default:
		return 2
	}
}
