// Copyright (c) 2025 Encadri Project
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat implements the Bubble Tea model for the conversation
// screen: partner sidebar, message viewport, input line, status bar and
// the notification bell/toast pair.
package chat

import (
	"context"
	"mime"
	"os"
	"path/filepath"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/bahadhay/encadri-tui/internal/chatview"
	"github.com/bahadhay/encadri-tui/internal/directory"
	"github.com/bahadhay/encadri-tui/internal/hub"
	"github.com/bahadhay/encadri-tui/internal/model"
	"github.com/bahadhay/encadri-tui/internal/notify"
	"github.com/bahadhay/encadri-tui/internal/ui/components"
	"github.com/bahadhay/encadri-tui/internal/ui/styles"
)

// Layout constants.
const (
	sidebarWidth    = 24
	inputHeight     = 3
	statusBarHeight = 1
)

// =============================================================================
// MESSAGES
// =============================================================================

// RefreshMsg repaints the view after external state changed. The wiring
// layer sends it whenever the controller, presence set or notification
// client reports a change.
type RefreshMsg struct{}

// ConnStateMsg reports a hub connection state change.
type ConnStateMsg struct {
	Hub   string // "chat" or "notifications"
	State hub.State
}

// NotificationToastMsg carries a notification for toast presentation.
type NotificationToastMsg struct {
	Notification model.Notification
}

// switchDoneMsg reports the outcome of an async conversation switch.
type switchDoneMsg struct {
	partner string
	err     error
}

// sendDoneMsg reports the outcome of an async message send.
type sendDoneMsg struct {
	err error
}

// attachDoneMsg reports the outcome of staging and uploading a file.
type attachDoneMsg struct {
	name string
	err  error
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	theme *styles.Theme

	controller *chatview.Controller
	dir        *directory.Directory
	notifier   *notify.Client
	presence   *model.PresenceSet
	selfEmail  string

	viewport  viewport.Model
	input     textinput.Model
	spin      spinner.Model
	toasts    *components.ToastStack
	bell      *components.Bell
	switching bool

	// attaching repurposes the input line as a file-path prompt; draft
	// preserves the message being typed meanwhile.
	attaching bool
	draft     string

	chatState   hub.State
	notifyState hub.State

	sidebarIdx int
	width      int
	height     int
	err        error
}

// New creates the chat screen model.
func New(ctrl *chatview.Controller, dir *directory.Directory, notifier *notify.Client, presence *model.PresenceSet, selfEmail string) *Model {
	theme := styles.NewTheme()

	input := textinput.New()
	input.Placeholder = "type a message…"
	input.Prompt = "❯ "
	input.PromptStyle = theme.InputPrompt
	input.CharLimit = 4000
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	return &Model{
		theme:      theme,
		controller: ctrl,
		dir:        dir,
		notifier:   notifier,
		presence:   presence,
		selfEmail:  selfEmail,
		viewport:   viewport.New(0, 0),
		input:      input,
		spin:       spin,
		toasts:     components.NewToastStack(theme),
		bell:       components.NewBell(theme),
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return m.spin.Tick
}

// switchCmd runs the conversation switch off the UI loop.
func (m *Model) switchCmd(p chatview.Partner) tea.Cmd {
	return func() tea.Msg {
		err := m.controller.SwitchTo(context.Background(), p)
		return switchDoneMsg{partner: p.Email, err: err}
	}
}

// sendCmd runs the message send off the UI loop.
func (m *Model) sendCmd(content string) tea.Cmd {
	return func() tea.Msg {
		return sendDoneMsg{err: m.controller.Send(context.Background(), content, nil)}
	}
}

// attachCmd stages the file at path and uploads it, so the next send
// carries its durable reference.
func (m *Model) attachCmd(path string) tea.Cmd {
	return func() tea.Msg {
		f, err := os.Open(path)
		if err != nil {
			return attachDoneMsg{err: err}
		}
		defer f.Close()

		name := filepath.Base(path)
		contentType := mime.TypeByExtension(filepath.Ext(path))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		if err := m.controller.StageFile(name, contentType, f); err != nil {
			return attachDoneMsg{err: err}
		}
		if err := m.controller.UploadStaged(context.Background()); err != nil {
			m.controller.ClearStaged()
			return attachDoneMsg{err: err}
		}
		return attachDoneMsg{name: name}
	}
}
