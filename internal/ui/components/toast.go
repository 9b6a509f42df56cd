// Copyright (c) 2025 Encadri Project
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package components provides shared UI components for the Encadri TUI.
//
// Toasts are non-blocking corner notifications that auto-dismiss, so the
// user keeps typing while a notification or transient error is shown.
package components

import (
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bahadhay/encadri-tui/internal/ui/styles"
	"github.com/bahadhay/encadri-tui/internal/util"
)

// ToastKind selects the toast presentation.
type ToastKind int

const (
	// ToastInfo is an informational toast.
	ToastInfo ToastKind = iota
	// ToastError is an error toast, shown longer.
	ToastError
)

// Auto-dismiss durations.
const (
	InfoToastDuration  = 4 * time.Second
	ErrorToastDuration = 8 * time.Second
)

// maxVisibleToasts caps the stack so toasts never cover the input.
const maxVisibleToasts = 3

var (
	toastIDMu sync.Mutex
	toastID   int
)

func nextToastID() int {
	toastIDMu.Lock()
	defer toastIDMu.Unlock()
	toastID++
	return toastID
}

// Toast is one queued notification.
type Toast struct {
	ID        int
	Title     string
	Message   string
	Kind      ToastKind
	CreatedAt time.Time
	Duration  time.Duration
}

// ToastExpiredMsg asks the stack to drop an expired toast.
type ToastExpiredMsg struct {
	ID int
}

// NewInfoToast creates an informational toast.
func NewInfoToast(title, message string) Toast {
	return Toast{
		ID:        nextToastID(),
		Title:     title,
		Message:   message,
		Kind:      ToastInfo,
		CreatedAt: time.Now(),
		Duration:  InfoToastDuration,
	}
}

// NewErrorToast creates an error toast.
func NewErrorToast(message string) Toast {
	return Toast{
		ID:        nextToastID(),
		Message:   message,
		Kind:      ToastError,
		CreatedAt: time.Now(),
		Duration:  ErrorToastDuration,
	}
}

// =============================================================================
// TOAST STACK
// =============================================================================

// ToastStack holds the visible toasts, newest last.
type ToastStack struct {
	theme  *styles.Theme
	toasts []Toast
}

// NewToastStack creates an empty stack.
func NewToastStack(theme *styles.Theme) *ToastStack {
	return &ToastStack{theme: theme}
}

// Push adds a toast and returns the command that expires it. The oldest
// toast is evicted when the stack is full.
func (s *ToastStack) Push(t Toast) tea.Cmd {
	s.toasts = append(s.toasts, t)
	if len(s.toasts) > maxVisibleToasts {
		s.toasts = s.toasts[len(s.toasts)-maxVisibleToasts:]
	}
	id := t.ID
	return tea.Tick(t.Duration, func(time.Time) tea.Msg {
		return ToastExpiredMsg{ID: id}
	})
}

// Expire removes a toast by id.
func (s *ToastStack) Expire(id int) {
	kept := s.toasts[:0]
	for _, t := range s.toasts {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	s.toasts = kept
}

// DismissAll clears the stack.
func (s *ToastStack) DismissAll() {
	s.toasts = nil
}

// Len returns the number of visible toasts.
func (s *ToastStack) Len() int {
	return len(s.toasts)
}

// View renders the stack, one boxed toast per line group.
func (s *ToastStack) View(maxWidth int) string {
	if len(s.toasts) == 0 {
		return ""
	}
	var rendered []string
	for _, t := range s.toasts {
		style := s.theme.ToastInfo
		if t.Kind == ToastError {
			style = s.theme.ToastError
		}
		body := t.Message
		if t.Title != "" {
			body = t.Title + "\n" + t.Message
		}
		if maxWidth > 4 {
			var lines []string
			for _, line := range strings.Split(body, "\n") {
				lines = append(lines, util.TruncateWidth(line, maxWidth-4))
			}
			body = strings.Join(lines, "\n")
		}
		rendered = append(rendered, style.Render(body))
	}
	return lipgloss.JoinVertical(lipgloss.Right, rendered...)
}
