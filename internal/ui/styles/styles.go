// Copyright (c) 2025 Encadri Project
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling for the Encadri TUI.
// All colors use Lip Gloss AdaptiveColor for automatic light/dark
// detection.
package styles

import "github.com/charmbracelet/lipgloss"

// =============================================================================
// COLORS
// =============================================================================

// Indigo - primary accent, own messages, selections
var Indigo = lipgloss.AdaptiveColor{Light: "#4F46E5", Dark: "#818CF8"}

// Teal - partner messages, links
var Teal = lipgloss.AdaptiveColor{Light: "#0D9488", Dark: "#2DD4BF"}

// Emerald - online indicators, success states
var Emerald = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}

// Rose - errors, disconnect states
var Rose = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}

// Amber - warnings, stale-history banner, unread badge
var Amber = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}

// Surface - main background
var Surface = lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#1E1E2E"}

// Overlay - borders, separators
var Overlay = lipgloss.AdaptiveColor{Light: "#E5E5E5", Dark: "#313244"}

// Text - primary text
var Text = lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#CDD6F4"}

// TextDim - secondary text, timestamps, typing indicator
var TextDim = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#7F849C"}

// =============================================================================
// THEME
// =============================================================================

// Theme holds the styled components for the chat UI.
type Theme struct {
	Width  int
	Height int

	// Sidebar (partner list)
	Sidebar         lipgloss.Style
	PartnerItem     lipgloss.Style
	PartnerSelected lipgloss.Style
	PartnerOnline   lipgloss.Style
	PartnerOffline  lipgloss.Style

	// Conversation
	OwnMessage     lipgloss.Style
	PartnerMessage lipgloss.Style
	SystemMessage  lipgloss.Style
	Timestamp      lipgloss.Style
	ReadMark       lipgloss.Style
	Reaction       lipgloss.Style
	ReplyQuote     lipgloss.Style
	Attachment     lipgloss.Style
	StaleBanner    lipgloss.Style
	TypingLine     lipgloss.Style

	// Input
	InputBox    lipgloss.Style
	InputPrompt lipgloss.Style

	// Status bar
	StatusBar       lipgloss.Style
	StateConnected  lipgloss.Style
	StateConnecting lipgloss.Style
	StateLost       lipgloss.Style

	// Notifications
	Bell        lipgloss.Style
	UnreadBadge lipgloss.Style
	ToastInfo   lipgloss.Style
	ToastError  lipgloss.Style
}

// NewTheme builds the default theme.
func NewTheme() *Theme {
	return &Theme{
		Sidebar: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderRight(true).
			BorderForeground(Overlay).
			PaddingRight(1),
		PartnerItem:     lipgloss.NewStyle().Foreground(Text),
		PartnerSelected: lipgloss.NewStyle().Foreground(Indigo).Bold(true),
		PartnerOnline:   lipgloss.NewStyle().Foreground(Emerald),
		PartnerOffline:  lipgloss.NewStyle().Foreground(TextDim),

		OwnMessage:     lipgloss.NewStyle().Foreground(Indigo),
		PartnerMessage: lipgloss.NewStyle().Foreground(Teal),
		SystemMessage:  lipgloss.NewStyle().Foreground(TextDim).Italic(true),
		Timestamp:      lipgloss.NewStyle().Foreground(TextDim),
		ReadMark:       lipgloss.NewStyle().Foreground(Emerald),
		Reaction:       lipgloss.NewStyle().Foreground(Amber),
		ReplyQuote: lipgloss.NewStyle().
			Foreground(TextDim).
			BorderStyle(lipgloss.NormalBorder()).
			BorderLeft(true).
			BorderForeground(Overlay).
			PaddingLeft(1),
		Attachment: lipgloss.NewStyle().Foreground(Teal).Underline(true),
		StaleBanner: lipgloss.NewStyle().
			Foreground(Amber).
			Bold(true),
		TypingLine: lipgloss.NewStyle().Foreground(TextDim).Italic(true),

		InputBox: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(Overlay).
			Padding(0, 1),
		InputPrompt: lipgloss.NewStyle().Foreground(Indigo).Bold(true),

		StatusBar:       lipgloss.NewStyle().Foreground(TextDim).Background(Surface),
		StateConnected:  lipgloss.NewStyle().Foreground(Emerald).Bold(true),
		StateConnecting: lipgloss.NewStyle().Foreground(Amber).Bold(true),
		StateLost:       lipgloss.NewStyle().Foreground(Rose).Bold(true),

		Bell: lipgloss.NewStyle().Foreground(Text),
		UnreadBadge: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#1E1E2E")).
			Background(Amber).
			Padding(0, 1).
			Bold(true),
		ToastInfo: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(Teal).
			Padding(0, 1),
		ToastError: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(Rose).
			Padding(0, 1),
	}
}

// Resize records the terminal dimensions.
func (t *Theme) Resize(width, height int) {
	t.Width = width
	t.Height = height
}
