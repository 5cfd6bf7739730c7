package ux

import (
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Styles are the text styles used by the text views.
type Styles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Lost    lipgloss.Style
	Found   lipgloss.Style
	Header  lipgloss.Style
	Border  lipgloss.Style

	// Now anchors relative times such as "3 hours ago".
	Now func() time.Time
}

// NewStyles returns the default palette, or unstyled text when noColor is set
func NewStyles(noColor bool) Styles {
	if noColor {
		return PlainStyles()
	}
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Error:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		Lost:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		Found:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		Header:  lipgloss.NewStyle().Bold(true).Padding(0, 1),
		Border:  lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
		Now:     time.Now,
	}
}

// PlainStyles renders everything without color or emphasis
func PlainStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Title:   plain,
		Label:   plain,
		Muted:   plain,
		Success: plain,
		Warning: plain,
		Error:   plain,
		Lost:    plain,
		Found:   plain,
		Header:  plain.Padding(0, 1),
		Border:  plain,
		Now:     time.Now,
	}
}

func (s Styles) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}
