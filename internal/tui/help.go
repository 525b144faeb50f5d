package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type helpItem struct {
	key  string
	desc string
}

var helpItems = []helpItem{
	{"q / Ctrl+C", "Quit"},
	{"↑ / ↓, Tab", "Navigate surfaces"},
	{"Enter", "Open selected surface"},
	{"m", "Write a message"},
	{"r", "Resend the last unanswered message"},
	{"Ctrl+R", "Reload history for every surface"},
	{"o", "Open async content by id"},
	{"PgUp / PgDn", "Scroll conversation"},
	{"G / End", "Follow the conversation"},
	{"Esc", "Back / Cancel"},
	{"?", "Toggle help"},
}

// RenderHelp renders the help overlay.
func RenderHelp(width, height int) string {
	lines := []string{titleStyle.Render("⌨ Keyboard Shortcuts"), ""}

	maxKeyLen := 0
	for _, item := range helpItems {
		if w := lipgloss.Width(item.key); w > maxKeyLen {
			maxKeyLen = w
		}
	}
	for _, item := range helpItems {
		k := helpKeyStyle.Render(padRight(item.key, maxKeyLen))
		lines = append(lines, k+"  "+helpDescStyle.Render(item.desc))
	}

	box := helpStyle.Render(strings.Join(lines, "\n"))
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box)
}

func padRight(s string, length int) string {
	w := lipgloss.Width(s)
	if w >= length {
		return s
	}
	return s + strings.Repeat(" ", length-w)
}
