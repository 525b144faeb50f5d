package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/xonecas/tutorline/internal/core"
)

// Palette. Each color has a light and a dark terminal variant.
var (
	colorBrand    = lipgloss.AdaptiveColor{Light: "#1F4FD1", Dark: "#3D7BFF"}
	colorBrandDim = lipgloss.AdaptiveColor{Light: "#8FA9E8", Dark: "#2A4FA8"}
	colorTeal     = lipgloss.AdaptiveColor{Light: "#00806D", Dark: "#00D1B2"}

	colorUser      = lipgloss.AdaptiveColor{Light: "#17803D", Dark: "#4ADE80"}
	colorAssistant = lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#FF9F1C"}
	colorNotice    = lipgloss.AdaptiveColor{Light: "#0369A1", Dark: "#38BDF8"}

	colorWarning = lipgloss.AdaptiveColor{Light: "#C2410C", Dark: "#FB923C"}
	colorError   = lipgloss.AdaptiveColor{Light: "#BE123C", Dark: "#FF3366"}
	colorUnread  = lipgloss.AdaptiveColor{Light: "#A16207", Dark: "#FFD400"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#6B7394"}
	colorInverse = lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#0B0E17"}

	colorSurface = lipgloss.AdaptiveColor{Light: "#EEF2FF", Dark: "#111626"}
	colorPanel   = lipgloss.AdaptiveColor{Light: "#F8FAFC", Dark: "#151B2E"}
	colorRule    = lipgloss.AdaptiveColor{Light: "#CBD5E1", Dark: "#2A3355"}
)

func fg(c lipgloss.TerminalColor) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(c)
}

// Text styles
var (
	titleStyle      = fg(colorBrand).Bold(true)
	panelTitleStyle = fg(colorTeal).Bold(true)
	unreadStyle     = fg(colorUnread).Bold(true)
	generatingStyle = fg(colorAssistant).Bold(true)
	errorStyle      = fg(colorError).Bold(true)
	warningStyle    = fg(colorWarning)
	dimmedStyle     = fg(colorMuted)
	borderStyle     = fg(colorRule)

	logUserStyle      = fg(colorUser).Bold(true)
	logAssistantStyle = fg(colorAssistant)
	logNoticeStyle    = fg(colorNotice).Italic(true)

	inputPromptStyle = fg(colorBrand).Bold(true)
	helpKeyStyle     = fg(colorTeal).Bold(true)
	helpDescStyle    = fg(colorMuted)
)

// Block styles
var (
	headerStyle    = fg(colorBrand).Bold(true).Background(colorSurface).MarginBottom(1)
	statusBarStyle = fg(colorMuted).Background(colorSurface)
	toastStyle     = fg(colorInverse).Background(colorUnread).Bold(true).Padding(0, 1)

	surfaceListStyle         = lipgloss.NewStyle().Border(lipgloss.DoubleBorder()).BorderForeground(colorBrandDim)
	surfaceItemStyle         = fg(colorTeal).Padding(0, 1)
	surfaceItemSelectedStyle = fg(colorInverse).Background(colorBrand).Bold(true).Padding(0, 1)

	logStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorBrandDim)
	inputStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorTeal).Padding(0, 1)
	helpStyle  = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(colorBrand).
			Background(colorPanel).
			Padding(1, 2).
			Margin(1)
)

// RoleStyle returns the label style for a message author.
func RoleStyle(role core.Role) lipgloss.Style {
	switch role {
	case core.RoleUser:
		return logUserStyle
	case core.RoleAssistant:
		return logAssistantStyle
	default:
		return logNoticeStyle
	}
}

// renderSectionTitle renders a section title that spans the full width.
func renderSectionTitle(title string, width int) string {
	return renderSectionTitleWithSuffix(title, "", width)
}

// renderSectionTitleWithSuffix renders a section title with an optional suffix.
func renderSectionTitleWithSuffix(title, suffix string, width int) string {
	// Format: ⬧── TITLE ──⬧ [suffix]
	titleWithSpaces := " " + title + " "
	availableWidth := width - lipgloss.Width(titleWithSpaces) - 4 - lipgloss.Width(suffix)
	if availableWidth < 2 {
		availableWidth = 2
	}
	leftDashes := availableWidth / 2
	rightDashes := availableWidth - leftDashes

	line := "⬧─" + strings.Repeat("─", leftDashes) + titleWithSpaces + strings.Repeat("─", rightDashes) + "─⬧"
	if suffix != "" {
		line += suffix
	}
	return panelTitleStyle.Width(width).Render(line)
}

// truncateToWidth truncates a string to fit within maxWidth display columns.
// Uses rune-aware iteration to avoid cutting multi-byte characters.
func truncateToWidth(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	currentWidth := 0
	for i, r := range s {
		charWidth := lipgloss.Width(string(r))
		if currentWidth+charWidth > maxWidth {
			return s[:i]
		}
		currentWidth += charWidth
	}
	return s
}

func truncateWithEllipsis(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return truncateToWidth(s, maxWidth)
	}
	return truncateToWidth(s, maxWidth-3) + "..."
}
