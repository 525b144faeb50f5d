package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/xonecas/tutorline/internal/core"
)

// SurfaceInfo holds display info for one chat surface.
type SurfaceInfo struct {
	Key         core.ThreadKey
	Title       string
	Backend     string
	Unread      bool
	Generating  bool
	Toast       bool
	LastMessage string
}

// SurfaceInfoFromSession converts a session to display info.
func SurfaceInfoFromSession(s *core.Session) SurfaceInfo {
	snap := s.Snapshot()
	info := SurfaceInfo{
		Key:        s.Key(),
		Title:      s.Title(),
		Backend:    s.Backend(),
		Unread:     snap.Unread,
		Generating: snap.Generating,
		Toast:      s.TooltipVisible(),
	}
	if len(snap.Messages) > 0 {
		info.LastMessage = snap.Messages[len(snap.Messages)-1].Content
	}
	return info
}

// RenderSurfaceList renders the list of mounted surfaces.
func RenderSurfaceList(surfaces []SurfaceInfo, selectedIdx, unreadCount, width, height int, spinnerView string) string {
	if width < 20 {
		width = 20
	}
	var sections []string

	topLine := "◆" + strings.Repeat("═", width-2) + "◆"
	titleText := "T U T O R L I N E"
	pad := (width - lipgloss.Width(titleText)) / 2
	if pad < 0 {
		pad = 0
	}
	header := headerStyle.Width(width).Render(topLine + "\n" + strings.Repeat(" ", pad) + titleText + "\n" + topLine)
	sections = append(sections, header)

	generating := 0
	for _, s := range surfaces {
		if s.Generating {
			generating++
		}
	}
	stats := fmt.Sprintf("%s %d unread  %s %d surfaces", unreadStyle.Render("●"), unreadCount, dimmedStyle.Render("○"), len(surfaces))
	if generating > 0 {
		stats += fmt.Sprintf("  %s %d streaming", spinnerView, generating)
	}
	sections = append(sections, statusBarStyle.Width(width).Render(stats))
	sections = append(sections, renderSectionTitle("SURFACES", width))

	// header (3 + margin) + stats + section title + borders
	listHeight := height - 8
	if listHeight < 3 {
		listHeight = 3
	}
	contentWidth := width - 4

	if len(surfaces) == 0 {
		empty := dimmedStyle.Render("No surfaces configured.")
		sections = append(sections, surfaceListStyle.Width(width-2).Height(listHeight).Render(empty))
		return strings.Join(sections, "\n")
	}

	var lines []string
	for i, s := range surfaces {
		lines = append(lines, renderSurfaceLine(s, i == selectedIdx, spinnerView, contentWidth))
	}
	sections = append(sections, surfaceListStyle.Width(width-2).Height(listHeight).Render(strings.Join(lines, "\n")))
	return strings.Join(sections, "\n")
}

func renderSurfaceLine(s SurfaceInfo, selected bool, spinnerView string, width int) string {
	marker := dimmedStyle.Render("○")
	switch {
	case s.Generating:
		marker = spinnerView
	case s.Unread:
		marker = unreadStyle.Render("●")
	}

	title := truncateWithEllipsis(s.Title, 24)
	preview := strings.ReplaceAll(s.LastMessage, "\n", " ")
	previewWidth := width - lipgloss.Width(title) - 8
	preview = truncateWithEllipsis(preview, previewWidth)

	line := fmt.Sprintf("%s %-24s %s", marker, title, dimmedStyle.Render(preview))
	if selected {
		return surfaceItemSelectedStyle.Width(width).Render(fmt.Sprintf("%s %-24s %s", marker, title, preview))
	}
	return surfaceItemStyle.Width(width).Render(line)
}

// renderToast renders the background notification bar, or "" when no
// surface has a visible alert.
func renderToast(surfaces []SurfaceInfo, width int) string {
	var titles []string
	for _, s := range surfaces {
		if s.Toast {
			titles = append(titles, s.Title)
		}
	}
	if len(titles) == 0 {
		return ""
	}
	text := "New reply in " + strings.Join(titles, ", ")
	return toastStyle.Render(truncateWithEllipsis(text, width-2))
}
