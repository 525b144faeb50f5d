package tui

import (
	"strings"

	"github.com/xonecas/tutorline/internal/core"
)

// RenderContentView renders an async content item (an article or lesson)
// in whatever state its loader is in.
func RenderContentView(v core.ContentView, md *Markdown, width, height int, spinnerView string) string {
	var sections []string
	sections = append(sections, renderSectionTitle("CONTENT "+strings.ToUpper(v.ID), width))

	var body string
	switch v.State {
	case core.ContentReady:
		body = md.Render(v.Content, width-4)
		if body == v.Content {
			body = strings.Join(wrapText(v.Content, width-4), "\n")
		}
	case core.ContentGenerating:
		body = spinnerView + " Generating content..."
		if v.Content != "" {
			body += "\n\n" + dimmedStyle.Render(strings.Join(wrapText(v.Content, width-4), "\n"))
		}
	case core.ContentFailed:
		body = errorStyle.Render(v.Notice)
	case core.ContentTimedOut:
		body = warningStyle.Render(v.Notice)
	default:
		body = spinnerView + " Loading..."
	}

	lines := strings.Split(body, "\n")
	if height > 2 && len(lines) > height-2 {
		lines = lines[:height-2]
	}
	sections = append(sections, strings.Join(lines, "\n"))
	return strings.Join(sections, "\n")
}
