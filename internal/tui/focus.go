package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"
	"github.com/xonecas/tutorline/internal/core"
)

// wrapText wraps text to fit within maxWidth display columns, preserving words.
// Long words that exceed maxWidth are hard-wrapped to prevent overflow.
func wrapText(text string, maxWidth int) []string {
	if maxWidth <= 0 {
		maxWidth = 80
	}

	var lines []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}

		currentLine := ""
		for _, word := range words {
			wordWidth := lipgloss.Width(word)

			if wordWidth > maxWidth {
				if currentLine != "" {
					lines = append(lines, currentLine)
					currentLine = ""
				}
				for word != "" {
					chunk := truncateToWidth(word, maxWidth)
					if chunk == "" {
						// A single rune wider than maxWidth.
						chunk = string([]rune(word)[:1])
					}
					lines = append(lines, chunk)
					word = word[len(chunk):]
				}
				continue
			}

			if currentLine == "" {
				currentLine = word
			} else if lipgloss.Width(currentLine)+1+wordWidth <= maxWidth {
				currentLine += " " + word
			} else {
				lines = append(lines, currentLine)
				currentLine = word
			}
		}
		if currentLine != "" {
			lines = append(lines, currentLine)
		}
	}
	return lines
}

// renderConversation renders committed messages plus the live buffer.
func renderConversation(snap core.ThreadSnapshot, md *Markdown, width int) string {
	if width < 10 {
		width = 10
	}
	var blocks []string

	for _, m := range snap.Messages {
		blocks = append(blocks, renderMessage(m, md, width))
	}
	if snap.Streaming {
		label := generatingStyle.Render("assistant ▍")
		body := strings.Join(wrapText(snap.Buffer, width-2), "\n")
		blocks = append(blocks, label+"\n"+logAssistantStyle.Render(body))
	}
	if len(blocks) == 0 {
		return dimmedStyle.Render("No messages yet. Press 'm' to say hello.")
	}
	return strings.Join(blocks, "\n\n")
}

func renderMessage(m core.Message, md *Markdown, width int) string {
	label := RoleStyle(m.Role).Render(string(m.Role))
	if m.HasTimestamp() {
		label += " " + dimmedStyle.Render(m.CreatedAt.Local().Format("15:04"))
	}

	var body string
	if m.Role == core.RoleAssistant {
		body = md.Render(m.Content, width-2)
		if body == m.Content {
			body = strings.Join(wrapText(m.Content, width-2), "\n")
		}
	} else {
		body = strings.Join(wrapText(m.Content, width-2), "\n")
	}
	return label + "\n" + body
}

// RenderFocusView renders one surface around a scrolled conversation viewport.
func RenderFocusView(info SurfaceInfo, vp viewport.Model, width int, spinnerView string, autoScroll bool) string {
	var sections []string

	title := info.Title
	if info.Key.ContextID != "" {
		title = fmt.Sprintf("%s · %s", info.Title, info.Key.ContextID)
	}
	suffix := ""
	if info.Generating {
		suffix = " " + spinnerView
	}
	sections = append(sections, renderSectionTitleWithSuffix(strings.ToUpper(title), suffix, width))

	scrollbar := renderScrollbar(vp.Height, vp.TotalLineCount(), vp.YOffset)
	body := lipgloss.JoinHorizontal(lipgloss.Top, vp.View(), scrollbar)
	sections = append(sections, logStyle.Width(width-2).Render(body))

	status := dimmedStyle.Render(fmt.Sprintf("%s · %s", info.Key, info.Backend))
	if !autoScroll {
		status += "  " + warningStyle.Render("scrolled · G to follow")
	}
	sections = append(sections, status)
	return strings.Join(sections, "\n")
}
