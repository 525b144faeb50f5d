package tui

import "strings"

const (
	scrollbarThumb = "█"
	scrollbarTrack = "│"
)

// renderScrollbar draws a one-column scrollbar for a viewport of height
// lines showing totalLines starting at offset.
func renderScrollbar(height, totalLines, offset int) string {
	if height <= 0 {
		return ""
	}
	lines := make([]string, height)
	for i := range lines {
		lines[i] = borderStyle.Render(scrollbarTrack)
	}
	if totalLines <= height {
		return strings.Join(lines, "\n")
	}

	thumbSize := height * height / totalLines
	if thumbSize < 1 {
		thumbSize = 1
	}
	ratio := float64(offset) / float64(totalLines-height)
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	thumbPos := int(ratio * float64(height-thumbSize))

	for i := thumbPos; i < thumbPos+thumbSize && i < height; i++ {
		lines[i] = dimmedStyle.Render(scrollbarThumb)
	}
	return strings.Join(lines, "\n")
}
