package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/rs/zerolog/log"
)

// Markdown renders assistant replies. A renderer is built per wrap width
// and reused; on any failure the raw text is returned.
type Markdown struct {
	style     string
	renderers map[int]*glamour.TermRenderer
}

// NewMarkdown creates a renderer using a glamour standard style
// ("dark", "light", "notty"). An empty style disables rendering.
func NewMarkdown(style string) *Markdown {
	return &Markdown{
		style:     style,
		renderers: make(map[int]*glamour.TermRenderer),
	}
}

// Render renders content wrapped to width.
func (m *Markdown) Render(content string, width int) string {
	if m == nil || m.style == "" || width <= 0 {
		return content
	}

	r, ok := m.renderers[width]
	if !ok {
		var err error
		r, err = glamour.NewTermRenderer(
			glamour.WithStandardStyle(m.style),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			log.Debug().Err(err).Msg("markdown renderer unavailable")
			m.style = ""
			return content
		}
		m.renderers[width] = r
	}

	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return strings.Trim(out, "\n")
}
