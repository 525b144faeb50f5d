package tui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// InputMode selects what the input line is collecting.
type InputMode int

const (
	InputModeNone InputMode = iota
	InputModeMessage
	InputModeContent
)

const maxHistorySize = 100

// recall is a bounded list of past entries with a browse cursor.
// cursor counts back from the newest entry; -1 means editing the draft.
type recall struct {
	entries []string
	cursor  int
	draft   string
}

func (r *recall) push(entry string) {
	if entry == "" {
		return
	}
	if n := len(r.entries); n > 0 && r.entries[n-1] == entry {
		return
	}
	r.entries = append(r.entries, entry)
	if len(r.entries) > maxHistorySize {
		r.entries = r.entries[len(r.entries)-maxHistorySize:]
	}
}

// step moves the cursor (+1 older, -1 newer) and returns the text to show.
func (r *recall) step(delta int, current string) (string, bool) {
	if len(r.entries) == 0 {
		return "", false
	}
	if r.cursor == -1 && delta > 0 {
		r.draft = current
	}
	r.cursor = min(max(r.cursor+delta, -1), len(r.entries)-1)
	if r.cursor == -1 {
		return r.draft, true
	}
	return r.entries[len(r.entries)-1-r.cursor], true
}

func (r *recall) rewind() {
	r.cursor = -1
	r.draft = ""
}

var modePrompts = map[InputMode]struct{ icon, placeholder string }{
	InputModeMessage: {"💬", "Ask something..."},
	InputModeContent: {"📄", "Content id..."},
}

// InputModel is the single-line input shared by message and content modes.
// Each mode keeps its own recall list.
type InputModel struct {
	textInput textinput.Model
	mode      InputMode
	recalls   map[InputMode]*recall
}

// NewInputModel creates an inactive input.
func NewInputModel() InputModel {
	ti := textinput.New()
	ti.CharLimit = 4000
	ti.Width = 60

	return InputModel{
		textInput: ti,
		recalls: map[InputMode]*recall{
			InputModeMessage: {cursor: -1},
			InputModeContent: {cursor: -1},
		},
	}
}

// SetMode activates the input for mode, or deactivates it for InputModeNone.
func (m *InputModel) SetMode(mode InputMode) {
	m.mode = mode
	m.textInput.Reset()

	p, ok := modePrompts[mode]
	if !ok {
		m.textInput.Placeholder = ""
		m.textInput.Prompt = ""
		m.textInput.Blur()
		return
	}
	m.textInput.Placeholder = p.placeholder
	m.textInput.Prompt = inputPromptStyle.Render(p.icon) + "  "
	m.textInput.Focus()
}

func (m InputModel) Mode() InputMode {
	return m.mode
}

func (m InputModel) Value() string {
	return m.textInput.Value()
}

func (m InputModel) IsActive() bool {
	return m.mode != InputModeNone
}

var recallKeys = struct {
	Older key.Binding
	Newer key.Binding
}{
	Older: key.NewBinding(key.WithKeys("up")),
	Newer: key.NewBinding(key.WithKeys("down")),
}

// Update handles typing and up/down recall.
func (m InputModel) Update(msg tea.Msg) (InputModel, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		delta := 0
		switch {
		case key.Matches(keyMsg, recallKeys.Older):
			delta = 1
		case key.Matches(keyMsg, recallKeys.Newer):
			delta = -1
		}
		if delta != 0 {
			if r := m.recalls[m.mode]; r != nil {
				if text, ok := r.step(delta, m.textInput.Value()); ok {
					m.textInput.SetValue(text)
					m.textInput.CursorEnd()
				}
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m InputModel) View() string {
	if m.mode == InputModeNone {
		return ""
	}
	return inputStyle.Render(m.textInput.View())
}

// Reset clears and deactivates the input.
func (m *InputModel) Reset() {
	if r := m.recalls[m.mode]; r != nil {
		r.rewind()
	}
	m.SetMode(InputModeNone)
}

// AddToHistory records entry in the current mode's recall list.
func (m *InputModel) AddToHistory(entry string) {
	if r := m.recalls[m.mode]; r != nil {
		r.push(entry)
	}
}

// SetWidth sets the input width.
func (m *InputModel) SetWidth(width int) {
	m.textInput.Width = width - 4
}
