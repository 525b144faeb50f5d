// Package tui provides the terminal user interface for Tutorline.
package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/xonecas/tutorline/internal/core"
)

// View represents the current view mode.
type View int

const (
	ViewSurfaces View = iota
	ViewFocus
	ViewContent
)

var errBusy = errors.New("a reply is still streaming")

// Model is the main TUI model.
type Model struct {
	ctx     context.Context
	hub     *core.Hub
	inbox   *core.Inbox
	eventCh <-chan core.Event

	view        View
	width       int
	height      int
	selectedIdx int
	showHelp    bool
	autoScroll  bool

	input    InputModel
	surfaces []SurfaceInfo
	focusKey core.ThreadKey
	viewport viewport.Model
	spinner  spinner.Model
	net      NetIndicator
	md       *Markdown

	loader    *core.ContentLoader
	contentCh chan core.ContentView
	content   core.ContentView

	err error
}

// EventMsg wraps a core event for the TUI.
type EventMsg struct {
	Event core.Event
}

type surfaceUpdateMsg struct {
	Key core.ThreadKey
}

type inboxMsg struct{}

type contentMsg struct {
	View core.ContentView
}

type actionDoneMsg struct {
	err error
}

type refreshSurfacesMsg struct{}

// New creates a new TUI model. eventCh is a bus subscription owned by the caller.
func New(ctx context.Context, hub *core.Hub, inbox *core.Inbox, eventCh <-chan core.Event, md *Markdown) Model {
	sp := spinner.New(spinner.WithSpinner(spinner.MiniDot))
	sp.Style = generatingStyle

	return Model{
		ctx:        ctx,
		hub:        hub,
		inbox:      inbox,
		eventCh:    eventCh,
		view:       ViewSurfaces,
		autoScroll: true,
		input:      NewInputModel(),
		viewport:   viewport.New(80, 20),
		spinner:    sp,
		net:        NewNetIndicator(),
		md:         md,
		contentCh:  make(chan core.ContentView, 16),
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		func() tea.Msg { return refreshSurfacesMsg{} },
		m.listenForEvents(),
		m.listenForUpdates(),
		m.listenForInbox(),
		m.spinner.Tick,
		m.net.Init(),
	)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.SetWidth(msg.Width - 4)
		m.viewport.Width = msg.Width - 5
		m.viewport.Height = msg.Height - 8
		if m.viewport.Height < 3 {
			m.viewport.Height = 3
		}
		m.refreshViewport()
		return m, nil

	case tea.KeyMsg:
		if m.input.IsActive() {
			return m.handleInputKey(msg)
		}
		if key.Matches(msg, keys.Help) {
			m.showHelp = !m.showHelp
			return m, nil
		}
		if m.showHelp {
			m.showHelp = false
			return m, nil
		}

		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Escape):
			return m.back()
		case key.Matches(msg, keys.Refresh):
			return m, m.refreshAll()
		}

		switch m.view {
		case ViewFocus:
			return m.handleFocusKey(msg)
		case ViewSurfaces:
			return m.handleSurfacesKey(msg)
		}
		return m, nil

	case EventMsg:
		m.refreshSurfaceList()
		return m, m.listenForEvents()

	case surfaceUpdateMsg:
		m.refreshSurfaceList()
		if m.view == ViewFocus && msg.Key == m.focusKey {
			m.refreshViewport()
		}
		return m, m.listenForUpdates()

	case inboxMsg:
		m.refreshSurfaceList()
		return m, m.listenForInbox()

	case contentMsg:
		m.content = msg.View
		m.updateActivity()
		return m, m.listenForContent()

	case actionDoneMsg:
		m.err = msg.err
		m.refreshSurfaceList()
		m.refreshViewport()
		return m, nil

	case refreshSurfacesMsg:
		m.refreshSurfaceList()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case NetIndicatorTickMsg:
		var cmd tea.Cmd
		m.net, cmd = m.net.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the UI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content string
	switch {
	case m.showHelp:
		content = RenderHelp(m.width, m.height)
	case m.view == ViewFocus:
		content = RenderFocusView(m.surfaceByKey(m.focusKey), m.viewport, m.width, m.spinner.View(), m.autoScroll)
	case m.view == ViewContent:
		content = RenderContentView(m.content, m.md, m.width, m.height-4, m.spinner.View())
	default:
		unread := 0
		if m.inbox != nil {
			unread = m.inbox.UnreadCount()
		}
		content = RenderSurfaceList(m.surfaces, m.selectedIdx, unread, m.width, m.height-3, m.spinner.View())
	}

	if toast := renderToast(m.surfaces, m.width); toast != "" {
		content += "\n" + toast
	}
	if m.input.IsActive() {
		content += "\n" + m.input.View()
	}
	if m.err != nil {
		content += "\n" + errorStyle.Render("Error: "+m.err.Error())
	}
	content += "\n" + m.net.View()
	return content
}

func (m Model) handleSurfacesKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up), key.Matches(msg, keys.ShiftTab):
		if m.selectedIdx > 0 {
			m.selectedIdx--
		}
	case key.Matches(msg, keys.Down), key.Matches(msg, keys.Tab):
		if m.selectedIdx < len(m.surfaces)-1 {
			m.selectedIdx++
		}
	case key.Matches(msg, keys.Enter):
		if m.selectedIdx < len(m.surfaces) {
			m.focusKey = m.surfaces[m.selectedIdx].Key
			m.view = ViewFocus
			m.autoScroll = true
			m.refreshViewport()
			return m, m.focusCmd(m.focusKey)
		}
	case key.Matches(msg, keys.Content):
		m.input.SetMode(InputModeContent)
	}
	return m, nil
}

func (m Model) handleFocusKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Message):
		m.input.SetMode(InputModeMessage)
		return m, nil

	case key.Matches(msg, keys.Resend):
		s, err := m.hub.Get(m.focusKey)
		if err != nil {
			m.err = err
			return m, nil
		}
		if !s.Resend() {
			m.err = errors.New("nothing to resend")
		}
		m.autoScroll = true
		return m, nil

	case key.Matches(msg, keys.End):
		m.autoScroll = true
		m.viewport.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	m.autoScroll = m.viewport.AtBottom()
	return m, cmd
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Escape):
		m.input.Reset()
		return m, nil

	case key.Matches(msg, keys.Enter):
		value := strings.TrimSpace(m.input.Value())
		mode := m.input.Mode()
		m.input.AddToHistory(value)
		m.input.Reset()
		if value == "" {
			return m, nil
		}

		switch mode {
		case InputModeMessage:
			s, err := m.hub.Get(m.focusKey)
			if err != nil {
				m.err = err
				return m, nil
			}
			if !s.Send(value) {
				m.err = errBusy
				return m, nil
			}
			m.err = nil
			m.autoScroll = true
			m.refreshViewport()

		case InputModeContent:
			return m, m.openContent(value)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) back() (tea.Model, tea.Cmd) {
	switch m.view {
	case ViewFocus:
		m.view = ViewSurfaces
		m.focusKey = core.ThreadKey{}
		hub, ctx := m.hub, m.ctx
		return m, func() tea.Msg {
			hub.Blur(ctx)
			return actionDoneMsg{}
		}
	case ViewContent:
		if m.loader != nil {
			m.loader.Stop()
			m.loader = nil
		}
		m.view = ViewSurfaces
		m.updateActivity()
	}
	m.err = nil
	return m, nil
}

func (m *Model) openContent(id string) tea.Cmd {
	if m.loader != nil {
		m.loader.Stop()
	}
	ch := m.contentCh
	m.loader = m.hub.ContentLoader(func(v core.ContentView) {
		select {
		case ch <- v:
		default:
		}
	})
	m.content = core.ContentView{ID: id, State: core.ContentLoading}
	m.view = ViewContent

	loader, ctx := m.loader, m.ctx
	return tea.Batch(
		m.listenForContent(),
		func() tea.Msg {
			return actionDoneMsg{err: loader.Load(ctx, id)}
		},
	)
}

func (m Model) focusCmd(k core.ThreadKey) tea.Cmd {
	hub, ctx := m.hub, m.ctx
	return func() tea.Msg {
		return actionDoneMsg{err: hub.Focus(ctx, k)}
	}
}

func (m Model) refreshAll() tea.Cmd {
	hub, ctx := m.hub, m.ctx
	return func() tea.Msg {
		hub.Refresh(ctx)
		return actionDoneMsg{}
	}
}

func (m *Model) refreshSurfaceList() {
	sessions := m.hub.List()
	m.surfaces = make([]SurfaceInfo, len(sessions))
	for i, s := range sessions {
		m.surfaces[i] = SurfaceInfoFromSession(s)
	}
	if m.selectedIdx >= len(m.surfaces) && m.selectedIdx > 0 {
		m.selectedIdx = len(m.surfaces) - 1
	}
	m.updateActivity()
}

func (m *Model) refreshViewport() {
	if m.view != ViewFocus {
		return
	}
	s, err := m.hub.Get(m.focusKey)
	if err != nil {
		return
	}
	m.viewport.SetContent(renderConversation(s.Snapshot(), m.md, m.viewport.Width))
	if m.autoScroll {
		m.viewport.GotoBottom()
	}
}

func (m *Model) updateActivity() {
	activity := NetActivityIdle
	for _, s := range m.surfaces {
		if s.Generating {
			activity = NetActivityStreaming
			break
		}
	}
	if activity == NetActivityIdle && m.view == ViewContent && m.content.State == core.ContentGenerating {
		activity = NetActivityPolling
	}
	m.net.SetActivity(activity)
}

func (m Model) surfaceByKey(k core.ThreadKey) SurfaceInfo {
	for _, s := range m.surfaces {
		if s.Key == k {
			return s
		}
	}
	return SurfaceInfo{Key: k, Title: k.String()}
}

func (m Model) listenForEvents() tea.Cmd {
	ch := m.eventCh
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return nil
		}
		return EventMsg{Event: event}
	}
}

func (m Model) listenForUpdates() tea.Cmd {
	ch := m.hub.Updates()
	return func() tea.Msg {
		return surfaceUpdateMsg{Key: <-ch}
	}
}

func (m Model) listenForInbox() tea.Cmd {
	if m.inbox == nil {
		return nil
	}
	ch := m.inbox.Changes()
	return func() tea.Msg {
		<-ch
		return inboxMsg{}
	}
}

func (m Model) listenForContent() tea.Cmd {
	ch := m.contentCh
	return func() tea.Msg {
		return contentMsg{View: <-ch}
	}
}

// Key bindings
var keys = struct {
	Quit     key.Binding
	Help     key.Binding
	Escape   key.Binding
	Enter    key.Binding
	Tab      key.Binding
	ShiftTab key.Binding
	Up       key.Binding
	Down     key.Binding
	Message  key.Binding
	Resend   key.Binding
	Refresh  key.Binding
	Content  key.Binding
	End      key.Binding
}{
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c")),
	Help:     key.NewBinding(key.WithKeys("?")),
	Escape:   key.NewBinding(key.WithKeys("esc")),
	Enter:    key.NewBinding(key.WithKeys("enter")),
	Tab:      key.NewBinding(key.WithKeys("tab")),
	ShiftTab: key.NewBinding(key.WithKeys("shift+tab")),
	Up:       key.NewBinding(key.WithKeys("up", "k")),
	Down:     key.NewBinding(key.WithKeys("down", "j")),
	Message:  key.NewBinding(key.WithKeys("m")),
	Resend:   key.NewBinding(key.WithKeys("r")),
	Refresh:  key.NewBinding(key.WithKeys("ctrl+r")),
	Content:  key.NewBinding(key.WithKeys("o")),
	End:      key.NewBinding(key.WithKeys("G", "end")),
}
