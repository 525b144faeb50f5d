package tui

import (
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// NetActivity is what the engine is currently waiting on.
type NetActivity int

const (
	NetActivityIdle      NetActivity = iota
	NetActivityStreaming             // a reply is streaming
	NetActivityPolling               // an async content job is pending
)

const (
	netTrackWidth = 12
	netFrameRate  = 90 * time.Millisecond
)

// netLabels pads every label to the same width so the track never shifts.
var netLabels = map[NetActivity]string{
	NetActivityIdle:      "⬦ idle  ",
	NetActivityStreaming: "⬥ stream",
	NetActivityPolling:   "⬥ poll  ",
}

// NetIndicator is a status-bar strip with a comet that sweeps left to
// right while there is network activity.
type NetIndicator struct {
	activity NetActivity
	frame    int
}

// NetIndicatorTickMsg advances the animation.
type NetIndicatorTickMsg time.Time

func NewNetIndicator() NetIndicator {
	return NetIndicator{}
}

func (n *NetIndicator) SetActivity(activity NetActivity) {
	if activity != n.activity {
		n.frame = 0
	}
	n.activity = activity
}

func (n NetIndicator) Activity() NetActivity {
	return n.activity
}

// Init starts the frame clock. The clock keeps running while idle so a
// new activity animates without re-arming.
func (n NetIndicator) Init() tea.Cmd {
	return n.tick()
}

func (n NetIndicator) Update(msg tea.Msg) (NetIndicator, tea.Cmd) {
	if _, ok := msg.(NetIndicatorTickMsg); !ok {
		return n, nil
	}
	if n.activity != NetActivityIdle {
		n.frame = (n.frame + 1) % netTrackWidth
	}
	return n, n.tick()
}

func (n NetIndicator) tick() tea.Cmd {
	return tea.Tick(netFrameRate, func(t time.Time) tea.Msg {
		return NetIndicatorTickMsg(t)
	})
}

func (n NetIndicator) View() string {
	style := dimmedStyle
	switch n.activity {
	case NetActivityStreaming:
		style = generatingStyle
	case NetActivityPolling:
		style = lipgloss.NewStyle().Foreground(colorTeal).Bold(true)
	}

	var track strings.Builder
	for i := 0; i < netTrackWidth; i++ {
		switch {
		case n.activity == NetActivityIdle:
			track.WriteString("·")
		case i == n.frame:
			track.WriteString("█")
		case i == (n.frame+netTrackWidth-1)%netTrackWidth:
			track.WriteString("▓")
		case i == (n.frame+netTrackWidth-2)%netTrackWidth:
			track.WriteString("▒")
		default:
			track.WriteString("░")
		}
	}
	return style.Render(netLabels[n.activity] + " " + track.String())
}
