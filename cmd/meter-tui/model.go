package main

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// tickInterval is how often the terminal surface is redrawn.
const tickInterval = time.Second / 30

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	alertStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#e67e22"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8a949c"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#e74c3c"))
)

type tickMsg time.Time

// model is the bubbletea model around a meter controller.
type model struct {
	ctl   controller
	title string
	frame frame
	err   error
}

func newModel(ctl controller, title string) model {
	return model{ctl: ctl, title: title, frame: ctl.Frame()}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init starts the redraw ticker.
func (m model) Init() tea.Cmd {
	return tick()
}

// Update handles keys and redraw ticks.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tickMsg:
		m.frame = m.ctl.Frame()
		return m, tick()
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.err = nil
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "m":
		m.ctl.ToggleMuted()
	case "e":
		m.ctl.ToggleTrackEnabled()
	case " ", "space":
		m.err = m.ctl.ToggleMeter()
	case "s":
		m.err = m.ctl.CycleShape()
	case "x":
		m.err = m.ctl.StopTrack()
	default:
		return m, nil
	}
	m.frame = m.ctl.Frame()
	return m, nil
}

// View renders the meter, its alert and the key help.
func (m model) View() string {
	f := m.frame
	s := titleStyle.Render(m.title) + "\n\n" + f.Meter + "\n\n"

	if f.Alert.Active() {
		s += alertStyle.Render(f.Alert.Message) + "\n"
	} else {
		s += "\n"
	}
	s += fmt.Sprintf("shape %s  meter %s  input %s  track %s  peak %.1f dB\n",
		f.Shape, onOff(f.Enabled), onOff(!f.Muted), trackState(f), f.Peak)
	if m.err != nil {
		s += errStyle.Render(m.err.Error()) + "\n"
	}
	s += "\n" + helpStyle.Render("m halt input · e mute track · space meter on/off · s shape · x stop track · q quit")
	return s
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func trackState(f frame) string {
	switch {
	case f.Ended:
		return "ended"
	case !f.Track:
		return "muted"
	default:
		return "live"
	}
}
