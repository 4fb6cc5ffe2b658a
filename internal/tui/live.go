// Package tui renders an integration run live in the terminal while the
// solver works through the interval.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"odeflow/internal/solve"
)

var (
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white  = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

const historyCap = 2000

// DoneMsg is delivered when the background solve finishes.
type DoneMsg struct {
	Solution *solve.Solution
	Err      error
}

// Model is the live-view bubbletea model. Events arrive on a channel fed
// by the solver's OnStep callback; each frame drains whatever is pending.
type Model struct {
	problem   string
	method    string
	t0, t1    float64
	component int

	events <-chan solve.Event
	done   <-chan DoneMsg

	ts, ys   []float64
	t        float64
	h        float64
	accepted int
	rejected int
	lastNorm float64

	finished bool
	err      error
	final    *solve.Solution

	width  int
	height int
}

// NewModel builds a live view for one run. component selects which entry
// of the flattened state is plotted.
func NewModel(problem, method string, t0, t1 float64, component int, events <-chan solve.Event, done <-chan DoneMsg) Model {
	return Model{
		problem:   problem,
		method:    method,
		t0:        t0,
		t1:        t1,
		component: component,
		events:    events,
		done:      done,
		ts:        make([]float64, 0, historyCap),
		ys:        make([]float64, 0, historyCap),
		t:         t0,
		width:     80,
		height:    24,
	}
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(33*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Init() tea.Cmd { return tick() }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		m = m.drain()
		if m.finished {
			return m, nil
		}
		return m, tick()
	}
	return m, nil
}

// Solution returns the finished run, if any.
func (m Model) Solution() (*solve.Solution, error) { return m.final, m.err }

func (m Model) drain() Model {
	for {
		select {
		case ev, ok := <-m.events:
			if !ok {
				m.events = nil
				continue
			}
			m.record(ev)
		case d := <-m.done:
			m.finished = true
			m.final = d.Solution
			m.err = d.Err
			return m
		default:
			return m
		}
	}
}

func (m *Model) record(ev solve.Event) {
	m.h = ev.H
	m.lastNorm = ev.Norm
	if !ev.Accepted {
		m.rejected++
		return
	}
	m.accepted++
	m.t = ev.T
	flat := ev.Y.Flatten()
	if m.component < len(flat) {
		m.ts = append(m.ts, ev.T)
		m.ys = append(m.ys, flat[m.component])
		if len(m.ys) > historyCap {
			m.ts = m.ts[1:]
			m.ys = m.ys[1:]
		}
	}
}

func (m Model) View() string {
	var b strings.Builder

	title := fmt.Sprintf(" %s  %s  [%.3g, %.3g] ", m.problem, m.method, m.t0, m.t1)
	b.WriteString(cyan.Bold(true).Render(title))
	b.WriteString("\n\n")

	plotW := m.width - 12
	if plotW < 20 {
		plotW = 20
	}
	plotH := m.height - 10
	if plotH < 5 {
		plotH = 5
	}
	if len(m.ys) >= 2 {
		b.WriteString(asciigraph.Plot(m.ys,
			asciigraph.Width(plotW),
			asciigraph.Height(plotH),
			asciigraph.Caption(fmt.Sprintf("y[%d](t)", m.component))))
	} else {
		b.WriteString(dim.Render("  waiting for steps..."))
	}
	b.WriteString("\n\n")

	b.WriteString(m.progressLine())
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  %s %s   %s %s   %s %s   %s %s\n",
		dim.Render("t:"), white.Render(fmt.Sprintf("%.4f", m.t)),
		dim.Render("h:"), white.Render(fmt.Sprintf("%.3g", m.h)),
		dim.Render("accepted:"), green.Render(fmt.Sprintf("%d", m.accepted)),
		dim.Render("rejected:"), yellow.Render(fmt.Sprintf("%d", m.rejected))))

	switch {
	case m.err != nil:
		b.WriteString(red.Render(fmt.Sprintf("  failed: %v", m.err)))
		b.WriteString("\n")
		b.WriteString(dim.Render("  press q to exit"))
	case m.finished:
		b.WriteString(green.Render("  done"))
		b.WriteString("\n")
		b.WriteString(dim.Render("  press q to exit"))
	default:
		b.WriteString(dim.Render("  integrating... press q to abort"))
	}
	b.WriteString("\n")
	return b.String()
}

func (m Model) progressLine() string {
	span := m.t1 - m.t0
	frac := 0.0
	if span != 0 {
		frac = (m.t - m.t0) / span
	}
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	barW := m.width - 14
	if barW < 10 {
		barW = 10
	}
	filled := int(frac * float64(barW))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barW-filled)
	return fmt.Sprintf("  %s %s", cyan.Render(bar), white.Render(fmt.Sprintf("%3.0f%%", frac*100)))
}
