// Package tui is an interactive operator console: type a query, see which
// routes admit it, and flip to the overlap report without leaving the
// terminal.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/free4inno/intent-hub/internal/domain"
)

// EnginePort is the console-facing subset of the engine.
type EnginePort interface {
	Predict(ctx context.Context, text string) ([]domain.Prediction, error)
	Overlaps(ctx context.Context, refresh bool) ([]domain.DiagnosticReport, error)
	Routes() []domain.Route
}

type viewMode int

const (
	viewPredict viewMode = iota
	viewOverlap
)

// Model is the Bubble Tea model for the console.
type Model struct {
	engine    EnginePort
	input     textinput.Model
	viewport  viewport.Model
	mode      viewMode
	results   []domain.Prediction
	status    string
	ready     bool
	lastQuery string
}

// New creates a console model over the engine.
func New(engine EnginePort) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type a query and press Enter (tab: overlap report)"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{engine: engine, input: ti, viewport: vp, status: fmt.Sprintf("%d routes loaded. Type to predict.", len(engine.Routes()))}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + qh + 1 // header + status + query box + spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderContent())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" {
				res, err := m.engine.Predict(context.Background(), q)
				if err != nil {
					m.status = "Error: " + err.Error()
					m.results = nil
				} else {
					m.status = fmt.Sprintf("Prediction for %q", q)
					m.results = res
					m.lastQuery = q
				}
				m.mode = viewPredict
				m.viewport.SetContent(m.renderContent())
				return m, nil
			}
		case "tab":
			if m.mode == viewPredict {
				m.mode = viewOverlap
				m.status = "Overlap report (tab: back to prediction)"
			} else {
				m.mode = viewPredict
				m.status = "Prediction view"
			}
			m.viewport.SetContent(m.renderContent())
			return m, nil
		case "up":
			m.viewport.LineUp(1)
			return m, nil
		case "down":
			m.viewport.LineDown(1)
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the console layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Intent Hub Console")
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderContent() string {
	if m.mode == viewOverlap {
		return m.renderOverlaps()
	}
	return m.renderPredictions()
}

func (m Model) renderPredictions() string {
	if len(m.results) == 0 {
		return "No prediction yet."
	}
	var b strings.Builder
	for i, p := range m.results {
		score := "—"
		if p.Score != nil {
			score = fmt.Sprintf("%.4f", *p.Score)
		}
		line := fmt.Sprintf("%d. [%d] %s  score=%s", i+1, p.ID, p.Name, score)
		if i == 0 && p.ID != 0 {
			line = topHitStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func (m Model) renderOverlaps() string {
	reports, err := m.engine.Overlaps(context.Background(), false)
	if err != nil {
		return "Error: " + err.Error()
	}
	if len(reports) == 0 {
		return "No overlapping routes."
	}
	var b strings.Builder
	for _, rep := range reports {
		b.WriteString(topHitStyle.Render(fmt.Sprintf("[%d] %s", rep.RouteID, rep.RouteName)) + "\n")
		for _, o := range rep.Overlaps {
			b.WriteString(fmt.Sprintf("  ↔ [%d] %s  region=%.4f  conflicts=%d\n",
				o.TargetRouteID, o.TargetRouteName, o.RegionSimilarity, len(o.InstanceConflicts)))
			for _, c := range o.InstanceConflicts {
				b.WriteString(fmt.Sprintf("     %q / %q  sim=%.4f\n", c.SourceUtterance, c.TargetUtterance, c.Similarity))
			}
		}
	}
	return b.String()
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	topHitStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
