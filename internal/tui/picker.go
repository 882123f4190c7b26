package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/yuriipolishchuk/ssh2iot/internal/tunnel"
)

// Action represents the action to take after picker selection
type Action int

const (
	ActionNone Action = iota
	ActionAttach
	ActionClose
	ActionDelete
	ActionQuit
)

func (a Action) String() string {
	switch a {
	case ActionAttach:
		return "attach"
	case ActionClose:
		return "close"
	case ActionDelete:
		return "delete"
	case ActionQuit:
		return "quit"
	default:
		return "none"
	}
}

// PickerResult holds the result of the picker
type PickerResult struct {
	Action Action
	Tunnel *tunnel.Summary
}

// tunnelItem implements list.Item for tunnel display
type tunnelItem struct {
	summary tunnel.Summary
	age     string
}

func (i tunnelItem) Title() string {
	return i.summary.ID
}

func (i tunnelItem) Description() string {
	return fmt.Sprintf("%s %s | %s | %s",
		statusIcon(i.summary.Status),
		i.summary.Status,
		i.age,
		truncate(i.summary.Description, 40),
	)
}

func (i tunnelItem) FilterValue() string {
	return i.summary.ID + " " + i.summary.Description
}

func statusIcon(status string) string {
	switch status {
	case tunnel.StatusOpen:
		return "✓"
	case tunnel.StatusClosed:
		return "●"
	default:
		return "?"
	}
}

func truncate(s string, maxLen int) string {
	return ansi.Truncate(s, maxLen, "...")
}

// formatAge renders how long ago t was, at minute resolution.
func formatAge(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%dd%dh", int(d.Hours())/24, int(d.Hours())%24)
	}
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			MarginBottom(1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginTop(1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)
)

// Model is the bubbletea model for the tunnel picker
type Model struct {
	list     list.Model
	result   PickerResult
	quitting bool
	width    int
	height   int
}

// NewPicker creates a new tunnel picker for thing
func NewPicker(thing string, tunnels []tunnel.Summary, now time.Time) Model {
	items := make([]list.Item, len(tunnels))
	for i, s := range tunnels {
		items[i] = tunnelItem{summary: s, age: formatAge(s.CreatedAt, now)}
	}

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = selectedStyle
	delegate.Styles.SelectedDesc = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	l := list.New(items, delegate, 80, 20)
	l.Title = fmt.Sprintf("ssh2iot - Tunnels to %s", thing)
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = titleStyle

	return Model{list: l}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) selected(action Action) (Model, tea.Cmd) {
	item, ok := m.list.SelectedItem().(tunnelItem)
	if !ok {
		return m, nil
	}
	s := item.summary
	m.result = PickerResult{Action: action, Tunnel: &s}
	m.quitting = true
	return m, tea.Quit
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width, msg.Height-4)
		return m, nil

	case tea.KeyMsg:
		// Don't handle keys if filtering
		if m.list.FilterState() == list.Filtering {
			break
		}

		switch msg.String() {
		case "enter":
			return m.selected(ActionAttach)
		case "c":
			return m.selected(ActionClose)
		case "d":
			return m.selected(ActionDelete)
		case "q", "esc":
			m.result = PickerResult{Action: ActionQuit}
			m.quitting = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	help := helpStyle.Render("[enter] Attach  [c] Close  [d] Delete  [/] Filter  [q] Quit")

	return m.list.View() + "\n" + help
}

// Result returns the picker result
func (m Model) Result() PickerResult {
	return m.result
}

// RunPicker runs the interactive tunnel picker. With no tunnels it returns
// ActionQuit without touching the terminal.
func RunPicker(thing string, tunnels []tunnel.Summary) (PickerResult, error) {
	if len(tunnels) == 0 {
		return PickerResult{Action: ActionQuit}, nil
	}

	m := NewPicker(thing, tunnels, time.Now())
	p := tea.NewProgram(m, tea.WithAltScreen())

	finalModel, err := p.Run()
	if err != nil {
		return PickerResult{}, err
	}

	return finalModel.(Model).Result(), nil
}

// SimplePicker is a non-interactive picker that just lists tunnels
func SimplePicker(thing string, tunnels []tunnel.Summary, now time.Time) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("ssh2iot - Tunnels to %s\n", thing))
	sb.WriteString(strings.Repeat("─", 60) + "\n\n")

	if len(tunnels) == 0 {
		sb.WriteString("No tunnels found.\n")
		sb.WriteString(fmt.Sprintf("Open one with: ssh2iot connect -i %s\n", thing))
		return sb.String()
	}

	for i, t := range tunnels {
		sb.WriteString(fmt.Sprintf("%d. %s %s (%s)\n",
			i+1, statusIcon(t.Status), t.ID, t.Status))
		sb.WriteString(fmt.Sprintf("   Age: %s | %s\n\n",
			formatAge(t.CreatedAt, now), truncate(t.Description, 40)))
	}

	sb.WriteString("Attach with: ssh2iot connect --tunnel-id <id> --rotate\n")
	return sb.String()
}
