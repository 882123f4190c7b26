package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/yuriipolishchuk/ssh2iot/internal/tunnel"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("241"))

	openStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	closedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// RenderTable renders tunnel summaries as an aligned table, one row per
// tunnel, with the status column colored.
func RenderTable(tunnels []tunnel.Summary, now time.Time) string {
	idWidth := len("TUNNEL ID")
	for _, t := range tunnels {
		if len(t.ID) > idWidth {
			idWidth = len(t.ID)
		}
	}

	var sb strings.Builder
	header := fmt.Sprintf("%-*s  %-8s  %-9s  %s", idWidth, "TUNNEL ID", "STATUS", "AGE", "DESCRIPTION")
	sb.WriteString(headerStyle.Render(header))
	sb.WriteString("\n")

	for _, t := range tunnels {
		style := closedStyle
		if t.IsOpen() {
			style = openStyle
		}
		status := style.Render(fmt.Sprintf("%-8s", t.Status))
		sb.WriteString(fmt.Sprintf("%-*s  %s  %-9s  %s\n",
			idWidth, t.ID, status, formatAge(t.CreatedAt, now), t.Description))
	}

	return sb.String()
}
