// Package tui provides terminal user interface components for ssh2iot.
//
// This package uses the Bubble Tea framework for the interactive tunnel
// picker behind `ssh2iot pick`, and lipgloss for the table printed by
// `ssh2iot list`.
//
// # Tunnel Picker
//
//	result, err := tui.RunPicker(thing, summaries)
//	switch result.Action {
//	case tui.ActionAttach:
//	    // Rotate the token of result.Tunnel and connect
//	case tui.ActionClose, tui.ActionDelete:
//	    // Close result.Tunnel, deleting it for ActionDelete
//	case tui.ActionQuit:
//	    // Exit
//	}
//
// Keys: Enter (attach), c (close), d (close and delete), / (filter),
// q or Esc (quit). SimplePicker renders the same list without a terminal.
//
// # Dependencies
//
// Uses the Charm libraries:
//   - github.com/charmbracelet/bubbletea - TUI framework
//   - github.com/charmbracelet/bubbles - UI components
//   - github.com/charmbracelet/lipgloss - Styling
package tui
