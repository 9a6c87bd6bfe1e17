package output

import "github.com/charmbracelet/lipgloss"

// Styles holds lipgloss styles for text output.
type Styles struct {
	Header1   lipgloss.Style
	Header2   lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Info      lipgloss.Style
	NodeID    lipgloss.Style
	NodeType  lipgloss.Style
	StateDone lipgloss.Style
	StateFail lipgloss.Style
	StateBusy lipgloss.Style
}

// newStyles returns colored styles, or no-op styles when color is off.
func newStyles(color bool) *Styles {
	if !color {
		plain := lipgloss.NewStyle()
		return &Styles{
			Header1: plain, Header2: plain, Bold: plain, Muted: plain,
			Success: plain, Warning: plain, Error: plain, Info: plain,
			NodeID: plain, NodeType: plain,
			StateDone: plain, StateFail: plain, StateBusy: plain,
		}
	}

	return &Styles{
		Header1:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).MarginBottom(1),
		Header2:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14")),
		Bold:      lipgloss.NewStyle().Bold(true),
		Muted:     lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Success:   lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		Warning:   lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		Info:      lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		NodeID:    lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
		NodeType:  lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
		StateDone: lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		StateFail: lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		StateBusy: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	}
}
