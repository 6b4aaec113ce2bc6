package console

import "github.com/charmbracelet/lipgloss"

// theme groups reusable styles for console regions.
type theme struct {
	header     lipgloss.Style
	headerMeta lipgloss.Style
	user       lipgloss.Style
	bot        lipgloss.Style
	system     lipgloss.Style
	status     lipgloss.Style
	input      lipgloss.Style
	viewport   lipgloss.Style
}

func defaultTheme() theme {
	return theme{
		header: lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("24")),
		headerMeta: lipgloss.NewStyle().
			Foreground(lipgloss.Color("223")),
		user: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")),
		bot: lipgloss.NewStyle().
			Foreground(lipgloss.Color("44")).
			Bold(true),
		system: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")).
			Italic(true),
		status: lipgloss.NewStyle().
			Foreground(lipgloss.Color("250")),
		input: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("173")).
			Padding(0, 1),
		viewport: lipgloss.NewStyle().
			Border(lipgloss.ThickBorder()).
			BorderForeground(lipgloss.Color("24")).
			Padding(0, 1),
	}
}
