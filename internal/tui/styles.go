package tui

import "github.com/charmbracelet/lipgloss"

// Theme holds every style the lock browser renders with.
type Theme struct {
	Title    lipgloss.Style
	Header   lipgloss.Style
	Row      lipgloss.Style
	Selected lipgloss.Style
	Mine     lipgloss.Style
	Email    lipgloss.Style
	Muted    lipgloss.Style
	Error    lipgloss.Style
	Warning  lipgloss.Style
	HelpKey  lipgloss.Style
	HelpBar  lipgloss.Style
}

// Color palette; every color meets WCAG AA contrast on dark surfaces.
var (
	primaryColor   = lipgloss.Color("#A78BFA")
	secondaryColor = lipgloss.Color("#10B981")
	warningColor   = lipgloss.Color("#F59E0B")
	errorColor     = lipgloss.Color("#F87171")
	mutedColor     = lipgloss.Color("#9CA3AF")
	surfaceColor   = lipgloss.Color("#1F2937")
	textColor      = lipgloss.Color("#F9FAFB")
	borderColor    = lipgloss.Color("#6B7280")
	blueColor      = lipgloss.Color("#60A5FA")
)

// ThemeNames lists the accepted values of tui.theme.
var ThemeNames = []string{"default", "mono"}

// ThemeFor returns the named theme, falling back to the default.
func ThemeFor(name string) Theme {
	if name == "mono" {
		return monoTheme()
	}
	return defaultTheme()
}

func defaultTheme() Theme {
	return Theme{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor),
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(mutedColor).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(borderColor),
		Row: lipgloss.NewStyle().
			Foreground(textColor),
		Selected: lipgloss.NewStyle().
			Bold(true).
			Foreground(textColor).
			Background(surfaceColor),
		Mine:    lipgloss.NewStyle().Foreground(secondaryColor),
		Email:   lipgloss.NewStyle().Foreground(blueColor),
		Muted:   lipgloss.NewStyle().Foreground(mutedColor),
		Error:   lipgloss.NewStyle().Foreground(errorColor),
		Warning: lipgloss.NewStyle().Foreground(warningColor),
		HelpKey: lipgloss.NewStyle().
			Bold(true).
			Foreground(secondaryColor),
		HelpBar: lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1),
	}
}

// monoTheme uses only bold, faint and reverse, for terminals without color.
func monoTheme() Theme {
	plain := lipgloss.NewStyle()
	return Theme{
		Title:    plain.Bold(true),
		Header:   plain.Bold(true).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true),
		Row:      plain,
		Selected: plain.Reverse(true),
		Mine:     plain.Bold(true),
		Email:    plain.Underline(true),
		Muted:    plain.Faint(true),
		Error:    plain.Bold(true),
		Warning:  plain.Bold(true),
		HelpKey:  plain.Bold(true),
		HelpBar:  plain.Faint(true).MarginTop(1),
	}
}
