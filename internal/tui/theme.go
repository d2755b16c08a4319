package tui

import "github.com/charmbracelet/lipgloss"

// Theme is the color palette of the tag view.
type Theme struct {
	BgDark   lipgloss.Color
	BgAccent lipgloss.Color

	TextPrimary lipgloss.Color
	TextDim     lipgloss.Color
	TextMuted   lipgloss.Color

	Border lipgloss.Color

	Accent  lipgloss.Color // blue
	Success lipgloss.Color // green
	Warning lipgloss.Color // amber
	Error   lipgloss.Color // red
	Info    lipgloss.Color // cyan
}

// DefaultTheme is a dark Tokyo Night palette.
var DefaultTheme = Theme{
	BgDark:   lipgloss.Color("#1a1b26"),
	BgAccent: lipgloss.Color("#414868"),

	TextPrimary: lipgloss.Color("#c0caf5"),
	TextDim:     lipgloss.Color("#565f89"),
	TextMuted:   lipgloss.Color("#414868"),

	Border: lipgloss.Color("#414868"),

	Accent:  lipgloss.Color("#7aa2f7"),
	Success: lipgloss.Color("#9ece6a"),
	Warning: lipgloss.Color("#e0af68"),
	Error:   lipgloss.Color("#f7768e"),
	Info:    lipgloss.Color("#7dcfff"),
}

// Styles are the lipgloss styles derived from a Theme.
type Styles struct {
	Base  lipgloss.Style
	Dim   lipgloss.Style
	Bold  lipgloss.Style
	Title lipgloss.Style

	Header   lipgloss.Style
	Selected lipgloss.Style
	Cursor   lipgloss.Style

	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Info    lipgloss.Style

	Box         lipgloss.Style
	KeyBinding  lipgloss.Style
	KeyHint     lipgloss.Style
	InputActive lipgloss.Style
	Footer      lipgloss.Style
}

// NewStyles builds the styles for t.
func NewStyles(t Theme) Styles {
	return Styles{
		Base: lipgloss.NewStyle().Foreground(t.TextPrimary),
		Dim:  lipgloss.NewStyle().Foreground(t.TextDim),
		Bold: lipgloss.NewStyle().Foreground(t.TextPrimary).Bold(true),
		Title: lipgloss.NewStyle().
			Foreground(t.Accent).
			Bold(true).
			Padding(0, 1),

		Header: lipgloss.NewStyle().
			Foreground(t.TextDim).
			Bold(true),
		Selected: lipgloss.NewStyle().
			Foreground(t.TextPrimary).
			Background(t.BgAccent).
			Bold(true),
		Cursor: lipgloss.NewStyle().
			Foreground(t.BgDark).
			Background(t.Accent),

		Success: lipgloss.NewStyle().Foreground(t.Success),
		Warning: lipgloss.NewStyle().Foreground(t.Warning),
		Error:   lipgloss.NewStyle().Foreground(t.Error),
		Info:    lipgloss.NewStyle().Foreground(t.Info),

		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(t.Border).
			Padding(0, 1),
		KeyBinding: lipgloss.NewStyle().
			Foreground(t.Accent).
			Bold(true),
		KeyHint:     lipgloss.NewStyle().Foreground(t.TextDim),
		InputActive: lipgloss.NewStyle().Foreground(t.Accent),
		Footer:      lipgloss.NewStyle().Foreground(t.TextMuted),
	}
}

// DefaultStyles uses DefaultTheme.
var DefaultStyles = NewStyles(DefaultTheme)

// StatusIcon returns a colored dot for a tag state.
func StatusIcon(status string, s Styles) string {
	switch status {
	case "ok":
		return s.Success.Render("●")
	case "error":
		return s.Error.Render("●")
	case "pending":
		return s.Warning.Render("●")
	default:
		return s.Dim.Render("○")
	}
}
