package tui

import (
	"github.com/charmbracelet/lipgloss"

	"arcadeops/internal/notice"
)

// Styles is the palette shared by the wizard and inspector screens.
type Styles struct {
	Title        lipgloss.Style
	Counter      lipgloss.Style
	Prompt       lipgloss.Style
	Help         lipgloss.Style
	Button       lipgloss.Style
	ActiveButton lipgloss.Style
	Disabled     lipgloss.Style
	Info         lipgloss.Style
	Warn         lipgloss.Style
	Error        lipgloss.Style
	Box          lipgloss.Style
}

func DefaultStyles() Styles {
	return Styles{
		Title:        lipgloss.NewStyle().Foreground(lipgloss.Color("#0077B6")).Bold(true),
		Counter:      lipgloss.NewStyle().Foreground(lipgloss.Color("#626262")),
		Prompt:       lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC")),
		Help:         lipgloss.NewStyle().Foreground(lipgloss.Color("#626262")).Italic(true),
		Button:       lipgloss.NewStyle().Padding(0, 1).Border(lipgloss.NormalBorder()),
		ActiveButton: lipgloss.NewStyle().Padding(0, 1).Border(lipgloss.ThickBorder()).Foreground(lipgloss.Color("#04B575")).Bold(true),
		Disabled:     lipgloss.NewStyle().Foreground(lipgloss.Color("#444444")),
		Info:         lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")),
		Warn:         lipgloss.NewStyle().Foreground(lipgloss.Color("#FFBD2E")).Bold(true),
		Error:        lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F56")).Bold(true),
		Box:          lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 2),
	}
}

func (s Styles) notice(n notice.Notice) string {
	switch n.Level {
	case notice.LevelError:
		return s.Error.Render("✗ " + n.Message)
	case notice.LevelWarning:
		return s.Warn.Render("⚠ " + n.Message)
	}
	return s.Info.Render("✓ " + n.Message)
}
