package cli

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/mmcdole/shelf/internal/domain"
)

// Color palette
var (
	Amber     = lipgloss.Color("#E5A00D")
	DimGray   = lipgloss.Color("#6B7280")
	LightGray = lipgloss.Color("#9CA3AF")
	White     = lipgloss.Color("#F9FAFB")
	Green     = lipgloss.Color("#10B981")
	Red       = lipgloss.Color("#EF4444")
	Blue      = lipgloss.Color("#3B82F6")
)

// Text styles
var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(White).
			Bold(true)

	DimStyle = lipgloss.NewStyle().
			Foreground(DimGray)

	AccentStyle = lipgloss.NewStyle().
			Foreground(Amber)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Red)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Green)

	HeaderStyle = lipgloss.NewStyle().
			Foreground(Amber).
			Bold(true).
			Padding(0, 1)

	CellStyle = lipgloss.NewStyle().
			Padding(0, 1)
)

// Item type markers
const (
	BookChar  = "▤"
	MovieChar = "▶"
)

var (
	BookMarker  = lipgloss.NewStyle().Foreground(Blue).Render(BookChar)
	MovieMarker = lipgloss.NewStyle().Foreground(Amber).Render(MovieChar)
)

func typeMarker(t domain.ItemType) string {
	if t == domain.ItemTypeMovie {
		return MovieMarker
	}
	return BookMarker
}

// SpinnerFrames for load progress
var SpinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
