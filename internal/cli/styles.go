// Package cli renders nourish output for the terminal using lipgloss.
package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Palette.
var (
	Leaf   = lipgloss.Color("#5FB760")
	Teal   = lipgloss.Color("#4ECDC4")
	Butter = lipgloss.Color("#FFE66D")
	Tomato = lipgloss.Color("#FF6B6B")
	Mint   = lipgloss.Color("#95E1D3")
	Slate  = lipgloss.Color("#666666")
	Border = lipgloss.Color("#333")
)

// Styles shared by the renderers.
var (
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(Leaf).MarginBottom(1)
	SuccessStyle = lipgloss.NewStyle().Foreground(Teal)
	WarningStyle = lipgloss.NewStyle().Foreground(Butter)
	ErrorStyle   = lipgloss.NewStyle().Foreground(Tomato)
	InfoStyle    = lipgloss.NewStyle().Foreground(Mint)
	SubtleStyle  = lipgloss.NewStyle().Foreground(Slate)
	BoldStyle    = lipgloss.NewStyle().Bold(true)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Border).
			Padding(1, 2)

	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(Border)

	TableCellStyle = lipgloss.NewStyle().PaddingRight(2)
)

// Icons.
const (
	SuccessIcon = "✓"
	ErrorIcon   = "✗"
	WarningIcon = "⚠️"
	InfoIcon    = "ℹ️"
	PlateIcon   = "🥗"
	ChartIcon   = "📊"
	FolderIcon  = "🗄️"
)

// macroColors tints each nutrient line of a recommendation.
var macroColors = map[string]lipgloss.Color{
	"Calories": Tomato,
	"Protein":  Teal,
	"Carbs":    Butter,
	"Fats":     Mint,
}

func iconLine(style lipgloss.Style, icon, message string) string {
	return style.Render(icon + " " + message)
}

// FormatSuccess formats a success message with icon.
func FormatSuccess(message string) string { return iconLine(SuccessStyle, SuccessIcon, message) }

// FormatError formats an error message with icon.
func FormatError(message string) string { return iconLine(ErrorStyle, ErrorIcon, message) }

// FormatWarning formats a warning message with icon.
func FormatWarning(message string) string { return iconLine(WarningStyle, WarningIcon, message) }

// FormatInfo formats an info message with icon.
func FormatInfo(message string) string { return iconLine(InfoStyle, InfoIcon, message) }

// FormatTitle formats a section title.
func FormatTitle(title string) string { return iconLine(TitleStyle, PlateIcon, title) }

// FormatMacro formats one labelled nutrient amount, padded so that a column
// of macros lines up.
func FormatMacro(label string, value float64, unit string, decimals int) string {
	name := BoldStyle.Render(fmt.Sprintf("%-9s", label+":"))
	amount := fmt.Sprintf("%.*f %s", decimals, value, unit)
	if c, ok := macroColors[label]; ok {
		amount = lipgloss.NewStyle().Foreground(c).Render(amount)
	}
	return name + " " + amount
}

// RenderBox renders content under a title inside a rounded border.
func RenderBox(title, content string) string {
	heading := TitleStyle.UnsetMargins().Render(title)
	return BoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, heading, content))
}
