package components

import (
	"charm.land/lipgloss/v2"

	"github.com/abhisek/alis/internal/ui/theme"
)

// ContentWidth returns the inner width used for cards so that stacked
// sections align.
func ContentWidth(frameWidth int) int {
	return min(max(frameWidth-6, 20), 100)
}

// Card wraps content in a rounded-border box at the given content width.
func Card(title, content string, cw int) string {
	body := content
	if title != "" {
		body = theme.Title.Render(title) + "\n\n" + content
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.Border).
		Width(cw-2).
		Padding(0, 1).
		Render(body)
}
