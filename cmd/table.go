package cmd

import (
	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"

	"github.com/abhisek/alis/internal/ui/theme"
)

const timeLayout = "2006-01-02 15:04:05"

var (
	headerStyle = lipgloss.NewStyle().Foreground(theme.Primary).Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	footerStyle = cellStyle.Foreground(theme.TextDim)
)

// printTable renders rows under headers. When footer is set, the last row
// is dimmed as a totals line.
func printTable(headers []string, rows [][]string, footer bool) {
	last := len(rows) - 1
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(theme.Border)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case footer && row == last:
				return footerStyle
			}
			return cellStyle
		})
	lipgloss.Println(t)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
