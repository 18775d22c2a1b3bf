package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
)

// Rounded border pieces.
const (
	cornerTopLeft     = "╭"
	cornerTopRight    = "╮"
	cornerBottomLeft  = "╰"
	cornerBottomRight = "╯"
	edgeHorizontal    = "─"
	edgeVertical      = "│"
)

// Panel frames content in a rounded border with the title set into the top
// edge, lazygit style: ╭─ Title ─────╮. Every line is cut to the inner width
// and the body is padded or clipped to height-2 rows.
func Panel(content, title string, width, height int, focused bool) string {
	inner := max(width-2, 1)
	rows := max(height-2, 1)

	var borderColor lipgloss.TerminalColor = BorderDefaultColor
	if focused {
		borderColor = BorderFocusedColor
	}
	border := lipgloss.NewStyle().Foreground(borderColor)

	var b strings.Builder
	b.WriteString(topEdge(title, inner, border))

	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	for i := range rows {
		var line string
		if i < len(lines) {
			line = Truncate(lines[i], inner)
		}
		pad := max(inner-ansi.StringWidth(line), 0)
		b.WriteString("\n")
		b.WriteString(border.Render(edgeVertical) + line + strings.Repeat(" ", pad) + border.Render(edgeVertical))
	}

	b.WriteString("\n")
	b.WriteString(border.Render(cornerBottomLeft + strings.Repeat(edgeHorizontal, inner) + cornerBottomRight))
	return b.String()
}

// topEdge needs room for "─ " + at least one title cell + " ─".
func topEdge(title string, inner int, border lipgloss.Style) string {
	if title == "" || inner < 5 {
		return border.Render(cornerTopLeft + strings.Repeat(edgeHorizontal, inner) + cornerTopRight)
	}
	title = runewidth.Truncate(title, inner-4, "…")
	fill := inner - 3 - runewidth.StringWidth(title)
	return border.Render(cornerTopLeft+edgeHorizontal+" ") +
		TitleStyle.Render(title) +
		border.Render(" "+strings.Repeat(edgeHorizontal, fill)+cornerTopRight)
}

// Truncate cuts s to width display cells, keeping escape sequences intact.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return ansi.Truncate(s, width, "…")
}
