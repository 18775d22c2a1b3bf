package styles

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/require"
)

func TestPanel_Frame(t *testing.T) {
	out := Panel("one\ntwo", "Records", 20, 5, false)
	lines := strings.Split(out, "\n")

	require.Len(t, lines, 5)
	require.True(t, strings.HasPrefix(lines[0], "╭─ Records "))
	require.True(t, strings.HasSuffix(lines[0], "╮"))
	require.Equal(t, "│one               │", lines[1])
	require.Equal(t, "│two               │", lines[2])
	require.Equal(t, "│                  │", lines[3])
	require.Equal(t, "╰"+strings.Repeat("─", 18)+"╯", lines[4])
	for _, line := range lines {
		require.Equal(t, 20, lipgloss.Width(line), "line %q", line)
	}
}

func TestPanel_ClipsAndTruncates(t *testing.T) {
	content := strings.Repeat("x", 50) + "\nsecond\nthird\nfourth"
	out := Panel(content, "A title far longer than the panel", 12, 4, true)
	lines := strings.Split(out, "\n")

	require.Len(t, lines, 4, "body is clipped to height-2 rows")
	require.Contains(t, lines[0], "…")
	require.Equal(t, "│xxxxxxxxx…│", lines[1])
	require.Equal(t, "│second    │", lines[2])
	for _, line := range lines {
		require.Equal(t, 12, lipgloss.Width(line), "line %q", line)
	}
}

func TestPanel_NarrowOrUntitled(t *testing.T) {
	require.True(t, strings.HasPrefix(Panel("", "", 10, 3, false), "╭────────╮"))
	require.True(t, strings.HasPrefix(Panel("", "Title", 6, 3, false), "╭────╮"), "too narrow for a title")
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "", Truncate("abc", 0))
	require.Equal(t, "abc", Truncate("abc", 3))
	require.Equal(t, "ab…", Truncate("abcd", 3))
	require.Equal(t, "漢…", Truncate("漢字テキスト", 3), "wide runes count as two cells")
}
