package inspector

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/zjrosen/mdata/internal/model"
	"github.com/zjrosen/mdata/internal/ui/styles"
)

const defaultWidth = 80

// chrome is every row outside the two panes: tabs, two pairs of panel
// borders, status, the optional error and log lines, and help.
const chrome = 9

func (m Model) View() string {
	width := m.width
	if width <= 0 {
		width = defaultWidth
	}
	recordRows, eventRows := m.paneRows()

	var b strings.Builder
	b.WriteString(m.renderTabs(width))
	b.WriteString("\n")
	b.WriteString(m.renderRecords(width, recordRows))
	b.WriteString("\n")
	b.WriteString(m.renderEvents(width, eventRows))
	b.WriteString("\n")
	b.WriteString(m.renderStatus(width))
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) renderTabs(width int) string {
	names := m.reg.Names()
	if len(names) == 0 {
		return styles.TitleStyle.Render("mdata") + styles.MutedStyle.Render("  no entity types defined")
	}
	tabs := []string{styles.TitleStyle.Render("mdata")}
	current := m.Entity()
	for _, name := range names {
		label := name
		if ctrl, ok := m.reg.Controller(name); ok && !ctrl.IsDisposed() {
			label = fmt.Sprintf("%s (%d)", name, ctrl.Size())
		}
		if name == current {
			tabs = append(tabs, styles.TabActiveStyle.Render(label))
		} else {
			tabs = append(tabs, styles.TabStyle.Render(label))
		}
	}
	return lipgloss.NewStyle().MaxWidth(width).Render(lipgloss.JoinHorizontal(lipgloss.Top, tabs...))
}

func (m Model) renderRecords(width, rows int) string {
	recs := m.records()
	if len(recs) == 0 {
		return styles.Panel(styles.MutedStyle.Render("no records"), m.Entity(), width, rows+2, true)
	}

	// Keep the cursor inside the visible window.
	start := 0
	if m.cursor >= rows {
		start = m.cursor - rows + 1
	}
	end := min(start+rows, len(recs))

	var b strings.Builder
	for i := start; i < end; i++ {
		r := recs[i]
		prefix := "  "
		if i == m.cursor {
			prefix = styles.SelectionIndicatorStyle.Render("> ")
		}
		b.WriteString(prefix + recordFlags(r) + " " + recordLine(r))
		b.WriteString("\n")
	}
	title := fmt.Sprintf("%s %d/%d", m.Entity(), m.cursor+1, len(recs))
	return styles.Panel(b.String(), title, width, rows+2, true)
}

func (m Model) renderEvents(width, rows int) string {
	if len(m.events) == 0 {
		return styles.Panel(styles.MutedStyle.Render("no events yet"), "events", width, rows+2, false)
	}
	events := m.events
	if len(events) > rows {
		events = events[len(events)-rows:]
	}
	var b strings.Builder
	for _, line := range events {
		b.WriteString(styles.MutedStyle.Render(line))
		b.WriteString("\n")
	}
	return styles.Panel(b.String(), fmt.Sprintf("events (%d)", len(m.events)), width, rows+2, false)
}

func (m Model) renderStatus(width int) string {
	parts := []string{
		fmt.Sprintf("redraws: %d", m.redraws),
		fmt.Sprintf("store changes: %d", m.storeChanges),
	}
	if !m.lastReload.IsZero() {
		parts = append(parts, "reloaded "+m.lastReload.Format("15:04:05"))
	}
	status := styles.SuccessStyle.Render(styles.Truncate(strings.Join(parts, " · "), width))
	if m.lastErr != nil {
		status += "\n" + styles.ErrorStyle.Render(styles.Truncate("error: "+m.lastErr.Error(), width))
	}
	if m.lastLog != "" {
		status += "\n" + styles.MutedStyle.Render(styles.Truncate(m.lastLog, width))
	}
	return status
}

// paneRows splits the terminal height between the records and events panes.
func (m Model) paneRows() (records, events int) {
	if m.height <= 0 {
		return 10, 5
	}
	avail := m.height - chrome
	records = max(3, avail*2/3)
	return records, max(2, avail-records)
}

func recordFlags(r *model.Record) string {
	switch {
	case r.IsWorking():
		return styles.WarningStyle.Render("~")
	case r.IsNew():
		return styles.WarningStyle.Render("+")
	case r.IsDirty():
		return styles.WarningStyle.Render("*")
	default:
		return " "
	}
}

func recordLine(r *model.Record) string {
	data, err := json.Marshal(r.Copy(false, true))
	if err != nil {
		return r.LID() + " <unencodable>"
	}
	return string(data)
}
