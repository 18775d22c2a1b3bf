// Package inspector is a Bubble Tea view over a live registry: one tab per
// entity type, the records it holds, and a tail of change events.
package inspector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/zjrosen/mdata/internal/keys"
	"github.com/zjrosen/mdata/internal/log"
	"github.com/zjrosen/mdata/internal/model"
	"github.com/zjrosen/mdata/internal/pubsub"
	"github.com/zjrosen/mdata/internal/redraw"
	"github.com/zjrosen/mdata/internal/state"
	"github.com/zjrosen/mdata/internal/watcher"
)

// DefaultMaxEvents bounds the event log.
const DefaultMaxEvents = 50

// Config configures the inspector.
type Config struct {
	Registry *model.Registry

	// Changes delivers store file changes; each one triggers Reload. Optional.
	Changes <-chan watcher.Change

	// Reload re-reads records from the store. Optional.
	Reload func(ctx context.Context) error

	// Filter narrows the event log. Nil shows every event.
	Filter pubsub.Filter[model.ChangeEvent]

	MaxEvents int
}

type storeChangedMsg watcher.Change

type reloadedMsg struct {
	err error
	at  time.Time
}

type populatedMsg struct {
	lid string
	err error
}

// Model is the inspector state.
type Model struct {
	ctx      context.Context
	reg      *model.Registry
	listener *pubsub.ContinuousListener[model.ChangeEvent]
	logs     *log.LogListener // nil when logging is off
	changes  <-chan watcher.Change
	reload   func(ctx context.Context) error

	keys keys.KeyMap
	help help.Model

	entity    int
	cursor    int
	cursors   *state.State // remembered cursor per entity type
	events    []string
	maxEvents int

	redraws      uint64
	storeChanges int
	lastReload   time.Time
	lastErr      error
	lastLog      string

	width  int
	height int
}

// New creates an inspector bound to cfg.Registry. The registry event
// subscription lives as long as ctx.
func New(ctx context.Context, cfg Config) Model {
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = DefaultMaxEvents
	}
	return Model{
		ctx:       ctx,
		reg:       cfg.Registry,
		listener:  pubsub.NewFilteredListener(ctx, cfg.Registry.Events(), cfg.Filter),
		logs:      log.NewListener(ctx),
		changes:   cfg.Changes,
		reload:    cfg.Reload,
		keys:      keys.DefaultKeyMap(),
		help:      help.New(),
		cursors:   state.New(map[string]any{"cursor": 0}),
		maxEvents: cfg.MaxEvents,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.listener.Listen(), m.listenLogs(), m.waitForChange(), m.reloadCmd())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case pubsub.Event[model.ChangeEvent]:
		m.appendEvent(formatEvent(msg))
		m = m.clampCursor()
		return m, m.listener.Listen()

	case log.LogEvent:
		m.lastLog = strings.TrimSpace(msg.Payload)
		return m, m.listenLogs()

	case redraw.Msg:
		m.redraws = msg.Seq
		return m, nil

	case storeChangedMsg:
		m.storeChanges++
		log.Debug(log.CatWatcher, "Store changed, reloading", "path", msg.Path, "events", msg.Events)
		return m, tea.Batch(m.reloadCmd(), m.waitForChange())

	case reloadedMsg:
		m.lastErr = msg.err
		if msg.err == nil {
			m.lastReload = msg.at
		}
		return m.clampCursor(), nil

	case populatedMsg:
		m.lastErr = msg.err
		if msg.err == nil {
			m.appendEvent(fmt.Sprintf("%s populated %s", time.Now().Format("15:04:05"), msg.lid))
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		m.cursor++
		m = m.clampCursor()
	case key.Matches(msg, m.keys.Top):
		m.cursor = 0
	case key.Matches(msg, m.keys.Bottom):
		m.cursor = len(m.records()) - 1
		m = m.clampCursor()
	case key.Matches(msg, m.keys.NextType):
		m = m.switchEntity(1)
	case key.Matches(msg, m.keys.PrevType):
		m = m.switchEntity(-1)
	case key.Matches(msg, m.keys.Refresh):
		return m, m.reloadCmd()
	case key.Matches(msg, m.keys.Populate):
		return m, m.populateCmd()
	case key.Matches(msg, m.keys.ClearLog):
		m.events = nil
	}
	return m, nil
}

// Entity returns the selected entity type name.
func (m Model) Entity() string {
	names := m.reg.Names()
	if len(names) == 0 {
		return ""
	}
	return names[m.entity%len(names)]
}

// Selected returns the record under the cursor.
func (m Model) Selected() *model.Record {
	recs := m.records()
	if m.cursor < 0 || m.cursor >= len(recs) {
		return nil
	}
	return recs[m.cursor]
}

// Events returns the event log, oldest first.
func (m Model) Events() []string {
	return m.events
}

func (m Model) records() []*model.Record {
	ctrl, ok := m.reg.Controller(m.Entity())
	if !ok || ctrl.IsDisposed() {
		return nil
	}
	var out []*model.Record
	for _, r := range ctrl.Records() {
		if !r.IsDisposed() {
			out = append(out, r)
		}
	}
	return out
}

// switchEntity moves delta tabs, restoring the cursor last used on the target type.
func (m Model) switchEntity(delta int) Model {
	n := len(m.reg.Names())
	if n == 0 {
		return m
	}
	m.cursors.Get(m.Entity()).Set("cursor", m.cursor)
	m.entity = (m.entity + delta%n + n) % n
	m.cursor, _ = m.cursors.Get(m.Entity()).Get("cursor").(int)
	return m.clampCursor()
}

func (m Model) clampCursor() Model {
	n := len(m.records())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	return m
}

func (m *Model) appendEvent(line string) {
	m.events = append(m.events, line)
	if over := len(m.events) - m.maxEvents; over > 0 {
		m.events = append([]string(nil), m.events[over:]...)
	}
}

func (m Model) listenLogs() tea.Cmd {
	if m.logs == nil {
		return nil
	}
	return m.logs.Listen()
}

func (m Model) waitForChange() tea.Cmd {
	if m.changes == nil {
		return nil
	}
	ch, ctx := m.changes, m.ctx
	return func() tea.Msg {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-ch:
			if !ok {
				return nil
			}
			return storeChangedMsg(c)
		}
	}
}

func (m Model) reloadCmd() tea.Cmd {
	if m.reload == nil {
		return nil
	}
	reload, ctx := m.reload, m.ctx
	return func() tea.Msg {
		err := reload(ctx)
		if err != nil {
			log.ErrorErr(log.CatStore, "Inspector reload failed", err)
		}
		return reloadedMsg{err: err, at: time.Now()}
	}
}

func (m Model) populateCmd() tea.Cmd {
	r := m.Selected()
	if r == nil {
		return nil
	}
	ctx := m.ctx
	return func() tea.Msg {
		return populatedMsg{lid: r.LID(), err: r.Populate(ctx, nil)}
	}
}

func formatEvent(ev pubsub.Event[model.ChangeEvent]) string {
	p := ev.Payload
	line := fmt.Sprintf("%s %-8s %s", ev.Timestamp.Format("15:04:05"), ev.Type, p.Entity)
	if p.ID != nil {
		line += fmt.Sprintf(" %v", p.ID)
	} else {
		line += " " + p.LID
	}
	if p.Field != "" {
		line += " ." + p.Field
	}
	if p.Collection != "" {
		line += " @" + p.Collection
	}
	return line
}
