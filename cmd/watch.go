package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync/atomic"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zjrosen/mdata/internal/log"
	"github.com/zjrosen/mdata/internal/model"
	"github.com/zjrosen/mdata/internal/presentation"
	"github.com/zjrosen/mdata/internal/pubsub"
	"github.com/zjrosen/mdata/internal/redraw"
	"github.com/zjrosen/mdata/internal/ui/inspector"
	"github.com/zjrosen/mdata/internal/watcher"
)

// programSender forwards redraw messages to a program created after the registry.
type programSender struct {
	p atomic.Pointer[tea.Program]
}

func (s *programSender) Send(msg tea.Msg) {
	if p := s.p.Load(); p != nil {
		p.Send(msg)
	}
}

// eventTypes are the change event types a watch can be narrowed to.
var eventTypes = []pubsub.EventType{
	pubsub.CreatedEvent,
	pubsub.UpdatedEvent,
	pubsub.DeletedEvent,
	pubsub.AddedEvent,
	pubsub.RemovedEvent,
	pubsub.DisposedEvent,
}

// eventFilter builds a subscription filter from --events; no names means every event.
func eventFilter(names []string) (pubsub.Filter[model.ChangeEvent], error) {
	if len(names) == 0 {
		return nil, nil
	}
	types := make([]pubsub.EventType, 0, len(names))
	for _, name := range names {
		t := pubsub.EventType(strings.ToLower(strings.TrimSpace(name)))
		if !slices.Contains(eventTypes, t) {
			return nil, fmt.Errorf("unknown event type %q (want one of %v)", name, eventTypes)
		}
		types = append(types, t)
	}
	return pubsub.OfType[model.ChangeEvent](types...), nil
}

func newWatchCmd(a *app) *cobra.Command {
	var (
		tui    bool
		events []string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow changes to a SQLite store",
		Long: `Load every record, then follow writes made to the SQLite store by other
processes. Each debounced burst of writes reloads the records and the
resulting change events are printed as JSON lines.

With --tui an interactive inspector shows the records and the event log.

Examples:
  mdata watch | jq 'select(.type == "updated")'
  mdata watch --events updated,deleted
  mdata watch --tui`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := eventFilter(events)
			if err != nil {
				return err
			}
			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
			defer stop()

			var hook func()
			var sender programSender
			if tui {
				coalescer := redraw.NewCoalescer(a.cfg.Watch.Debounce, redraw.TeaHook(&sender))
				defer coalescer.Stop()
				hook = coalescer.Hook()
			}

			s, err := a.open(ctx, hook)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close(context.Background()) }()
			if s.sqlite == nil {
				return fmt.Errorf("watch needs the %q store backend, got %q", "sqlite", a.cfg.Store.Backend)
			}

			w, err := watcher.New(watcher.Config{Path: s.sqlite.Path(), Debounce: a.cfg.Watch.Debounce})
			if err != nil {
				return err
			}
			defer w.Stop()
			changes, err := w.Start(ctx)
			if err != nil {
				return err
			}

			if tui {
				return runInspector(ctx, s, changes, filter, &sender)
			}
			return streamEvents(ctx, cmd, s, changes, filter)
		},
	}
	cmd.Flags().BoolVar(&tui, "tui", false, "show the interactive inspector")
	cmd.Flags().StringSliceVar(&events, "events", nil, "only show these event types (created, updated, deleted, added, removed, disposed)")
	return cmd
}

func runInspector(ctx context.Context, s *session, changes <-chan watcher.Change, filter pubsub.Filter[model.ChangeEvent], sender *programSender) error {
	m := inspector.New(ctx, inspector.Config{
		Registry: s.reg,
		Changes:  changes,
		Reload:   s.syncAll,
		Filter:   filter,
	})
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	sender.p.Store(p)

	_, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("running inspector: %w", err)
	}
	return nil
}

// streamEvents prints registry change events while reloading on every store change.
func streamEvents(ctx context.Context, cmd *cobra.Command, s *session, changes <-chan watcher.Change, filter pubsub.Filter[model.ChangeEvent]) error {
	if err := s.syncAll(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	events := s.reg.Events().SubscribeFiltered(ctx, filter)
	formatter := presentation.NewFormatter(cmd.OutOrStdout())

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case change, ok := <-changes:
				if !ok {
					return nil
				}
				log.Debug(log.CatWatcher, "Reloading after store change", "events", change.Events)
				if err := s.syncAll(ctx); err != nil && ctx.Err() == nil {
					log.ErrorErr(log.CatWatcher, "Reload failed", err)
				}
			}
		}
	})
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				if err := formatter.FormatEvent(presentation.FromEvent(ev)); err != nil {
					return err
				}
			}
		}
	})
	return g.Wait()
}
