// Package watcher reports changes to a SQLite store file made by other processes.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/mdata/internal/log"
)

// DefaultDebounce groups bursts of writes such as a transaction commit.
const DefaultDebounce = 100 * time.Millisecond

// Change is delivered once per debounced burst.
type Change struct {
	Path   string
	Events int
	At     time.Time
}

// Config holds watcher configuration options.
type Config struct {
	// Path is the database file. Its directory is watched.
	Path     string
	Debounce time.Duration
}

// Watcher monitors a database file and its WAL/journal siblings.
type Watcher struct {
	fs       *fsnotify.Watcher
	path     string
	names    map[string]bool
	debounce time.Duration
	changes  chan Change

	stopOnce sync.Once
	done     chan struct{}
}

// New creates a watcher. It does not watch until Start.
func New(cfg Config) (*Watcher, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("watcher: path is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	base := filepath.Base(cfg.Path)
	return &Watcher{
		fs:       fsw,
		path:     cfg.Path,
		names:    map[string]bool{base: true, base + "-wal": true, base + "-journal": true},
		debounce: cfg.Debounce,
		changes:  make(chan Change, 1),
		done:     make(chan struct{}),
	}, nil
}

// Start watches the database directory until ctx ends or Stop is called.
// The returned channel is closed when watching ends.
func (w *Watcher) Start(ctx context.Context) (<-chan Change, error) {
	dir := filepath.Dir(w.path)
	if err := w.fs.Add(dir); err != nil {
		return nil, fmt.Errorf("watching directory %s: %w", dir, err)
	}
	log.Debug(log.CatWatcher, "Watching store", "path", w.path, "debounce", w.debounce)
	go w.loop(ctx)
	return w.changes, nil
}

// Stop terminates the watcher. It is safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fs.Close()
	})
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.changes)

	var (
		timer   *time.Timer
		fire    <-chan time.Time
		pending int
	)
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
	}

	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				stopTimer()
				return
			}
			if !w.relevant(ev) {
				continue
			}
			pending++
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if pending == 0 {
				continue
			}
			change := Change{Path: w.path, Events: pending, At: time.Now()}
			pending = 0
			// A consumer that has not read the previous change gets this one dropped.
			select {
			case w.changes <- change:
			default:
				log.Debug(log.CatWatcher, "Dropped change notification", "events", change.Events)
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				stopTimer()
				return
			}
			log.ErrorErr(log.CatWatcher, "Watch error", err, "path", w.path)

		case <-ctx.Done():
			stopTimer()
			_ = w.Stop()
			return

		case <-w.done:
			stopTimer()
			return
		}
	}
}

// relevant keeps writes and creates of the database file and its WAL or journal.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return false
	}
	return w.names[filepath.Base(ev.Name)]
}
