// Package log provides categorized structured logging for mdata.
// Logging is off until Init or InitWriter is called; every entry is also
// published on a pubsub broker so a UI can tail the log.
package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/zjrosen/mdata/internal/pubsub"
)

// Level represents log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config string to a Level, defaulting to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Category groups related log messages.
type Category string

const (
	CatRecord     Category = "record"     // Record writes, lifecycle, persistence calls
	CatCollection Category = "collection" // Membership changes
	CatRegistry   Category = "registry"   // Entity type registration and lookup
	CatCache      Category = "cache"      // Identity cache and payload cache
	CatStore      Category = "store"      // Store transport
	CatDB         Category = "db"         // SQLite store
	CatConfig     Category = "config"     // Configuration and schema loading
	CatWatcher    Category = "watcher"    // Store file watcher
	CatTrace      Category = "trace"      // Tracing provider
	CatRedraw     Category = "redraw"     // Redraw hook adapters
	CatState      Category = "state"      // Keyed state bags
)

// Logger writes formatted entries and republishes them on its broker.
type Logger struct {
	mu       sync.Mutex
	file     *os.File
	writer   io.Writer
	enabled  bool
	minLevel Level
	broker   *pubsub.Broker[string]
}

var defaultLogger atomic.Pointer[Logger]

// Init routes logging to the file at path, creating its directory. The
// standard library logger is pointed at the same file, so stray output from
// dependencies cannot corrupt a running Bubble Tea program. A later Init or
// InitWriter replaces this logger. The returned cleanup closes the file.
func Init(path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := tea.LogToFile(path, "mdata ")
	if err != nil {
		return nil, err
	}

	l := &Logger{file: f, writer: f, enabled: true, minLevel: LevelDebug, broker: pubsub.NewBroker[string]()}
	install(l)
	return func() {
		// Only detach if nothing replaced us in the meantime.
		if defaultLogger.CompareAndSwap(l, nil) {
			l.broker.Close()
		}
		_ = f.Close()
	}, nil
}

// InitWriter routes logging to w (e.g. os.Stderr or a test buffer) at minLevel.
func InitWriter(w io.Writer, minLevel Level) {
	install(&Logger{writer: w, enabled: true, minLevel: minLevel, broker: pubsub.NewBroker[string]()})
}

// Reset disables logging and drops the global logger.
func Reset() {
	install(nil)
}

func install(l *Logger) {
	if old := defaultLogger.Swap(l); old != nil && old.broker != nil {
		old.broker.Close()
	}
}

// SetEnabled toggles logging on/off.
func SetEnabled(enabled bool) {
	if l := defaultLogger.Load(); l != nil {
		l.mu.Lock()
		l.enabled = enabled
		l.mu.Unlock()
	}
}

// SetMinLevel sets the minimum log level.
func SetMinLevel(level Level) {
	if l := defaultLogger.Load(); l != nil {
		l.mu.Lock()
		l.minLevel = level
		l.mu.Unlock()
	}
}

// Debug logs at debug level.
func Debug(cat Category, msg string, fields ...any) {
	log(LevelDebug, cat, msg, fields...)
}

// Info logs at info level.
func Info(cat Category, msg string, fields ...any) {
	log(LevelInfo, cat, msg, fields...)
}

// Warn logs at warning level.
func Warn(cat Category, msg string, fields ...any) {
	log(LevelWarn, cat, msg, fields...)
}

// Error logs at error level.
func Error(cat Category, msg string, fields ...any) {
	log(LevelError, cat, msg, fields...)
}

// ErrorErr logs an error with the error value.
func ErrorErr(cat Category, msg string, err error, fields ...any) {
	if err != nil {
		fields = append(fields, "error", err.Error())
	} else {
		fields = append(fields, "error", "<nil>")
	}
	log(LevelError, cat, msg, fields...)
}

func log(level Level, cat Category, msg string, fields ...any) {
	l := defaultLogger.Load()
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled || level < l.minLevel {
		return
	}

	// Format: 2025-12-06T10:45:00 [ERROR] [record] message key=value key2=value2
	var b strings.Builder
	b.WriteString(time.Now().Format("2006-01-02T15:04:05"))
	fmt.Fprintf(&b, " [%s] [%s] %s", level, cat, msg)

	for i := 0; i+1 < len(fields); i += 2 {
		fmt.Fprintf(&b, " %v=%v", fields[i], fields[i+1])
	}
	if len(fields)%2 != 0 {
		fmt.Fprintf(&b, " %v=<missing>", fields[len(fields)-1])
	}
	b.WriteByte('\n')
	entry := b.String()

	if l.writer != nil {
		_, _ = io.WriteString(l.writer, entry)
	}
	l.broker.Publish(pubsub.CreatedEvent, entry)
}

// LogEvent is a pubsub event containing a log entry.
type LogEvent = pubsub.Event[string]

// LogListener wraps a continuous listener for log events.
type LogListener = pubsub.ContinuousListener[string]

// NewListener creates a new log event listener, or returns nil when logging
// is not initialized. The listener is cleaned up when ctx is cancelled.
func NewListener(ctx context.Context) *LogListener {
	l := defaultLogger.Load()
	if l == nil {
		return nil
	}
	return pubsub.NewContinuousListener(ctx, l.broker)
}

// Subscribe returns a channel of log entries, or nil when logging is not initialized.
func Subscribe(ctx context.Context) <-chan LogEvent {
	l := defaultLogger.Load()
	if l == nil {
		return nil
	}
	return l.broker.Subscribe(ctx)
}
