// Package redraw adapts the record layer's redraw hook to a host UI.
//
// A model.Config.RedrawHook is a plain func() that must not block. The
// adapters here turn it into Bubble Tea messages, broker events, or a
// debounced callback so a burst of writes repaints once.
package redraw

import (
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/zjrosen/mdata/internal/log"
	"github.com/zjrosen/mdata/internal/pubsub"
)

// Msg asks a Bubble Tea program to re-render.
type Msg struct {
	Seq uint64
	At  time.Time
}

// Sender is satisfied by *tea.Program and teatest.TestModel.
type Sender interface {
	Send(msg tea.Msg)
}

// TeaHook returns a redraw hook that sends a Msg to s.
// Program.Send blocks until the program reads the message, so the send
// happens on its own goroutine.
func TeaHook(s Sender) func() {
	var seq atomic.Uint64
	return func() {
		msg := Msg{Seq: seq.Add(1), At: time.Now()}
		go s.Send(msg)
	}
}

// BrokerHook returns a redraw hook that publishes a Msg on b.
func BrokerHook(b *pubsub.Broker[Msg]) func() {
	var seq atomic.Uint64
	return func() {
		b.Publish(pubsub.UpdatedEvent, Msg{Seq: seq.Add(1), At: time.Now()})
	}
}

// Coalescer collapses redraw requests arriving within an interval into a
// single call of fn, made after the interval elapses.
type Coalescer struct {
	interval time.Duration
	fn       func()

	mu      sync.Mutex
	timer   *time.Timer
	pending int
	stopped bool
	flushes atomic.Uint64
}

// NewCoalescer creates a Coalescer. A non-positive interval calls fn synchronously.
func NewCoalescer(interval time.Duration, fn func()) *Coalescer {
	return &Coalescer{interval: interval, fn: fn}
}

// Hook returns Request as a redraw hook.
func (c *Coalescer) Hook() func() {
	return c.Request
}

// Request schedules a call of fn unless one is already scheduled.
func (c *Coalescer) Request() {
	if c.interval <= 0 {
		c.mu.Lock()
		stopped := c.stopped
		c.mu.Unlock()
		if !stopped {
			c.flushes.Add(1)
			c.fn()
		}
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.pending++
	if c.timer != nil {
		return
	}
	c.timer = time.AfterFunc(c.interval, c.flush)
}

func (c *Coalescer) flush() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	n := c.pending
	c.pending = 0
	c.timer = nil
	c.mu.Unlock()

	if n > 1 {
		log.Debug(log.CatRedraw, "coalesced redraw requests", "count", n)
	}
	c.flushes.Add(1)
	c.fn()
}

// Flushes returns how many times fn has been called.
func (c *Coalescer) Flushes() uint64 {
	return c.flushes.Load()
}

// Stop cancels any scheduled call. Later requests are ignored.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
