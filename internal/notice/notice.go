// Package notice carries user-visible messages from the checklist and inspector
// state machines to whatever front-end is showing them.
package notice

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

const (
	CodeMissingResponse  = "missing_response"
	CodeActionTriggered  = "action_triggered"
	CodeRunFinished      = "run_finished"
	CodeRunSaved         = "run_saved"
	CodeRunSaveFailed    = "run_save_failed"
	CodeRunAborted       = "run_aborted"
	CodeNoUnit           = "no_unit"
	CodeUnitLocked       = "unit_locked"
	CodeNoChoice         = "no_choice"
	CodeEmptyDescription = "empty_description"
	CodeIssueSaved       = "issue_saved"
	CodeIssueFailed      = "issue_failed"
	CodeIssueDuplicate   = "issue_duplicate"
	CodeLookupFailed     = "lookup_failed"
)

// Notice is one message for the user.
type Notice struct {
	Level   Level
	Code    string
	Message string
	At      time.Time
	Data    any
}

// Sink receives notices. Implementations must be safe for concurrent use.
type Sink interface {
	Notify(Notice)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Notice)

func (f SinkFunc) Notify(n Notice) { f(n) }

// Discard drops every notice.
var Discard Sink = SinkFunc(func(Notice) {})

func Info(code, msg string) Notice    { return Notice{Level: LevelInfo, Code: code, Message: msg} }
func Warning(code, msg string) Notice { return Notice{Level: LevelWarning, Code: code, Message: msg} }
func Error(code, msg string) Notice   { return Notice{Level: LevelError, Code: code, Message: msg} }

// Recorder keeps every notice in memory.
type Recorder struct {
	mu    sync.Mutex
	items []Notice
}

func (r *Recorder) Notify(n Notice) {
	if n.At.IsZero() {
		n.At = time.Now()
	}
	r.mu.Lock()
	r.items = append(r.items, n)
	r.mu.Unlock()
}

// Notices returns a copy of the recorded notices in arrival order.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notice, len(r.items))
	copy(out, r.items)
	return out
}

// Codes returns the codes of the recorded notices.
func (r *Recorder) Codes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.items))
	for _, n := range r.items {
		out = append(out, n.Code)
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.items = nil
	r.mu.Unlock()
}

// Channel forwards notices to a buffered channel. When the buffer is full,
// info notices are dropped and counted, while warnings and errors queue up in
// order behind it until the receiver catches up or the channel is closed.
type Channel struct {
	ch       chan Notice
	overflow Sink
	dropped  atomic.Int64
	done     chan struct{}
	once     sync.Once

	mu       sync.Mutex
	pending  []Notice
	flushing bool
}

type ChannelOption func(*Channel)

// WithOverflow receives the notices the channel drops, and anything sent
// after Close.
func WithOverflow(s Sink) ChannelOption {
	return func(c *Channel) { c.overflow = s }
}

func NewChannel(size int, opts ...ChannelOption) *Channel {
	if size <= 0 {
		size = 64
	}
	c := &Channel{ch: make(chan Notice, size), done: make(chan struct{})}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Channel) Notify(n Notice) {
	if n.At.IsZero() {
		n.At = time.Now()
	}
	select {
	case <-c.done:
		c.drop(n)
		return
	default:
	}
	if n.Level == LevelInfo {
		select {
		case c.ch <- n:
		default:
			c.drop(n)
		}
		return
	}
	c.mu.Lock()
	if len(c.pending) == 0 {
		select {
		case c.ch <- n:
			c.mu.Unlock()
			return
		default:
		}
	}
	c.pending = append(c.pending, n)
	start := !c.flushing
	c.flushing = true
	c.mu.Unlock()
	if start {
		go c.flush()
	}
}

func (c *Channel) flush() {
	for {
		c.mu.Lock()
		if len(c.pending) == 0 {
			c.flushing = false
			c.mu.Unlock()
			return
		}
		n := c.pending[0]
		c.mu.Unlock()
		select {
		case c.ch <- n:
		case <-c.done:
			c.mu.Lock()
			rest := c.pending
			c.pending = nil
			c.mu.Unlock()
			for _, n := range rest {
				c.drop(n)
			}
			return
		}
		c.mu.Lock()
		c.pending = c.pending[1:]
		c.mu.Unlock()
	}
}

func (c *Channel) drop(n Notice) {
	c.dropped.Add(1)
	if c.overflow != nil {
		c.overflow.Notify(n)
	}
}

// Dropped reports how many notices never reached the receiver.
func (c *Channel) Dropped() int64 { return c.dropped.Load() }

// Close stops delivery. Queued warnings and errors go to the overflow sink.
// The receive channel is left open.
func (c *Channel) Close() {
	c.once.Do(func() { close(c.done) })
}

// C exposes the receive side.
func (c *Channel) C() <-chan Notice { return c.ch }

// LogSink mirrors notices into a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

func (l LogSink) Notify(n Notice) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	switch n.Level {
	case LevelWarning:
		level = slog.LevelWarn
	case LevelError:
		level = slog.LevelError
	}
	logger.Log(context.Background(), level, n.Message, "code", n.Code)
}

// Fanout delivers each notice to every sink.
func Fanout(sinks ...Sink) Sink {
	return SinkFunc(func(n Notice) {
		if n.At.IsZero() {
			n.At = time.Now()
		}
		for _, s := range sinks {
			if s != nil {
				s.Notify(n)
			}
		}
	})
}
