// Package controller owns the lifecycle of the voice session's execution
// goroutine.
//
// A Controller runs at most one session at a time. Operators drive it
// through Start/Stop and poll it through Status/Logs; none of those calls
// are ever blocked by the running session. Log history is a bounded,
// monotonically identified ring that survives across runs.
package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/voxline/voxline/internal/observe"
	"github.com/voxline/voxline/internal/session"
	"github.com/voxline/voxline/pkg/audio"
)

// State is the controller's lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateStarting   State = "starting"
	StateConnecting State = "connecting"
	StateRunning    State = "running"
	StateStopping   State = "stopping"
	StateStopped    State = "stopped"
	StateCompleted  State = "completed"
	StateError      State = "error"
)

const (
	// defaultJoinTimeout bounds the wait for the session goroutine in Stop.
	defaultJoinTimeout = 2 * time.Second

	// historyMax is the entry count beyond which the log history is trimmed.
	historyMax = 2000

	// historyKeep is the number of newest entries kept after a trim.
	historyKeep = 1000
)

// LogEntry is one line of the controller's log history.
type LogEntry struct {
	// ID is a monotonically increasing identifier starting at 1. Identifiers
	// are never reused, even after the history is trimmed.
	ID int64

	// Timestamp is when the entry was recorded.
	Timestamp time.Time

	// Message is the log line.
	Message string
}

// MarshalJSON encodes the entry with the timestamp as Unix seconds, matching
// what the dashboard expects.
func (e LogEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID        int64   `json:"id"`
		Timestamp float64 `json:"timestamp"`
		Message   string  `json:"message"`
	}{e.ID, float64(e.Timestamp.UnixNano()) / float64(time.Second), e.Message})
}

// Status is a point-in-time snapshot of the controller.
type Status struct {
	State    State `json:"state"`
	Running  bool  `json:"running"`
	LogCount int   `json:"log_count"`
}

// Runner executes one voice session to completion. stop is the run's fresh
// stop signal, logf receives progress lines for the history, and running
// should be invoked once the agent stream is live so the controller can
// report the running state.
type Runner func(stop *session.StopSignal, logf audio.Logf, running func()) error

// Controller coordinates session execution and exposes state and logs.
// All exported methods are safe for concurrent use.
type Controller struct {
	mu      sync.Mutex
	state   State
	running bool
	gen     uint64
	stop    *session.StopSignal
	done    chan struct{}

	histMu  sync.Mutex
	history []LogEntry
	nextID  int64

	run         Runner
	joinTimeout time.Duration
	metrics     *observe.Metrics
}

// Option customises a Controller.
type Option func(*Controller)

// WithJoinTimeout overrides the bounded wait Stop applies to the session
// goroutine.
func WithJoinTimeout(d time.Duration) Option {
	return func(c *Controller) { c.joinTimeout = d }
}

// WithMetrics overrides the telemetry sink.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// New creates an idle Controller that executes run on each Start.
func New(run Runner, opts ...Option) *Controller {
	c := &Controller{
		state:       StateIdle,
		nextID:      1,
		run:         run,
		joinTimeout: defaultJoinTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// Start launches the session goroutine. Returns false without side effects
// (beyond a log line) if a session is already running; exactly one session
// goroutine is ever alive.
func (c *Controller) Start() bool {
	ctx := context.Background()

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		c.Log("⚠️ Assistant already running")
		c.metrics.SessionStarts.Add(ctx, 1, metric.WithAttributes(observe.Attr("result", "rejected")))
		return false
	}

	stop := session.NewStopSignal()
	done := make(chan struct{})
	c.gen++
	gen := c.gen
	c.stop = stop
	c.done = done
	c.running = true
	c.state = StateStarting
	c.mu.Unlock()

	c.Log("🚀 Starting realtime assistant")
	c.metrics.SessionStarts.Add(ctx, 1, metric.WithAttributes(observe.Attr("result", "ok")))
	c.metrics.ActiveSessions.Add(ctx, 1)

	go c.runner(gen, stop, done)
	return true
}

// Stop requests cooperative shutdown and waits for the session goroutine
// with a bounded timeout. The state is forced to stopped even if the join
// times out, so a subsequent Start always succeeds. Returns false if no
// session was running.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return false
	}
	c.state = StateStopping
	stop, done := c.stop, c.done
	c.mu.Unlock()

	c.Log("🛑 Stop requested")
	stop.Set()

	select {
	case <-done:
	case <-time.After(c.joinTimeout):
		c.Log("⚠️ Session did not stop within the timeout")
	}

	c.mu.Lock()
	c.running = false
	c.state = StateStopped
	c.mu.Unlock()
	return true
}

// Status returns a snapshot of the controller. Never blocks on the session
// goroutine.
func (c *Controller) Status() Status {
	c.mu.Lock()
	state, running := c.state, c.running
	c.mu.Unlock()

	c.histMu.Lock()
	count := len(c.history)
	c.histMu.Unlock()

	return Status{State: state, Running: running, LogCount: count}
}

// Logs returns all history entries with an identifier strictly greater than
// afterID, in identifier order.
func (c *Controller) Logs(afterID int64) []LogEntry {
	c.histMu.Lock()
	defer c.histMu.Unlock()

	// Entries are stored in identifier order; find the first match.
	i := 0
	for i < len(c.history) && c.history[i].ID <= afterID {
		i++
	}
	out := make([]LogEntry, len(c.history)-i)
	copy(out, c.history[i:])
	return out
}

// Log appends a message to the history, trimming it to the newest
// historyKeep entries once it exceeds historyMax. Identifiers keep
// increasing across trims and runs; Stop never clears the history.
func (c *Controller) Log(message string) {
	c.histMu.Lock()
	defer c.histMu.Unlock()

	c.history = append(c.history, LogEntry{
		ID:        c.nextID,
		Timestamp: time.Now(),
		Message:   message,
	})
	c.nextID++

	if len(c.history) > historyMax {
		kept := c.history[len(c.history)-historyKeep:]
		c.history = append(make([]LogEntry, 0, historyMax), kept...)
	}
}

// Logf formats a message into the history. Satisfies [audio.Logf].
func (c *Controller) Logf(format string, args ...any) {
	c.Log(fmt.Sprintf(format, args...))
}

// runner hosts one session run and records its outcome. Panics are
// recovered here so they never reach the operator's goroutine. gen pins every
// state write to this run: a runner that outlives a timed-out Stop cannot
// write over a newer session's state.
func (c *Controller) runner(gen uint64, stop *session.StopSignal, done chan struct{}) {
	defer close(done)
	defer c.metrics.ActiveSessions.Add(context.Background(), -1)
	defer func() {
		if r := recover(); r != nil {
			c.Logf("❌ Unexpected error: %v", r)
			c.setState(gen, StateError)
			c.finish(gen, stop)
		}
	}()

	c.setState(gen, StateConnecting)

	err := c.run(stop, c.Logf, func() { c.setStateIf(gen, StateConnecting, StateRunning) })

	switch {
	case err != nil:
		c.Logf("❌ Unexpected error: %v", err)
		c.setState(gen, StateError)
	case stop.Stopped():
		c.setState(gen, StateStopped)
	default:
		c.setState(gen, StateCompleted)
	}
	c.finish(gen, stop)
}

// finish clears the running flag and latches the stop signal so any loop
// still observing it winds down.
func (c *Controller) finish(gen uint64, stop *session.StopSignal) {
	c.mu.Lock()
	if c.gen == gen {
		c.running = false
	}
	c.mu.Unlock()
	stop.Set()
}

// setState writes s only when gen is still the current run.
func (c *Controller) setState(gen uint64, s State) {
	c.mu.Lock()
	if c.gen == gen {
		c.state = s
	}
	c.mu.Unlock()
}

// setStateIf transitions to next only while gen is current and the state is
// cur, so a late "running" notification cannot clobber a terminal state.
func (c *Controller) setStateIf(gen uint64, cur, next State) {
	c.mu.Lock()
	if c.gen == gen && c.state == cur {
		c.state = next
	}
	c.mu.Unlock()
}
