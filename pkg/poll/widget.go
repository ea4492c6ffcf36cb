// Package poll refreshes widgets on independent timers.
//
// Every widget owns one ticker and a generation counter. Each invocation
// captures the generation it was started under; when it completes after the
// widget was stopped (or restarted) the result is dropped instead of being
// written to state. Invocations are allowed to overlap and are adopted in
// completion order. In-flight calls are not cancelled on Stop; they run to
// their own timeout and are discarded.
package poll

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vjranagit/dashboard/pkg/errs"
	"github.com/vjranagit/dashboard/pkg/metrics"
	"github.com/vjranagit/dashboard/pkg/types"
)

// DefaultTimeout bounds one invocation when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// FetchFunc loads the current records of one widget.
type FetchFunc func(ctx context.Context) ([]types.Record, error)

// State is what a widget currently shows.
type State struct {
	// Data is the last successful result. A failure keeps it.
	Data []types.Record
	// Loading is true until the first invocation completes.
	Loading bool
	// Err is the user-facing message of the last failure, empty after a success.
	Err       string
	UpdatedAt time.Time
	Cycles    int
	Failures  int
}

// Options configures a widget.
type Options struct {
	Interval time.Duration
	Timeout  time.Duration
	// OnUpdate is called after every adopted completion, outside the lock.
	OnUpdate func(id string, st State)
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Widget polls one FetchFunc.
type Widget struct {
	id       string
	fetch    FetchFunc
	interval time.Duration
	timeout  time.Duration
	onUpdate func(string, State)
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu      sync.Mutex
	gen     uint64
	running bool
	stop    chan struct{}
	state   State

	inflight sync.WaitGroup
}

// NewWidget creates a stopped widget.
func NewWidget(id string, fetch FetchFunc, opts Options) *Widget {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Widget{
		id:       id,
		fetch:    fetch,
		interval: opts.Interval,
		timeout:  timeout,
		onUpdate: opts.OnUpdate,
		metrics:  opts.Metrics,
		logger:   logger.With("component", "poll", "widget", id),
		state:    State{Loading: true},
	}
}

// ID returns the widget id.
func (w *Widget) ID() string { return w.id }

// Start fetches immediately and then on every tick. A non-positive interval
// fetches once. Starting a running widget is a no-op.
func (w *Widget) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	w.gen++
	gen := w.gen
	w.stop = make(chan struct{})

	w.launchLocked(gen)
	if w.interval <= 0 {
		return
	}

	w.inflight.Add(1)
	go w.loop(gen, w.stop)
}

func (w *Widget) loop(gen uint64, stop <-chan struct{}) {
	defer w.inflight.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.mu.Lock()
			if w.gen == gen {
				w.launchLocked(gen)
			}
			w.mu.Unlock()
		case <-stop:
			return
		}
	}
}

// Refetch runs one extra invocation now. It does nothing on a stopped widget.
func (w *Widget) Refetch() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		w.launchLocked(w.gen)
	}
}

// Stop cancels the timer. Results of invocations still in flight are
// discarded when they arrive.
func (w *Widget) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.running = false
	w.gen++
	close(w.stop)
}

// Wait blocks until the timer goroutine and every invocation have returned.
// Call it after Stop.
func (w *Widget) Wait() {
	w.inflight.Wait()
}

// State returns a copy of the current state.
func (w *Widget) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := w.state
	st.Data = append([]types.Record(nil), w.state.Data...)
	return st
}

func (w *Widget) launchLocked(gen uint64) {
	w.inflight.Add(1)
	go w.invoke(gen)
}

func (w *Widget) invoke(gen uint64) {
	defer w.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	records, err := w.fetch(ctx)
	cancel()

	w.mu.Lock()
	if gen != w.gen {
		w.mu.Unlock()
		w.logger.Debug("discarding result of stopped widget")
		w.count("discarded")
		return
	}
	w.state.Loading = false
	w.state.Cycles++
	w.state.UpdatedAt = time.Now()
	if err != nil {
		w.state.Failures++
		w.state.Err = errs.UserMessage(err)
	} else {
		w.state.Err = ""
		w.state.Data = records
	}
	st := w.state
	st.Data = append([]types.Record(nil), w.state.Data...)
	w.mu.Unlock()

	if err != nil {
		w.logger.Warn("widget refresh failed", "class", errs.ClassOf(err).String(), "error", err.Error())
		w.count("error")
	} else {
		w.count("ok")
	}
	if w.onUpdate != nil {
		w.onUpdate(w.id, st)
	}
}

func (w *Widget) count(outcome string) {
	if w.metrics != nil {
		w.metrics.PollCycles.WithLabelValues(outcome).Inc()
	}
}
