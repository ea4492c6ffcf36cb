package poll

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vjranagit/dashboard/pkg/errs"
	"github.com/vjranagit/dashboard/pkg/metrics"
	"github.com/vjranagit/dashboard/pkg/types"
)

const (
	tick    = 10 * time.Millisecond
	waitFor = 2 * time.Second
)

func record(v float64) []types.Record {
	return []types.Record{{Time: "2024-01-01T10:00:00Z", Value: v}}
}

func TestWidgetLoadsImmediatelyAndOnTicks(t *testing.T) {
	var calls atomic.Int32
	w := NewWidget("w", func(context.Context) ([]types.Record, error) {
		return record(float64(calls.Add(1))), nil
	}, Options{Interval: tick})

	assert.True(t, w.State().Loading)
	w.Start()
	defer func() { w.Stop(); w.Wait() }()

	require.Eventually(t, func() bool { return w.State().Cycles >= 3 }, waitFor, tick)
	st := w.State()
	assert.False(t, st.Loading)
	assert.Empty(t, st.Err)
	assert.Len(t, st.Data, 1)
}

func TestWidgetDiscardsResultsAfterStop(t *testing.T) {
	release := make(chan struct{})
	var updates atomic.Int32
	m := metrics.New()
	w := NewWidget("w", func(context.Context) ([]types.Record, error) {
		<-release
		return record(1), nil
	}, Options{
		Interval: time.Hour,
		Metrics:  m,
		OnUpdate: func(string, State) { updates.Add(1) },
	})

	w.Start()
	w.Stop()
	close(release)
	w.Wait()

	st := w.State()
	assert.True(t, st.Loading)
	assert.Empty(t, st.Data)
	assert.Zero(t, st.Cycles)
	assert.Zero(t, updates.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PollCycles.WithLabelValues("discarded")))
}

func TestWidgetRestartDropsOldGeneration(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var n atomic.Int32
	w := NewWidget("w", func(context.Context) ([]types.Record, error) {
		if n.Add(1) == 1 {
			entered <- struct{}{}
			<-release
			return record(1), nil
		}
		return record(2), nil
	}, Options{Interval: time.Hour})

	w.Start()
	<-entered
	w.Stop()
	w.Start()
	require.Eventually(t, func() bool { return w.State().Cycles == 1 }, waitFor, tick)

	close(release)
	w.Stop()
	w.Wait()

	st := w.State()
	assert.Equal(t, 1, st.Cycles)
	assert.Equal(t, 2.0, st.Data[0].Value)
}

func TestWidgetLogsFailureOnOneLine(t *testing.T) {
	var buf bytes.Buffer
	w := NewWidget("w", func(context.Context) ([]types.Record, error) {
		return nil, errors.Wrap(errs.Transport(502, "bad gateway"), "fetch widget")
	}, Options{Interval: time.Hour, Logger: slog.New(slog.NewTextHandler(&buf, nil))})

	w.Start()
	require.Eventually(t, func() bool { return w.State().Cycles == 1 }, waitFor, tick)
	w.Stop()
	w.Wait()

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "\n"), out)
	assert.Contains(t, out, "widget refresh failed")
	assert.Contains(t, out, "fetch widget")
	assert.NotContains(t, out, "stack trace")
}

func TestWidgetErrorKeepsLastGoodData(t *testing.T) {
	var fail atomic.Bool
	w := NewWidget("w", func(context.Context) ([]types.Record, error) {
		if fail.Load() {
			return nil, errs.Transport(502, "bad gateway")
		}
		return record(7), nil
	}, Options{Interval: time.Hour})

	w.Start()
	defer func() { w.Stop(); w.Wait() }()
	require.Eventually(t, func() bool { return w.State().Cycles == 1 }, waitFor, tick)

	fail.Store(true)
	w.Refetch()
	require.Eventually(t, func() bool { return w.State().Cycles == 2 }, waitFor, tick)

	st := w.State()
	assert.Equal(t, "The data store returned HTTP 502", st.Err)
	assert.Equal(t, 1, st.Failures)
	require.Len(t, st.Data, 1)
	assert.Equal(t, 7.0, st.Data[0].Value)

	fail.Store(false)
	w.Refetch()
	require.Eventually(t, func() bool { return w.State().Cycles == 3 }, waitFor, tick)
	assert.Empty(t, w.State().Err)
}

func TestWidgetTimeoutBoundsInvocation(t *testing.T) {
	w := NewWidget("w", func(ctx context.Context) ([]types.Record, error) {
		<-ctx.Done()
		return nil, errs.Timeout(ctx.Err())
	}, Options{Timeout: 20 * time.Millisecond})

	w.Start()
	require.Eventually(t, func() bool { return w.State().Cycles == 1 }, waitFor, tick)
	w.Stop()
	w.Wait()
	assert.Equal(t, "The data store did not answer in time", w.State().Err)
}

func TestWidgetRefetchOnStoppedWidgetIsNoop(t *testing.T) {
	var calls atomic.Int32
	w := NewWidget("w", func(context.Context) ([]types.Record, error) {
		calls.Add(1)
		return nil, nil
	}, Options{})

	w.Refetch()
	w.Wait()
	assert.Zero(t, calls.Load())
}

// TestManagerIsolatesWidgets polls a failing and a healthy widget side by side.
func TestManagerIsolatesWidgets(t *testing.T) {
	m := metrics.New()
	var mu sync.Mutex
	seen := make(map[string]int)
	mgr := NewManager(Options{
		Metrics: m,
		OnUpdate: func(id string, _ State) {
			mu.Lock()
			seen[id]++
			mu.Unlock()
		},
	})
	defer mgr.StopAll()

	mgr.Mount("bad", tick, func(context.Context) ([]types.Record, error) {
		return nil, errs.Transport(500, "boom")
	})
	mgr.Mount("good", tick, func(context.Context) ([]types.Record, error) {
		return record(42), nil
	})
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MountedWidget))
	assert.Equal(t, []string{"bad", "good"}, mgr.IDs())

	require.Eventually(t, func() bool {
		snap := mgr.Snapshot()
		return snap["bad"].Cycles >= 2 && snap["good"].Cycles >= 2
	}, waitFor, tick)

	snap := mgr.Snapshot()
	assert.NotEmpty(t, snap["bad"].Err)
	assert.Empty(t, snap["bad"].Data)
	assert.Empty(t, snap["good"].Err)
	require.Len(t, snap["good"].Data, 1)
	assert.Equal(t, 42.0, snap["good"].Data[0].Value)

	mu.Lock()
	assert.GreaterOrEqual(t, seen["bad"], 2)
	assert.GreaterOrEqual(t, seen["good"], 2)
	mu.Unlock()
}

func TestManagerMountReplacesAndUnmount(t *testing.T) {
	m := metrics.New()
	mgr := NewManager(Options{Metrics: m})
	defer mgr.StopAll()

	first := mgr.Mount("w", time.Hour, func(context.Context) ([]types.Record, error) { return record(1), nil })
	second := mgr.Mount("w", time.Hour, func(context.Context) ([]types.Record, error) { return record(2), nil })
	assert.NotSame(t, first, second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MountedWidget))

	got, ok := mgr.Get("w")
	require.True(t, ok)
	assert.Same(t, second, got)

	assert.True(t, mgr.Unmount("w"))
	assert.False(t, mgr.Unmount("w"))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.MountedWidget))
	assert.Empty(t, mgr.Snapshot())
}
