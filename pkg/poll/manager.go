package poll

import (
	"sort"
	"sync"
	"time"
)

// Manager keeps the mounted widgets of one view. Widgets share no state;
// a failing widget never touches another widget's data.
type Manager struct {
	opts Options

	mu      sync.Mutex
	widgets map[string]*Widget
}

// NewManager creates a manager whose widgets inherit opts. Interval is
// given per widget on Mount.
func NewManager(opts Options) *Manager {
	return &Manager{opts: opts, widgets: make(map[string]*Widget)}
}

// Mount starts polling fetch under id. A widget already mounted under the
// same id is stopped and replaced.
func (m *Manager) Mount(id string, interval time.Duration, fetch FetchFunc) *Widget {
	opts := m.opts
	opts.Interval = interval
	w := NewWidget(id, fetch, opts)

	m.mu.Lock()
	old := m.widgets[id]
	m.widgets[id] = w
	m.mu.Unlock()

	if old != nil {
		old.Stop()
	} else if m.opts.Metrics != nil {
		m.opts.Metrics.MountedWidget.Inc()
	}
	w.Start()
	return w
}

// Unmount stops and forgets id. It reports whether id was mounted.
func (m *Manager) Unmount(id string) bool {
	m.mu.Lock()
	w, ok := m.widgets[id]
	delete(m.widgets, id)
	m.mu.Unlock()

	if !ok {
		return false
	}
	w.Stop()
	if m.opts.Metrics != nil {
		m.opts.Metrics.MountedWidget.Dec()
	}
	return true
}

// Get returns the widget mounted under id.
func (m *Manager) Get(id string) (*Widget, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.widgets[id]
	return w, ok
}

// IDs returns the mounted ids in sorted order.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.widgets))
	for id := range m.widgets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns the state of every mounted widget.
func (m *Manager) Snapshot() map[string]State {
	m.mu.Lock()
	widgets := make([]*Widget, 0, len(m.widgets))
	for _, w := range m.widgets {
		widgets = append(widgets, w)
	}
	m.mu.Unlock()

	out := make(map[string]State, len(widgets))
	for _, w := range widgets {
		out[w.ID()] = w.State()
	}
	return out
}

// StopAll unmounts every widget and waits for their goroutines to return.
func (m *Manager) StopAll() {
	m.mu.Lock()
	widgets := m.widgets
	m.widgets = make(map[string]*Widget)
	m.mu.Unlock()

	for _, w := range widgets {
		w.Stop()
		if m.opts.Metrics != nil {
			m.opts.Metrics.MountedWidget.Dec()
		}
	}
	for _, w := range widgets {
		w.Wait()
	}
}
