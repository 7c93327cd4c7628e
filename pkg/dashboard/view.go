package dashboard

import (
	"sync"

	"github.com/fluxorio/todochaos/pkg/logstore"
)

// DefaultRecent is the size of the recent-entries panel
const DefaultRecent = 20

// Update is pushed to watchers after every log notification
type Update struct {
	Metrics Metrics            `json:"metrics"`
	Entry   *logstore.LogEntry `json:"entry,omitempty"`
}

// View keeps metrics in step with the log store. On every notification it
// re-reads the whole snapshot, so the cached metrics always equal a fresh
// Derive.
type View struct {
	store *logstore.Store

	mu          sync.RWMutex
	snapshot    []logstore.LogEntry
	metrics     Metrics
	unsubscribe func()
	watchers    map[uint64]func(Update)
	nextID      uint64
}

// NewView creates a view over store
func NewView(store *logstore.Store) *View {
	v := &View{
		store:    store,
		watchers: make(map[uint64]func(Update)),
	}
	v.refresh()
	return v
}

// Start subscribes to store notifications
func (v *View) Start() {
	v.mu.Lock()
	if v.unsubscribe != nil {
		v.mu.Unlock()
		return
	}
	v.unsubscribe = v.store.Subscribe(v.onEntry)
	v.mu.Unlock()
	v.refresh()
}

// Stop ends the subscription
func (v *View) Stop() {
	v.mu.Lock()
	unsubscribe := v.unsubscribe
	v.unsubscribe = nil
	v.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

func (v *View) onEntry(entry logstore.LogEntry) {
	m := v.refresh()

	v.mu.RLock()
	watchers := make([]func(Update), 0, len(v.watchers))
	for _, w := range v.watchers {
		watchers = append(watchers, w)
	}
	v.mu.RUnlock()

	update := Update{Metrics: m, Entry: &entry}
	for _, w := range watchers {
		w(update)
	}
}

// refresh reads the snapshot under v.mu so a slower refresh can never
// replace a newer one.
func (v *View) refresh() Metrics {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.snapshot = v.store.Snapshot()
	v.metrics = Derive(v.snapshot)
	return v.metrics
}

// Current returns the cached snapshot and its metrics
func (v *View) Current() ([]logstore.LogEntry, Metrics) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]logstore.LogEntry, len(v.snapshot))
	copy(out, v.snapshot)
	return out, v.metrics
}

// Metrics returns the cached metrics
func (v *View) Metrics() Metrics {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.metrics
}

// Recent returns up to limit newest entries
func (v *View) Recent(limit int) []logstore.LogEntry {
	if limit <= 0 {
		limit = DefaultRecent
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	if limit > len(v.snapshot) {
		limit = len(v.snapshot)
	}
	out := make([]logstore.LogEntry, limit)
	copy(out, v.snapshot[:limit])
	return out
}

// Watch registers fn for every update. fn runs on the notification
// goroutine and must not block.
func (v *View) Watch(fn func(Update)) (cancel func()) {
	v.mu.Lock()
	v.nextID++
	id := v.nextID
	v.watchers[id] = fn
	v.mu.Unlock()

	return func() {
		v.mu.Lock()
		delete(v.watchers, id)
		v.mu.Unlock()
	}
}
