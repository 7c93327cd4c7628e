package logstore

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/fluxorio/todochaos/pkg/core"
	"github.com/fluxorio/todochaos/pkg/worker"
)

// Notifier is the notification channel the store broadcasts on.
// core.EventBus satisfies it.
type Notifier interface {
	Publish(address string, body interface{}) error
	Consumer(address string) core.Consumer
}

// Recorder is the write side of the store used by the rest of the application
type Recorder interface {
	Info(message string, data any)
	Warn(message string, data any)
	Error(message string, err error)
}

// Option configures a Store
type Option func(*Store)

// WithSinks registers sinks receiving every entry
func WithSinks(sinks ...Sink) Option {
	return func(s *Store) {
		s.sinks = append(s.sinks, sinks...)
	}
}

// WithPool dispatches sink deliveries through pool instead of inline
func WithPool(pool *worker.WorkerPool) Option {
	return func(s *Store) {
		s.pool = pool
	}
}

// WithClock overrides the timestamp source
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithCapacity overrides MaxLogs
func WithCapacity(capacity int) Option {
	return func(s *Store) {
		if capacity > 0 {
			s.capacity = capacity
		}
	}
}

// Store holds the most recent entries, newest first
type Store struct {
	bus      Notifier
	sinks    []Sink
	pool     *worker.WorkerPool
	now      func() time.Time
	capacity int

	mu   sync.RWMutex
	ring *Ring[LogEntry] // allocated on first append
}

// NewStore creates a store broadcasting on bus. A nil bus is the headless
// mode: entries still reach the sinks but are neither retained nor announced.
func NewStore(bus Notifier, opts ...Option) *Store {
	s := &Store{
		bus:      bus,
		now:      time.Now,
		capacity: MaxLogs,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record appends a new entry and notifies observers. It never blocks on
// sinks and never fails.
func (s *Store) Record(level Level, message string, payload any) LogEntry {
	entry := newEntry(s.now(), level, message, payload)
	s.emit(entry)

	if s.bus == nil {
		return entry
	}

	s.mu.Lock()
	if s.ring == nil {
		s.ring = NewRing[LogEntry](s.capacity)
	}
	s.ring.Push(entry)
	s.mu.Unlock()

	_ = s.bus.Publish(EventAddress, entry)
	return entry
}

// Info records an INFO entry carrying data
func (s *Store) Info(message string, data any) {
	s.Record(LevelInfo, message, data)
}

// Warn records a WARN entry carrying data
func (s *Store) Warn(message string, data any) {
	s.Record(LevelWarn, message, data)
}

// Error records an ERROR entry carrying the error text
func (s *Store) Error(message string, err error) {
	if err == nil {
		s.Record(LevelError, message, nil)
		return
	}
	s.Record(LevelError, message, err)
}

// Snapshot returns a copy of the retained entries, newest first
func (s *Store) Snapshot() []LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ring == nil {
		return []LogEntry{}
	}
	return s.ring.Newest()
}

// Len returns the number of retained entries
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ring == nil {
		return 0
	}
	return s.ring.Len()
}

// Capacity returns the retention bound
func (s *Store) Capacity() int {
	return s.capacity
}

// Subscribe calls fn with every entry announced on the notification channel
// and returns a function that stops the subscription. fn runs on the event
// bus consumer goroutine.
func (s *Store) Subscribe(fn func(LogEntry)) (unsubscribe func()) {
	if s.bus == nil || fn == nil {
		return func() {}
	}

	consumer := s.bus.Consumer(EventAddress).Handler(func(_ core.FluxorContext, msg core.Message) error {
		var entry LogEntry
		if err := msg.DecodeBody(&entry); err != nil {
			return err
		}
		fn(entry)
		return nil
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = consumer.Unregister()
		})
	}
}

// emit hands the encoded entry to every sink, fire-and-forget
func (s *Store) emit(entry LogEntry) {
	if len(s.sinks) == 0 {
		return
	}
	encoded, err := json.Marshal(entry)
	if err != nil {
		// Unencodable data: ship the entry without it
		entry.Data = nil
		if encoded, err = json.Marshal(entry); err != nil {
			return
		}
	}

	for _, sink := range s.sinks {
		sink := sink
		deliver := func() {
			defer func() { _ = recover() }()
			_ = sink.Emit(entry, encoded)
		}
		if s.pool != nil {
			_ = s.pool.TrySubmit(deliver)
			continue
		}
		deliver()
	}
}

// Discard is a Recorder that drops everything
var Discard Recorder = discard{}

type discard struct{}

func (discard) Info(string, any)    {}
func (discard) Warn(string, any)    {}
func (discard) Error(string, error) {}
