package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/fluxorio/todochaos/pkg/auth"
	"github.com/fluxorio/todochaos/pkg/core"
	obsotel "github.com/fluxorio/todochaos/pkg/observability/otel"
)

// feed is a user's live subscription to their task set
type feed struct {
	cancel func()

	mu       sync.RWMutex
	tasks    []Task
	degraded bool
	ready    chan struct{}
	once     sync.Once
}

func (f *feed) onChange(tasks []Task) {
	f.mu.Lock()
	f.tasks = tasks
	f.degraded = false
	f.mu.Unlock()
	f.markReady()
}

func (f *feed) onError() {
	f.mu.Lock()
	f.degraded = true
	f.mu.Unlock()
	f.markReady()
}

func (f *feed) markReady() {
	f.once.Do(func() { close(f.ready) })
}

func (f *feed) snapshot() ([]Task, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Task, len(f.tasks))
	copy(out, f.tasks)
	return out, f.degraded
}

// List returns user's tasks from their live feed, opening it on first use.
// Feed failures are logged and reported through Listing.Degraded.
func (s *Service) List(ctx context.Context, user *auth.User) (Listing, error) {
	if user == nil {
		return Listing{}, ErrUnauthenticated
	}

	f, fresh := s.feedFor(user.UID)
	if f == nil {
		return Listing{Tasks: []TaskView{}, Degraded: true}, nil
	}
	if fresh {
		timer := time.NewTimer(s.firstWait)
		defer timer.Stop()
		select {
		case <-f.ready:
		case <-timer.C:
		case <-ctx.Done():
			return Listing{}, ctx.Err()
		}
	}

	tasks, degraded := f.snapshot()
	features := s.Features()
	views := make([]TaskView, len(tasks))
	for i, t := range tasks {
		views[i] = View(t, features)
	}
	return Listing{Tasks: views, Degraded: degraded}, nil
}

func (s *Service) feedFor(uid string) (*feed, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false
	}
	if f, ok := s.feeds[uid]; ok {
		return f, false
	}

	f := &feed{ready: make(chan struct{})}
	cancel, err := s.backend.Subscribe(context.Background(), uid, f.onChange, func(err error) {
		s.log.Error(MsgListenerError, err)
		f.onError()
	})
	if err != nil {
		s.log.Error(MsgQueryFailed, err)
		return nil, false
	}
	f.cancel = cancel
	s.feeds[uid] = f
	return f, true
}

// Release closes uid's feed, e.g. on sign-out
func (s *Service) Release(uid string) {
	s.mu.Lock()
	f, ok := s.feeds[uid]
	delete(s.feeds, uid)
	s.mu.Unlock()
	if ok {
		f.cancel()
	}
}

// OpenFeeds returns the number of live feeds
func (s *Service) OpenFeeds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.feeds)
}

// WatchAuth releases a user's feed when they sign out
func (s *Service) WatchAuth(bus core.EventBus) (stop func()) {
	consumer := bus.Consumer(auth.StateAddress).Handler(obsotel.WrapConsumerHandler(auth.StateAddress, func(_ core.FluxorContext, msg core.Message) error {
		var ev auth.StateEvent
		if err := msg.DecodeBody(&ev); err != nil {
			return err
		}
		if ev.Event == auth.EventSignOut {
			s.Release(ev.User.UID)
		}
		return nil
	}))
	return func() { _ = consumer.Unregister() }
}

// Close releases every feed
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	feeds := s.feeds
	s.feeds = make(map[string]*feed)
	s.mu.Unlock()
	for _, f := range feeds {
		f.cancel()
	}
}
