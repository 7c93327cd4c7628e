package logstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxorio/todochaos/pkg/core"
	"github.com/fluxorio/todochaos/pkg/worker"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	vertx := core.NewVertx(context.Background())
	t.Cleanup(func() { _ = vertx.Close() })
	return NewStore(vertx.EventBus(), opts...)
}

func fixedClock() func() time.Time {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 123_000_000, time.UTC)
	return func() time.Time { return ts }
}

func TestStore_EmptyInitially(t *testing.T) {
	s := newTestStore(t)
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, []LogEntry{}, s.Snapshot())
}

func TestStore_RecordStampsEntry(t *testing.T) {
	s := newTestStore(t, WithClock(fixedClock()))

	entry := s.Record(LevelInfo, "Task created successfully", map[string]any{"taskId": "t1"})

	assert.Equal(t, "2024-05-01T12:00:00.123Z", entry.Timestamp)
	assert.Equal(t, LevelInfo, entry.Level)
	assert.Equal(t, "Task created successfully", entry.Message)
	assert.Equal(t, AppVersion, entry.AppVersion)
	assert.Equal(t, map[string]any{"taskId": "t1"}, entry.Data)
	assert.Empty(t, entry.Error)

	require.Equal(t, 1, s.Len())
	assert.Equal(t, entry, s.Snapshot()[0])
}

func TestStore_ErrorPayload(t *testing.T) {
	s := newTestStore(t)

	s.Error("Failed to create task", errors.New("permission denied"))
	s.Error("Attempted to add task without user login", nil)

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Empty(t, snap[0].Error)
	assert.Nil(t, snap[0].Data)
	assert.Equal(t, "permission denied", snap[1].Error)
	assert.Nil(t, snap[1].Data)
}

func TestStore_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	s.Info("first", nil)
	s.Warn("second", nil)

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "second", snap[0].Message)
	assert.Equal(t, LevelWarn, snap[0].Level)
	assert.Equal(t, "first", snap[1].Message)
}

func TestStore_CapacityBound(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 150; i++ {
		s.Info(fmt.Sprintf("entry-%d", i), nil)
	}

	snap := s.Snapshot()
	require.Len(t, snap, MaxLogs)
	for i, e := range snap {
		assert.Equal(t, fmt.Sprintf("entry-%d", 149-i), e.Message)
	}
}

func TestStore_SnapshotIsCopy(t *testing.T) {
	s := newTestStore(t)
	s.Info("original", nil)

	snap := s.Snapshot()
	snap[0].Message = "mutated"
	assert.Equal(t, "original", s.Snapshot()[0].Message)
}

func TestStore_SubscribeReceivesEntries(t *testing.T) {
	s := newTestStore(t)

	received := make(chan LogEntry, 4)
	unsubscribe := s.Subscribe(func(e LogEntry) { received <- e })
	defer unsubscribe()

	s.Warn("Chaos Monkey: High latency detected (>2000ms)", nil)

	select {
	case e := <-received:
		assert.Equal(t, LevelWarn, e.Level)
		assert.Equal(t, "Chaos Monkey: High latency detected (>2000ms)", e.Message)
	case <-time.After(time.Second):
		t.Fatal("subscriber not notified")
	}
}

func TestStore_UnsubscribeStopsDelivery(t *testing.T) {
	s := newTestStore(t)

	received := make(chan LogEntry, 4)
	unsubscribe := s.Subscribe(func(e LogEntry) { received <- e })
	unsubscribe()
	unsubscribe()

	s.Info("after unsubscribe", nil)

	select {
	case e := <-received:
		t.Fatalf("unexpected delivery %v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStore_HeadlessSkipsRetention(t *testing.T) {
	var buf bytes.Buffer
	s := NewStore(nil, WithSinks(NewConsoleSink(&buf, &buf)))

	entry := s.Record(LevelInfo, "headless", nil)

	assert.Equal(t, "headless", entry.Message)
	assert.Equal(t, 0, s.Len())
	assert.Contains(t, buf.String(), `"message":"headless"`)

	unsubscribe := s.Subscribe(func(LogEntry) {})
	unsubscribe()
}

func TestStore_ConsoleSinkRoutesByLevel(t *testing.T) {
	var out, errOut bytes.Buffer
	s := newTestStore(t, WithSinks(NewConsoleSink(&out, &errOut)))

	s.Info("fine", nil)
	s.Error("broken", errors.New("boom"))

	assert.Contains(t, out.String(), `"message":"fine"`)
	assert.NotContains(t, out.String(), "broken")
	assert.Contains(t, errOut.String(), `"error":"boom"`)
	assert.Contains(t, errOut.String(), "[SRE-LOG]")
}

func TestStore_FailingSinkIgnored(t *testing.T) {
	var calls int
	failing := SinkFunc(func(LogEntry, []byte) error {
		calls++
		return errors.New("sink down")
	})
	panicking := SinkFunc(func(LogEntry, []byte) error {
		panic("sink exploded")
	})
	s := newTestStore(t, WithSinks(failing, panicking))

	s.Info("still recorded", nil)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, s.Len())
}

func TestStore_SinksThroughPool(t *testing.T) {
	pool := worker.NewWorkerPool(2, 16)
	pool.Start()
	defer pool.Stop(context.Background())

	var (
		mu   sync.Mutex
		seen []string
		done = make(chan struct{}, 3)
	)
	sink := SinkFunc(func(e LogEntry, _ []byte) error {
		mu.Lock()
		seen = append(seen, e.Message)
		mu.Unlock()
		done <- struct{}{}
		return nil
	})
	s := newTestStore(t, WithSinks(sink), WithPool(pool))

	s.Info("a", nil)
	s.Info("b", nil)
	s.Info("c", nil)

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("sink delivery through pool timed out")
		}
	}
	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"a", "b", "c"}, seen)
}

func TestStore_ConcurrentRecord(t *testing.T) {
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.Info(fmt.Sprintf("g%d-%d", n, j), nil)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, MaxLogs, s.Len())
}

func TestLevel_Valid(t *testing.T) {
	assert.True(t, LevelInfo.Valid())
	assert.True(t, LevelWarn.Valid())
	assert.True(t, LevelError.Valid())
	assert.False(t, Level("DEBUG").Valid())
}

func TestDiscard(t *testing.T) {
	Discard.Info("x", nil)
	Discard.Warn("x", nil)
	Discard.Error("x", errors.New("y"))
}
