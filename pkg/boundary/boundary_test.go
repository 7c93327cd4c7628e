package boundary_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxorio/todochaos/internal/testutil"
	"github.com/fluxorio/todochaos/pkg/boundary"
	"github.com/fluxorio/todochaos/pkg/core"
	"github.com/fluxorio/todochaos/pkg/core/fsm"
	"github.com/fluxorio/todochaos/pkg/logstore"
)

func newBoundary(t *testing.T, opts ...boundary.Option) (*boundary.Boundary, *logstore.Store, *testutil.ManualClock) {
	t.Helper()
	vertx := core.NewVertx(context.Background())
	t.Cleanup(func() { _ = vertx.Close() })

	store := logstore.NewStore(vertx.EventBus())
	clock := testutil.NewManualClock()
	opts = append([]boundary.Option{boundary.WithClock(clock)}, opts...)
	b := boundary.New("todo-list", store, opts...)
	t.Cleanup(b.Close)
	return b, store, clock
}

func messages(entries []logstore.LogEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}

func TestBoundary_PassThrough(t *testing.T) {
	b, store, _ := newBoundary(t)

	ran := false
	err := b.Do(context.Background(), func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	plain := errors.New("backend unreachable")
	err = b.Do(context.Background(), func(context.Context) error { return plain })
	assert.Same(t, plain, err)

	assert.Equal(t, boundary.Healthy, b.State())
	assert.Equal(t, 0, store.Len())
}

func TestBoundary_FaultTripsAndHeals(t *testing.T) {
	b, store, clock := newBoundary(t)

	cause := errors.New("Chaos Monkey Critical Hit!")
	err := b.Do(context.Background(), func(context.Context) error {
		return boundary.NewFault(cause)
	})

	var fb *boundary.FallbackError
	require.ErrorAs(t, err, &fb)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "CRITICAL SYSTEM FAILURE", fb.Fallback.Title)
	assert.Equal(t, "System will reboot in 3 seconds.", fb.Fallback.Detail)
	assert.Equal(t, boundary.Faulted, b.State())

	snap := store.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, logstore.LevelError, snap[0].Level)
	assert.Equal(t, boundary.MsgCaught, snap[0].Message)
	assert.Equal(t, cause.Error(), snap[0].Error)

	clock.Advance(2999 * time.Millisecond)
	assert.Equal(t, boundary.Faulted, b.State())

	clock.Advance(time.Millisecond)
	assert.Equal(t, boundary.Healthy, b.State())
	assert.Nil(t, b.LastError())

	snap = store.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, logstore.LevelInfo, snap[0].Level)
	assert.Equal(t, boundary.MsgAutoHeal, snap[0].Message)
}

func TestBoundary_FaultedShortCircuits(t *testing.T) {
	b, _, _ := newBoundary(t)
	b.Catch(errors.New("boom"))

	ran := false
	err := b.Do(context.Background(), func(context.Context) error {
		ran = true
		return nil
	})

	var fb *boundary.FallbackError
	require.ErrorAs(t, err, &fb)
	assert.False(t, ran)
	assert.EqualError(t, fb.Cause, "boom")
}

func TestBoundary_PanicCaught(t *testing.T) {
	b, store, _ := newBoundary(t)

	err := b.Do(context.Background(), func(context.Context) error {
		panic("render exploded")
	})

	var fb *boundary.FallbackError
	require.ErrorAs(t, err, &fb)
	assert.EqualError(t, fb.Cause, "render exploded")
	assert.Equal(t, boundary.Faulted, b.State())
	assert.Equal(t, "render exploded", store.Snapshot()[0].Error)
}

func TestBoundary_RecatchReplacesTimer(t *testing.T) {
	for _, rethrow := range []time.Duration{time.Second, 2 * time.Second} {
		t.Run(rethrow.String(), func(t *testing.T) {
			b, store, clock := newBoundary(t)

			b.Catch(errors.New("first"))
			clock.Advance(rethrow)
			b.Catch(errors.New("second"))
			assert.Equal(t, 1, clock.Pending())

			// t=3000ms, the first timer's schedule
			clock.Advance(3*time.Second - rethrow)
			assert.Equal(t, boundary.Faulted, b.State())
			assert.EqualError(t, b.LastError(), "second")

			clock.Advance(rethrow - time.Millisecond)
			assert.Equal(t, boundary.Faulted, b.State())

			clock.Advance(time.Millisecond)
			assert.Equal(t, boundary.Healthy, b.State())
			assert.Equal(t, 0, clock.Pending())

			assert.Equal(t, []string{
				boundary.MsgAutoHeal,
				boundary.MsgCaught,
				boundary.MsgCaught,
			}, messages(store.Snapshot()))
		})
	}
}

func TestBoundary_CloseCancelsReset(t *testing.T) {
	b, store, clock := newBoundary(t)

	b.Catch(errors.New("boom"))
	b.Close()
	assert.Equal(t, 0, clock.Pending())

	clock.Advance(10 * time.Second)
	assert.Equal(t, boundary.Faulted, b.State())
	assert.Equal(t, 1, store.Len())
}

func TestBoundary_ResetDelay(t *testing.T) {
	b, _, clock := newBoundary(t, boundary.WithResetDelay(5*time.Second))
	assert.Equal(t, "System will reboot in 5 seconds.", b.Fallback().Detail)

	b.Catch(errors.New("boom"))
	clock.Advance(3 * time.Second)
	assert.Equal(t, boundary.Faulted, b.State())
	clock.Advance(2 * time.Second)
	assert.Equal(t, boundary.Healthy, b.State())
}

func TestBoundary_Observer(t *testing.T) {
	type change struct{ from, to fsm.State }
	var changes []change
	b, _, clock := newBoundary(t, boundary.WithObserver(func(from, to fsm.State) {
		changes = append(changes, change{from, to})
	}))

	b.Catch(errors.New("a"))
	b.Catch(errors.New("b"))
	clock.Advance(boundary.DefaultResetDelay)

	assert.Equal(t, []change{
		{boundary.Healthy, boundary.Faulted},
		{boundary.Faulted, boundary.Faulted},
		{boundary.Faulted, boundary.Healthy},
	}, changes)
}

func TestBoundary_RealClock(t *testing.T) {
	b := boundary.New("real", nil, boundary.WithResetDelay(10*time.Millisecond))
	defer b.Close()

	b.Catch(errors.New("boom"))
	assert.Eventually(t, func() bool {
		return b.State() == boundary.Healthy
	}, time.Second, 5*time.Millisecond)
}

func TestFault(t *testing.T) {
	cause := errors.New("root")
	f := boundary.NewFault(cause)

	assert.True(t, boundary.IsFault(f))
	assert.True(t, boundary.IsFault(errors.Join(errors.New("ctx"), f)))
	assert.False(t, boundary.IsFault(cause))
	assert.ErrorIs(t, f, cause)
	assert.Equal(t, "component crashed: root", f.Error())
}
