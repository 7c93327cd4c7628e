package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxorio/todochaos/pkg/auth"
	"github.com/fluxorio/todochaos/pkg/chaos"
	"github.com/fluxorio/todochaos/pkg/docstore"
)

func TestList_NoUser(t *testing.T) {
	svc := NewService(&fakeBackend{}, decide(chaos.Decision{}), nil, Features{})
	_, err := svc.List(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestList_QuerySetupFailure(t *testing.T) {
	fx := newFixture(t)
	backend := &fakeBackend{subscribeErr: errors.New("index missing")}
	svc := NewService(backend, decide(chaos.Decision{}), fx.store, Features{})

	listing, err := svc.List(context.Background(), alice())
	require.NoError(t, err)
	assert.True(t, listing.Degraded)
	assert.Empty(t, listing.Tasks)
	assert.Equal(t, 0, svc.OpenFeeds())

	snap := fx.store.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, MsgQueryFailed, snap[0].Message)
	assert.Equal(t, "index missing", snap[0].Error)
}

func TestList_ListenerErrorKeepsLastSet(t *testing.T) {
	fx := newFixture(t)
	backend := &fakeBackend{}
	svc := NewService(backend, decide(chaos.Decision{}), fx.store, Features{}, WithFirstSnapshotWait(10*time.Millisecond))
	user := alice()

	// first call opens the feed; nothing delivered yet
	listing, err := svc.List(context.Background(), user)
	require.NoError(t, err)
	assert.Empty(t, listing.Tasks)

	backend.onChange([]docstore.Todo{{ID: "1", Text: "Buy milk", UID: user.UID}})
	listing, err = svc.List(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, listing.Tasks, 1)
	assert.False(t, listing.Degraded)

	backend.onError(errors.New("permission denied"))
	listing, err = svc.List(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, listing.Tasks, 1)
	assert.True(t, listing.Degraded)
	assert.Equal(t, MsgListenerError, fx.store.Snapshot()[0].Message)
}

func TestRelease(t *testing.T) {
	backend := &fakeBackend{}
	svc := NewService(backend, decide(chaos.Decision{}), nil, Features{}, WithFirstSnapshotWait(time.Millisecond))
	user := alice()

	_, err := svc.List(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, 1, svc.OpenFeeds())

	svc.Release(user.UID)
	svc.Release(user.UID)
	assert.Equal(t, 0, svc.OpenFeeds())
	assert.Equal(t, 1, backend.cancelled)
}

func TestWatchAuth_ReleasesOnSignOut(t *testing.T) {
	fx := newFixture(t)
	backend := &fakeBackend{}
	svc := NewService(backend, decide(chaos.Decision{}), fx.store, Features{}, WithFirstSnapshotWait(time.Millisecond))
	stop := svc.WatchAuth(fx.vertx.EventBus())
	defer stop()

	authn, err := auth.New(auth.DefaultConfig("secret"), fx.store, auth.WithPublisher(fx.vertx.EventBus()))
	require.NoError(t, err)
	session, err := authn.Login(context.Background(), auth.Credentials{Name: "Alice"})
	require.NoError(t, err)

	_, err = svc.List(context.Background(), &session.User)
	require.NoError(t, err)
	assert.Equal(t, 1, svc.OpenFeeds())

	_, err = authn.Logout(session.Token)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return svc.OpenFeeds() == 0 }, time.Second, 5*time.Millisecond)
}

func TestClose(t *testing.T) {
	backend := &fakeBackend{}
	svc := NewService(backend, decide(chaos.Decision{}), nil, Features{}, WithFirstSnapshotWait(time.Millisecond))

	_, err := svc.List(context.Background(), alice())
	require.NoError(t, err)
	svc.Close()
	assert.Equal(t, 1, backend.cancelled)

	listing, err := svc.List(context.Background(), alice())
	require.NoError(t, err)
	assert.True(t, listing.Degraded)
}
