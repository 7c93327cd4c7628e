package tasks

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxorio/todochaos/pkg/auth"
	"github.com/fluxorio/todochaos/pkg/boundary"
	"github.com/fluxorio/todochaos/pkg/chaos"
	"github.com/fluxorio/todochaos/pkg/core"
	"github.com/fluxorio/todochaos/pkg/docstore"
	"github.com/fluxorio/todochaos/pkg/logstore"
)

type guardFunc func(ctx context.Context) (chaos.Decision, error)

func (f guardFunc) Guard(ctx context.Context) (chaos.Decision, error) { return f(ctx) }

func decide(d chaos.Decision) Guard {
	return guardFunc(func(context.Context) (chaos.Decision, error) { return d, nil })
}

// fakeBackend counts calls and fails on demand
type fakeBackend struct {
	mu           sync.Mutex
	createErr    error
	deleteErr    error
	subscribeErr error
	creates      int
	deletes      int
	onChange     func([]docstore.Todo)
	onError      func(error)
	cancelled    int
}

func (f *fakeBackend) Create(ctx context.Context, todo docstore.NewTodo) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return "", f.createErr
	}
	return "doc-1", nil
}

func (f *fakeBackend) Delete(ctx context.Context, owner, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	return f.deleteErr
}

func (f *fakeBackend) List(ctx context.Context, owner string) ([]docstore.Todo, error) {
	return nil, nil
}

func (f *fakeBackend) Subscribe(ctx context.Context, owner string, onChange func([]docstore.Todo), onError func(error)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	f.onChange = onChange
	f.onError = onError
	return func() {
		f.mu.Lock()
		f.cancelled++
		f.mu.Unlock()
	}, nil
}

func (f *fakeBackend) Ping(ctx context.Context) error { return nil }
func (f *fakeBackend) Close() error                   { return nil }

type fixture struct {
	vertx core.Vertx
	store *logstore.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	vertx := core.NewVertx(context.Background())
	t.Cleanup(func() { _ = vertx.Close() })
	return &fixture{vertx: vertx, store: logstore.NewStore(vertx.EventBus())}
}

func alice() *auth.User {
	u := auth.NewUser("Alice", "")
	return &u
}

func TestCreate_EndToEnd(t *testing.T) {
	fx := newFixture(t)
	db, err := docstore.OpenSQLite(filepath.Join(t.TempDir(), "todos.db"))
	require.NoError(t, err)
	defer db.Close()

	injector := chaos.NewInjector(fx.store)
	svc := NewService(db, injector, fx.store, Features{ShowTimestamp: true, EnableDelete: true})
	defer svc.Close()

	user := alice()
	before := fx.store.Len()

	task, err := svc.Create(context.Background(), user, "Buy milk")
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, "Buy milk", task.Text)
	assert.Equal(t, user.UID, task.UID)

	assert.Equal(t, before+1, fx.store.Len())
	snap := fx.store.Snapshot()
	assert.Equal(t, logstore.LevelInfo, snap[0].Level)
	assert.Contains(t, snap[0].Message, "successfully")
	assert.Equal(t, map[string]any{
		"taskId":        task.ID,
		"contentLength": 8,
		"uid":           user.UID,
	}, snap[0].Data)

	listing, err := svc.List(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, listing.Tasks, 1)
	assert.Equal(t, task.ID, listing.Tasks[0].ID)
	assert.Equal(t, task.TimeString, listing.Tasks[0].TimeString)
	assert.False(t, listing.Degraded)
}

func TestCreate_ContentLengthCountsUTF16Units(t *testing.T) {
	fx := newFixture(t)
	svc := NewService(&fakeBackend{}, decide(chaos.Decision{}), fx.store, Features{})

	for text, want := range map[string]int{
		"Buy milk.": 9,
		" Buy milk": 9,
		"牛奶を買う":     5,
		"milk 🥛":    7,
	} {
		_, err := svc.Create(context.Background(), alice(), text)
		require.NoError(t, err)
		data := fx.store.Snapshot()[0].Data.(map[string]any)
		assert.Equal(t, want, data["contentLength"], "text %q", text)
	}
}

func TestCreate_BlankInput(t *testing.T) {
	fx := newFixture(t)
	backend := &fakeBackend{}
	guardCalls := 0
	guard := guardFunc(func(context.Context) (chaos.Decision, error) {
		guardCalls++
		return chaos.Decision{}, nil
	})
	svc := NewService(backend, guard, fx.store, Features{})

	for _, text := range []string{"", "   ", "\t\n"} {
		_, err := svc.Create(context.Background(), alice(), text)
		assert.ErrorIs(t, err, ErrEmptyText)
		_, err = svc.Create(context.Background(), nil, text)
		assert.ErrorIs(t, err, ErrEmptyText)
	}

	assert.Zero(t, backend.creates)
	assert.Zero(t, guardCalls)
	assert.Zero(t, fx.store.Len())
}

func TestCreate_NoUser(t *testing.T) {
	fx := newFixture(t)
	backend := &fakeBackend{}
	svc := NewService(backend, decide(chaos.Decision{}), fx.store, Features{})

	_, err := svc.Create(context.Background(), nil, "Buy milk")

	var notice *NoticeError
	require.ErrorAs(t, err, &notice)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Zero(t, backend.creates)

	snap := fx.store.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, logstore.LevelError, snap[0].Level)
	assert.Equal(t, MsgNoUser, snap[0].Message)
}

func TestCreate_ChaosAbort(t *testing.T) {
	fx := newFixture(t)
	backend := &fakeBackend{}
	svc := NewService(backend, decide(chaos.Decision{Outcome: chaos.ServiceError, Abort: true}), fx.store, Features{})

	_, err := svc.Create(context.Background(), alice(), "Buy milk")
	assert.ErrorIs(t, err, chaos.ErrServiceUnavailable)
	assert.False(t, boundary.IsFault(err))
	assert.Zero(t, backend.creates)
	assert.Zero(t, fx.store.Len())
}

func TestCreate_ChaosCrash(t *testing.T) {
	fx := newFixture(t)
	backend := &fakeBackend{}
	svc := NewService(backend, decide(chaos.Decision{Outcome: chaos.ServiceError, Abort: true, Crash: true}), fx.store, Features{})

	_, err := svc.Create(context.Background(), alice(), "Buy milk")
	assert.True(t, boundary.IsFault(err))
	assert.ErrorIs(t, err, chaos.ErrCriticalHit)
	assert.Zero(t, backend.creates)
}

func TestCreate_HighLatencyProceeds(t *testing.T) {
	fx := newFixture(t)
	backend := &fakeBackend{}
	svc := NewService(backend, decide(chaos.Decision{Outcome: chaos.HighLatency}), fx.store, Features{})

	_, err := svc.Create(context.Background(), alice(), "Buy milk")
	require.NoError(t, err)
	assert.Equal(t, 1, backend.creates)
}

func TestCreate_GuardCancelled(t *testing.T) {
	fx := newFixture(t)
	backend := &fakeBackend{}
	guard := guardFunc(func(ctx context.Context) (chaos.Decision, error) {
		return chaos.Decision{Outcome: chaos.HighLatency}, context.Canceled
	})
	svc := NewService(backend, guard, fx.store, Features{})

	_, err := svc.Create(context.Background(), alice(), "Buy milk")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, backend.creates)
}

func TestCreate_BackendFailure(t *testing.T) {
	fx := newFixture(t)
	backend := &fakeBackend{createErr: errors.New("permission denied")}
	svc := NewService(backend, decide(chaos.Decision{}), fx.store, Features{})

	_, err := svc.Create(context.Background(), alice(), "Buy milk")

	var notice *NoticeError
	require.ErrorAs(t, err, &notice)
	assert.Contains(t, notice.Notice, "create failed")

	snap := fx.store.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, MsgCreateFailed, snap[0].Message)
	assert.Equal(t, "permission denied", snap[0].Error)
}

func TestDelete(t *testing.T) {
	user := alice()

	t.Run("no user is silent", func(t *testing.T) {
		fx := newFixture(t)
		backend := &fakeBackend{}
		svc := NewService(backend, decide(chaos.Decision{}), fx.store, Features{EnableDelete: true})

		assert.ErrorIs(t, svc.Delete(context.Background(), nil, "x"), ErrUnauthenticated)
		assert.Zero(t, backend.deletes)
		assert.Zero(t, fx.store.Len())
	})

	t.Run("disabled", func(t *testing.T) {
		fx := newFixture(t)
		backend := &fakeBackend{}
		svc := NewService(backend, decide(chaos.Decision{}), fx.store, Features{})

		assert.ErrorIs(t, svc.Delete(context.Background(), user, "x"), ErrDeleteDisabled)
		assert.Zero(t, backend.deletes)
	})

	t.Run("success", func(t *testing.T) {
		fx := newFixture(t)
		backend := &fakeBackend{}
		svc := NewService(backend, decide(chaos.Decision{}), fx.store, Features{EnableDelete: true})

		require.NoError(t, svc.Delete(context.Background(), user, "doc-1"))
		assert.Equal(t, 1, backend.deletes)

		snap := fx.store.Snapshot()
		require.Len(t, snap, 1)
		assert.Equal(t, MsgDeleted, snap[0].Message)
		assert.Equal(t, map[string]any{"taskId": "doc-1", "uid": user.UID}, snap[0].Data)
	})

	t.Run("chaos abort", func(t *testing.T) {
		fx := newFixture(t)
		backend := &fakeBackend{}
		svc := NewService(backend, decide(chaos.Decision{Outcome: chaos.ServiceError, Abort: true}), fx.store, Features{EnableDelete: true})

		assert.ErrorIs(t, svc.Delete(context.Background(), user, "doc-1"), chaos.ErrServiceUnavailable)
		assert.Zero(t, backend.deletes)
	})

	t.Run("backend failure", func(t *testing.T) {
		fx := newFixture(t)
		backend := &fakeBackend{deleteErr: errors.New("unavailable")}
		svc := NewService(backend, decide(chaos.Decision{}), fx.store, Features{EnableDelete: true})

		err := svc.Delete(context.Background(), user, "doc-1")
		var notice *NoticeError
		require.ErrorAs(t, err, &notice)
		assert.Equal(t, MsgDeleteFailed, fx.store.Snapshot()[0].Message)
	})
}

func TestSetFeatures(t *testing.T) {
	svc := NewService(&fakeBackend{}, decide(chaos.Decision{}), nil, Features{})
	assert.ErrorIs(t, svc.Delete(context.Background(), alice(), "x"), ErrDeleteDisabled)

	svc.SetFeatures(Features{EnableDelete: true, ShowTimestamp: true})
	assert.Equal(t, Features{EnableDelete: true, ShowTimestamp: true}, svc.Features())
	assert.NoError(t, svc.Delete(context.Background(), alice(), "x"))
}

func TestView(t *testing.T) {
	task := Task{ID: "1", Text: "Buy milk", CreatedAt: 42, TimeString: "1/1/2024, 9:00:00 AM", UID: "u"}

	assert.Equal(t, TaskView{ID: "1", Text: "Buy milk", CreatedAt: 42}, View(task, Features{}))
	assert.Equal(t, "1/1/2024, 9:00:00 AM", View(task, Features{ShowTimestamp: true}).TimeString)
}

func TestCreate_TimeString(t *testing.T) {
	at := time.Date(2024, 5, 1, 15, 4, 5, 0, time.Local)
	svc := NewService(&fakeBackend{}, decide(chaos.Decision{}), nil, Features{}, WithClock(func() time.Time { return at }))

	task, err := svc.Create(context.Background(), alice(), "x")
	require.NoError(t, err)
	assert.Equal(t, at.UnixMilli(), task.CreatedAt)
	assert.Equal(t, "5/1/2024, 3:04:05 PM", task.TimeString)
}
