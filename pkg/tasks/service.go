package tasks

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf16"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fluxorio/todochaos/pkg/auth"
	"github.com/fluxorio/todochaos/pkg/boundary"
	"github.com/fluxorio/todochaos/pkg/chaos"
	"github.com/fluxorio/todochaos/pkg/core"
	"github.com/fluxorio/todochaos/pkg/docstore"
	"github.com/fluxorio/todochaos/pkg/logstore"
)

const tracerName = "github.com/fluxorio/todochaos/pkg/tasks"

// Option configures a Service
type Option func(*Service)

// WithClock overrides the creation timestamp source
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithFirstSnapshotWait bounds how long List waits for a new feed's first
// result set
func WithFirstSnapshotWait(d time.Duration) Option {
	return func(s *Service) {
		s.firstWait = d
	}
}

// WithTracer overrides the global tracer
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// Service implements the task operations for signed-in users
type Service struct {
	backend   docstore.Store
	guard     Guard
	log       logstore.Recorder
	now       func() time.Time
	firstWait time.Duration
	tracer    trace.Tracer

	mu       sync.Mutex
	features Features
	feeds    map[string]*feed
	closed   bool
}

// NewService creates a Service
func NewService(backend docstore.Store, guard Guard, log logstore.Recorder, features Features, opts ...Option) *Service {
	core.FailFastIf(backend == nil, "task backend cannot be nil")
	core.FailFastIf(guard == nil, "task guard cannot be nil")
	if log == nil {
		log = logstore.Discard
	}
	s := &Service{
		backend:   backend,
		guard:     guard,
		log:       log,
		now:       time.Now,
		firstWait: 2 * time.Second,
		tracer:    otel.Tracer(tracerName),
		features:  features,
		feeds:     make(map[string]*feed),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Features returns the current feature flags
func (s *Service) Features() Features {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.features
}

// SetFeatures replaces the feature flags
func (s *Service) SetFeatures(f Features) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.features = f
}

// Create adds a task for user. Blank text is rejected before anything else
// happens; a missing user is logged and reported. An injected failure
// aborts with chaos.ErrServiceUnavailable or, on escalation, a
// boundary.Fault.
func (s *Service) Create(ctx context.Context, user *auth.User, text string) (task Task, err error) {
	if strings.TrimSpace(text) == "" {
		return Task{}, ErrEmptyText
	}

	ctx, span := s.tracer.Start(ctx, "tasks.create")
	defer func() { endSpan(span, err) }()

	if user == nil {
		s.log.Error(MsgNoUser, nil)
		return Task{}, &NoticeError{Notice: "please sign in first", Err: ErrUnauthenticated}
	}
	span.SetAttributes(attribute.String("uid", user.UID))

	if err := s.guarded(ctx, span); err != nil {
		return Task{}, err
	}

	now := s.now()
	todo := docstore.NewTodo{
		Text:       text,
		CreatedAt:  now.UnixMilli(),
		TimeString: formatTimeString(now),
		UID:        user.UID,
	}
	id, err := s.backend.Create(ctx, todo)
	if err != nil {
		s.log.Error(MsgCreateFailed, err)
		return Task{}, &NoticeError{Notice: "create failed, check network or permissions", Err: err}
	}

	s.log.Info(MsgCreated, map[string]any{
		"taskId":        id,
		"contentLength": contentLength(text),
		"uid":           user.UID,
	})
	span.SetAttributes(attribute.String("task.id", id))

	return Task{
		ID:         id,
		Text:       todo.Text,
		CreatedAt:  todo.CreatedAt,
		TimeString: todo.TimeString,
		UID:        todo.UID,
	}, nil
}

// Delete removes user's task id. A missing user is a silent no-op error.
func (s *Service) Delete(ctx context.Context, user *auth.User, id string) (err error) {
	if user == nil {
		return ErrUnauthenticated
	}
	if !s.Features().EnableDelete {
		return ErrDeleteDisabled
	}

	ctx, span := s.tracer.Start(ctx, "tasks.delete", trace.WithAttributes(
		attribute.String("uid", user.UID),
		attribute.String("task.id", id),
	))
	defer func() { endSpan(span, err) }()

	if err := s.guarded(ctx, span); err != nil {
		return err
	}

	if err := s.backend.Delete(ctx, user.UID, id); err != nil {
		s.log.Error(MsgDeleteFailed, err)
		return &NoticeError{Notice: "delete failed", Err: err}
	}

	s.log.Info(MsgDeleted, map[string]any{"taskId": id, "uid": user.UID})
	return nil
}

func (s *Service) guarded(ctx context.Context, span trace.Span) error {
	d, err := s.guard.Guard(ctx)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("chaos.outcome", d.Outcome.String()))
	if !d.Abort {
		return nil
	}
	if d.Crash {
		return boundary.NewFault(chaos.ErrCriticalHit)
	}
	return chaos.ErrServiceUnavailable
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// contentLength counts UTF-16 code units, the unit browser clients report
func contentLength(text string) int {
	return len(utf16.Encode([]rune(text)))
}
