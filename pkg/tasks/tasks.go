// Package tasks is the to-do facade: create, delete and list a signed-in
// user's tasks, with every mutation passing through the fault injector.
package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/fluxorio/todochaos/pkg/chaos"
	"github.com/fluxorio/todochaos/pkg/docstore"
)

const (
	MsgCreated       = "Task created successfully"
	MsgCreateFailed  = "Failed to create task"
	MsgDeleted       = "Task deleted"
	MsgDeleteFailed  = "Failed to delete task"
	MsgNoUser        = "Attempted to add task without user login"
	MsgListenerError = "Snapshot listener error"
	MsgQueryFailed   = "Query setup failed"

	timeStringLayout = "1/2/2006, 3:04:05 PM"
)

var (
	// ErrEmptyText rejects blank input without side effects
	ErrEmptyText = errors.New("task text is empty")
	// ErrUnauthenticated means no user is signed in
	ErrUnauthenticated = errors.New("not signed in")
	// ErrDeleteDisabled means the delete feature is off
	ErrDeleteDisabled = errors.New("delete is disabled")
)

// Task is a stored to-do item
type Task = docstore.Todo

// Features are the deployment feature flags
type Features struct {
	ShowTimestamp bool `json:"showTimestamp" yaml:"show_timestamp"`
	EnableDelete  bool `json:"enableDelete" yaml:"enable_delete"`
}

// TaskView is the presentation projection of a Task
type TaskView struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	CreatedAt  int64  `json:"createdAt"`
	TimeString string `json:"timeString,omitempty"`
}

// View projects task according to features
func View(task Task, features Features) TaskView {
	v := TaskView{ID: task.ID, Text: task.Text, CreatedAt: task.CreatedAt}
	if features.ShowTimestamp {
		v.TimeString = task.TimeString
	}
	return v
}

// Listing is the result of List
type Listing struct {
	Tasks []TaskView `json:"tasks"`
	// Degraded is set when the live feed failed; Tasks is the last known set
	Degraded bool `json:"degraded"`
}

// NoticeError is a failure the user should be told about
type NoticeError struct {
	Notice string
	Err    error
}

func (e *NoticeError) Error() string {
	if e.Err == nil {
		return e.Notice
	}
	return e.Notice + ": " + e.Err.Error()
}

func (e *NoticeError) Unwrap() error {
	return e.Err
}

// Guard decides whether a mutation may run. *chaos.Injector satisfies it.
type Guard interface {
	Guard(ctx context.Context) (chaos.Decision, error)
}

func formatTimeString(t time.Time) string {
	return t.Local().Format(timeStringLayout)
}
